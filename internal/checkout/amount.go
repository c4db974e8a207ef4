package checkout

import (
	"strings"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies are charged in whole units by Stripe.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

// MinorUnitExponent returns the number of decimal places of currency's minor unit.
func MinorUnitExponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToLower(strings.TrimSpace(currency))]; ok {
		return 0
	}
	return 2
}

// ToMinorUnits converts a major-unit amount to the processor's integer minor
// units, rounding half away from zero (19.995 USD is 2000).
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if amount.IsNegative() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount cannot be negative")
	}
	exp := MinorUnitExponent(currency)
	minor := amount.Shift(exp).Round(0)
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(maxMinorAmount)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount out of range")
	}
	return minor.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-MinorUnitExponent(currency))
}

// Stripe rejects amounts above eight digits of minor units.
const maxMinorAmount = 99999999
