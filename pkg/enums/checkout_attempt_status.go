package enums

import "fmt"

// CheckoutAttemptStatus tracks a single checkout submission in the attempt ledger.
type CheckoutAttemptStatus string

const (
	CheckoutAttemptStatusInProgress CheckoutAttemptStatus = "in_progress"
	CheckoutAttemptStatusSucceeded  CheckoutAttemptStatus = "succeeded"
	CheckoutAttemptStatusFailed     CheckoutAttemptStatus = "failed"
	CheckoutAttemptStatusAbandoned  CheckoutAttemptStatus = "abandoned"
)

var validCheckoutAttemptStatuses = []CheckoutAttemptStatus{
	CheckoutAttemptStatusInProgress,
	CheckoutAttemptStatusSucceeded,
	CheckoutAttemptStatusFailed,
	CheckoutAttemptStatusAbandoned,
}

// String implements fmt.Stringer.
func (s CheckoutAttemptStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s CheckoutAttemptStatus) IsValid() bool {
	for _, candidate := range validCheckoutAttemptStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the attempt can no longer change.
func (s CheckoutAttemptStatus) IsTerminal() bool {
	return s == CheckoutAttemptStatusSucceeded || s == CheckoutAttemptStatusAbandoned
}

// ParseCheckoutAttemptStatus converts raw input into a CheckoutAttemptStatus.
func ParseCheckoutAttemptStatus(value string) (CheckoutAttemptStatus, error) {
	for _, candidate := range validCheckoutAttemptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout attempt status %q", value)
}
