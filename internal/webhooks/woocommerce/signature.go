package woowebhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
)

// Delivery headers set by WooCommerce.
const (
	HeaderSignature = "X-WC-Webhook-Signature"
	HeaderTopic     = "X-WC-Webhook-Topic"
	HeaderResource  = "X-WC-Webhook-Resource"
	HeaderEvent     = "X-WC-Webhook-Event"
	HeaderID        = "X-WC-Webhook-ID"
	HeaderDelivery  = "X-WC-Webhook-Delivery-ID"
)

// Sign returns base64(HMAC-SHA256(secret, payload)), the value WooCommerce
// sends in X-WC-Webhook-Signature.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the raw, unparsed payload. A missing secret,
// a missing signature or a mismatch fail with UNAUTHORIZED.
func Verify(payload []byte, secret, signature string) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook secret not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing")
	}
	expected := Sign(payload, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

// IsPing reports whether the payload is the form-encoded ping WooCommerce
// sends, unsigned, when a webhook is first saved.
func IsPing(payload []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(payload), []byte("webhook_id="))
}
