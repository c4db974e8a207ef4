package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// CartSessionClaims identify an anonymous shopper's cart. The token is the only
// credential the storefront issues; it carries no personal data.
type CartSessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}
