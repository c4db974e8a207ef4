package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/ravewear-storefront/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintCartToken issues a signed cart-session token. An empty sessionID starts a
// new session with a random id.
func MintCartToken(cfg config.CartSessionConfig, now time.Time, sessionID string) (string, *CartSessionClaims, error) {
	if cfg.Secret == "" {
		return "", nil, fmt.Errorf("cart token secret is required")
	}
	if cfg.Issuer == "" {
		return "", nil, fmt.Errorf("cart token issuer is required")
	}
	if cfg.TTL <= 0 {
		return "", nil, fmt.Errorf("cart token ttl must be positive")
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		sid = uuid.NewString()
	}

	claims := &CartSessionClaims{
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   sid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", nil, fmt.Errorf("signing cart token: %w", err)
	}
	return signed, claims, nil
}

// ParseCartToken validates the token and returns its claims.
func ParseCartToken(cfg config.CartSessionConfig, tokenString string) (*CartSessionClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("cart token secret is required")
	}

	claims := &CartSessionClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.SessionID) == "" {
		return nil, fmt.Errorf("cart token has no session id")
	}
	return claims, nil
}
