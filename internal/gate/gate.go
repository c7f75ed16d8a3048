// Package gate guards the scan-and-verify pipeline with an explicit
// confirmation step before a scanned payment is processed.
package gate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/offpay/offpay/internal/errs"
)

// Authorizer confirms that the device holder approved a scanned payment.
// A failed confirmation is retryable; the payment is simply not processed.
type Authorizer interface {
	Confirm(ctx context.Context, transactionID, proof string) error
}

// TokenGate validates per-transaction capability tokens: HS256 JWTs whose
// subject is the transaction id they authorize.
type TokenGate struct {
	signKey []byte
	ttl     time.Duration
}

// NewTokenGate constructs a TokenGate with the given signing key and
// token lifetime.
func NewTokenGate(signKey []byte, ttl time.Duration) *TokenGate {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenGate{signKey: signKey, ttl: ttl}
}

// Issue mints a token authorizing exactly one transaction.
func (g *TokenGate) Issue(transactionID string) (string, error) {
	if transactionID == "" {
		return "", errors.New("empty transaction id")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   transactionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.signKey)
}

// Confirm checks that proof is a live capability token for transactionID.
func (g *TokenGate) Confirm(_ context.Context, transactionID, proof string) error {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(proof, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return g.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	v := jwt.NewValidator(jwt.WithLeeway(30 * time.Second))
	if err := v.Validate(&claims); err != nil {
		return fmt.Errorf("%w: token expired or not valid yet", errs.ErrUnauthorized)
	}
	if claims.Subject != transactionID {
		return fmt.Errorf("%w: token bound to another transaction", errs.ErrUnauthorized)
	}
	return nil
}

// StaticGate reproduces the original demo's fixed shared secret. It is a
// placeholder, not an authorization scheme; production wiring should use
// TokenGate.
type StaticGate struct {
	secret string
}

// NewStaticGate constructs a StaticGate around a fixed secret.
func NewStaticGate(secret string) *StaticGate { return &StaticGate{secret: secret} }

// Confirm compares proof to the fixed secret in constant time.
func (g *StaticGate) Confirm(_ context.Context, _ string, proof string) error {
	if subtle.ConstantTimeCompare([]byte(g.secret), []byte(proof)) != 1 {
		return fmt.Errorf("%w: wrong confirmation code", errs.ErrUnauthorized)
	}
	return nil
}

var (
	_ Authorizer = (*TokenGate)(nil)
	_ Authorizer = (*StaticGate)(nil)
)
