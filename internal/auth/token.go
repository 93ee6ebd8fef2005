// Package auth implements the session core: short-lived signed access
// tokens, rotating refresh tokens with replay detection, and the SSH
// challenge login flow.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/anchor-vcs/anchor/pkg/errclass"
)

// AccessTokenTTL bounds how long an access token is honored.
const AccessTokenTTL = 5 * time.Minute

// StepUpWindow is how long a step-up assertion stays fresh.
const StepUpWindow = 300 * time.Second

// Claims are the payload of an access token.
type Claims struct {
	Fingerprint string `json:"fpt"`
	StepUp      bool   `json:"step_up,omitempty"`
	StepUpAt    int64  `json:"step_up_at,omitempty"`
	jwt.RegisteredClaims
}

// Username returns the token subject.
func (c *Claims) Username() string { return c.Subject }

// StepUpFresh reports whether the token carries a step-up assertion no
// older than the freshness window. A stale assertion counts as absent.
func (c *Claims) StepUpFresh(now time.Time) bool {
	if !c.StepUp || c.StepUpAt == 0 {
		return false
	}
	return now.Sub(time.Unix(c.StepUpAt, 0)) <= StepUpWindow
}

// TokenIssuer mints and verifies access tokens with an HMAC-SHA256 secret.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer creates an issuer over the server secret.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Issue mints an access token bound to the device fingerprint.
func (ti *TokenIssuer) Issue(username, fpt string, stepUp bool) (string, error) {
	now := time.Now()
	claims := &Claims{
		Fingerprint: fpt,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if stepUp {
		claims.StepUp = true
		claims.StepUpAt = now.Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", errclass.ErrInternal.WithMessagef("sign token: %v", err)
	}
	return signed, nil
}

// Verify parses and validates a token. When the caller knows the request
// fingerprint it must pass it; a non-empty mismatch against the token's
// bound fingerprint is rejected even if the signature is valid.
func (ti *TokenIssuer) Verify(tokenString, requestFpt string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errclass.ErrInvalidToken.WithMessagef("unexpected signing method %v", t.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil {
		if verr, ok := err.(*jwt.ValidationError); ok && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, errclass.ErrExpiredToken.WithMessage("access token expired")
		}
		return nil, errclass.ErrInvalidToken.WithMessagef("parse token: %v", err)
	}
	if requestFpt != "" && claims.Fingerprint != "" && requestFpt != claims.Fingerprint {
		return nil, errclass.ErrFingerprintMismatch.WithMessage("token bound to a different device")
	}
	return claims, nil
}
