package infra

import (
	"fmt"
	"time"

	"market_sync/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// CheckCredential rejects a token that is already known to be unusable before any dial.
// The signature is not verified here; the server does that on the handshake. Tokens that
// are not JWTs, or carry no exp claim, pass through.
func CheckCredential(token string, now time.Time, skew time.Duration) error {
	if token == "" {
		return domain.ErrNoCredential
	}

	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !now.Add(skew).Before(exp.Time) {
		return fmt.Errorf("%w: expired at %s", domain.ErrCredentialExpired, exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
