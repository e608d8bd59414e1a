package prefserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Mint issues an HS256 token for subject valid for ttl. A non-positive ttl
// issues a token without expiry.
func Mint(key []byte, subject string, ttl time.Duration) (string, error) {
	if len(key) == 0 {
		return "", errors.New("prefserver: signing key required")
	}
	if subject == "" {
		return "", errors.New("prefserver: subject required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   "themesync",
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("prefserver: sign token: %w", err)
	}
	return signed, nil
}
