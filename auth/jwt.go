package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLen is the minimum accepted HMAC secret length in bytes.
// 32 bytes matches the SHA-256 block the secret is normally derived from.
const MinSecretLen = 32

// GenerateToken creates a signed JWT string from the given claims.
// The expiry duration is added to the current time to set the ExpiresAt field.
// Returns an error if the secret is shorter than MinSecretLen bytes.
func GenerateToken(secret []byte, claims *PraxisClaims, expiry time.Duration) (string, error) {
	if len(secret) < MinSecretLen {
		return "", fmt.Errorf("auth: secret too short (%d bytes, need %d)", len(secret), MinSecretLen)
	}

	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken parses and validates a JWT string, returning the structured
// PraxisClaims. Strictly pins the signing method to HS256 to prevent
// algorithm confusion attacks.
func ValidateToken(secret []byte, tokenStr string) (*PraxisClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &PraxisClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v (only HS256 allowed)", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*PraxisClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
