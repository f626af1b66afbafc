package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried on bearer tokens for the health probe and emergency flush
// endpoints. The remote side only needs to know which device (and acting
// user) the request came from.
type Claims struct {
	DeviceID string `json:"device_id"`
	UserID   string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenMinter mints short-lived HS256 bearer tokens.
type TokenMinter struct {
	secret []byte
	expiry time.Duration
}

func NewTokenMinter(secret string, expiry time.Duration) *TokenMinter {
	return &TokenMinter{
		secret: []byte(secret),
		expiry: expiry,
	}
}

func (m *TokenMinter) Mint(deviceID, userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		DeviceID: deviceID,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token minted by this minter. Used by tests
// and by remote peers sharing the secret.
func (m *TokenMinter) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
