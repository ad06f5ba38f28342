package utils

import (
	"errors"  // Error construction
	"strings" // Role normalisation
	"time"    // Time for token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// Claims carried by access tokens
type Claims struct {
	UserID               uint   `json:"user_id"` // Custom claim for user ID
	Role                 string `json:"role"`    // Role at issue time, re-checked against the DB
	jwt.RegisteredClaims        // Standard JWT claims
}

// GenerateJWT creates a signed token for a user valid for ttl
func GenerateJWT(userID uint, role, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   strings.ToUpper(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseJWT parses and validates a token string. Only HS256 is accepted.
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != 0 {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
