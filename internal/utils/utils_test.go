package utils

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "admin", "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "s3cret")
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)

	_, err = ParseJWT(token, "other")
	assert.Error(t, err)
}

func TestJWTRejectsExpiredAndForeignAlgorithms(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	s, err := expired.SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = ParseJWT(s, "k")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UserID:           1,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	s, err = hs512.SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = ParseJWT(s, "k")
	assert.Error(t, err)

	_, err = GenerateJWT(1, "USER", "", time.Hour)
	assert.Error(t, err)
}

func TestNilCacheIsAMiss(t *testing.T) {
	ctx := context.Background()
	for _, c := range []*Cache{nil, NewCache(nil, 0)} {
		var dest map[string]any
		found, err := c.Get(ctx, "k", &dest)
		require.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, c.Set(ctx, "k", 1))
		assert.NoError(t, c.Delete(ctx, "k"))
		assert.NoError(t, c.Bump(ctx, "f"))
		assert.Zero(t, c.Version(ctx, "f"))
		c.InvalidateWallets(ctx, map[uint]string{1: "WLT0000000001"})
	}
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "wallet:number:WLT0000000001", WalletKey("WLT0000000001"))
	assert.Equal(t, "txhistory:wallet:7:v3:page:2:size:20", PageKey(HistoryFamily(7), 3, 2, 20))
}
