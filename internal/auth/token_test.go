package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenMinter_MintAndVerify(t *testing.T) {
	minter := NewTokenMinter("floor-secret", time.Hour)

	token, err := minter.Mint("device-1", "operator-7")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := minter.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "device-1", claims.DeviceID)
	assert.Equal(t, "operator-7", claims.UserID)
}

func TestTokenMinter_RejectsWrongSecret(t *testing.T) {
	token, err := NewTokenMinter("secret-a", time.Hour).Mint("device-1", "")
	require.NoError(t, err)

	_, err = NewTokenMinter("secret-b", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenMinter_RejectsExpired(t *testing.T) {
	minter := NewTokenMinter("floor-secret", -time.Minute)
	token, err := minter.Mint("device-1", "")
	require.NoError(t, err)

	_, err = minter.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenMinter_RejectsGarbage(t *testing.T) {
	minter := NewTokenMinter("floor-secret", time.Hour)
	_, err := minter.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
