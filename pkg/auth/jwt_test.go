package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	session := DeviceSession{ID: "dev-1", Name: "Pixel 9", Platform: "android"}

	token, err := GenerateToken(session)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, session, claims.Device)
	assert.NotEmpty(t, claims.RegisteredClaims.ID)
}

func TestValidateToken_RejectsGarbage(t *testing.T) {
	_, err := ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestValidateToken_RejectsTampering(t *testing.T) {
	token, err := GenerateToken(DeviceSession{ID: "dev-1"})
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "AAAA"
	_, err = ValidateToken(tampered)
	assert.Error(t, err)
}

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := HashSecret("correct horse battery")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery", hash)

	assert.True(t, VerifySecret("correct horse battery", hash))
	assert.False(t, VerifySecret("wrong secret", hash))
}
