package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examreg/pkg/requestcontext"
)

var jwtService = NewService("test-signing-key", "test-issuer")

func TestGenerateAndValidate(t *testing.T) {
	token, err := jwtService.Generate(42, requestcontext.RoleCandidate, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
	assert.Equal(t, requestcontext.RoleCandidate, claims.Role)
	assert.Equal(t, "test-issuer", claims.Issuer)
}

func TestValidateExpiredToken(t *testing.T) {
	token, err := jwtService.Generate(42, requestcontext.RoleCandidate, -time.Minute)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.ErrorContains(t, err, "expired")
}

func TestValidateWrongKey(t *testing.T) {
	other := NewService("other-key", "test-issuer")
	token, err := other.Generate(42, requestcontext.RoleAdmin, time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.ErrorContains(t, err, "invalid token")
}

func TestValidateGarbage(t *testing.T) {
	_, err := jwtService.ValidateToken("not-a-token")
	assert.Error(t, err)
}
