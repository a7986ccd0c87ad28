package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundtrip(t *testing.T) {
	svc := NewTokenService("test-secret", 3600)

	token, err := svc.Issue("chat_web")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	appName, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "chat_web", appName)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", 3600)
	verifier := NewTokenService("secret-b", 3600)

	token, err := issuer.Issue("chat_web")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := NewTokenService("test-secret", -1)
	// ttlSeconds <= 0 falls back to the default, so force expiry directly.
	svc.ttl = -time.Hour

	token, err := svc.Issue("chat_web")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewTokenService("test-secret", 3600)

	_, err := svc.Verify("not-a-jwt")
	assert.Error(t, err)
}
