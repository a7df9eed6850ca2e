// internal/auth/session_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	Init()

	g := NewGuest("alice")
	token, err := CreateJWT(g)
	require.NoError(t, err)

	got, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, g.ID, got.ID)
	assert.Equal(t, "alice", got.DisplayName)
}

func TestNewGuestDefaultsDisplayName(t *testing.T) {
	g := NewGuest("")
	assert.NotEmpty(t, g.DisplayName)
	assert.Contains(t, g.DisplayName, "guest-")

	// Fresh identities never collide.
	assert.NotEqual(t, g.ID, NewGuest("").ID)
}

func TestAuthenticateJWTRejectsGarbage(t *testing.T) {
	Init()

	_, err := AuthenticateJWT("not-a-token")
	assert.Error(t, err)
}

func TestAuthenticateJWTRejectsForeignKey(t *testing.T) {
	Init()
	token, err := CreateJWT(NewGuest("bob"))
	require.NoError(t, err)

	// Rotating the key pair invalidates previously issued tokens.
	Init()
	_, err = AuthenticateJWT(token)
	assert.Error(t, err)
}
