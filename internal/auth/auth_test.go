package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndAuthenticate(t *testing.T) {
	a := NewTokenAuthenticator()
	token := a.Issue(Identity{UserID: "u1", Role: "learner", IsActive: true})

	id, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "learner", id.Role)

	id2, err := a.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, id, id2)
}

func TestAuthenticateRejectsUnknownToken(t *testing.T) {
	a := NewTokenAuthenticator()

	_, err := a.Authenticate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = a.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticateRejectsInactiveUser(t *testing.T) {
	a := NewTokenAuthenticator()
	a.Register("tok", Identity{UserID: "u2", Role: "learner", IsActive: false})

	_, err := a.Authenticate(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestRevoke(t *testing.T) {
	a := NewTokenAuthenticator()
	token := a.Issue(Identity{UserID: "u3", Role: "admin", IsActive: true})
	a.Revoke(token)

	_, err := a.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
