package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbu/realtime/internal/auth"
	"github.com/kanbu/realtime/pkg/domain"
)

func testUser() *domain.User {
	return &domain.User{
		ID:        uuid.New(),
		Email:     "alice@example.com",
		Username:  "alice",
		Name:      "Alice Martin",
		AvatarURL: "https://cdn.example.com/a.png",
	}
}

func TestJWT_IssueAndValidateRoundTrip(t *testing.T) {
	t.Parallel()

	secret := "test-secret-key-very-long-and-secure"
	user := testUser()

	token, err := auth.IssueToken(secret, user, 5*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.ValidateToken(secret, token)
	require.NoError(t, err)
	require.NotNil(t, claims)

	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "Alice Martin", claims.Name)
	assert.Equal(t, "kanbu", claims.Issuer)
}

func TestJWT_IdentityFromClaims(t *testing.T) {
	t.Parallel()

	secret := "test-secret-key-very-long-and-secure"
	user := testUser()

	token, err := auth.IssueToken(secret, user, 5*time.Minute)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(secret, token)
	require.NoError(t, err)

	identity, err := claims.Identity()
	require.NoError(t, err)
	assert.Equal(t, user.Presence(), identity)
}

func TestJWT_ExpiredTokenRejected(t *testing.T) {
	t.Parallel()

	secret := "test-secret-key-very-long-and-secure"

	token, err := auth.IssueToken(secret, testUser(), -1*time.Minute)
	require.NoError(t, err)

	_, err = auth.ValidateToken(secret, token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrInvalidToken))
}

func TestJWT_WrongSecretRejected(t *testing.T) {
	t.Parallel()

	token, err := auth.IssueToken("secret-one-very-long-and-secure-aa", testUser(), 5*time.Minute)
	require.NoError(t, err)

	_, err = auth.ValidateToken("secret-two-very-long-and-secure-bb", token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrInvalidToken))
}

func TestJWT_GarbageRejected(t *testing.T) {
	t.Parallel()

	_, err := auth.ValidateToken("any-secret", "not.a.jwt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrInvalidToken))
}
