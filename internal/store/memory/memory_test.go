package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authgate/internal/domain/repository"
	tokens "github.com/dropDatabas3/authgate/internal/security/token"
)

func TestUsers_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	u, err := s.Users().Create(ctx, repository.CreateUserInput{Username: "admin", PasswordHash: "h", Roles: []string{"admin"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)

	got, err := s.Users().GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, got.Roles)

	_, err = s.Users().Create(ctx, repository.CreateUserInput{Username: "admin", PasswordHash: "x"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = s.Users().GetByID(ctx, 99)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// sin roles toma el default
	u2, err := s.Users().Create(ctx, repository.CreateUserInput{Username: "bob", PasswordHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, []string{repository.DefaultRole}, u2.Roles)
}

func TestUsers_SetTwoFactorSecretOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, err := s.Users().Create(ctx, repository.CreateUserInput{Username: "u", PasswordHash: "h"})
	require.NoError(t, err)

	require.NoError(t, s.Users().SetTwoFactorSecret(ctx, u.ID, "AAAA"))
	assert.ErrorIs(t, s.Users().SetTwoFactorSecret(ctx, u.ID, "BBBB"), repository.ErrConflict)
	assert.ErrorIs(t, s.Users().SetTwoFactorSecret(ctx, 42, "CCCC"), repository.ErrNotFound)

	got, _ := s.Users().GetByID(ctx, u.ID)
	require.NotNil(t, got.TwoFactorSecret)
	assert.Equal(t, "AAAA", *got.TwoFactorSecret)
	assert.False(t, got.TwoFactorEnabled)

	require.NoError(t, s.Users().EnableTwoFactor(ctx, u.ID))
	got, _ = s.Users().GetByID(ctx, u.ID)
	assert.True(t, got.TwoFactorEnabled)
}

func TestUsers_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, _ := s.Users().Create(ctx, repository.CreateUserInput{Username: "u", PasswordHash: "h", Roles: []string{"user"}})
	u.Roles[0] = "admin"

	got, _ := s.Users().GetByID(ctx, u.ID)
	assert.Equal(t, []string{"user"}, got.Roles)
}

func TestTokens_Lifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	tr := s.Tokens()

	require.NoError(t, tr.Save(ctx, 1, "raw-token", "jti-1", now.Add(time.Hour)))
	assert.ErrorIs(t, tr.Save(ctx, 1, "other", "jti-1", now.Add(time.Hour)), repository.ErrConflict)

	rt, err := tr.FindValid(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, tokens.SHA256Hex("raw-token"), rt.TokenHash)
	assert.NotEqual(t, "raw-token", rt.TokenHash)

	ok, err := tr.Revoke(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tr.Revoke(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok, "segunda revocación no transiciona")

	ok, err = tr.Revoke(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = tr.FindValid(ctx, "jti-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTokens_Expired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))

	require.NoError(t, s.Tokens().Save(ctx, 1, "raw", "j", now.Add(time.Minute)))
	now = now.Add(2 * time.Minute)

	_, err := s.Tokens().FindValid(ctx, "j")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTokens_RevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	s := New()
	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.Tokens().Save(ctx, 1, "a", "a", exp))
	require.NoError(t, s.Tokens().Save(ctx, 1, "b", "b", exp))
	require.NoError(t, s.Tokens().Save(ctx, 2, "c", "c", exp))
	_, _ = s.Tokens().Revoke(ctx, "a")

	n, err := s.Tokens().RevokeAllForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Tokens().FindValid(ctx, "c")
	assert.NoError(t, err)
}

func TestTokens_ConcurrentRevokeSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Tokens().Save(ctx, 1, "raw", "jti", time.Now().Add(time.Hour)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Tokens().Revoke(ctx, "jti"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
