package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authgate/internal/domain/repository"
	"github.com/dropDatabas3/authgate/internal/security/password"
	"github.com/dropDatabas3/authgate/internal/security/secretbox"
	"github.com/dropDatabas3/authgate/internal/store/memory"
)

var fastParams = password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=" // base64 de 32 bytes

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))

	_, err = Open(ctx, Config{Driver: "postgres"})
	require.ErrorIs(t, err, repository.ErrNoDatabase)

	_, err = Open(ctx, Config{Driver: "mysql"})
	require.ErrorIs(t, err, repository.ErrNoDatabase)

	_, err = Open(ctx, Config{Driver: "mongo"})
	require.Error(t, err)
}

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	n, err := Seed(ctx, s.Users(), fastParams, DefaultSeed)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = Seed(ctx, s.Users(), fastParams, DefaultSeed)
	require.NoError(t, err)
	assert.Zero(t, n)

	u, err := s.Users().GetByUsername(ctx, "user")
	require.NoError(t, err)
	assert.True(t, u.TwoFactorEnabled)
	require.NotNil(t, u.TwoFactorSecret)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", *u.TwoFactorSecret)
	assert.True(t, password.Verify("user123", u.PasswordHash))
}

func TestSealed_EncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	raw := memory.New()
	box, err := secretbox.Parse(testKey)
	require.NoError(t, err)
	s := Sealed(raw, box)

	u, err := s.Users().Create(ctx, repository.CreateUserInput{Username: "u", PasswordHash: "h"})
	require.NoError(t, err)
	require.NoError(t, s.Users().SetTwoFactorSecret(ctx, u.ID, "JBSWY3DPEHPK3PXP"))

	stored, err := raw.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TwoFactorSecret)
	assert.True(t, strings.Contains(*stored.TwoFactorSecret, "|"))
	assert.NotEqual(t, "JBSWY3DPEHPK3PXP", *stored.TwoFactorSecret)

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", *got.TwoFactorSecret)

	// conflicto se propaga a través del decorador
	assert.ErrorIs(t, s.Users().SetTwoFactorSecret(ctx, u.ID, "AAAA"), repository.ErrConflict)
}

func TestSealed_ReadsLegacyPlaintext(t *testing.T) {
	ctx := context.Background()
	raw := memory.New()
	sec := "JBSWY3DPEHPK3PXP"
	_, err := raw.Users().Create(ctx, repository.CreateUserInput{Username: "legacy", PasswordHash: "h", TwoFactorSecret: &sec})
	require.NoError(t, err)

	box, err := secretbox.Parse(testKey)
	require.NoError(t, err)
	got, err := Sealed(raw, box).Users().GetByUsername(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, sec, *got.TwoFactorSecret)
}
