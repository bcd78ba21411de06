package pg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authgate/internal/domain/repository"
	migrations "github.com/dropDatabas3/authgate/migrations/postgres"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

// openTestStore conecta contra AUTHGATE_TEST_PG_DSN; sin DSN el test se saltea.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("AUTHGATE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("AUTHGATE_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn, Config{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.Migrate(ctx, migrations.FS)
	require.NoError(t, err)
	return s
}

func TestIntegration_UsersAndLedger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	name := "it-" + uuid.NewString()[:8]
	u, err := s.Users().Create(ctx, repository.CreateUserInput{Username: name, PasswordHash: "h", Roles: []string{"user"}})
	require.NoError(t, err)

	_, err = s.Users().Create(ctx, repository.CreateUserInput{Username: name, PasswordHash: "h"})
	require.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, s.Users().SetTwoFactorSecret(ctx, u.ID, "JBSWY3DPEHPK3PXP"))
	require.ErrorIs(t, s.Users().SetTwoFactorSecret(ctx, u.ID, "OTHER"), repository.ErrConflict)
	require.NoError(t, s.Users().EnableTwoFactor(ctx, u.ID))

	got, err := s.Users().GetByUsername(ctx, name)
	require.NoError(t, err)
	assert.True(t, got.TwoFactorEnabled)

	jti := uuid.NewString()
	require.NoError(t, s.Tokens().Save(ctx, u.ID, "raw", jti, time.Now().Add(time.Hour)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.Tokens().Revoke(ctx, jti); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	_, err = s.Tokens().FindValid(ctx, jti)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
