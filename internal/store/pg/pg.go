// Package pg implementa el credential store y el ledger sobre PostgreSQL (pgx/v5).
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/authgate/internal/domain/repository"
	tokens "github.com/dropDatabas3/authgate/internal/security/token"
)

// Config ajusta el pool. Valores cero usan los defaults de pgxpool.
type Config struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

type Store struct{ pool *pgxpool.Pool }

// Open crea el pool y verifica conectividad.
func Open(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool interno (migraciones).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Users() repository.UserRepository          { return &userRepo{pool: s.pool} }
func (s *Store) Tokens() repository.RefreshTokenRepository { return &tokenRepo{pool: s.pool} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ─── users ───

type userRepo struct{ pool *pgxpool.Pool }

var _ repository.UserRepository = (*userRepo)(nil)

const userColumns = `id, username, password_hash, roles, two_factor_enabled, two_factor_secret, created_at, updated_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var (
		u     repository.User
		roles string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &roles, &u.TwoFactorEnabled, &u.TwoFactorSecret, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	u.Roles = repository.SplitRoles(roles)
	return &u, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("pg: get user by username: %w", err)
	}
	return u, err
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*repository.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("pg: get user by id: %w", err)
	}
	return u, err
}

func (r *userRepo) SetTwoFactorSecret(ctx context.Context, id int64, secret string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET two_factor_secret = $2, updated_at = now()
		WHERE id = $1 AND (two_factor_secret IS NULL OR two_factor_secret = '')`, id, secret)
	if err != nil {
		return fmt.Errorf("pg: set two factor secret: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// 0 filas: o no existe, o ya tenía secreto
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("pg: set two factor secret: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *userRepo) EnableTwoFactor(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET two_factor_enabled = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pg: enable two factor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, roles, two_factor_enabled, two_factor_secret)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		in.Username, in.PasswordHash, repository.JoinRoles(in.Roles), in.TwoFactorEnabled, in.TwoFactorSecret))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("pg: create user: %w", err)
	}
	return u, nil
}

// ─── refresh tokens ───

type tokenRepo struct{ pool *pgxpool.Pool }

var _ repository.RefreshTokenRepository = (*tokenRepo)(nil)

func (r *tokenRepo) Save(ctx context.Context, userID int64, rawToken, jti string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, jti, expires_at)
		VALUES ($1, $2, $3, $4)`, userID, tokens.SHA256Hex(rawToken), jti, expiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("pg: save refresh token: %w", err)
	}
	return nil
}

func (r *tokenRepo) FindValid(ctx context.Context, jti string) (*repository.RefreshToken, error) {
	var t repository.RefreshToken
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, jti, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE jti = $1 AND revoked_at IS NULL AND expires_at > now()`, jti).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.JTI, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("pg: find refresh token: %w", err)
	}
	return &t, nil
}

// Revoke usa un UPDATE condicional: la fila solo cambia una vez, así dos
// rotaciones concurrentes no pueden ganar ambas.
func (r *tokenRepo) Revoke(ctx context.Context, jti string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE jti = $1 AND revoked_at IS NULL`, jti)
	if err != nil {
		return false, fmt.Errorf("pg: revoke refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *tokenRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("pg: revoke user tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
