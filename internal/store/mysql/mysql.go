// Package mysql implementa el credential store y el ledger sobre MySQL.
// Usa database/sql con github.com/go-sql-driver/mysql.
//
// Requisitos:
//   - MySQL 8.0+
//   - DSN format: user:password@tcp(host:port)/database
//   - Open fuerza parseTime, loc=UTC y time_zone='+00:00' en la sesión: las columnas
//     TIMESTAMP se convierten según la zona de la sesión y el ledger compara en UTC.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"

	"github.com/dropDatabas3/authgate/internal/domain/repository"
	tokens "github.com/dropDatabas3/authgate/internal/security/token"
)

// Config ajusta el pool de database/sql.
type Config struct {
	MaxOpenConns int
	MaxIdleConns int
}

type Store struct{ db *sql.DB }

// normalizeDSN fija la zona horaria de la conexión en UTC, pisando lo que traiga el DSN.
func normalizeDSN(dsn string) (string, error) {
	parsed, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: parse dsn: %w", err)
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC
	if parsed.Params == nil {
		parsed.Params = map[string]string{}
	}
	parsed.Params["time_zone"] = "'+00:00'"
	return parsed.FormatDSN(), nil
}

// Open abre la conexión y verifica conectividad.
func Open(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	dsn, err := normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping failed: %w", err)
	}
	return &Store{db: db}, nil
}

// DB expone la conexión (migraciones).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Close() error                   { return s.db.Close() }

func (s *Store) Users() repository.UserRepository          { return &userRepo{db: s.db} }
func (s *Store) Tokens() repository.RefreshTokenRepository { return &tokenRepo{db: s.db} }

// isDuplicate detecta ER_DUP_ENTRY (1062).
func isDuplicate(err error) bool {
	var me *mysqldrv.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func nullStringToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func ptrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// ─── users ───

type userRepo struct{ db *sql.DB }

var _ repository.UserRepository = (*userRepo)(nil)

const userColumns = `id, username, password_hash, roles, two_factor_enabled, two_factor_secret, created_at, updated_at`

func scanUser(row *sql.Row) (*repository.User, error) {
	var (
		u      repository.User
		roles  string
		secret sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &roles, &u.TwoFactorEnabled, &secret, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Roles = repository.SplitRoles(roles)
	u.TwoFactorSecret = nullStringToPtr(secret)
	return &u, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("mysql: get user by username: %w", err)
	}
	return u, err
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*repository.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("mysql: get user by id: %w", err)
	}
	return u, err
}

func (r *userRepo) SetTwoFactorSecret(ctx context.Context, id int64, secret string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET two_factor_secret = ?
		WHERE id = ? AND (two_factor_secret IS NULL OR two_factor_secret = '')`, secret, id)
	if err != nil {
		return fmt.Errorf("mysql: set two factor secret: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("mysql: set two factor secret: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *userRepo) EnableTwoFactor(ctx context.Context, id int64) error {
	// MySQL reporta 0 filas afectadas si el valor no cambia, así que
	// se distingue "no existe" con una lectura.
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET two_factor_enabled = TRUE WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mysql: enable two factor: %w", err)
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return nil
}

func (r *userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	// MySQL no tiene RETURNING: insert + lectura por LastInsertId
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, roles, two_factor_enabled, two_factor_secret)
		VALUES (?, ?, ?, ?, ?)`,
		in.Username, in.PasswordHash, repository.JoinRoles(in.Roles), in.TwoFactorEnabled, ptrToNullString(in.TwoFactorSecret))
	if err != nil {
		if isDuplicate(err) {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("mysql: create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("mysql: create user: %w", err)
	}
	return r.GetByID(ctx, id)
}

// ─── refresh tokens ───

type tokenRepo struct{ db *sql.DB }

var _ repository.RefreshTokenRepository = (*tokenRepo)(nil)

func (r *tokenRepo) Save(ctx context.Context, userID int64, rawToken, jti string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, jti, expires_at)
		VALUES (?, ?, ?, ?)`, userID, tokens.SHA256Hex(rawToken), jti, expiresAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("mysql: save refresh token: %w", err)
	}
	return nil
}

func (r *tokenRepo) FindValid(ctx context.Context, jti string) (*repository.RefreshToken, error) {
	var (
		t         repository.RefreshToken
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, jti, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE jti = ? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP()`, jti).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.JTI, &t.ExpiresAt, &revokedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mysql: find refresh token: %w", err)
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return &t, nil
}

func (r *tokenRepo) Revoke(ctx context.Context, jti string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at = UTC_TIMESTAMP() WHERE jti = ? AND revoked_at IS NULL`, jti)
	if err != nil {
		return false, fmt.Errorf("mysql: revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mysql: revoke refresh token: %w", err)
	}
	return n == 1, nil
}

func (r *tokenRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at = UTC_TIMESTAMP() WHERE user_id = ? AND revoked_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("mysql: revoke user tokens: %w", err)
	}
	return res.RowsAffected()
}
