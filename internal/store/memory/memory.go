// Package memory implementa el credential store y el ledger de refresh tokens
// en memoria. Sirve para desarrollo local (driver "memory") y para tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/authgate/internal/domain/repository"
	tokens "github.com/dropDatabas3/authgate/internal/security/token"
)

// Store guarda usuarios y refresh tokens detrás de un único mutex.
// Todas las operaciones del ledger son atómicas respecto de las demás.
type Store struct {
	mu sync.Mutex

	now func() time.Time

	nextUserID  int64
	nextTokenID int64
	users       map[int64]*repository.User
	byUsername  map[string]int64
	tokens      map[string]*repository.RefreshToken // por jti
}

// Option configura el Store.
type Option func(*Store)

// WithClock fija el reloj (tests de expiración).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:        time.Now,
		users:      map[int64]*repository.User{},
		byUsername: map[string]int64{},
		tokens:     map[string]*repository.RefreshToken{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Users expone la vista UserRepository.
func (s *Store) Users() repository.UserRepository { return (*userRepo)(s) }

// Tokens expone la vista RefreshTokenRepository.
func (s *Store) Tokens() repository.RefreshTokenRepository { return (*tokenRepo)(s) }

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func cloneUser(u *repository.User) *repository.User {
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	if u.TwoFactorSecret != nil {
		sec := *u.TwoFactorSecret
		cp.TwoFactorSecret = &sec
	}
	return &cp
}

// ─── users ───

type userRepo Store

var _ repository.UserRepository = (*userRepo)(nil)

func (r *userRepo) GetByUsername(_ context.Context, username string) (*repository.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (r *userRepo) GetByID(_ context.Context, id int64) (*repository.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *userRepo) SetTwoFactorSecret(_ context.Context, id int64, secret string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.HasSecret() {
		return repository.ErrConflict
	}
	u.TwoFactorSecret = &secret
	u.UpdatedAt = s.now()
	return nil
}

func (r *userRepo) EnableTwoFactor(_ context.Context, id int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.TwoFactorEnabled = true
	u.UpdatedAt = s.now()
	return nil
}

func (r *userRepo) Create(_ context.Context, in repository.CreateUserInput) (*repository.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byUsername[in.Username]; dup {
		return nil, repository.ErrConflict
	}
	s.nextUserID++
	now := s.now()
	u := &repository.User{
		ID:               s.nextUserID,
		Username:         in.Username,
		PasswordHash:     in.PasswordHash,
		Roles:            repository.SplitRoles(repository.JoinRoles(in.Roles)),
		TwoFactorEnabled: in.TwoFactorEnabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.TwoFactorSecret != nil {
		sec := *in.TwoFactorSecret
		u.TwoFactorSecret = &sec
	}
	s.users[u.ID] = u
	s.byUsername[u.Username] = u.ID
	return cloneUser(u), nil
}

// ─── refresh tokens ───

type tokenRepo Store

var _ repository.RefreshTokenRepository = (*tokenRepo)(nil)

func (r *tokenRepo) Save(_ context.Context, userID int64, rawToken, jti string, expiresAt time.Time) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tokens[jti]; dup {
		return repository.ErrConflict
	}
	s.nextTokenID++
	s.tokens[jti] = &repository.RefreshToken{
		ID:        s.nextTokenID,
		UserID:    userID,
		TokenHash: tokens.SHA256Hex(rawToken),
		JTI:       jti,
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
	}
	return nil
}

func (r *tokenRepo) FindValid(_ context.Context, jti string) (*repository.RefreshToken, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[jti]
	if !ok || !t.Valid(s.now()) {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *tokenRepo) Revoke(_ context.Context, jti string) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[jti]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	now := s.now()
	t.RevokedAt = &now
	return true, nil
}

func (r *tokenRepo) RevokeAllForUser(_ context.Context, userID int64) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for _, t := range s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			at := now
			t.RevokedAt = &at
			n++
		}
	}
	return n, nil
}
