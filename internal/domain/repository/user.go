package repository

import (
	"context"
	"strings"
	"time"
)

// User representa un usuario con credenciales y estado de segundo factor.
type User struct {
	ID               int64
	Username         string
	PasswordHash     string
	Roles            []string
	TwoFactorEnabled bool
	TwoFactorSecret  *string // base32; nil mientras no hay enrolamiento
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasSecret indica si el usuario ya recibió un secreto TOTP.
func (u *User) HasSecret() bool {
	return u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}

// CreateUserInput contiene los datos para aprovisionar un usuario (seed / admin).
type CreateUserInput struct {
	Username         string
	PasswordHash     string
	Roles            []string
	TwoFactorEnabled bool
	TwoFactorSecret  *string
}

// UserRepository es la vista estrecha del credential store.
type UserRepository interface {
	// GetByUsername busca por username. Retorna ErrNotFound si no existe.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByID busca por ID. Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id int64) (*User, error)

	// SetTwoFactorSecret asigna el secreto sin habilitar 2FA.
	// Solo aplica si el usuario todavía no tiene secreto; si ya lo tiene retorna ErrConflict.
	SetTwoFactorSecret(ctx context.Context, id int64, secret string) error

	// EnableTwoFactor marca two_factor_enabled = true.
	EnableTwoFactor(ctx context.Context, id int64) error

	// Create inserta un usuario. ErrConflict si el username ya existe.
	Create(ctx context.Context, in CreateUserInput) (*User, error)
}

// DefaultRole es el rol asignado cuando la columna roles queda vacía.
const DefaultRole = "user"

// JoinRoles serializa roles a la forma persistida (coma separada).
func JoinRoles(roles []string) string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return DefaultRole
	}
	return strings.Join(out, ",")
}

// SplitRoles es la inversa de JoinRoles.
func SplitRoles(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{DefaultRole}
	}
	return out
}
