package repository

import (
	"context"
	"time"
)

// RefreshToken es el registro del ledger. Nunca guarda el token en claro.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	JTI       string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Valid indica si el registro sigue usable en el instante now.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// RefreshTokenRepository define el ledger de refresh tokens, indexado por jti.
type RefreshTokenRepository interface {
	// Save persiste hash(rawToken) junto al jti.
	Save(ctx context.Context, userID int64, rawToken, jti string, expiresAt time.Time) error

	// FindValid retorna el registro solo si no está revocado ni vencido.
	// Ausente, revocado o vencido retornan ErrNotFound por igual.
	FindValid(ctx context.Context, jti string) (*RefreshToken, error)

	// Revoke revoca condicionalmente (solo si revoked_at es NULL).
	// Idempotente: jti desconocido o ya revocado no es error, retorna false.
	// true significa que ESTA llamada hizo la transición.
	Revoke(ctx context.Context, jti string) (bool, error)

	// RevokeAllForUser revoca todos los tokens vigentes del usuario.
	// Retorna el número de registros afectados.
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
}
