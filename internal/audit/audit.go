// Package audit publica eventos de seguridad (logins, rotaciones, revocaciones).
// El sink por defecto es el log estructurado; en producción se publica a RabbitMQ.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// Tipos de evento.
const (
	LoginSucceeded      = "auth.login.succeeded"
	LoginFailed         = "auth.login.failed"
	SecondFactorPending = "auth.login.2fa_required"
	SecondFactorOK      = "auth.2fa.verified"
	SecondFactorFailed  = "auth.2fa.failed"
	SecondFactorEnabled = "auth.2fa.enabled"
	TokenRefreshed      = "auth.token.refreshed"
	TokenReuseDetected  = "auth.token.reuse_detected"
	LoggedOut           = "auth.logout"
	SessionsRevoked     = "auth.sessions.revoked"
)

// Event es el payload publicado. Nunca lleva passwords, tokens ni secretos.
type Event struct {
	Type     string    `json:"type"`
	UserID   int64     `json:"userId,omitempty"`
	Username string    `json:"username,omitempty"`
	JTI      string    `json:"jti,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Count    int64     `json:"count,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher entrega eventos. Publish no debe bloquear el flujo de auth más
// allá del ctx; los errores se loguean en el llamador y no abortan la operación.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LogPublisher escribe cada evento como una línea del logger.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(l *zap.Logger) *LogPublisher {
	if l == nil {
		l = logger.L()
	}
	return &LogPublisher{log: l.Named("audit")}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	fields := []zap.Field{
		zap.String("event", ev.Type),
		zap.Time("at", ev.At),
	}
	if ev.UserID != 0 {
		fields = append(fields, logger.UserID(ev.UserID))
	}
	if ev.Username != "" {
		fields = append(fields, logger.Username(ev.Username))
	}
	if ev.JTI != "" {
		fields = append(fields, logger.JTI(ev.JTI))
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", ev.Reason))
	}
	if ev.Count != 0 {
		fields = append(fields, zap.Int64("count", ev.Count))
	}
	p.log.Info("audit", fields...)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Nop descarta todo (tests).
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Multi publica en todos los sinks y devuelve el primer error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
