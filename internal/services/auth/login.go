package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/dropDatabas3/authgate/internal/audit"
	"github.com/dropDatabas3/authgate/internal/domain/autherr"
	"github.com/dropDatabas3/authgate/internal/domain/repository"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/security/password"
)

// Login valida credenciales. Con 2FA habilitado devuelve solo el token intermedio;
// sin 2FA devuelve el par completo.
func (s *Service) Login(ctx context.Context, username, plain string) (res *LoginResult, err error) {
	ctx, span, log := s.start(ctx, opLogin)
	username = strings.TrimSpace(username)
	ev := audit.Event{Type: audit.LoginFailed, Username: username}
	defer func() { s.finish(ctx, span, log, opLogin, ev, err) }()

	u, err := s.deps.Users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, failInternal(log, "lookup user", err)
		}
		// Mismo costo que un password incorrecto: no se puede enumerar usuarios por tiempo.
		_ = password.Verify(plain, password.DummyHash())
		ev.Reason = "unknown_user"
		log.Debug("login failed", logger.Username(username))
		return nil, autherr.ErrInvalidCredentials
	}
	ev.UserID = u.ID

	if !password.Verify(plain, u.PasswordHash) {
		ev.Reason = "bad_password"
		log.Debug("login failed", logger.UserID(u.ID))
		return nil, autherr.ErrInvalidCredentials
	}

	if u.TwoFactorEnabled {
		pending, err := s.deps.Signer.SignSecondFactorPending(u.ID)
		if err != nil {
			return nil, failInternal(log, "sign 2fa token", err)
		}
		ev.Type = audit.SecondFactorPending
		log.Info("login requires second factor", logger.UserID(u.ID))
		return &LoginResult{RequiresTwoFactor: true, TwoFactorToken: pending}, nil
	}

	toks, jti, err := s.issueTokens(ctx, u)
	if err != nil {
		log.Error("issue tokens failed", logger.Err(err))
		return nil, err
	}
	ev.Type, ev.JTI = audit.LoginSucceeded, jti
	log.Info("login ok", logger.UserID(u.ID), logger.JTI(jti))
	return &LoginResult{Tokens: toks}, nil
}
