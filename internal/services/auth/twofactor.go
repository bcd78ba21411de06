package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authgate/internal/audit"
	"github.com/dropDatabas3/authgate/internal/cache"
	"github.com/dropDatabas3/authgate/internal/domain/autherr"
	"github.com/dropDatabas3/authgate/internal/domain/repository"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/security/totp"
)

// VerifyTwoFactor completa un login con 2FA: token intermedio + código TOTP.
// Token inválido, vencido, de otro tipo o usuario sin secreto son todos InvalidOrExpiredToken.
func (s *Service) VerifyTwoFactor(ctx context.Context, twoFactorToken, code string) (res *Tokens, err error) {
	ctx, span, log := s.start(ctx, opVerify2FA)
	ev := audit.Event{Type: audit.SecondFactorFailed}
	defer func() { s.finish(ctx, span, log, opVerify2FA, ev, err) }()

	uid, err := s.deps.Signer.VerifySecondFactorPending(twoFactorToken)
	if err != nil {
		log.Debug("2fa token rejected", logger.Err(err))
		ev.Reason = "bad_token"
		return nil, autherr.Wrap(autherr.InvalidOrExpiredToken, "invalid or expired 2fa token", err)
	}
	ev.UserID = uid

	u, err := s.loadUser(ctx, uid, autherr.ErrInvalidOrExpiredToken)
	if err != nil {
		return nil, err
	}
	if !u.HasSecret() {
		ev.Reason = "no_secret"
		return nil, autherr.ErrInvalidOrExpiredToken
	}

	ok, err := s.checkCode(ctx, log, u, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		ev.Reason = "bad_code"
		return nil, autherr.ErrInvalidCode
	}

	toks, jti, err := s.issueTokens(ctx, u)
	if err != nil {
		log.Error("issue tokens failed", logger.Err(err))
		return nil, err
	}
	ev.Type, ev.Username, ev.JTI = audit.SecondFactorOK, u.Username, jti
	log.Info("2fa verified", logger.UserID(u.ID), logger.JTI(jti))
	return toks, nil
}

// SetupTwoFactor es el enrolamiento en dos pasos.
//
//	sin secreto: genera uno, lo persiste sin habilitar y devuelve secret + provisioningUri
//	con secreto: valida code y habilita 2FA
func (s *Service) SetupTwoFactor(ctx context.Context, userID int64, code string) (res *SetupResult, err error) {
	ctx, span, log := s.start(ctx, opSetup2FA)
	ev := audit.Event{UserID: userID}
	defer func() { s.finish(ctx, span, log, opSetup2FA, ev, err) }()

	u, err := s.loadUser(ctx, userID, autherr.ErrUserNotFound)
	if err != nil {
		return nil, err
	}
	if u.TwoFactorEnabled {
		return nil, autherr.ErrAlreadyEnabled
	}

	if !u.HasSecret() {
		_, secret, err := totp.GenerateSecret()
		if err != nil {
			return nil, failInternal(log, "generate totp secret", err)
		}
		err = s.deps.Users.SetTwoFactorSecret(ctx, u.ID, secret)
		switch {
		case err == nil:
			log.Info("2fa secret issued", logger.UserID(u.ID))
			return &SetupResult{
				Secret:          secret,
				ProvisioningURI: totp.ProvisioningURI(s.deps.MFAIssuer, u.Username, secret),
			}, nil
		case errors.Is(err, repository.ErrConflict):
			// Otro request asignó el secreto primero: seguimos como segundo paso.
			if u, err = s.loadUser(ctx, userID, autherr.ErrUserNotFound); err != nil {
				return nil, err
			}
		case errors.Is(err, repository.ErrNotFound):
			return nil, autherr.ErrUserNotFound
		default:
			return nil, failInternal(log, "persist totp secret", err)
		}
	}

	if code == "" {
		return nil, autherr.ErrInvalidCode
	}
	ok, err := s.checkCode(ctx, log, u, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		ev.Type, ev.Reason = audit.SecondFactorFailed, "bad_code"
		return nil, autherr.ErrInvalidCode
	}

	if err := s.deps.Users.EnableTwoFactor(ctx, u.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, autherr.ErrUserNotFound
		}
		return nil, failInternal(log, "enable 2fa", err)
	}
	ev.Type, ev.Username = audit.SecondFactorEnabled, u.Username
	log.Info("2fa enabled", logger.UserID(u.ID))
	return &SetupResult{Enabled: true}, nil
}

// checkCode verifica el código contra el secreto y aplica el guard anti-replay:
// un contador aceptado no se vuelve a aceptar para el mismo usuario.
//
// El último contador se guarda en cache para descartar pasos viejos; el claim por
// contador con SetNX es lo que garantiza un único ganador entre requests concurrentes.
func (s *Service) checkCode(ctx context.Context, log *zap.Logger, u *repository.User, code string) (bool, error) {
	now := s.deps.Now()
	ttl := time.Duration(2*s.deps.MFAWindow+1) * totp.Period * time.Second

	var last *int64
	raw, err := s.deps.Cache.Get(ctx, lastCounterKey(u.ID))
	switch {
	case err == nil:
		if v, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			last = &v
		}
	case cache.IsNotFound(err):
	default:
		log.Warn("totp replay cache unavailable", logger.Err(err))
	}

	ok, counter := totp.Verify(*u.TwoFactorSecret, code, now, s.deps.MFAWindow, last)
	if !ok {
		return false, nil
	}

	claimed, err := s.deps.Cache.SetNX(ctx, usedCounterKey(u.ID, counter), "1", ttl)
	if err != nil {
		return false, failInternal(log, "claim totp counter", err)
	}
	if !claimed {
		log.Warn("totp code replayed", logger.UserID(u.ID))
		return false, nil
	}
	if err := s.deps.Cache.Set(ctx, lastCounterKey(u.ID), strconv.FormatInt(counter, 10), ttl); err != nil {
		log.Warn("totp last counter not stored", logger.Err(err))
	}
	return true, nil
}

func lastCounterKey(uid int64) string { return fmt.Sprintf("totp:last:%d", uid) }

func usedCounterKey(uid, counter int64) string { return fmt.Sprintf("totp:used:%d:%d", uid, counter) }
