package auth

import (
	"context"
	"errors"

	"github.com/dropDatabas3/authgate/internal/audit"
	"github.com/dropDatabas3/authgate/internal/domain/autherr"
	"github.com/dropDatabas3/authgate/internal/domain/repository"
	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	tokens "github.com/dropDatabas3/authgate/internal/security/token"
)

// parseRefresh verifica firma y expiración y exige la forma de un refresh token
// (jti, sin username ni type). Cualquier otra cosa es InvalidOrExpiredToken.
func (s *Service) parseRefresh(raw string) (*jwtx.Claims, int64, error) {
	c, err := s.deps.Signer.Verify(raw)
	if err != nil {
		return nil, 0, autherr.Wrap(autherr.InvalidOrExpiredToken, "invalid or expired refresh token", err)
	}
	if c.ID == "" || c.Type != "" || c.Username != "" {
		return nil, 0, autherr.Wrap(autherr.InvalidOrExpiredToken, "invalid or expired refresh token", jwtx.ErrWrongTokenType)
	}
	uid, err := c.UserID()
	if err != nil {
		return nil, 0, autherr.Wrap(autherr.InvalidOrExpiredToken, "invalid or expired refresh token", err)
	}
	return c, uid, nil
}

// RefreshTokens rota el refresh token: el viejo se revoca antes de emitir el nuevo.
// Dos requests concurrentes con el mismo token: uno gana, el otro recibe TokenRevoked.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (res *Tokens, err error) {
	ctx, span, log := s.start(ctx, opRefresh)
	var ev audit.Event
	defer func() { s.finish(ctx, span, log, opRefresh, ev, err) }()

	c, uid, err := s.parseRefresh(refreshToken)
	if err != nil {
		log.Debug("refresh token rejected", logger.Err(err))
		return nil, err
	}
	log = log.With(logger.UserID(uid), logger.JTI(c.ID))

	rec, err := s.deps.Tokens.FindValid(ctx, c.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ev = audit.Event{Type: audit.TokenReuseDetected, UserID: uid, JTI: c.ID, Reason: "not_valid"}
			return nil, autherr.ErrTokenRevoked
		}
		return nil, failInternal(log, "lookup refresh token", err)
	}
	if rec.UserID != uid || !tokens.MatchesHash(refreshToken, rec.TokenHash) {
		log.Warn("refresh token does not match ledger record")
		ev = audit.Event{Type: audit.TokenReuseDetected, UserID: uid, JTI: c.ID, Reason: "hash_mismatch"}
		return nil, autherr.ErrTokenRevoked
	}

	won, err := s.deps.Tokens.Revoke(ctx, c.ID)
	if err != nil {
		return nil, failInternal(log, "revoke refresh token", err)
	}
	if !won {
		log.Warn("refresh token already rotated")
		ev = audit.Event{Type: audit.TokenReuseDetected, UserID: uid, JTI: c.ID, Reason: "lost_race"}
		return nil, autherr.ErrTokenRevoked
	}

	u, err := s.loadUser(ctx, uid, autherr.ErrUserNotFound)
	if err != nil {
		return nil, err
	}

	toks, jti, err := s.issueTokens(ctx, u)
	if err != nil {
		log.Error("issue tokens failed", logger.Err(err))
		return nil, err
	}
	ev = audit.Event{Type: audit.TokenRefreshed, UserID: u.ID, Username: u.Username, JTI: jti}
	log.Info("refresh token rotated", logger.String("new_jti", jti))
	return toks, nil
}

// Logout revoca el refresh token. Es idempotente: un token ya revocado no es error.
func (s *Service) Logout(ctx context.Context, refreshToken string) (err error) {
	ctx, span, log := s.start(ctx, opLogout)
	var ev audit.Event
	defer func() { s.finish(ctx, span, log, opLogout, ev, err) }()

	c, uid, err := s.parseRefresh(refreshToken)
	if err != nil {
		log.Debug("logout token rejected", logger.Err(err))
		return err
	}

	revoked, err := s.deps.Tokens.Revoke(ctx, c.ID)
	if err != nil {
		return failInternal(log, "revoke refresh token", err)
	}
	if revoked {
		ev = audit.Event{Type: audit.LoggedOut, UserID: uid, JTI: c.ID}
	}
	log.Info("logout", logger.UserID(uid), logger.JTI(c.ID), logger.Bool("revoked", revoked))
	return nil
}

// RevokeAllSessions revoca todos los refresh tokens vigentes del usuario.
func (s *Service) RevokeAllSessions(ctx context.Context, userID int64) (n int64, err error) {
	ctx, span, log := s.start(ctx, opRevokeAll)
	var ev audit.Event
	defer func() { s.finish(ctx, span, log, opRevokeAll, ev, err) }()

	if _, err := s.loadUser(ctx, userID, autherr.ErrUserNotFound); err != nil {
		return 0, err
	}
	n, err = s.deps.Tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, failInternal(log, "revoke all sessions", err)
	}
	ev = audit.Event{Type: audit.SessionsRevoked, UserID: userID, Count: n}
	log.Info("sessions revoked", logger.UserID(userID), logger.Int("count", int(n)))
	return n, nil
}
