package tcp

import (
	"context"
	"encoding/json"

	"github.com/dropDatabas3/authgate/internal/domain/autherr"
	dto "github.com/dropDatabas3/authgate/internal/http/dto/auth"
	"github.com/dropDatabas3/authgate/internal/http/middlewares"
	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
	svc "github.com/dropDatabas3/authgate/internal/services/auth"
)

// HandlerFunc atiende un pattern.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

// AuthHandlers registra los patterns del servicio de auth. Los patterns que
// actúan sobre un usuario (2fa.setup, sessions.revoke_all) exigen su access
// token: el usuario sale de los claims, nunca del payload.
func AuthHandlers(s svc.API, signer *jwtx.Signer) map[string]HandlerFunc {
	return map[string]HandlerFunc{
		PatternLogin: func(ctx context.Context, data json.RawMessage) (any, error) {
			var in dto.LoginRequest
			if err := decode(data, &in); err != nil {
				return nil, err
			}
			return s.Login(ctx, in.Username, in.Password)
		},
		PatternVerifyTwoFA: func(ctx context.Context, data json.RawMessage) (any, error) {
			var in dto.VerifyTwoFactorRequest
			if err := decode(data, &in); err != nil {
				return nil, err
			}
			return s.VerifyTwoFactor(ctx, in.TwoFactorToken, in.TOTPCode)
		},
		PatternSetupTwoFA: func(ctx context.Context, data json.RawMessage) (any, error) {
			var in setupPayload
			if err := json.Unmarshal(data, &in); err != nil {
				return nil, autherr.Wrap(autherr.BadInput, "data is not valid JSON", err)
			}
			uid, err := authenticate(signer, in.AccessToken)
			if err != nil {
				return nil, err
			}
			if err := (dto.SetupTwoFactorRequest{TOTPCode: in.TOTPCode}).Validate(); err != nil {
				return nil, err
			}
			return s.SetupTwoFactor(ctx, uid, in.TOTPCode)
		},
		PatternRefresh: func(ctx context.Context, data json.RawMessage) (any, error) {
			var in dto.RefreshRequest
			if err := decode(data, &in); err != nil {
				return nil, err
			}
			return s.RefreshTokens(ctx, in.RefreshToken)
		},
		PatternLogout: func(ctx context.Context, data json.RawMessage) (any, error) {
			var in dto.LogoutRequest
			if err := decode(data, &in); err != nil {
				return nil, err
			}
			if err := s.Logout(ctx, in.RefreshToken); err != nil {
				return nil, err
			}
			return dto.LogoutResponse{Success: true}, nil
		},
		PatternRevokeSessions: func(ctx context.Context, data json.RawMessage) (any, error) {
			var in revokeAllPayload
			if err := json.Unmarshal(data, &in); err != nil {
				return nil, autherr.Wrap(autherr.BadInput, "data is not valid JSON", err)
			}
			uid, err := authenticate(signer, in.AccessToken)
			if err != nil {
				return nil, err
			}
			n, err := s.RevokeAllSessions(ctx, uid)
			if err != nil {
				return nil, err
			}
			return revokeAllResult{Revoked: n}, nil
		},
	}
}

// authenticate aplica las mismas reglas que RequireAuth sobre el access token del frame.
func authenticate(signer *jwtx.Signer, token string) (int64, error) {
	if token == "" {
		return 0, autherr.New(autherr.InvalidOrExpiredToken, "missing access token")
	}
	_, uid, err := signer.VerifyAccess(token)
	if err != nil {
		return 0, middlewares.AccessTokenError(err)
	}
	return uid, nil
}

// decode parsea data en un DTO y corre su validación.
func decode(data json.RawMessage, v interface{ Validate() error }) error {
	if len(data) == 0 {
		return autherr.New(autherr.BadInput, "data is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return autherr.Wrap(autherr.BadInput, "data is not valid JSON", err)
	}
	return v.Validate()
}
