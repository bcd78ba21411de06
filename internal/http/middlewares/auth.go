package middlewares

import (
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/authgate/internal/domain/autherr"
	"github.com/dropDatabas3/authgate/internal/http/errors"
	"github.com/dropDatabas3/authgate/internal/http/helpers"
	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// RequireAuth exige un access token válido en "Authorization: Bearer".
// Los tokens 2fa y los refresh (sin username) no sirven como access token.
func RequireAuth(signer *jwtx.Signer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := helpers.BearerToken(r)
			if raw == "" {
				unauthorized(w, errors.ErrTokenMissing)
				return
			}

			claims, uid, err := signer.VerifyAccess(raw)
			if err != nil {
				unauthorized(w, AccessTokenError(err))
				return
			}

			noteUserID(r.Context(), uid)
			ctx := WithUserID(r.Context(), uid)
			ctx = logger.With(ctx, logger.UserID(uid))
			ctx = WithClaims(ctx, claims)
			ctx = WithBearer(ctx, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessTokenError traduce un error de VerifyAccess a la taxonomía de auth.
// Lo comparten el middleware HTTP y el canal TCP.
func AccessTokenError(err error) error {
	if stderrors.Is(err, jwtx.ErrWrongTokenType) {
		return autherr.ErrWrongTokenType
	}
	return autherr.Wrap(autherr.InvalidOrExpiredToken, autherr.ErrInvalidOrExpiredToken.Message, err)
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
	errors.WriteError(w, err)
}
