package middlewares

import (
	"context"

	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
)

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxUserIDKey    ctxKey = "user_id"
	ctxClaimsKey    ctxKey = "claims"
	ctxBearerKey    ctxKey = "bearer"
	ctxClientIPKey  ctxKey = "client_ip"
	ctxReqInfoKey   ctxKey = "request_info"
)

// GetRequestID obtiene el request id del contexto ("" si no hay).
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestIDKey).(string)
	return v
}

func setRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, id)
}

// WithUserID guarda el id del usuario autenticado.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, id)
}

// GetUserID devuelve el id del usuario autenticado y si existe.
func GetUserID(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(ctxUserIDKey).(int64)
	return v, ok
}

// WithClaims guarda los claims del access token verificado.
func WithClaims(ctx context.Context, c *jwtx.Claims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, c)
}

// GetClaims devuelve los claims del access token (nil si la ruta no es autenticada).
func GetClaims(ctx context.Context) *jwtx.Claims {
	c, _ := ctx.Value(ctxClaimsKey).(*jwtx.Claims)
	return c
}

// WithBearer guarda el bearer crudo. El gateway lo reenvía al upstream.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxBearerKey, token)
}

// GetBearer devuelve el bearer crudo del request ("" si no hay).
func GetBearer(ctx context.Context) string {
	v, _ := ctx.Value(ctxBearerKey).(string)
	return v
}

// WithClientIPValue guarda la IP del cliente ya resuelta.
func WithClientIPValue(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxClientIPKey, ip)
}

// GetClientIP devuelve la IP resuelta por WithClientIP ("" si no pasó por él).
// El gateway la reenvía en X-Forwarded-For.
func GetClientIP(ctx context.Context) string {
	v, _ := ctx.Value(ctxClientIPKey).(string)
	return v
}

// requestInfo lo crea WithLogging; los middlewares internos anotan ahí lo que
// la línea de log final necesita.
type requestInfo struct {
	userID  int64
	hasUser bool
}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, ctxReqInfoKey, info)
}

func noteUserID(ctx context.Context, uid int64) {
	if info, ok := ctx.Value(ctxReqInfoKey).(*requestInfo); ok {
		info.userID, info.hasUser = uid, true
	}
}
