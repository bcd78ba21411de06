// Package auth contiene los controllers HTTP de /auth/*. Los mismos controllers sirven
// al servicio de auth (sobre services/auth) y al gateway (sobre el proxy con breaker).
package auth

import (
	"context"

	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
	svc "github.com/dropDatabas3/authgate/internal/services/auth"
)

// Caller identifica al usuario de una ruta autenticada.
// El servicio usa UserID; el gateway reenvía Bearer.
type Caller struct {
	UserID int64
	Bearer string
}

// Backend es lo que los controllers necesitan del motor de tokens.
type Backend interface {
	Login(ctx context.Context, username, password string) (*svc.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, twoFactorToken, code string) (*svc.Tokens, error)
	SetupTwoFactor(ctx context.Context, caller Caller, code string) (*svc.SetupResult, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*svc.Tokens, error)
	Logout(ctx context.Context, refreshToken string) error
}

// FromService adapta el servicio local.
func FromService(s svc.API) Backend { return serviceBackend{s} }

type serviceBackend struct{ svc.API }

func (b serviceBackend) SetupTwoFactor(ctx context.Context, c Caller, code string) (*svc.SetupResult, error) {
	return b.API.SetupTwoFactor(ctx, c.UserID, code)
}

// Upstream es el cliente remoto que usa el gateway (proxy.AuthClient).
type Upstream interface {
	Login(ctx context.Context, username, password string) (*svc.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, twoFactorToken, code string) (*svc.Tokens, error)
	SetupTwoFactor(ctx context.Context, bearer, code string) (*svc.SetupResult, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*svc.Tokens, error)
	Logout(ctx context.Context, refreshToken string) error
}

// FromUpstream adapta el cliente del gateway.
func FromUpstream(u Upstream) Backend { return upstreamBackend{u} }

type upstreamBackend struct{ Upstream }

func (b upstreamBackend) SetupTwoFactor(ctx context.Context, c Caller, code string) (*svc.SetupResult, error) {
	return b.Upstream.SetupTwoFactor(ctx, c.Bearer, code)
}

// Controllers agrupa todos los controllers del dominio auth.
type Controllers struct {
	Login     *LoginController
	TwoFactor *TwoFactorController
	Refresh   *RefreshController
	Logout    *LogoutController
	JWKS      *JWKSController
}

// NewControllers crea el agregador. keys puede ser nil (sin /.well-known/jwks.json).
func NewControllers(b Backend, keys *jwtx.KeySet) *Controllers {
	c := &Controllers{
		Login:     NewLoginController(b),
		TwoFactor: NewTwoFactorController(b),
		Refresh:   NewRefreshController(b),
		Logout:    NewLogoutController(b),
	}
	if keys != nil {
		c.JWKS = NewJWKSController(keys)
	}
	return c
}
