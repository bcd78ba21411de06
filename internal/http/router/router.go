// Package router arma los routers chi del servicio de auth y del gateway.
// Cada ruta lleva su propia cadena de middlewares, en el mismo orden siempre:
// Recover -> RequestID -> Logging -> SecurityHeaders -> NoStore -> [RateLimit] -> [Auth].
// Logging va por fuera de auth y rate limit para que los 401/429 queden registrados.
package router

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"

	authctrl "github.com/dropDatabas3/authgate/internal/http/controllers/auth"
	gwctrl "github.com/dropDatabas3/authgate/internal/http/controllers/gateway"
	healthctrl "github.com/dropDatabas3/authgate/internal/http/controllers/health"
	httperrors "github.com/dropDatabas3/authgate/internal/http/errors"
	mw "github.com/dropDatabas3/authgate/internal/http/middlewares"
	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/rate"
)

// Deps contiene las dependencias de un router. Los campos opcionales en nil
// desactivan la ruta o el middleware correspondiente.
type Deps struct {
	// Service nombra el proceso en spans ("auth-server", "gateway").
	Service string

	Auth *authctrl.Controllers
	// Signer verifica access tokens en rutas autenticadas. En el gateway es verify-only.
	Signer *jwtx.Signer

	LoginLimiter  rate.Limiter // opcional
	VerifyLimiter rate.Limiter // opcional

	// TrustedProxies: peers cuyo X-Forwarded-For se acepta para la IP del cliente.
	TrustedProxies []netip.Prefix

	// LogoutRequiresAuth exige Bearer en /auth/logout (gateway).
	LogoutRequiresAuth bool

	Health   *healthctrl.HealthController
	Breakers *gwctrl.BreakersController // solo gateway
	Metrics  http.Handler               // /metrics, opcional
}

// New construye el handler raíz.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithTracing(deps.Service), mw.WithMetrics(), mw.WithClientIP(deps.TrustedProxies))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	if c := deps.Auth; c != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Method(http.MethodPost, "/login", publicHandler(deps.LoginLimiter, "login", c.Login.Login))
			r.Method(http.MethodPost, "/refresh", publicHandler(nil, "", c.Refresh.Refresh))

			if deps.LogoutRequiresAuth {
				r.Method(http.MethodPost, "/logout", authedHandler(deps.Signer, c.Logout.Logout))
			} else {
				r.Method(http.MethodPost, "/logout", publicHandler(nil, "", c.Logout.Logout))
			}

			r.Group(func(r chi.Router) {
				r.Method(http.MethodPost, "/2fa/verify", publicHandler(deps.VerifyLimiter, "verify_2fa", c.TwoFactor.Verify))
				r.Method(http.MethodPost, "/2fa/setup", authedHandler(deps.Signer, c.TwoFactor.Setup))
			})
		})
		if c.JWKS != nil {
			r.Method(http.MethodGet, "/.well-known/jwks.json", baseHandler(c.JWKS.GetJWKS))
		}
	}

	if deps.Breakers != nil {
		r.Method(http.MethodGet, "/breakers", baseHandler(deps.Breakers.List))
	}
	if deps.Health != nil {
		// sin logging: lo consultan los orquestadores cada pocos segundos
		r.Method(http.MethodGet, "/healthz", mw.ChainFunc(deps.Health.Healthz, mw.WithRecover(), mw.WithRequestID()))
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	return r
}

// publicHandler: endpoints sin auth, con rate limit por IP si hay limiter.
func publicHandler(limiter rate.Limiter, scope string, h http.HandlerFunc) http.Handler {
	chain := []mw.Middleware{
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithSecurityHeaders(),
		mw.WithNoStore(),
	}
	if limiter != nil {
		chain = append(chain, mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: limiter,
			KeyFunc: mw.IPOnlyRateKey,
			Scope:   scope,
		}))
	}
	return mw.ChainFunc(h, chain...)
}

// authedHandler: endpoints que exigen access token.
func authedHandler(signer *jwtx.Signer, h http.HandlerFunc) http.Handler {
	return mw.ChainFunc(h,
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithSecurityHeaders(),
		mw.WithNoStore(),
		mw.RequireAuth(signer),
	)
}

// baseHandler: lecturas públicas sin tokens en la respuesta.
func baseHandler(h http.HandlerFunc) http.Handler {
	return mw.ChainFunc(h,
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithSecurityHeaders(),
	)
}
