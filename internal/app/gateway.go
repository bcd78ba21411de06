package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/dropDatabas3/authgate/internal/breaker"
	"github.com/dropDatabas3/authgate/internal/config"
	authctrl "github.com/dropDatabas3/authgate/internal/http/controllers/auth"
	gwctrl "github.com/dropDatabas3/authgate/internal/http/controllers/gateway"
	healthctrl "github.com/dropDatabas3/authgate/internal/http/controllers/health"
	"github.com/dropDatabas3/authgate/internal/http/router"
	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/proxy"
	"github.com/dropDatabas3/authgate/internal/rate"
)

// Gateway expone la API pública y reenvía al servicio de auth a través del breaker.
type Gateway struct {
	cfg      *config.Config
	log      *zap.Logger
	Breakers *breaker.Registry
	Client   *proxy.AuthClient
	Handler  http.Handler
}

// BuildGateway arma el gateway. Solo necesita claves públicas: verifica los
// access tokens localmente antes de reenviar /auth/2fa/setup y /auth/logout.
func BuildGateway(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	g := &Gateway{cfg: cfg, log: logger.Named("app")}

	keys, err := loadKeys(ctx, cfg.JWT, true)
	if err != nil {
		return nil, fmt.Errorf("load verification keys: %w", err)
	}
	signer := jwtx.NewSigner(keys, signerOptions(cfg.JWT))

	bc := cfg.Gateway.Breaker
	d := breaker.DefaultConfig()
	g.Breakers = breaker.NewRegistry(breaker.Config{
		ErrorThresholdPercent: bc.ErrorThresholdPercent,
		VolumeThreshold:       bc.VolumeThreshold,
		RollingWindow:         config.Duration(bc.RollingWindow, d.RollingWindow),
		ResetTimeout:          config.Duration(bc.ResetTimeout, d.ResetTimeout),
		HalfOpenMaxRequests:   bc.HalfOpenMaxRequests,
	})

	g.Client, err = proxy.NewAuthClient(proxy.Config{
		BaseURL: cfg.Gateway.AuthServerURL,
		Timeout: config.Duration(cfg.Gateway.UpstreamTimeout, 0),
	}, g.Breakers)
	if err != nil {
		return nil, err
	}

	metricsHandler, err := metrics.Register(nil)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	trusted, err := config.ParseTrustedProxies(cfg.Gateway.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("gateway.trusted_proxies: %w", err)
	}

	deps := router.Deps{
		Service:            "gateway",
		Auth:               authctrl.NewControllers(authctrl.FromUpstream(g.Client), nil),
		Signer:             signer,
		LogoutRequiresAuth: true,
		Breakers:           gwctrl.NewBreakersController(g.Breakers),
		Health: healthctrl.NewHealthController(map[string]healthctrl.Check{
			"breaker": g.upstreamCheck,
		}),
		Metrics:        metricsHandler,
		TrustedProxies: trusted,
	}
	// límites propios: cortan el abuso antes de gastar el breaker y el upstream
	if cfg.Rate.Enabled {
		deps.LoginLimiter = rate.NewMemoryLimiter(cfg.Rate.Login.Limit, config.Duration(cfg.Rate.Login.Window, defaultRateWindow))
		deps.VerifyLimiter = rate.NewMemoryLimiter(cfg.Rate.Verify.Limit, config.Duration(cfg.Rate.Verify.Window, defaultRateWindow))
	}
	g.Handler = router.New(deps)
	return g, nil
}

// upstreamCheck reporta down mientras el breaker del servicio de auth esté abierto.
func (g *Gateway) upstreamCheck(context.Context) error {
	if g.Breakers.State(proxy.Destination) == gobreaker.StateOpen {
		return fmt.Errorf("circuit open for %s", proxy.Destination)
	}
	return nil
}

// Run atiende hasta que ctx termina.
func (g *Gateway) Run(ctx context.Context) error {
	srv := newHTTPServer(g.cfg.Gateway.Addr, g.Handler)
	return run(ctx, g.log, config.Duration(g.cfg.Server.ShutdownTimeout, defaultShutdown),
		[]runner{httpRunner("gateway", srv)}, nil)
}
