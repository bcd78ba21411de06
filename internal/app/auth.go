package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropDatabas3/authgate/internal/audit"
	"github.com/dropDatabas3/authgate/internal/cache"
	"github.com/dropDatabas3/authgate/internal/config"
	authctrl "github.com/dropDatabas3/authgate/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/authgate/internal/http/controllers/health"
	"github.com/dropDatabas3/authgate/internal/http/router"
	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/rate"
	"github.com/dropDatabas3/authgate/internal/security/password"
	svc "github.com/dropDatabas3/authgate/internal/services/auth"
	"github.com/dropDatabas3/authgate/internal/store"
	"github.com/dropDatabas3/authgate/internal/transport/tcp"
)

// AuthServer es el servicio de auth armado: HTTP y canal TCP sobre el mismo motor.
type AuthServer struct {
	cfg     *config.Config
	log     *zap.Logger
	Service *svc.Service
	Handler http.Handler
	TCP     *tcp.Server
	closers []func() error
}

// BuildAuthServer conecta store, cache, claves, auditoría y transportes.
// Un error de claves es fatal para el llamador: sin claves no hay tokens.
func BuildAuthServer(ctx context.Context, cfg *config.Config) (_ *AuthServer, err error) {
	a := &AuthServer{cfg: cfg, log: logger.Named("app")}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	trusted, err := config.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server.trusted_proxies: %w", err)
	}

	keys, err := loadKeys(ctx, cfg.JWT, false)
	if err != nil {
		return nil, fmt.Errorf("load signing keys: %w", err)
	}
	if !keys.CanSign() {
		return nil, fmt.Errorf("load signing keys: no private key configured")
	}
	signer := jwtx.NewSigner(keys, signerOptions(cfg.JWT))

	st, err := store.Open(ctx, store.Config{
		Driver:    cfg.Storage.Driver,
		DSN:       cfg.Storage.DSN,
		MaxConns:  cfg.Storage.MaxConns,
		Migrate:   cfg.Storage.Migrate,
		SecretKey: cfg.Security.SecretBoxKey,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	if cfg.Storage.Seed || strings.EqualFold(cfg.Storage.Driver, store.DriverMemory) {
		n, err := store.Seed(ctx, st.Users(), password.Default, store.DefaultSeed)
		if err != nil {
			return nil, fmt.Errorf("seed users: %w", err)
		}
		a.log.Info("demo users ready", logger.Count(n))
		if strings.EqualFold(cfg.Storage.Driver, store.DriverMemory) {
			a.log.Warn("memory store in use: demo users have well-known passwords, not for production")
		}
	}

	cc, err := cache.New(ctx, cache.Config{
		Driver:   cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, cc.Close)

	pub, err := buildAudit(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pub.Close)

	a.Service = svc.New(svc.Deps{
		Users:     st.Users(),
		Tokens:    st.Tokens(),
		Signer:    signer,
		Cache:     cc,
		Audit:     pub,
		MFAIssuer: cfg.MFA.Issuer,
		MFAWindow: cfg.MFA.Window,
	})

	metricsHandler, err := metrics.Register(nil, store.Collectors(st)...)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	deps := router.Deps{
		Service: "auth-server",
		Auth:    authctrl.NewControllers(authctrl.FromService(a.Service), keys),
		Signer:  signer,
		Health: healthctrl.NewHealthController(map[string]healthctrl.Check{
			"store": st.Ping,
			"cache": cc.Ping,
		}),
		Metrics:        metricsHandler,
		TrustedProxies: trusted,
	}
	if cfg.Rate.Enabled {
		deps.LoginLimiter = newLimiter(cc, "rl:login:", cfg.Rate.Login)
		deps.VerifyLimiter = newLimiter(cc, "rl:2fa:", cfg.Rate.Verify)
	}
	a.Handler = router.New(deps)
	a.TCP = tcp.NewServer(tcp.AuthHandlers(a.Service, signer))
	return a, nil
}

// Run atiende HTTP y TCP hasta que ctx termina y después apaga ordenadamente.
func (a *AuthServer) Run(ctx context.Context) error {
	httpSrv := newHTTPServer(a.cfg.Server.Addr, a.Handler)
	tcpAddr := a.cfg.Server.TCPAddr
	return run(ctx, a.log, config.Duration(a.cfg.Server.ShutdownTimeout, defaultShutdown), []runner{
		httpRunner("http", httpSrv),
		{
			name:     "tcp",
			addr:     tcpAddr,
			serve:    func() error { return a.TCP.ListenAndServe(tcpAddr) },
			shutdown: a.TCP.Shutdown,
			closed:   tcp.ErrServerClosed,
		},
	}, a.closers)
}

func (a *AuthServer) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// newLimiter usa Redis si el cache es Redis (límite compartido entre réplicas).
func newLimiter(cc cache.Client, prefix string, rl config.RateLimit) rate.Limiter {
	window := config.Duration(rl.Window, defaultRateWindow)
	if r, ok := cc.(interface{ Raw() *rdb.Client }); ok {
		return rate.NewRedisLimiter(r.Raw(), prefix, rl.Limit, window)
	}
	return rate.NewMemoryLimiter(rl.Limit, window)
}

func buildAudit(cfg *config.Config) (audit.Publisher, error) {
	logPub := audit.NewLogPublisher(nil)
	if cfg.Audit.Driver != "amqp" {
		return logPub, nil
	}
	amqpPub, err := audit.DialAMQP(audit.AMQPConfig{URL: cfg.Audit.URL, Exchange: cfg.Audit.Exchange})
	if err != nil {
		return nil, err
	}
	return audit.Multi{logPub, amqpPub}, nil
}
