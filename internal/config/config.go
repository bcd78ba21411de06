// Package config carga la configuración de los binarios: archivo YAML opcional,
// defaults y overrides por variables de entorno (caarlos0/env). Las duraciones
// se escriben como strings ("15m", "168h") y Validate las verifica.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env       string `yaml:"env" env:"APP_ENV"`
		LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
		LogFormat string `yaml:"log_format" env:"LOG_FORMAT"` // json | console
	} `yaml:"app"`

	Server struct {
		Addr            string `yaml:"addr" env:"AUTH_HTTP_ADDR"`
		TCPAddr         string `yaml:"tcp_addr" env:"AUTH_TCP_ADDR"`
		ShutdownTimeout string `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
		// TrustedProxies: IPs o CIDRs cuyo X-Forwarded-For se acepta (el gateway).
		TrustedProxies []string `yaml:"trusted_proxies" env:"AUTH_TRUSTED_PROXIES" envSeparator:","`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver" env:"STORAGE_DRIVER"` // memory | postgres | mysql
		DSN      string `yaml:"dsn" env:"STORAGE_DSN"`
		MaxConns int    `yaml:"max_conns" env:"STORAGE_MAX_CONNS"`
		Migrate  bool   `yaml:"migrate" env:"STORAGE_MIGRATE"`
		// Seed crea los usuarios demo al arrancar. Siempre activo con driver memory.
		Seed bool `yaml:"seed" env:"STORAGE_SEED"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind" env:"CACHE_KIND"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr" env:"REDIS_ADDR"`
			Password string `yaml:"password" env:"REDIS_PASSWORD"`
			DB       int    `yaml:"db" env:"REDIS_DB"`
			Prefix   string `yaml:"prefix" env:"REDIS_PREFIX"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	JWT JWT `yaml:"jwt"`

	MFA struct {
		Issuer string `yaml:"issuer" env:"MFA_ISSUER"`
		// Window en pasos de 30s aceptados a cada lado del actual.
		Window int `yaml:"window" env:"MFA_WINDOW"`
	} `yaml:"mfa"`

	Rate struct {
		Enabled bool      `yaml:"enabled" env:"RATE_ENABLED"`
		Login   RateLimit `yaml:"login" envPrefix:"RATE_LOGIN_"`
		Verify  RateLimit `yaml:"verify" envPrefix:"RATE_VERIFY_"`
	} `yaml:"rate"`

	Security struct {
		// base64(32 bytes) para cifrar secretos TOTP at-rest. Vacío: sin cifrado.
		SecretBoxKey string `yaml:"secretbox_key" env:"SECRETBOX_KEY"`
	} `yaml:"security"`

	Audit struct {
		Driver   string `yaml:"driver" env:"AUDIT_DRIVER"` // log | amqp
		URL      string `yaml:"url" env:"AMQP_URL"`
		Exchange string `yaml:"exchange" env:"AUDIT_EXCHANGE"`
	} `yaml:"audit"`

	Gateway Gateway `yaml:"gateway"`

	Tracing struct {
		Endpoint    string  `yaml:"endpoint" env:"TRACING_ENDPOINT"`
		SampleRatio float64 `yaml:"sample_ratio" env:"TRACING_SAMPLE_RATIO"`
	} `yaml:"tracing"`
}

type JWT struct {
	Issuer       string `yaml:"issuer" env:"JWT_ISSUER"`
	AccessTTL    string `yaml:"access_ttl" env:"JWT_ACCESS_TTL"`
	RefreshTTL   string `yaml:"refresh_ttl" env:"JWT_REFRESH_TTL"`
	TwoFactorTTL string `yaml:"two_factor_ttl" env:"JWT_TWO_FACTOR_TTL"`

	PrivateKeyPath         string   `yaml:"private_key_path" env:"JWT_PRIVATE_KEY_PATH"`
	PublicKeyPath          string   `yaml:"public_key_path" env:"JWT_PUBLIC_KEY_PATH"`
	PreviousPublicKeyPaths []string `yaml:"previous_public_key_paths" env:"JWT_PREVIOUS_PUBLIC_KEY_PATHS" envSeparator:","`

	// SecretID, si está, toma las claves de AWS Secrets Manager en vez del disco.
	SecretID  string `yaml:"secret_id" env:"JWT_KEY_SECRET_ID"`
	AWSRegion string `yaml:"aws_region" env:"AWS_REGION"`
}

type RateLimit struct {
	Limit  int    `yaml:"limit" env:"LIMIT"`
	Window string `yaml:"window" env:"WINDOW"`
}

type Gateway struct {
	Addr            string  `yaml:"addr" env:"GATEWAY_ADDR"`
	AuthServerURL   string  `yaml:"auth_server_url" env:"AUTH_SERVER_URL"`
	UpstreamTimeout string  `yaml:"upstream_timeout" env:"UPSTREAM_TIMEOUT"`
	Breaker         Breaker `yaml:"breaker" envPrefix:"BREAKER_"`
	// TrustedProxies: balanceadores delante del gateway.
	TrustedProxies []string `yaml:"trusted_proxies" env:"GATEWAY_TRUSTED_PROXIES" envSeparator:","`
}

type Breaker struct {
	ErrorThresholdPercent int    `yaml:"error_threshold_percent" env:"ERROR_THRESHOLD_PERCENT"`
	VolumeThreshold       int    `yaml:"volume_threshold" env:"VOLUME_THRESHOLD"`
	RollingWindow         string `yaml:"rolling_window" env:"ROLLING_WINDOW"`
	ResetTimeout          string `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
	HalfOpenMaxRequests   int    `yaml:"half_open_max_requests" env:"HALF_OPEN_MAX_REQUESTS"`
}

// DefaultPath es CONFIG_PATH o configs/config.yaml si existe; "" si no hay archivo.
func DefaultPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if _, err := os.Stat("configs/config.yaml"); err == nil {
		return "configs/config.yaml"
	}
	return ""
}

// Load lee el YAML (si path no es vacío), aplica defaults y overrides de entorno, y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":4001"
	}
	if c.Server.TCPAddr == "" {
		// canal interno: solo loopback salvo configuración explícita
		c.Server.TCPAddr = "127.0.0.1:4002"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Addr == "" {
		c.Cache.Redis.Addr = "localhost:6379"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "authgate"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "auth-server"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "168h" // 7d
	}
	if c.JWT.TwoFactorTTL == "" {
		c.JWT.TwoFactorTTL = "5m"
	}
	if c.JWT.PrivateKeyPath == "" && c.JWT.SecretID == "" {
		c.JWT.PrivateKeyPath = "keys/private.pem"
	}
	if c.JWT.PublicKeyPath == "" && c.JWT.SecretID == "" {
		c.JWT.PublicKeyPath = "keys/public.pem"
	}
	if c.MFA.Issuer == "" {
		c.MFA.Issuer = "AuthServer"
	}
	if c.MFA.Window == 0 {
		c.MFA.Window = 1
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.Rate.Verify.Limit == 0 {
		c.Rate.Verify.Limit = 10
	}
	if c.Rate.Verify.Window == "" {
		c.Rate.Verify.Window = "1m"
	}
	if c.Audit.Driver == "" {
		c.Audit.Driver = "log"
	}
	if c.Audit.Exchange == "" {
		c.Audit.Exchange = "auth.audit"
	}
	g := &c.Gateway
	if g.Addr == "" {
		g.Addr = ":4000"
	}
	if g.AuthServerURL == "" {
		g.AuthServerURL = "http://localhost:4001"
	}
	if g.UpstreamTimeout == "" {
		g.UpstreamTimeout = "5s"
	}
	if g.Breaker.ErrorThresholdPercent == 0 {
		g.Breaker.ErrorThresholdPercent = 50
	}
	if g.Breaker.VolumeThreshold == 0 {
		g.Breaker.VolumeThreshold = 5
	}
	if g.Breaker.RollingWindow == "" {
		g.Breaker.RollingWindow = "10s"
	}
	if g.Breaker.ResetTimeout == "" {
		g.Breaker.ResetTimeout = "30s"
	}
	if g.Breaker.HalfOpenMaxRequests == 0 {
		g.Breaker.HalfOpenMaxRequests = 1
	}
}

// Validate verifica drivers, duraciones y rangos. Junta todos los problemas en un error.
func (c *Config) Validate() error {
	var errs []error

	durations := map[string]string{
		"server.shutdown_timeout":        c.Server.ShutdownTimeout,
		"jwt.access_ttl":                 c.JWT.AccessTTL,
		"jwt.refresh_ttl":                c.JWT.RefreshTTL,
		"jwt.two_factor_ttl":             c.JWT.TwoFactorTTL,
		"rate.login.window":              c.Rate.Login.Window,
		"rate.verify.window":             c.Rate.Verify.Window,
		"gateway.upstream_timeout":       c.Gateway.UpstreamTimeout,
		"gateway.breaker.rolling_window": c.Gateway.Breaker.RollingWindow,
		"gateway.breaker.reset_timeout":  c.Gateway.Breaker.ResetTimeout,
	}
	for key, v := range durations {
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive", key))
		}
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
		if c.IsProd() {
			errs = append(errs, errors.New("storage.driver memory is not allowed with app.env prod (it seeds demo users)"))
		}
	case "postgres", "pg", "mysql":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown %q", c.Storage.Driver))
	}
	switch c.Cache.Kind {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.kind: unknown %q", c.Cache.Kind))
	}
	switch c.Audit.Driver {
	case "log":
	case "amqp":
		if c.Audit.URL == "" {
			errs = append(errs, errors.New("audit.url is required for driver amqp"))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.driver: unknown %q", c.Audit.Driver))
	}

	if c.MFA.Window < 0 || c.MFA.Window > 10 {
		errs = append(errs, fmt.Errorf("mfa.window: %d out of range [0,10]", c.MFA.Window))
	}
	if p := c.Gateway.Breaker.ErrorThresholdPercent; p < 1 || p > 100 {
		errs = append(errs, fmt.Errorf("gateway.breaker.error_threshold_percent: %d out of range [1,100]", p))
	}
	if c.Gateway.Breaker.VolumeThreshold < 1 {
		errs = append(errs, errors.New("gateway.breaker.volume_threshold must be >= 1"))
	}
	if c.Gateway.Breaker.HalfOpenMaxRequests < 1 {
		errs = append(errs, errors.New("gateway.breaker.half_open_max_requests must be >= 1"))
	}
	if u, err := url.Parse(c.Gateway.AuthServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("gateway.auth_server_url: invalid %q", c.Gateway.AuthServerURL))
	}
	if _, err := ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("server.trusted_proxies: %w", err))
	}
	if _, err := ParseTrustedProxies(c.Gateway.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("gateway.trusted_proxies: %w", err))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be in [0,1]"))
	}
	return errors.Join(errs...)
}

// IsProd indica app.env prod/production.
func (c *Config) IsProd() bool {
	switch strings.ToLower(c.App.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// ParseTrustedProxies acepta IPs sueltas ("10.0.0.5") o CIDRs ("10.0.0.0/8").
func ParseTrustedProxies(vs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(vs))
	for _, v := range vs {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(v)
		if err != nil {
			return nil, err
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// Duration parsea un valor ya validado; vacío o inválido devuelve def.
func Duration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
