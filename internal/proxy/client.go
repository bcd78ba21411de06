// Package proxy contiene los clientes salientes del gateway. Toda llamada pasa por
// el circuit breaker de su destino y tiene su propio timeout.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/authgate/internal/breaker"
	"github.com/dropDatabas3/authgate/internal/domain/autherr"
	dto "github.com/dropDatabas3/authgate/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/authgate/internal/http/errors"
	"github.com/dropDatabas3/authgate/internal/http/middlewares"
	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/observability/tracing"
	svc "github.com/dropDatabas3/authgate/internal/services/auth"
)

// Destination es el nombre del breaker del servicio de auth.
const Destination = "auth-server"

const (
	defaultTimeout = 5 * time.Second
	maxBody        = 1 << 20 // 1MB
)

// Config del cliente.
type Config struct {
	BaseURL string
	// Timeout por llamada (incluye leer el body). 0 = 5s.
	Timeout time.Duration
	// HTTPClient opcional (tests). Su propio Timeout debería ser 0.
	HTTPClient *http.Client
}

// AuthClient habla con el servicio de auth por HTTP. Es seguro para uso concurrente.
type AuthClient struct {
	baseURL  string
	timeout  time.Duration
	http     *http.Client
	registry *breaker.Registry
}

func NewAuthClient(cfg Config, registry *breaker.Registry) (*AuthClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("proxy: base url is required")
	}
	if registry == nil {
		return nil, errors.New("proxy: breaker registry is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &AuthClient{baseURL: base, timeout: cfg.Timeout, http: hc, registry: registry}, nil
}

func (c *AuthClient) Login(ctx context.Context, username, password string) (*svc.LoginResult, error) {
	return call[*svc.LoginResult](ctx, c, "/auth/login", "", dto.LoginRequest{Username: username, Password: password})
}

func (c *AuthClient) VerifyTwoFactor(ctx context.Context, twoFactorToken, code string) (*svc.Tokens, error) {
	return call[*svc.Tokens](ctx, c, "/auth/2fa/verify", "", dto.VerifyTwoFactorRequest{TwoFactorToken: twoFactorToken, TOTPCode: code})
}

// SetupTwoFactor reenvía el access token del usuario: el upstream lo vuelve a verificar.
func (c *AuthClient) SetupTwoFactor(ctx context.Context, bearer, code string) (*svc.SetupResult, error) {
	return call[*svc.SetupResult](ctx, c, "/auth/2fa/setup", bearer, dto.SetupTwoFactorRequest{TOTPCode: code})
}

func (c *AuthClient) RefreshTokens(ctx context.Context, refreshToken string) (*svc.Tokens, error) {
	return call[*svc.Tokens](ctx, c, "/auth/refresh", "", dto.RefreshRequest{RefreshToken: refreshToken})
}

func (c *AuthClient) Logout(ctx context.Context, refreshToken string) error {
	_, err := call[*dto.LogoutResponse](ctx, c, "/auth/logout", "", dto.LogoutRequest{RefreshToken: refreshToken})
	return err
}

// call ejecuta un POST JSON a través del breaker con timeout propio.
func call[T any](ctx context.Context, c *AuthClient, path, bearer string, in any) (T, error) {
	return breaker.Fire(ctx, c.registry, Destination, func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var out T
		err := c.do(ctx, path, bearer, in, &out)
		return out, err
	})
}

func (c *AuthClient) do(ctx context.Context, path, bearer string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return autherr.Wrap(autherr.Internal, "encode upstream request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return autherr.Wrap(autherr.Internal, "build upstream request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if rid := middlewares.GetRequestID(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}
	// el upstream limita por IP: sin esto todos los clientes comparten la del gateway
	if ip := middlewares.GetClientIP(ctx); ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	tracing.Inject(ctx, req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamDuration.WithLabelValues(Destination).Observe(time.Since(start).Seconds())
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	metrics.UpstreamDuration.WithLabelValues(Destination).Observe(time.Since(start).Seconds())
	if err != nil {
		return classify(ctx, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return autherr.Wrap(autherr.Internal, "decode upstream response", err)
		}
		return nil
	}
	return upstreamError(ctx, resp.StatusCode, raw)
}

// upstreamError reconstruye el error tipado desde el body {code, message}.
// Códigos fuera de la taxonomía (p.ej. RATE_LIMIT_EXCEEDED) viajan como AppError con
// el status original; los 4xx siguen contando como respuesta válida para el breaker.
func upstreamError(ctx context.Context, status int, raw []byte) error {
	if ae, ok := httperrors.Decode(status, raw); ok {
		return ae
	}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(raw, &body) != nil || body.Code == "" {
		logger.From(ctx).Warn("unexpected upstream response",
			logger.Destination(Destination),
			logger.Status(status),
		)
		if status >= http.StatusInternalServerError {
			return autherr.Wrap(autherr.Internal, "upstream error", fmt.Errorf("upstream status %d", status))
		}
		return autherr.New(autherr.BadInput, http.StatusText(status))
	}

	passthrough := &httperrors.AppError{
		Code:       body.Code,
		Message:    body.Message,
		Detail:     body.Detail,
		HTTPStatus: status,
	}
	if status >= http.StatusInternalServerError {
		return autherr.Wrap(autherr.Internal, "upstream error", passthrough)
	}
	return autherr.Wrap(autherr.BadInput, body.Message, passthrough)
}

// classify traduce fallas de transporte: timeout -> UpstreamTimeout, el resto
// (conexión rechazada, DNS, reset) -> UpstreamUnreachable.
func classify(ctx context.Context, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return autherr.Wrap(autherr.UpstreamTimeout, "upstream timed out: "+Destination, err)
	}
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		// el breaker reconoce context.Canceled en la cadena y no lo cuenta como falla
		return autherr.Wrap(autherr.Internal, "request canceled", fmt.Errorf("%w: %w", context.Canceled, err))
	}
	return autherr.Wrap(autherr.UpstreamUnreachable, "upstream unreachable: "+Destination, err)
}
