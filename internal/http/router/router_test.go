package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	authctrl "github.com/dropDatabas3/authgate/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/authgate/internal/http/controllers/health"
	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/rate"
	"github.com/dropDatabas3/authgate/internal/security/password"
	"github.com/dropDatabas3/authgate/internal/security/totp"
	svc "github.com/dropDatabas3/authgate/internal/services/auth"
	"github.com/dropDatabas3/authgate/internal/store"
	"github.com/dropDatabas3/authgate/internal/store/memory"
)

var fastParams = password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func newServer(t *testing.T, loginLimit int) *httptest.Server {
	t.Helper()
	ks, err := jwtx.GenerateKeySet()
	require.NoError(t, err)
	signer := jwtx.NewSigner(ks, jwtx.Options{})

	st := memory.New()
	_, err = store.Seed(context.Background(), st.Users(), fastParams, store.DefaultSeed)
	require.NoError(t, err)

	service := svc.New(svc.Deps{Users: st.Users(), Tokens: st.Tokens(), Signer: signer})

	deps := Deps{
		Service: "auth-server",
		Auth:    authctrl.NewControllers(authctrl.FromService(service), ks),
		Signer:  signer,
		Health: healthctrl.NewHealthController(map[string]healthctrl.Check{
			"store": st.Ping,
		}),
	}
	if loginLimit > 0 {
		deps.LoginLimiter = rate.NewMemoryLimiter(loginLimit, time.Minute)
	}
	srv := httptest.NewServer(New(deps))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestLoginRefreshLogout(t *testing.T) {
	srv := newServer(t, 0)

	resp, body := post(t, srv, "/auth/login", "", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, false, body["requiresTwoFactor"])
	tokens := body["tokens"].(map[string]any)
	refresh := tokens["refreshToken"].(string)
	assert.EqualValues(t, 900, tokens["expiresIn"])

	resp, body = post(t, srv, "/auth/refresh", "", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := body["refreshToken"].(string)
	assert.NotEqual(t, refresh, rotated)

	// el viejo ya no sirve
	resp, body = post(t, srv, "/auth/refresh", "", map[string]string{"refreshToken": refresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_REVOKED", body["code"])

	resp, body = post(t, srv, "/auth/logout", "", map[string]string{"refreshToken": rotated})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	// idempotente
	resp, _ = post(t, srv, "/auth/logout", "", map[string]string{"refreshToken": rotated})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = post(t, srv, "/auth/refresh", "", map[string]string{"refreshToken": rotated})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_REVOKED", body["code"])
}

func TestLoginWithTwoFactor(t *testing.T) {
	srv := newServer(t, 0)

	resp, body := post(t, srv, "/auth/login", "", map[string]string{"username": "user", "password": "user123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["requiresTwoFactor"])
	assert.Nil(t, body["tokens"])
	pending := body["twoFactorToken"].(string)

	// el token intermedio no abre rutas autenticadas
	resp, body = post(t, srv, "/auth/2fa/setup", pending, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "WRONG_TOKEN_TYPE", body["code"])

	code, err := totp.Code("JBSWY3DPEHPK3PXP", time.Now())
	require.NoError(t, err)
	resp, body = post(t, srv, "/auth/2fa/verify", "", map[string]string{"twoFactorToken": pending, "totpCode": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
}

func TestSetupTwoFactor(t *testing.T) {
	srv := newServer(t, 0)

	resp, _ := post(t, srv, "/auth/2fa/setup", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	_, body := post(t, srv, "/auth/login", "", map[string]string{"username": "test", "password": "test123"})
	access := body["tokens"].(map[string]any)["accessToken"].(string)

	// body chunked vacío: se trata igual que sin body
	req := httptest.NewRequest(http.MethodPost, "/auth/2fa/setup", io.NopCloser(strings.NewReader("")))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+access)
	rr := httptest.NewRecorder()
	srv.Config.Handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	body = map[string]any{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	secret := body["secret"].(string)
	assert.Contains(t, body["provisioningUri"], "otpauth://totp/")

	resp, body = post(t, srv, "/auth/2fa/setup", access, map[string]string{"totpCode": "12345"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", body["code"])

	code, err := totp.Code(secret, time.Now())
	require.NoError(t, err)
	resp, body = post(t, srv, "/auth/2fa/setup", access, map[string]string{"totpCode": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["enabled"])

	resp, body = post(t, srv, "/auth/2fa/setup", access, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_ENABLED", body["code"])
}

func TestErrorsAndValidation(t *testing.T) {
	srv := newServer(t, 0)

	resp, body := post(t, srv, "/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", body["code"])

	resp, body = post(t, srv, "/auth/login", "", map[string]string{"username": "ghost", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", body["code"])

	resp, body = post(t, srv, "/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", body["code"])

	resp, body = post(t, srv, "/auth/2fa/verify", "", map[string]string{"twoFactorToken": "garbage", "totpCode": "123456"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_OR_EXPIRED_TOKEN", body["code"])

	resp, body = post(t, srv, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ROUTE_NOT_FOUND", body["code"])

	r, err := srv.Client().Get(srv.URL + "/auth/login")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, r.StatusCode)
}

func TestLoginRateLimited(t *testing.T) {
	srv := newServer(t, 2)
	creds := map[string]string{"username": "admin", "password": "wrong"}

	for i := 0; i < 2; i++ {
		resp, _ := post(t, srv, "/auth/login", "", creds)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, body := post(t, srv, "/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestRejectedRequestsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	t.Cleanup(logger.Replace(zap.New(core)))
	srv := newServer(t, 1)

	resp, _ := post(t, srv, "/auth/2fa/setup", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	creds := map[string]string{"username": "admin", "password": "wrong"}
	post(t, srv, "/auth/login", "", creds)
	resp, _ = post(t, srv, "/auth/login", "", creds)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var statuses []int64
	for _, e := range logs.FilterMessage("request rejected").All() {
		statuses = append(statuses, e.ContextMap()["status"].(int64))
	}
	assert.ElementsMatch(t, []int64{401, 401, 429}, statuses)
}

func TestJWKSAndHealth(t *testing.T) {
	srv := newServer(t, 0)

	resp, err := srv.Client().Get(srv.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jwks))
	resp.Body.Close()
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "OKP", jwks.Keys[0]["kty"])

	resp, err = srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth_Unavailable(t *testing.T) {
	h := New(Deps{Health: healthctrl.NewHealthController(map[string]healthctrl.Check{
		"cache": func(context.Context) error { return errors.New("redis down") },
	})})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"cache":"down"`)
}
