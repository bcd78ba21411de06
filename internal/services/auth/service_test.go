package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authgate/internal/audit"
	"github.com/dropDatabas3/authgate/internal/domain/autherr"
	"github.com/dropDatabas3/authgate/internal/domain/repository"
	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/security/password"
	"github.com/dropDatabas3/authgate/internal/security/totp"
	"github.com/dropDatabas3/authgate/internal/store/memory"
)

var fastParams = password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

const demoSecret = "JBSWY3DPEHPK3PXP"

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Publish(_ context.Context, ev audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *memory.Store
	signer *jwtx.Signer
	audit  *recorder
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ks, err := jwtx.GenerateKeySet()
	require.NoError(t, err)
	st := memory.New()
	signer := jwtx.NewSigner(ks, jwtx.Options{})
	rec := &recorder{}
	now := time.Now()

	f := &fixture{store: st, signer: signer, audit: rec, now: now}
	f.svc = New(Deps{
		Users:  st.Users(),
		Tokens: st.Tokens(),
		Signer: signer,
		Audit:  rec,
		Now:    func() time.Time { return now },
	})
	return f
}

func (f *fixture) addUser(t *testing.T, username, plain string, roles []string, secret *string, enabled bool) *repository.User {
	t.Helper()
	hash, err := password.Hash(fastParams, plain)
	require.NoError(t, err)
	u, err := f.store.Users().Create(context.Background(), repository.CreateUserInput{
		Username:         username,
		PasswordHash:     hash,
		Roles:            roles,
		TwoFactorEnabled: enabled,
		TwoFactorSecret:  secret,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) code(t *testing.T, secret string, offset time.Duration) string {
	t.Helper()
	c, err := totp.Code(secret, f.now.Add(offset))
	require.NoError(t, err)
	return c
}

func strptr(s string) *string { return &s }

func TestLogin_WithoutSecondFactor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u := f.addUser(t, "admin", "admin123", []string{"admin"}, nil, false)

	res, err := f.svc.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	require.False(t, res.RequiresTwoFactor)
	require.NotNil(t, res.Tokens)
	assert.Empty(t, res.TwoFactorToken)
	assert.Equal(t, int64(jwtx.DefaultAccessTTL/time.Second), res.Tokens.ExpiresIn)

	c, err := f.signer.Verify(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", c.Username)
	assert.Equal(t, []string{"admin"}, c.Roles)
	uid, _ := c.UserID()
	assert.Equal(t, u.ID, uid)

	// el refresh emitido quedó en el ledger
	rc, err := f.signer.Verify(res.Tokens.RefreshToken)
	require.NoError(t, err)
	rec, err := f.store.Tokens().FindValid(context.Background(), rc.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, rec.UserID)
	assert.NotContains(t, rec.TokenHash, res.Tokens.RefreshToken)

	assert.Equal(t, []string{audit.LoginSucceeded}, f.audit.types())
}

func TestLogin_WithSecondFactor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u := f.addUser(t, "user", "user123", []string{"user"}, strptr(demoSecret), true)

	res, err := f.svc.Login(context.Background(), "user", "user123")
	require.NoError(t, err)
	require.True(t, res.RequiresTwoFactor)
	assert.Nil(t, res.Tokens)
	require.NotEmpty(t, res.TwoFactorToken)

	uid, err := f.signer.VerifySecondFactorPending(res.TwoFactorToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)
	assert.Equal(t, []string{audit.SecondFactorPending}, f.audit.types())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "admin123", []string{"admin"}, nil, false)

	_, err := f.svc.Login(context.Background(), "admin", "wrong")
	require.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	_, errUnknown := f.svc.Login(context.Background(), "ghost", "admin123")
	require.ErrorIs(t, errUnknown, autherr.ErrInvalidCredentials)

	// mismo mensaje en ambos casos
	assert.Equal(t, err.Error(), errUnknown.Error())
	assert.Equal(t, []string{audit.LoginFailed, audit.LoginFailed}, f.audit.types())
}

func TestVerifyTwoFactor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "user", "user123", []string{"user"}, strptr(demoSecret), true)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "user", "user123")
	require.NoError(t, err)

	_, err = f.svc.VerifyTwoFactor(ctx, res.TwoFactorToken, f.code(t, demoSecret, 10*time.Minute))
	require.ErrorIs(t, err, autherr.ErrInvalidCode)

	toks, err := f.svc.VerifyTwoFactor(ctx, res.TwoFactorToken, f.code(t, demoSecret, 0))
	require.NoError(t, err)
	c, err := f.signer.Verify(toks.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user", c.Username)
}

func TestVerifyTwoFactor_AdjacentStep(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "user", "user123", []string{"user"}, strptr(demoSecret), true)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "user", "user123")
	require.NoError(t, err)
	_, err = f.svc.VerifyTwoFactor(ctx, res.TwoFactorToken, f.code(t, demoSecret, -totp.Period*time.Second))
	require.NoError(t, err)
}

func TestVerifyTwoFactor_ReplayRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "user", "user123", []string{"user"}, strptr(demoSecret), true)
	ctx := context.Background()
	code := f.code(t, demoSecret, 0)

	first, err := f.svc.Login(ctx, "user", "user123")
	require.NoError(t, err)
	_, err = f.svc.VerifyTwoFactor(ctx, first.TwoFactorToken, code)
	require.NoError(t, err)

	second, err := f.svc.Login(ctx, "user", "user123")
	require.NoError(t, err)
	_, err = f.svc.VerifyTwoFactor(ctx, second.TwoFactorToken, code)
	require.ErrorIs(t, err, autherr.ErrInvalidCode)
}

func TestVerifyTwoFactor_RejectsOtherTokens(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u := f.addUser(t, "admin", "admin123", []string{"admin"}, nil, false)
	ctx := context.Background()

	access, _, err := f.signer.SignAccess(u.ID, u.Username, u.Roles)
	require.NoError(t, err)
	_, err = f.svc.VerifyTwoFactor(ctx, access, "123456")
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)

	_, err = f.svc.VerifyTwoFactor(ctx, "not-a-token", "123456")
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)

	// token 2fa válido pero el usuario no tiene secreto
	pending, err := f.signer.SignSecondFactorPending(u.ID)
	require.NoError(t, err)
	_, err = f.svc.VerifyTwoFactor(ctx, pending, "123456")
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)
}

func TestSetupTwoFactor_TwoStepEnrollment(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u := f.addUser(t, "test", "test123", []string{"user"}, nil, false)
	ctx := context.Background()

	first, err := f.svc.SetupTwoFactor(ctx, u.ID, "")
	require.NoError(t, err)
	require.NotEmpty(t, first.Secret)
	assert.False(t, first.Enabled)
	assert.True(t, strings.HasPrefix(first.ProvisioningURI, "otpauth://totp/"))
	assert.Contains(t, first.ProvisioningURI, "secret="+first.Secret)
	assert.Contains(t, first.ProvisioningURI, "issuer="+totp.DefaultIssuer)

	stored, err := f.store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, stored.HasSecret())
	assert.Equal(t, first.Secret, *stored.TwoFactorSecret)
	assert.False(t, stored.TwoFactorEnabled)

	// segundo paso sin código o con código incorrecto
	_, err = f.svc.SetupTwoFactor(ctx, u.ID, "")
	require.ErrorIs(t, err, autherr.ErrInvalidCode)

	second, err := f.svc.SetupTwoFactor(ctx, u.ID, f.code(t, first.Secret, 0))
	require.NoError(t, err)
	assert.True(t, second.Enabled)
	assert.Empty(t, second.Secret)

	stored, err = f.store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.TwoFactorEnabled)

	_, err = f.svc.SetupTwoFactor(ctx, u.ID, f.code(t, first.Secret, 0))
	require.ErrorIs(t, err, autherr.ErrAlreadyEnabled)

	// desde ahora el login pide segundo factor
	res, err := f.svc.Login(ctx, "test", "test123")
	require.NoError(t, err)
	assert.True(t, res.RequiresTwoFactor)
}

func TestSetupTwoFactor_UserNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.svc.SetupTwoFactor(context.Background(), 42, "")
	require.ErrorIs(t, err, autherr.ErrUserNotFound)
}

func TestRefreshTokens_Rotation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "admin123", []string{"admin"}, nil, false)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	old := res.Tokens.RefreshToken

	fresh, err := f.svc.RefreshTokens(ctx, old)
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh.RefreshToken)

	_, err = f.svc.RefreshTokens(ctx, old)
	require.ErrorIs(t, err, autherr.ErrTokenRevoked)

	_, err = f.svc.RefreshTokens(ctx, fresh.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshTokens_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "admin123", []string{"admin"}, nil, false)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		revoked int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.RefreshTokens(ctx, res.Tokens.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case autherr.KindOf(err) == autherr.TokenRevoked:
				revoked++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, revoked)
}

func TestRefreshTokens_RejectsNonRefreshTokens(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u := f.addUser(t, "admin", "admin123", []string{"admin"}, nil, false)
	ctx := context.Background()

	access, _, err := f.signer.SignAccess(u.ID, u.Username, u.Roles)
	require.NoError(t, err)
	_, err = f.svc.RefreshTokens(ctx, access)
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)

	pending, err := f.signer.SignSecondFactorPending(u.ID)
	require.NoError(t, err)
	_, err = f.svc.RefreshTokens(ctx, pending)
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)

	_, err = f.svc.RefreshTokens(ctx, "garbage")
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)

	// firmado correctamente pero nunca persistido
	orphan, _, err := f.signer.SignRefresh(u.ID)
	require.NoError(t, err)
	_, err = f.svc.RefreshTokens(ctx, orphan)
	require.ErrorIs(t, err, autherr.ErrTokenRevoked)
}

func TestLogout(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addUser(t, "admin", "admin123", []string{"admin"}, nil, false)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, res.Tokens.RefreshToken))
	// idempotente
	require.NoError(t, f.svc.Logout(ctx, res.Tokens.RefreshToken))

	_, err = f.svc.RefreshTokens(ctx, res.Tokens.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrTokenRevoked)

	err = f.svc.Logout(ctx, "garbage")
	require.ErrorIs(t, err, autherr.ErrInvalidOrExpiredToken)

	assert.Contains(t, f.audit.types(), audit.LoggedOut)
	assert.Contains(t, f.audit.types(), audit.TokenReuseDetected)
}

func TestRevokeAllSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	u := f.addUser(t, "admin", "admin123", []string{"admin"}, nil, false)
	ctx := context.Background()

	a, err := f.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	b, err := f.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	n, err := f.svc.RevokeAllSessions(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, tok := range []string{a.Tokens.RefreshToken, b.Tokens.RefreshToken} {
		_, err := f.svc.RefreshTokens(ctx, tok)
		require.ErrorIs(t, err, autherr.ErrTokenRevoked)
	}

	_, err = f.svc.RevokeAllSessions(ctx, 999)
	require.ErrorIs(t, err, autherr.ErrUserNotFound)
}
