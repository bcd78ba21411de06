package jwt

import (
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, opts Options) *Signer {
	t.Helper()
	ks, err := GenerateKeySet()
	require.NoError(t, err)
	return NewSigner(ks, opts)
}

func TestSignAccess_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestSigner(t, Options{})

	tok, jti, err := s.SignAccess(42, "admin", []string{"admin", "user"})
	require.NoError(t, err)
	require.NotEmpty(t, jti)

	c, err := s.Verify(tok)
	require.NoError(t, err)
	uid, err := c.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
	assert.Equal(t, "admin", c.Username)
	assert.Equal(t, []string{"admin", "user"}, c.Roles)
	assert.Equal(t, jti, c.ID)
	assert.Equal(t, DefaultIssuer, c.Issuer)
	assert.Empty(t, c.Type)
	assert.WithinDuration(t, time.Now().Add(DefaultAccessTTL), c.ExpiresAt.Time, 2*time.Second)
}

func TestSignRefresh_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestSigner(t, Options{})

	tok, jti, err := s.SignRefresh(7)
	require.NoError(t, err)

	c, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "7", c.Subject)
	assert.Equal(t, jti, c.ID)
	assert.Empty(t, c.Username)
	assert.Nil(t, c.Roles)
	assert.WithinDuration(t, time.Now().Add(DefaultRefreshTTL), c.ExpiresAt.Time, 2*time.Second)

	// jti distinto en cada emisión
	_, jti2, err := s.SignRefresh(7)
	require.NoError(t, err)
	assert.NotEqual(t, jti, jti2)
}

func TestSecondFactorPending_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestSigner(t, Options{})

	tok, err := s.SignSecondFactorPending(9)
	require.NoError(t, err)

	uid, err := s.VerifySecondFactorPending(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(9), uid)

	c, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, TypeSecondFactor, c.Type)
	assert.Empty(t, c.ID)
}

func TestVerifySecondFactorPending_WrongType(t *testing.T) {
	t.Parallel()
	s := newTestSigner(t, Options{})

	access, _, err := s.SignAccess(1, "a", []string{"user"})
	require.NoError(t, err)
	_, err = s.VerifySecondFactorPending(access)
	require.ErrorIs(t, err, ErrWrongTokenType)

	refresh, _, err := s.SignRefresh(1)
	require.NoError(t, err)
	_, err = s.VerifySecondFactorPending(refresh)
	require.ErrorIs(t, err, ErrWrongTokenType)
}

func TestVerifyAccess_OnlyAccessTokens(t *testing.T) {
	t.Parallel()
	s := newTestSigner(t, Options{})

	access, _, err := s.SignAccess(3, "test", []string{"user"})
	require.NoError(t, err)
	c, uid, err := s.VerifyAccess(access)
	require.NoError(t, err)
	assert.Equal(t, int64(3), uid)
	assert.Equal(t, "test", c.Username)

	refresh, _, err := s.SignRefresh(3)
	require.NoError(t, err)
	_, _, err = s.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	pending, err := s.SignSecondFactorPending(3)
	require.NoError(t, err)
	_, _, err = s.VerifyAccess(pending)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, _, err = s.VerifyAccess("garbage")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWrongTokenType)
}

func TestVerify_TamperedSignature(t *testing.T) {
	t.Parallel()
	s := newTestSigner(t, Options{})

	tok, _, err := s.SignAccess(1, "a", nil)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = s.Verify(tampered)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_TamperedPayload(t *testing.T) {
	t.Parallel()
	s := newTestSigner(t, Options{})
	other := newTestSigner(t, Options{})

	// firmado con otra clave: payload válido, firma no
	tok, _, err := other.SignAccess(1, "a", nil)
	require.NoError(t, err)
	_, err = s.Verify(tok)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()
	ks, err := GenerateKeySet()
	require.NoError(t, err)

	past := NewSigner(ks, Options{Now: func() time.Time { return time.Now().Add(-time.Hour) }})
	tok, _, err := past.SignAccess(1, "a", nil)
	require.NoError(t, err)

	_, err = NewSigner(ks, Options{}).Verify(tok)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerify_WrongIssuer(t *testing.T) {
	t.Parallel()
	ks, err := GenerateKeySet()
	require.NoError(t, err)

	tok, _, err := NewSigner(ks, Options{Issuer: "someone-else"}).SignRefresh(1)
	require.NoError(t, err)

	_, err = NewSigner(ks, Options{}).Verify(tok)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()
	s := newTestSigner(t, Options{})

	c := Claims{RegisteredClaims: jwtv5.RegisteredClaims{
		Issuer:    DefaultIssuer,
		Subject:   "1",
		ExpiresAt: jwtv5.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, c).SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = s.Verify(tok)
	require.ErrorIs(t, err, ErrInvalidSignature)

	none, err := jwtv5.NewWithClaims(jwtv5.SigningMethodNone, c).SignedString(jwtv5.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Verify(none)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_SelectsKeyByKID(t *testing.T) {
	t.Parallel()
	oldKS, err := GenerateKeySet()
	require.NoError(t, err)
	oldSigner := NewSigner(oldKS, Options{})
	tok, _, err := oldSigner.SignRefresh(5)
	require.NoError(t, err)

	// Rotación: clave nueva activa, la anterior sigue verificando.
	fresh, err := GenerateKeySet()
	require.NoError(t, err)
	_, newPriv, err := fresh.Active()
	require.NoError(t, err)
	rotated, err := NewKeySet(newPriv, oldKS.DefaultPublicKey())
	require.NoError(t, err)
	require.Len(t, rotated.KIDs(), 2)

	c, err := NewSigner(rotated, Options{}).Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "5", c.Subject)

	// Sin la clave vieja, el kid es desconocido.
	_, err = NewSigner(fresh, Options{}).Verify(tok)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyOnly_CannotSign(t *testing.T) {
	t.Parallel()
	ks, err := GenerateKeySet()
	require.NoError(t, err)
	tok, _, err := NewSigner(ks, Options{}).SignAccess(3, "u", []string{"user"})
	require.NoError(t, err)

	vo, err := NewVerifyOnly(ks.DefaultPublicKey())
	require.NoError(t, err)
	verifier := NewSigner(vo, Options{})

	_, err = verifier.Verify(tok)
	require.NoError(t, err)

	_, _, err = verifier.SignAccess(3, "u", nil)
	require.ErrorIs(t, err, ErrNoActiveKey)
}

func TestJWKSJSON(t *testing.T) {
	t.Parallel()
	ks, err := GenerateKeySet()
	require.NoError(t, err)
	kid, _, err := ks.Active()
	require.NoError(t, err)

	out := string(ks.JWKSJSON())
	assert.Contains(t, out, `"kid":"`+kid+`"`)
	assert.Contains(t, out, `"crv":"Ed25519"`)
	assert.NotContains(t, out, `"d"`)
}
