package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIssuer       = "auth-server"
	DefaultAccessTTL    = 15 * time.Minute
	DefaultRefreshTTL   = 7 * 24 * time.Hour
	DefaultTwoFactorTTL = 5 * time.Minute

	// TypeSecondFactor marca los tokens emitidos entre password y TOTP.
	TypeSecondFactor = "2fa"
)

var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
	ErrWrongTokenType   = errors.New("wrong token type")
)

// Claims cubre los tres tipos de token. Los campos vacíos se omiten del payload.
type Claims struct {
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Type     string   `json:"type,omitempty"`
	jwtv5.RegisteredClaims
}

// UserID parsea el subject numérico.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("subject %q is not a user id", c.Subject)
	}
	return id, nil
}

// Options configura el Signer. Los valores cero toman los defaults.
type Options struct {
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	TwoFactorTTL time.Duration
	// Now permite fijar el reloj en tests.
	Now func() time.Time
}

// Signer firma y verifica tokens EdDSA. Es stateless salvo por el KeySet (solo lectura).
type Signer struct {
	keys   *KeySet
	opts   Options
	parser *jwtv5.Parser
}

func NewSigner(keys *KeySet, opts Options) *Signer {
	if opts.Issuer == "" {
		opts.Issuer = DefaultIssuer
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}
	if opts.TwoFactorTTL <= 0 {
		opts.TwoFactorTTL = DefaultTwoFactorTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Signer{
		keys: keys,
		opts: opts,
		parser: jwtv5.NewParser(
			jwtv5.WithValidMethods([]string{"EdDSA"}),
			jwtv5.WithIssuer(opts.Issuer),
			jwtv5.WithExpirationRequired(),
			jwtv5.WithTimeFunc(opts.Now),
		),
	}
}

func (s *Signer) Issuer() string              { return s.opts.Issuer }
func (s *Signer) AccessTTL() time.Duration    { return s.opts.AccessTTL }
func (s *Signer) RefreshTTL() time.Duration   { return s.opts.RefreshTTL }
func (s *Signer) TwoFactorTTL() time.Duration { return s.opts.TwoFactorTTL }
func (s *Signer) Keys() *KeySet               { return s.keys }

// SignAccess emite un access token con username y roles.
func (s *Signer) SignAccess(sub int64, username string, roles []string) (token, jti string, err error) {
	jti = uuid.NewString()
	c := Claims{
		Username:         username,
		Roles:            roles,
		RegisteredClaims: s.registered(sub, jti, s.opts.AccessTTL),
	}
	token, err = s.sign(c)
	return token, jti, err
}

// SignRefresh emite un refresh token: solo subject y jti.
func (s *Signer) SignRefresh(sub int64) (token, jti string, err error) {
	jti = uuid.NewString()
	token, err = s.sign(Claims{RegisteredClaims: s.registered(sub, jti, s.opts.RefreshTTL)})
	return token, jti, err
}

// SignSecondFactorPending emite el token intermedio de login con 2FA. No lleva jti.
func (s *Signer) SignSecondFactorPending(sub int64) (string, error) {
	return s.sign(Claims{
		Type:             TypeSecondFactor,
		RegisteredClaims: s.registered(sub, "", s.opts.TwoFactorTTL),
	})
}

func (s *Signer) registered(sub int64, jti string, ttl time.Duration) jwtv5.RegisteredClaims {
	now := s.opts.Now()
	return jwtv5.RegisteredClaims{
		Issuer:    s.opts.Issuer,
		Subject:   strconv.FormatInt(sub, 10),
		ID:        jti,
		IssuedAt:  jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
	}
}

func (s *Signer) sign(c Claims) (string, error) {
	kid, priv, err := s.keys.Active()
	if err != nil {
		return "", err
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, c)
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"
	return tk.SignedString(priv)
}

// Keyfunc elige la clave pública por kid; sin kid usa la clave por defecto.
func (s *Signer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != "" {
			return s.keys.PublicKeyByKID(kid)
		}
		return s.keys.DefaultPublicKey(), nil
	}
}

// Verify valida firma, algoritmo, issuer y expiración.
// Errores: ErrExpired si venció, ErrInvalidSignature para todo lo demás.
func (s *Signer) Verify(token string) (*Claims, error) {
	var c Claims
	_, err := s.parser.ParseWithClaims(token, &c, s.Keyfunc())
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if _, err := c.UserID(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &c, nil
}

// VerifyAccess es Verify más las reglas de access token: sin type y con username.
// Los tokens 2fa y los refresh devuelven ErrWrongTokenType.
func (s *Signer) VerifyAccess(token string) (*Claims, int64, error) {
	c, err := s.Verify(token)
	if err != nil {
		return nil, 0, err
	}
	if c.Type != "" || c.Username == "" {
		return nil, 0, ErrWrongTokenType
	}
	uid, err := c.UserID()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return c, uid, nil
}

// VerifySecondFactorPending es Verify más el chequeo del discriminador type=2fa.
func (s *Signer) VerifySecondFactorPending(token string) (int64, error) {
	c, err := s.Verify(token)
	if err != nil {
		return 0, err
	}
	if c.Type != TypeSecondFactor {
		return 0, ErrWrongTokenType
	}
	return c.UserID()
}
