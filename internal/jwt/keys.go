package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoActiveKey: el KeySet es solo de verificación (p.ej. en el gateway).
	ErrNoActiveKey = errors.New("no active signing key")
	// ErrUnknownKID: el header kid no corresponde a ninguna clave pública conocida.
	ErrUnknownKID = errors.New("unknown kid")
)

// KeySet mantiene la clave activa de firma y todas las públicas aceptadas, por kid.
// Es de solo lectura una vez construido, así que se comparte sin locks.
type KeySet struct {
	activeKID string
	priv      ed25519.PrivateKey
	pubs      map[string]ed25519.PublicKey
	order     []string
}

// KIDFor deriva el kid de la clave pública: base64url(sha256(pub))[:16].
// Determinístico, así servicio y gateway coinciden sin coordinación.
func KIDFor(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return base64.RawURLEncoding.EncodeToString(sum[:])[:16]
}

// NewKeySet arma un KeySet con la clave privada activa y, opcionalmente,
// claves públicas anteriores que siguen siendo válidas para verificar.
func NewKeySet(priv ed25519.PrivateKey, previous ...ed25519.PublicKey) (*KeySet, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key size %d", len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	ks := &KeySet{priv: priv, activeKID: KIDFor(pub), pubs: map[string]ed25519.PublicKey{}}
	ks.add(pub)
	for _, p := range previous {
		ks.add(p)
	}
	return ks, nil
}

// NewVerifyOnly arma un KeySet sin clave privada.
func NewVerifyOnly(pubs ...ed25519.PublicKey) (*KeySet, error) {
	if len(pubs) == 0 {
		return nil, errors.New("no public keys")
	}
	ks := &KeySet{pubs: map[string]ed25519.PublicKey{}}
	for _, p := range pubs {
		if len(p) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid ed25519 public key size %d", len(p))
		}
		ks.add(p)
	}
	return ks, nil
}

// GenerateKeySet genera una clave Ed25519 en memoria (dev / tests).
func GenerateKeySet() (*KeySet, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewKeySet(priv)
}

func (k *KeySet) add(pub ed25519.PublicKey) {
	kid := KIDFor(pub)
	if _, ok := k.pubs[kid]; ok {
		return
	}
	k.pubs[kid] = pub
	k.order = append(k.order, kid)
}

// Active devuelve la clave de firma.
func (k *KeySet) Active() (kid string, priv ed25519.PrivateKey, err error) {
	if k.priv == nil {
		return "", nil, ErrNoActiveKey
	}
	return k.activeKID, k.priv, nil
}

// CanSign indica si el set tiene clave privada.
func (k *KeySet) CanSign() bool { return k.priv != nil }

// PublicKeyByKID busca la pública por kid.
func (k *KeySet) PublicKeyByKID(kid string) (ed25519.PublicKey, error) {
	pub, ok := k.pubs[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKID, kid)
	}
	return pub, nil
}

// DefaultPublicKey es la pública de la clave activa o, en sets de solo verificación, la primera.
func (k *KeySet) DefaultPublicKey() ed25519.PublicKey {
	if k.activeKID != "" {
		return k.pubs[k.activeKID]
	}
	return k.pubs[k.order[0]]
}

// KIDs lista los kid conocidos en orden de alta.
func (k *KeySet) KIDs() []string {
	out := make([]string, len(k.order))
	copy(out, k.order)
	return out
}

// ----- PEM -----

// EncodePrivatePEM serializa en PKCS#8 ("PRIVATE KEY").
func EncodePrivatePEM(priv ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicPEM serializa en PKIX ("PUBLIC KEY").
func EncodePublicPEM(pub ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePrivatePEM parsea una clave Ed25519 PKCS#8.
func ParsePrivatePEM(b []byte) (ed25519.PrivateKey, error) {
	k, err := jwtv5.ParseEdPrivateKeyFromPEM(b)
	if err != nil {
		return nil, err
	}
	priv, ok := k.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not ed25519")
	}
	return priv, nil
}

// ParsePublicPEM parsea una clave Ed25519 PKIX.
func ParsePublicPEM(b []byte) (ed25519.PublicKey, error) {
	k, err := jwtv5.ParseEdPublicKeyFromPEM(b)
	if err != nil {
		return nil, err
	}
	pub, ok := k.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ed25519")
	}
	return pub, nil
}

// ----- JWKS (serialización) -----

type jwk struct {
	Kty string `json:"kty"` // "OKP"
	Crv string `json:"crv"` // "Ed25519"
	Kid string `json:"kid"`
	Alg string `json:"alg"` // "EdDSA"
	Use string `json:"use"` // "sig"
	X   string `json:"x"`   // base64url(pub)
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// JWKSJSON devuelve el JWKS (solo públicas) en JSON.
func (k *KeySet) JWKSJSON() []byte {
	j := jwks{Keys: make([]jwk, 0, len(k.order))}
	for _, kid := range k.order {
		j.Keys = append(j.Keys, jwk{
			Kty: "OKP",
			Crv: "Ed25519",
			Kid: kid,
			Alg: "EdDSA",
			Use: "sig",
			X:   base64.RawURLEncoding.EncodeToString(k.pubs[kid]),
		})
	}
	b, _ := json.Marshal(j)
	return b
}
