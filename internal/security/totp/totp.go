package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	Digits     = 6
	Period     = 30 // segundos
	SecretSize = 20 // bytes (160 bits, recomendado por RFC 4226)

	// DefaultIssuer es el nombre que ven las apps autenticadoras.
	DefaultIssuer = "AuthServer"
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrInvalidSecret indica un secreto que no decodifica como base32.
var ErrInvalidSecret = errors.New("totp: invalid base32 secret")

// GenerateSecret retorna 20 bytes aleatorios y su forma base32 sin padding (RFC 3548).
func GenerateSecret() (raw []byte, encoded string, err error) {
	raw = make([]byte, SecretSize)
	if _, err = rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, b32.EncodeToString(raw), nil
}

// DecodeSecret acepta base32 con o sin padding, en mayúsculas o minúsculas y con espacios.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, ErrInvalidSecret
	}
	raw, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return raw, nil
}

// ProvisioningURI construye otpauth:// para el QR de enrolamiento. Determinística.
func ProvisioningURI(issuer, accountName, secretB32 string) string {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	// otpauth://totp/{issuer}:{account}?secret=...&issuer=...&algorithm=SHA1&digits=6&period=30
	label := url.PathEscape(fmt.Sprintf("%s:%s", issuer, accountName))
	q := url.Values{}
	q.Set("secret", secretB32)
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprint(Digits))
	q.Set("period", fmt.Sprint(Period))
	return fmt.Sprintf("otpauth://totp/%s?%s", label, q.Encode())
}

// Counter devuelve el time-step para t.
func Counter(t time.Time) int64 {
	return t.Unix() / Period
}

// Code genera el código para el secreto en el instante t.
func Code(secretB32 string, t time.Time) (string, error) {
	raw, err := DecodeSecret(secretB32)
	if err != nil {
		return "", err
	}
	return gen(raw, Counter(t)), nil
}

// Verify valida code en la ventana +/- windowSteps alrededor de t.
//
// Todos los pasos de la ventana se evalúan y comparan en tiempo constante, así
// "código incorrecto" y "código correcto en otro paso" cuestan lo mismo.
// Si lastCounterUsed no es nil, los contadores <= *lastCounterUsed se descartan (anti-replay).
func Verify(secretB32, code string, t time.Time, windowSteps int, lastCounterUsed *int64) (ok bool, counter int64) {
	raw, err := DecodeSecret(secretB32)
	if err != nil {
		return false, 0
	}
	code = strings.TrimSpace(code)
	if len(code) != Digits {
		// igual corremos la ventana contra un código vacío para no cortar antes
		code = strings.Repeat("x", Digits)
	}
	if windowSteps < 0 {
		windowSteps = 0
	}

	now := Counter(t)
	var matched int64 = -1
	for c := now - int64(windowSteps); c <= now+int64(windowSteps); c++ {
		eq := subtle.ConstantTimeCompare([]byte(gen(raw, c)), []byte(code)) == 1
		fresh := lastCounterUsed == nil || c > *lastCounterUsed
		if eq && fresh && matched < 0 {
			matched = c
		}
	}
	if matched < 0 {
		return false, 0
	}
	return true, matched
}

func gen(secretRaw []byte, counter int64) string {
	// HOTP(K, C) con HMAC-SHA1 (RFC 4226 / 6238)
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))
	m := hmac.New(sha1.New, secretRaw)
	_, _ = m.Write(msg[:])
	sum := m.Sum(nil)
	offset := int(sum[len(sum)-1] & 0x0f)
	bin := (uint32(sum[offset])&0x7f)<<24 | uint32(sum[offset+1])<<16 | uint32(sum[offset+2])<<8 | uint32(sum[offset+3])
	return fmt.Sprintf("%0*d", Digits, bin%1_000_000)
}
