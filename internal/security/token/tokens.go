package tokens

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SHA256Hex devuelve sha256(input) en hexadecimal (forma persistida en el ledger).
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// MatchesHash compara el token presentado contra el hash guardado en tiempo constante.
func MatchesHash(raw, storedHex string) bool {
	got := SHA256Hex(raw)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHex)) == 1
}
