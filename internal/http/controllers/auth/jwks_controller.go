package auth

import (
	"net/http"

	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
)

// JWKSController publica las claves públicas (activa y previas).
type JWKSController struct {
	keys *jwtx.KeySet
}

func NewJWKSController(keys *jwtx.KeySet) *JWKSController {
	return &JWKSController{keys: keys}
}

// GetJWKS maneja GET /.well-known/jwks.json
func (c *JWKSController) GetJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(c.keys.JWKSJSON())
}
