package middlewares

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// requestIDRE acota lo que aceptamos del cliente: sin espacios, sin saltos de línea.
var requestIDRE = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// WithRequestID asegura un X-Request-ID en request, response y contexto.
// Si el cliente manda uno válido se reutiliza (lo hace el gateway hacia auth).
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get("X-Request-ID")
			if !requestIDRE.MatchString(rid) {
				rid = uuid.NewString()
				r.Header.Set("X-Request-ID", rid)
			}
			w.Header().Set("X-Request-ID", rid)
			next.ServeHTTP(w, r.WithContext(setRequestID(r.Context(), rid)))
		})
	}
}
