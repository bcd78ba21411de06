package middlewares

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// statusRecorder captura el status code y bytes escritos de la respuesta.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.wroteHeader {
		return
	}
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.status = http.StatusOK
		s.wroteHeader = true
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// WithLogging registra cada request e inyecta un logger scoped (request_id, method,
// path) en el contexto. RequireAuth corre adentro y anota el user_id para la línea final.
// 401/429 salen en warn con la IP del cliente.
//
//	{"level":"info","msg":"request completed","request_id":"abc123","method":"POST","path":"/auth/login","status":200,"bytes":256,"duration":0.045}
func WithLogging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLog := logger.L().With(
				logger.RequestID(GetRequestID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
			)
			if uid, ok := GetUserID(r.Context()); ok {
				reqLog = reqLog.With(logger.UserID(uid))
			}

			info := &requestInfo{}
			ctx := withRequestInfo(logger.ToContext(r.Context(), reqLog), info)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(ctx))

			dur := time.Since(start)
			fields := []zap.Field{
				logger.Status(rec.status),
				logger.Bytes(rec.bytes),
				logger.Duration(dur),
			}
			if info.hasUser {
				fields = append(fields, logger.UserID(info.userID))
			}
			switch {
			case rec.status >= 500:
				reqLog.Error("request failed", append(fields,
					logger.ClientIP(clientIP(r)),
					logger.UserAgent(r.UserAgent()),
				)...)
			case rec.status == http.StatusTooManyRequests || rec.status == http.StatusUnauthorized:
				reqLog.Warn("request rejected", append(fields, logger.ClientIP(clientIP(r)))...)
			default:
				reqLog.Info("request completed", fields...)
			}
		})
	}
}
