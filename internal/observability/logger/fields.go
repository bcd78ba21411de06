package logger

import (
	"time"

	"go.uber.org/zap"
)

// ─── HTTP / transporte ───

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

func Method(v string) zap.Field {
	return zap.String("method", v)
}

func Path(v string) zap.Field {
	return zap.String("path", v)
}

func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ClientIP crea un campo para la IP del cliente.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

func UserAgent(v string) zap.Field {
	return zap.String("user_agent", v)
}

// Pattern es el nombre del mensaje en el canal TCP (auth.login, auth.refresh...).
func Pattern(v string) zap.Field {
	return zap.String("pattern", v)
}

// RemoteAddr de una conexión TCP.
func RemoteAddr(v string) zap.Field {
	return zap.String("remote_addr", v)
}

// ─── auth ───

// UserID crea un campo para el ID del usuario.
func UserID(v int64) zap.Field {
	return zap.Int64("user_id", v)
}

// Username: nunca loguear el password que viene al lado.
func Username(v string) zap.Field {
	return zap.String("username", v)
}

// JTI identifica un refresh token en el ledger.
func JTI(v string) zap.Field {
	return zap.String("jti", v)
}

// KID de la clave de firma.
func KID(v string) zap.Field {
	return zap.String("kid", v)
}

// ErrorCode es el código de la taxonomía de errores (INVALID_CREDENTIALS...).
func ErrorCode(v string) zap.Field {
	return zap.String("error_code", v)
}

// ─── gateway ───

// Destination es el nombre lógico del upstream protegido por un breaker.
func Destination(v string) zap.Field {
	return zap.String("destination", v)
}

// BreakerState: closed | half-open | open.
func BreakerState(v string) zap.Field {
	return zap.String("breaker_state", v)
}

// ─── sistema ───

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Layer crea un campo para la capa (handler, service, repository).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

func Addr(v string) zap.Field {
	return zap.String("addr", v)
}

func Count(v int) zap.Field {
	return zap.Int("count", v)
}

func String(key, v string) zap.Field {
	return zap.String(key, v)
}

func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
