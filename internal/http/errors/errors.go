// Package errors traduce errores de dominio a respuestas HTTP {code, message, detail}.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/authgate/internal/domain/autherr"
)

// errorResponse controla exactamente qué campos se envían al cliente.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// StatusFor es el mapeo Kind -> status. El switch es exhaustivo sobre el conjunto
// cerrado de autherr: un Kind nuevo sin caso acá cae en 500 y lo detecta el test.
func StatusFor(k autherr.Kind) int {
	switch k {
	case autherr.InvalidCredentials,
		autherr.InvalidOrExpiredToken,
		autherr.WrongTokenType,
		autherr.TokenRevoked,
		autherr.InvalidCode:
		return http.StatusUnauthorized
	case autherr.UserNotFound:
		return http.StatusNotFound
	case autherr.AlreadyEnabled:
		return http.StatusConflict
	case autherr.ServiceUnavailable:
		return http.StatusServiceUnavailable
	case autherr.UpstreamTimeout:
		return http.StatusGatewayTimeout
	case autherr.UpstreamUnreachable:
		return http.StatusBadGateway
	case autherr.BadInput:
		return http.StatusBadRequest
	case autherr.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// FromError convierte cualquier error en AppError.
// *AppError pasa tal cual; *autherr.Error se mapea por Kind; el resto es 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	var ae *autherr.Error
	if stderrors.As(err, &ae) {
		msg := ae.Message
		if ae.Kind == autherr.Internal {
			// la causa interna no se expone
			msg = ErrInternalServerError.Message
		}
		return &AppError{
			Code:       ae.Kind.Code(),
			Message:    msg,
			HTTPStatus: StatusFor(ae.Kind),
			Err:        err,
		}
	}
	return ErrInternalServerError.WithCause(err)
}

// WriteError escribe la respuesta de error JSON.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// Decode reconstruye el error tipado a partir de una respuesta de error de otro
// servicio (lo usa el gateway). Códigos desconocidos devuelven ok=false.
func Decode(status int, body []byte) (err *autherr.Error, ok bool) {
	var resp errorResponse
	if jerr := json.Unmarshal(body, &resp); jerr != nil || resp.Code == "" {
		return nil, false
	}
	k, known := autherr.ParseCode(resp.Code)
	if !known {
		return nil, false
	}
	if k == autherr.Internal && status < http.StatusInternalServerError {
		return nil, false
	}
	return autherr.New(k, resp.Message), true
}
