// Package autherr define la taxonomía cerrada de errores del flujo de autenticación.
//
// Los servicios traducen fallas de capas inferiores (firma, expiración, store) a un Kind;
// cada transporte (HTTP, TCP, gateway) decide cómo representarlo.
package autherr

import (
	"errors"
	"fmt"
)

// Kind identifica una categoría de error. El conjunto es cerrado.
type Kind int

const (
	Internal Kind = iota
	InvalidCredentials
	InvalidOrExpiredToken
	WrongTokenType
	TokenRevoked
	InvalidCode
	UserNotFound
	AlreadyEnabled
	ServiceUnavailable
	UpstreamTimeout
	UpstreamUnreachable
	BadInput
)

// Kinds lista todos los Kind conocidos (útil para tests de mapeo).
var Kinds = []Kind{
	Internal,
	InvalidCredentials,
	InvalidOrExpiredToken,
	WrongTokenType,
	TokenRevoked,
	InvalidCode,
	UserNotFound,
	AlreadyEnabled,
	ServiceUnavailable,
	UpstreamTimeout,
	UpstreamUnreachable,
	BadInput,
}

// Code devuelve el código estable que viaja en las respuestas.
func (k Kind) Code() string {
	switch k {
	case InvalidCredentials:
		return "INVALID_CREDENTIALS"
	case InvalidOrExpiredToken:
		return "INVALID_OR_EXPIRED_TOKEN"
	case WrongTokenType:
		return "WRONG_TOKEN_TYPE"
	case TokenRevoked:
		return "TOKEN_REVOKED"
	case InvalidCode:
		return "INVALID_CODE"
	case UserNotFound:
		return "USER_NOT_FOUND"
	case AlreadyEnabled:
		return "ALREADY_ENABLED"
	case ServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case UpstreamTimeout:
		return "UPSTREAM_TIMEOUT"
	case UpstreamUnreachable:
		return "UPSTREAM_UNREACHABLE"
	case BadInput:
		return "BAD_REQUEST"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

func (k Kind) String() string { return k.Code() }

// ParseCode es la inversa de Code. Códigos desconocidos devuelven (Internal, false).
func ParseCode(code string) (Kind, bool) {
	for _, k := range Kinds {
		if k.Code() == code {
			return k, true
		}
	}
	return Internal, false
}

// IsDomain reporta si el Kind es una respuesta legítima del servicio
// (el upstream contestó), en oposición a fallas de infraestructura.
func (k Kind) IsDomain() bool {
	switch k {
	case InvalidCredentials, InvalidOrExpiredToken, WrongTokenType, TokenRevoked,
		InvalidCode, UserNotFound, AlreadyEnabled, BadInput:
		return true
	default:
		return false
	}
}

// Error es el error tipado del dominio de autenticación.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara por Kind, así errors.Is(err, autherr.ErrTokenRevoked) funciona con copias.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New crea un error del Kind dado.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Message: msg}
}

// Wrap crea un error del Kind dado conservando la causa.
func Wrap(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Message: msg, Err: err}
}

// KindOf extrae el Kind de cualquier error. nil y errores ajenos son Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Mensajes deliberadamente poco informativos: no distinguen usuario inexistente de
// password incorrecta, ni código incorrecto de token vencido.
var (
	ErrInvalidCredentials    = New(InvalidCredentials, "invalid credentials")
	ErrInvalidOrExpiredToken = New(InvalidOrExpiredToken, "invalid or expired token")
	ErrWrongTokenType        = New(WrongTokenType, "wrong token type")
	ErrTokenRevoked          = New(TokenRevoked, "refresh token has been revoked")
	ErrInvalidCode           = New(InvalidCode, "invalid code")
	ErrUserNotFound          = New(UserNotFound, "user not found")
	ErrAlreadyEnabled        = New(AlreadyEnabled, "2fa is already enabled")
)

// Unavailable construye el error de breaker abierto nombrando el destino.
func Unavailable(destination string) *Error {
	return &Error{Kind: ServiceUnavailable, Message: "circuit breaker is open for domain: " + destination}
}
