// Package tcp expone el motor de tokens en un canal TCP de mensajes por patrón:
// frames JSON separados por newline, {"id","pattern","data"} -> {"id","response"} | {"id","err"}.
package tcp

import "encoding/json"

// Patterns soportados.
const (
	PatternLogin          = "auth.login"
	PatternVerifyTwoFA    = "auth.2fa.verify"
	PatternSetupTwoFA     = "auth.2fa.setup"
	PatternRefresh        = "auth.refresh"
	PatternLogout         = "auth.logout"
	PatternRevokeSessions = "auth.sessions.revoke_all"
)

// Request es un frame entrante.
type Request struct {
	ID      string          `json:"id"`
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data"`
}

// Response es un frame saliente: Response o Err, nunca ambos.
type Response struct {
	ID       string     `json:"id"`
	Response any        `json:"response,omitempty"`
	Err      *ErrorBody `json:"err,omitempty"`
}

// ErrorBody usa los mismos códigos que las respuestas HTTP.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type setupPayload struct {
	AccessToken string `json:"accessToken"`
	TOTPCode    string `json:"totpCode,omitempty"`
}

type revokeAllPayload struct {
	AccessToken string `json:"accessToken"`
}

type revokeAllResult struct {
	Revoked int64 `json:"revoked"`
}
