// Package auth implementa el motor del ciclo de vida de tokens: login, segundo factor,
// rotación de refresh tokens y revocación.
//
// Es neutral respecto del transporte: lo consumen los controllers HTTP y el canal TCP.
// Todos los errores que salen de acá son *autherr.Error.
package auth

import "context"

// Tokens es el par emitido al completar la autenticación.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // segundos hasta que vence el access token
}

// LoginResult: Tokens o TwoFactorToken, nunca ambos.
type LoginResult struct {
	RequiresTwoFactor bool    `json:"requiresTwoFactor"`
	Tokens            *Tokens `json:"tokens,omitempty"`
	TwoFactorToken    string  `json:"twoFactorToken,omitempty"`
}

// SetupResult es la respuesta del enrolamiento en dos pasos.
// Primer paso: Secret + ProvisioningURI. Segundo paso: Enabled.
type SetupResult struct {
	Secret          string `json:"secret,omitempty"`
	ProvisioningURI string `json:"provisioningUri,omitempty"`
	Enabled         bool   `json:"enabled,omitempty"`
}

// API es la superficie que consumen los transportes.
type API interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	VerifyTwoFactor(ctx context.Context, twoFactorToken, code string) (*Tokens, error)
	SetupTwoFactor(ctx context.Context, userID int64, code string) (*SetupResult, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error)
	Logout(ctx context.Context, refreshToken string) error
	RevokeAllSessions(ctx context.Context, userID int64) (int64, error)
}

var _ API = (*Service)(nil)

// Nombres de operación (label "op" de auth_operations_total).
const (
	opLogin     = "login"
	opVerify2FA = "verify_2fa"
	opSetup2FA  = "setup_2fa"
	opRefresh   = "refresh"
	opLogout    = "logout"
	opRevokeAll = "revoke_all"
)
