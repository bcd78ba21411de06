// Package auth contiene los DTOs de los endpoints /auth/* y su validación de forma.
// La validación es previa al servicio: sus fallas son BAD_REQUEST, no errores de dominio.
package auth

import (
	"fmt"
	"unicode/utf8"

	"github.com/dropDatabas3/authgate/internal/domain/autherr"
)

const maxFieldLen = 255

// LoginRequest es el body de POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// VerifyTwoFactorRequest es el body de POST /auth/2fa/verify.
type VerifyTwoFactorRequest struct {
	TwoFactorToken string `json:"twoFactorToken"`
	TOTPCode       string `json:"totpCode"`
}

// SetupTwoFactorRequest es el body de POST /auth/2fa/setup. Sin código pide el secreto.
type SetupTwoFactorRequest struct {
	TOTPCode string `json:"totpCode,omitempty"`
}

// RefreshRequest es el body de POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutRequest es el body de POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutResponse confirma el logout (idempotente).
type LogoutResponse struct {
	Success bool `json:"success"`
}

func (r LoginRequest) Validate() error {
	if err := boundedString("username", r.Username); err != nil {
		return err
	}
	return boundedString("password", r.Password)
}

func (r VerifyTwoFactorRequest) Validate() error {
	if r.TwoFactorToken == "" {
		return badInput("twoFactorToken is required")
	}
	return sixDigits("totpCode", r.TOTPCode)
}

func (r SetupTwoFactorRequest) Validate() error {
	if r.TOTPCode == "" {
		return nil
	}
	return sixDigits("totpCode", r.TOTPCode)
}

func (r RefreshRequest) Validate() error {
	if r.RefreshToken == "" {
		return badInput("refreshToken is required")
	}
	return nil
}

func (r LogoutRequest) Validate() error {
	if r.RefreshToken == "" {
		return badInput("refreshToken is required")
	}
	return nil
}

func boundedString(field, v string) error {
	n := utf8.RuneCountInString(v)
	switch {
	case n == 0:
		return badInput(field + " is required")
	case n > maxFieldLen:
		return badInput(fmt.Sprintf("%s must be at most %d characters", field, maxFieldLen))
	}
	return nil
}

func sixDigits(field, v string) error {
	if len(v) != 6 {
		return badInput(field + " must be exactly 6 digits")
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return badInput(field + " must be exactly 6 digits")
		}
	}
	return nil
}

func badInput(msg string) error {
	return autherr.New(autherr.BadInput, msg)
}
