package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/authgate/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/authgate/internal/http/errors"
	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/http/middlewares"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// TwoFactorController maneja /auth/2fa/verify y /auth/2fa/setup.
type TwoFactorController struct {
	backend Backend
}

func NewTwoFactorController(b Backend) *TwoFactorController {
	return &TwoFactorController{backend: b}
}

// Verify maneja POST /auth/2fa/verify: token intermedio + código -> tokens.
func (c *TwoFactorController) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.2fa.verify"))

	var req dto.VerifyTwoFactorRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if !validate(w, req) {
		return
	}

	tokens, err := c.backend.VerifyTwoFactor(ctx, req.TwoFactorToken, req.TOTPCode)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, tokens)
}

// Setup maneja POST /auth/2fa/setup (requiere access token).
// Sin totpCode devuelve secreto + URI; con totpCode confirma y activa.
func (c *TwoFactorController) Setup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.2fa.setup"))

	uid, ok := middlewares.GetUserID(ctx)
	if !ok {
		httperrors.WriteError(w, httperrors.ErrTokenMissing)
		return
	}
	caller := Caller{UserID: uid, Bearer: middlewares.GetBearer(ctx)}

	var req dto.SetupTwoFactorRequest
	if !helpers.ReadOptionalJSON(w, r, &req) {
		return
	}
	if !validate(w, req) {
		return
	}

	res, err := c.backend.SetupTwoFactor(ctx, caller, req.TOTPCode)
	if err != nil {
		writeServiceError(w, log.With(logger.UserID(uid)), err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}
