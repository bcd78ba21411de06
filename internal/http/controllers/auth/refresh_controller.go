package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/authgate/internal/http/dto/auth"
	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// RefreshController maneja POST /auth/refresh (rotación).
type RefreshController struct {
	backend Backend
}

func NewRefreshController(b Backend) *RefreshController {
	return &RefreshController{backend: b}
}

func (c *RefreshController) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.refresh"))

	var req dto.RefreshRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if !validate(w, req) {
		return
	}

	tokens, err := c.backend.RefreshTokens(ctx, req.RefreshToken)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, tokens)
}

// LogoutController maneja POST /auth/logout.
type LogoutController struct {
	backend Backend
}

func NewLogoutController(b Backend) *LogoutController {
	return &LogoutController{backend: b}
}

// Logout revoca el refresh token. Repetirlo también responde success.
func (c *LogoutController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.logout"))

	var req dto.LogoutRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if !validate(w, req) {
		return
	}

	if err := c.backend.Logout(ctx, req.RefreshToken); err != nil {
		writeServiceError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.LogoutResponse{Success: true})
}
