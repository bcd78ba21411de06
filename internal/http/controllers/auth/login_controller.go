package auth

import (
	"net/http"
	"strings"

	dto "github.com/dropDatabas3/authgate/internal/http/dto/auth"
	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// LoginController maneja POST /auth/login.
type LoginController struct {
	backend Backend
}

func NewLoginController(b Backend) *LoginController {
	return &LoginController{backend: b}
}

// Login devuelve tokens, o el token intermedio si el usuario tiene 2FA.
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.login"))

	var req dto.LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if !validate(w, req) {
		return
	}

	res, err := c.backend.Login(ctx, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, log.With(logger.Username(req.Username)), err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}
