// Package gateway contiene los controllers propios del gateway.
package gateway

import (
	"net/http"

	"github.com/dropDatabas3/authgate/internal/breaker"
	"github.com/dropDatabas3/authgate/internal/http/helpers"
)

// BreakersController expone el estado de los circuit breakers del gateway.
type BreakersController struct {
	registry *breaker.Registry
}

func NewBreakersController(r *breaker.Registry) *BreakersController {
	return &BreakersController{registry: r}
}

type breakersResponse struct {
	Breakers []breaker.Status `json:"breakers"`
}

// List maneja GET /breakers
func (c *BreakersController) List(w http.ResponseWriter, _ *http.Request) {
	snap := c.registry.Snapshot()
	if snap == nil {
		snap = []breaker.Status{}
	}
	helpers.WriteJSON(w, http.StatusOK, breakersResponse{Breakers: snap})
}
