// Package health contiene el controller para health checks.
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// Check verifica una dependencia (store, cache). nil = sana.
type Check func(ctx context.Context) error

// Response es el body de /healthz.
type Response struct {
	Status     string            `json:"status"` // ok | unavailable
	Components map[string]string `json:"components,omitempty"`
}

// HealthController maneja GET /healthz.
type HealthController struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewHealthController crea el controller con los checks por nombre de componente.
func NewHealthController(checks map[string]Check) *HealthController {
	return &HealthController{checks: checks, timeout: 2 * time.Second}
}

// Healthz responde 200 si todos los checks pasan, 503 si alguno falla.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("health.check"))

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := Response{Status: "ok", Components: map[string]string{}}
	for _, name := range names {
		if err := c.checks[name](ctx); err != nil {
			log.Warn("health check failed", logger.Component(name), logger.Err(err))
			resp.Components[name] = "down"
			resp.Status = "unavailable"
			continue
		}
		resp.Components[name] = "up"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSON(w, status, resp)
}
