// Package breaker mantiene un circuit breaker por destino para las llamadas salientes
// del gateway. El Registry se inyecta: no hay estado global.
package breaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/dropDatabas3/authgate/internal/domain/autherr"
	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/observability/tracing"
)

// Config son los umbrales compartidos por todos los destinos del registry.
type Config struct {
	// ErrorThresholdPercent: porcentaje de fallas que abre el breaker.
	ErrorThresholdPercent int
	// VolumeThreshold: mínimo de llamadas en la ventana antes de evaluar el porcentaje.
	VolumeThreshold int
	// RollingWindow: cada cuánto se reinician los contadores en estado Closed.
	RollingWindow time.Duration
	// ResetTimeout: tiempo en Open antes de pasar a HalfOpen.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests: llamadas de prueba permitidas en HalfOpen.
	HalfOpenMaxRequests int
}

func DefaultConfig() Config {
	return Config{
		ErrorThresholdPercent: 50,
		VolumeThreshold:       5,
		RollingWindow:         10 * time.Second,
		ResetTimeout:          30 * time.Second,
		HalfOpenMaxRequests:   1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ErrorThresholdPercent <= 0 || c.ErrorThresholdPercent > 100 {
		c.ErrorThresholdPercent = d.ErrorThresholdPercent
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = d.VolumeThreshold
	}
	if c.RollingWindow <= 0 {
		c.RollingWindow = d.RollingWindow
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = d.HalfOpenMaxRequests
	}
	return c
}

// Registry crea los breakers de forma lazy, uno por destino, y los conserva
// durante la vida del proceso. El mutex protege solo el mapa; nunca se sostiene durante I/O.
type Registry struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		log:      logger.Named("breaker"),
		breakers: map[string]*gobreaker.CircuitBreaker[any]{},
	}
}

func (r *Registry) get(destination string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[destination]; ok {
		return cb
	}
	var cb *gobreaker.CircuitBreaker[any]
	st := r.settings(destination)
	st.IsSuccessful = func(err error) bool {
		if errors.Is(err, context.Canceled) {
			// el llamador se fue: no dice nada del upstream. En Closed no suma fallas;
			// en HalfOpen la prueba no vale y el breaker vuelve a Open.
			return cb.State() != gobreaker.StateHalfOpen
		}
		return countsAsSuccess(err)
	}
	cb = gobreaker.NewCircuitBreaker[any](st)
	r.breakers[destination] = cb
	metrics.BreakerState.WithLabelValues(destination).Set(stateValue(gobreaker.StateClosed))
	return cb
}

func (r *Registry) settings(destination string) gobreaker.Settings {
	cfg := r.cfg
	return gobreaker.Settings{
		Name:        destination,
		MaxRequests: uint32(cfg.HalfOpenMaxRequests),
		Interval:    cfg.RollingWindow,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < uint32(cfg.VolumeThreshold) {
				return false
			}
			return uint64(c.TotalFailures)*100 >= uint64(c.Requests)*uint64(cfg.ErrorThresholdPercent)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
			fields := []zap.Field{logger.Destination(name), zap.String("from", from.String()), logger.BreakerState(to.String())}
			if to == gobreaker.StateOpen {
				r.log.Warn("circuit breaker opened", fields...)
				return
			}
			r.log.Info("circuit breaker state change", fields...)
		},
	}
}

// countsAsSuccess: un error del dominio (4xx de la taxonomía) significa que el upstream
// respondió bien. Solo las fallas de infraestructura cuentan para abrir el breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var ae *autherr.Error
	if errors.As(err, &ae) {
		return ae.Kind.IsDomain()
	}
	return false
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Fire ejecuta action a través del breaker de destination.
//
// Breaker abierto (o sin cupo de prueba en HalfOpen): devuelve ServiceUnavailable
// nombrando el destino, sin invocar action. Si el llamador ya canceló ctx no se
// invoca action ni se toca el breaker. En cualquier otro caso devuelve el
// resultado o el error de action sin modificar.
func Fire[T any](ctx context.Context, r *Registry, destination string, action func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracing.Tracer("authgate/breaker").Start(ctx, "breaker.fire")
	defer span.End()
	span.SetAttributes(attribute.String("breaker.destination", destination))

	var zero T
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return zero, err
	}
	cb := r.get(destination)
	out, err := cb.Execute(func() (any, error) {
		v, err := action(ctx)
		return v, err
	})

	outcome := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected"
		err = autherr.Unavailable(destination)
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	case !countsAsSuccess(err):
		outcome = "failure"
	}
	metrics.BreakerCalls.WithLabelValues(destination, outcome).Inc()
	span.SetAttributes(
		attribute.String("breaker.outcome", outcome),
		attribute.String("breaker.state", cb.State().String()),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	if out == nil {
		return zero, err
	}
	return out.(T), err
}

// Status es la foto de un breaker para /breakers.
type Status struct {
	Destination          string `json:"destination"`
	State                string `json:"state"`
	Requests             uint32 `json:"requests"`
	TotalFailures        uint32 `json:"totalFailures"`
	ConsecutiveFailures  uint32 `json:"consecutiveFailures"`
	ConsecutiveSuccesses uint32 `json:"consecutiveSuccesses"`
}

// State devuelve el estado actual del destino; sin breaker creado es Closed.
func (r *Registry) State(destination string) gobreaker.State {
	r.mu.Lock()
	cb, ok := r.breakers[destination]
	r.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// Snapshot lista todos los breakers ordenados por destino.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	cbs := make([]*gobreaker.CircuitBreaker[any], 0, len(r.breakers))
	for _, cb := range r.breakers {
		cbs = append(cbs, cb)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(cbs))
	for _, cb := range cbs {
		c := cb.Counts()
		out = append(out, Status{
			Destination:          cb.Name(),
			State:                cb.State().String(),
			Requests:             c.Requests,
			TotalFailures:        c.TotalFailures,
			ConsecutiveFailures:  c.ConsecutiveFailures,
			ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Destination < out[j].Destination })
	return out
}
