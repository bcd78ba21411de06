// Package metrics define las métricas Prometheus del servicio de auth y del gateway.
// Vive en un paquete aparte para que http, services y breaker lo importen sin ciclos.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Requests en vuelo por método y ruta",
	}, []string{"method", "path"})

	// AuthOperations cuenta operaciones del motor de tokens por resultado.
	// op: login|verify_2fa|setup_2fa|refresh|logout|revoke_all; result: ok|<ERROR_CODE>
	AuthOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Operaciones de autenticación por resultado",
	}, []string{"op", "result"})

	// RateLimited cuenta requests rechazadas por el limiter.
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limited_total",
		Help: "Requests rechazadas por rate limit",
	}, []string{"scope"})

	// TCPMessages cuenta mensajes del canal TCP por pattern y resultado.
	TCPMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tcp_messages_total",
		Help: "Mensajes procesados en el canal TCP",
	}, []string{"pattern", "result"})

	// BreakerState: 0 closed, 1 half-open, 2 open.
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Estado del circuit breaker por destino (0=closed, 1=half-open, 2=open)",
	}, []string{"destination"})

	// BreakerCalls: outcome success|failure|rejected|canceled.
	BreakerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_calls_total",
		Help: "Llamadas a través del circuit breaker por resultado",
	}, []string{"destination", "outcome"})

	UpstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_request_duration_seconds",
		Help:    "Latencia de las llamadas del gateway al upstream",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"destination"})
)

var (
	registerOnce sync.Once
	registerErr  error
)

// Register registra todas las métricas (una sola vez) y devuelve el handler de /metrics.
func Register(reg prometheus.Registerer, extra ...prometheus.Collector) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerOnce.Do(func() {
		for _, c := range []prometheus.Collector{
			HTTPRequestsTotal, HTTPRequestDuration, HTTPInflight,
			AuthOperations, RateLimited, TCPMessages,
			BreakerState, BreakerCalls, UpstreamDuration,
		} {
			if err := registerCollector(reg, c); err != nil {
				registerErr = err
				return
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}
	for _, c := range extra {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return promhttp.Handler(), nil
}

// registerCollector registra el collector ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// RecordAuth registra el resultado de una operación de auth.
func RecordAuth(op, result string) {
	AuthOperations.WithLabelValues(op, result).Inc()
}

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE   = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// NormalizePath reemplaza segmentos dinámicos por :param para acotar la cardinalidad.
func NormalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	if clean == "" || clean == "/" {
		return "/"
	}
	var out []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	if uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) || tokenSegmentRE.MatchString(seg) {
		return true
	}
	_, err := strconv.Atoi(seg)
	return err == nil
}
