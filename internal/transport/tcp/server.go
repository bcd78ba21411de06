package tcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dropDatabas3/authgate/internal/domain/autherr"
	httperrors "github.com/dropDatabas3/authgate/internal/http/errors"
	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

const (
	maxFrameSize       = 64 * 1024
	maxInflightPerConn = 32
	defaultTimeout     = 10 * time.Second
)

// ErrServerClosed lo devuelve Serve después de Shutdown.
var ErrServerClosed = errors.New("tcp: server closed")

// Server atiende conexiones con frames por línea. Cada conexión puede tener
// varios mensajes en vuelo; las respuestas se correlacionan por id.
type Server struct {
	handlers map[string]HandlerFunc
	timeout  time.Duration
	log      *zap.Logger

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	inflight sync.WaitGroup
}

// NewServer crea el server con los handlers por pattern.
func NewServer(handlers map[string]HandlerFunc) *Server {
	return &Server{
		handlers: handlers,
		timeout:  defaultTimeout,
		log:      logger.Named("tcp"),
		conns:    map[net.Conn]struct{}{},
	}
}

// ListenAndServe abre addr y atiende hasta Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve acepta conexiones de ln. Siempre devuelve un error no nil.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	s.log.Info("tcp channel listening", logger.Addr(ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return err
		}
		if !s.track(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		go s.serveConn(conn)
	}
}

// Shutdown deja de aceptar, corta las lecturas y espera los mensajes en vuelo.
// Si ctx vence antes, cierra las conexiones restantes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.conns {
		_ = c.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.inflight.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.inflight.Done()
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	log := s.log.With(logger.RemoteAddr(conn.RemoteAddr().String()))
	log.Debug("tcp connection opened")

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	enc := json.NewEncoder(conn)
	write := func(resp Response) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := enc.Encode(resp); err != nil {
			log.Debug("tcp write failed", logger.Err(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sem := semaphore.NewWeighted(maxInflightPerConn)

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxFrameSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			metrics.TCPMessages.WithLabelValues("invalid", autherr.BadInput.Code()).Inc()
			write(Response{Err: &ErrorBody{Code: autherr.BadInput.Code(), Message: "frame is not valid JSON"}})
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(req Request) {
			defer wg.Done()
			defer sem.Release(1)
			write(s.dispatch(ctx, log, req))
		}(req)
	}
	if err := sc.Err(); err != nil && !s.isClosed() {
		log.Debug("tcp read ended", logger.Err(err))
	}
	// las respuestas pendientes se escriben antes de cerrar
	wg.Wait()
	log.Debug("tcp connection closed")
}

func (s *Server) dispatch(ctx context.Context, log *zap.Logger, req Request) Response {
	start := time.Now()
	h, ok := s.handlers[req.Pattern]
	if !ok {
		metrics.TCPMessages.WithLabelValues("unknown", "PATTERN_NOT_FOUND").Inc()
		return Response{ID: req.ID, Err: &ErrorBody{
			Code:    "PATTERN_NOT_FOUND",
			Message: "no handler for pattern " + req.Pattern,
		}}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = logger.ToContext(ctx, log.With(logger.Pattern(req.Pattern), logger.RequestID(req.ID)))

	out, err := s.safeCall(ctx, h, req.Data)
	if err != nil {
		app := httperrors.FromError(err)
		metrics.TCPMessages.WithLabelValues(req.Pattern, app.Code).Inc()
		if autherr.KindOf(err) == autherr.Internal {
			log.Error("tcp message failed", logger.Pattern(req.Pattern), logger.Err(err))
		}
		return Response{ID: req.ID, Err: &ErrorBody{Code: app.Code, Message: app.Message}}
	}
	metrics.TCPMessages.WithLabelValues(req.Pattern, "ok").Inc()
	log.Debug("tcp message handled", logger.Pattern(req.Pattern), logger.Duration(time.Since(start)))
	return Response{ID: req.ID, Response: out}
}

// safeCall aísla panics del handler: un mensaje roto no tumba la conexión.
func (s *Server) safeCall(ctx context.Context, h HandlerFunc, data json.RawMessage) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = autherr.New(autherr.Internal, "panic in handler")
		}
	}()
	return h(ctx, data)
}
