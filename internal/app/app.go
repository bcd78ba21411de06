// Package app arma los procesos a partir de la configuración: el servicio de auth
// (HTTP + canal TCP) y el gateway (HTTP + proxy con circuit breaker).
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/authgate/internal/config"
	jwtx "github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

const (
	defaultShutdown   = 15 * time.Second
	defaultRateWindow = time.Minute
)

// runner es un servidor que atiende hasta que se cierra.
type runner struct {
	name     string
	addr     string
	serve    func() error
	shutdown func(ctx context.Context) error
	// closed es el error que serve devuelve tras un shutdown ordenado.
	closed error
}

// run levanta todos los runners y, cuando ctx termina, los apaga con timeout.
func run(ctx context.Context, log *zap.Logger, timeout time.Duration, runners []runner, closers []func() error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		r := r
		g.Go(func() error {
			log.Info("listening", logger.Component(r.name), logger.Addr(r.addr))
			if err := r.serve(); err != nil && !errors.Is(err, r.closed) {
				return fmt.Errorf("%s: %w", r.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		var errs []error
		for _, r := range runners {
			if err := r.shutdown(sctx); err != nil && !errors.Is(err, r.closed) {
				errs = append(errs, fmt.Errorf("%s shutdown: %w", r.name, err))
			}
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	for i := len(closers) - 1; i >= 0; i-- {
		if cerr := closers[i](); cerr != nil {
			log.Warn("close failed", logger.Err(cerr))
		}
	}
	return err
}

func httpRunner(name string, srv *http.Server) runner {
	return runner{
		name:     name,
		addr:     srv.Addr,
		serve:    srv.ListenAndServe,
		shutdown: srv.Shutdown,
		closed:   http.ErrServerClosed,
	}
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// loadKeys resuelve la fuente de claves: Secrets Manager si hay secret_id, si no PEMs.
// verifyOnly ignora la clave privada (gateway).
func loadKeys(ctx context.Context, cfg config.JWT, verifyOnly bool) (*jwtx.KeySet, error) {
	var src jwtx.KeySource
	if cfg.SecretID != "" {
		sm, err := jwtx.NewSecretsManagerSource(ctx, cfg.SecretID, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		src = sm
	} else {
		fs := jwtx.FileSource{
			PrivateKeyPath:         cfg.PrivateKeyPath,
			PublicKeyPath:          cfg.PublicKeyPath,
			PreviousPublicKeyPaths: cfg.PreviousPublicKeyPaths,
		}
		if verifyOnly {
			fs.PrivateKeyPath = ""
		}
		src = fs
	}
	return jwtx.LoadKeySet(ctx, src)
}

func signerOptions(cfg config.JWT) jwtx.Options {
	return jwtx.Options{
		Issuer:       cfg.Issuer,
		AccessTTL:    config.Duration(cfg.AccessTTL, jwtx.DefaultAccessTTL),
		RefreshTTL:   config.Duration(cfg.RefreshTTL, jwtx.DefaultRefreshTTL),
		TwoFactorTTL: config.Duration(cfg.TwoFactorTTL, jwtx.DefaultTwoFactorTTL),
	}
}
