// Package store elige el backend de persistencia (memory, postgres, mysql)
// y expone las dos vistas que consume el servicio de auth.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/authgate/internal/domain/repository"
	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/security/secretbox"
	"github.com/dropDatabas3/authgate/internal/store/memory"
	"github.com/dropDatabas3/authgate/internal/store/mysql"
	"github.com/dropDatabas3/authgate/internal/store/pg"
	mysqlmigrations "github.com/dropDatabas3/authgate/migrations/mysql"
	pgmigrations "github.com/dropDatabas3/authgate/migrations/postgres"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Store es lo que el resto del proceso ve de la persistencia.
type Store interface {
	Users() repository.UserRepository
	Tokens() repository.RefreshTokenRepository
	Ping(ctx context.Context) error
	Close() error
}

// Config selecciona y ajusta el driver.
type Config struct {
	Driver   string
	DSN      string
	MaxConns int
	// Migrate aplica las migraciones embebidas al abrir (postgres/mysql).
	Migrate bool
	// SecretKey, si no es vacía, cifra los secretos TOTP at-rest.
	SecretKey string
}

// Open conecta el driver configurado. El driver memory no necesita DSN.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		s = memory.New()
	case DriverPostgres, "pg":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store: %w: postgres requires a dsn", repository.ErrNoDatabase)
		}
		var ps *pg.Store
		ps, err = pg.Open(ctx, cfg.DSN, pg.Config{MaxConns: int32(cfg.MaxConns)})
		if err == nil && cfg.Migrate {
			if _, err = ps.Migrate(ctx, pgmigrations.FS); err != nil {
				ps.Close()
				err = fmt.Errorf("store: migrate: %w", err)
			}
		}
		s = ps
	case DriverMySQL:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store: %w: mysql requires a dsn", repository.ErrNoDatabase)
		}
		var ms *mysql.Store
		ms, err = mysql.Open(ctx, cfg.DSN, mysql.Config{MaxOpenConns: cfg.MaxConns})
		if err == nil && cfg.Migrate {
			if _, err = ms.Migrate(ctx, mysqlmigrations.FS); err != nil {
				ms.Close()
				err = fmt.Errorf("store: migrate: %w", err)
			}
		}
		s = ms
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.SecretKey != "" {
		box, err := secretbox.Parse(cfg.SecretKey)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("store: secret key: %w", err)
		}
		s = Sealed(s, box)
	}
	return s, nil
}

// Collectors devuelve las métricas propias del backend (pool de Postgres).
func Collectors(s Store) []prometheus.Collector {
	if ss, ok := s.(*sealedStore); ok {
		s = ss.Store
	}
	if ps, ok := s.(*pg.Store); ok {
		return []prometheus.Collector{metrics.NewPoolCollector(ps.Pool())}
	}
	return nil
}
