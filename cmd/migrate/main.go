package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/authgate/internal/config"
	"github.com/dropDatabas3/authgate/internal/store/mysql"
	"github.com/dropDatabas3/authgate/internal/store/pg"
	mysqlmigrations "github.com/dropDatabas3/authgate/migrations/mysql"
	pgmigrations "github.com/dropDatabas3/authgate/migrations/postgres"
)

// migrator es lo que comparten los stores SQL.
type migrator interface {
	Migrate(ctx context.Context, fsys fs.FS) (int, error)
	Rollback(ctx context.Context, fsys fs.FS, steps int) (int, error)
	Close() error
}

func main() {
	var (
		configPath = flag.String("config", "", "ruta a config.yaml (default: CONFIG_PATH o configs/config.yaml)")
		envFile    = flag.String("env-file", ".env", "ruta a .env")
	)
	flag.Parse()

	if *envFile != "" {
		_ = godotenv.Load(*envFile)
	}

	// Positional args: [action] [steps]
	action := "up"
	steps := 1
	args := flag.Args()
	if len(args) >= 1 && args[0] != "" {
		action = strings.ToLower(args[0])
	}
	if len(args) >= 2 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			steps = n
		}
	}

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	ctx := context.Background()
	m, fsys, err := open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer m.Close()

	switch action {
	case "up":
		n, err := m.Migrate(ctx, fsys)
		if err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		log.Printf("Up migrations completed (%d applied).", n)
	case "down":
		n, err := m.Rollback(ctx, fsys, steps)
		if err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		log.Printf("Down migrations completed (%d reverted).", n)
	default:
		log.Fatalf("unknown action %q. Use: up | down [steps]", action)
	}
}

func open(ctx context.Context, driver, dsn string) (migrator, fs.FS, error) {
	if dsn == "" {
		return nil, nil, fmt.Errorf("storage.dsn is required for driver %q", driver)
	}
	switch strings.ToLower(driver) {
	case "postgres", "pg":
		s, err := pg.Open(ctx, dsn, pg.Config{MaxConns: 2})
		if err != nil {
			return nil, nil, err
		}
		return s, pgmigrations.FS, nil
	case "mysql":
		s, err := mysql.Open(ctx, dsn, mysql.Config{MaxOpenConns: 2})
		if err != nil {
			return nil, nil, err
		}
		return s, mysqlmigrations.FS, nil
	default:
		return nil, nil, fmt.Errorf("driver %q has no migrations", driver)
	}
}
