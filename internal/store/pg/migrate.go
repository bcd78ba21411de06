package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID es la clave del advisory lock que serializa migraciones
// entre réplicas que arrancan a la vez.
const migrationLockID int64 = 0x61757468676174 // "authgat"

// Migrate aplica los *_up.sql de fsys que todavía no figuran en schema_migrations.
// Cada archivo corre en su propia transacción. Retorna cuántos se aplicaron.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS) (int, error) {
	return runMigrations(ctx, s.pool, fsys)
}

// Rollback ejecuta los *_down.sql en orden inverso (steps <= 0 significa todos).
func (s *Store) Rollback(ctx context.Context, fsys fs.FS, steps int) (int, error) {
	files, err := listSQL(fsys, "_down.sql")
	if err != nil {
		return 0, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	if steps > 0 && steps < len(files) {
		files = files[:steps]
	}
	var n int
	err = withMigrationLock(ctx, s.pool, func(ctx context.Context) error {
		for _, f := range files {
			b, err := fs.ReadFile(fsys, f)
			if err != nil {
				return err
			}
			if _, err := s.pool.Exec(ctx, string(b)); err != nil {
				return fmt.Errorf("exec %s: %w", f, err)
			}
			up := strings.TrimSuffix(f, "_down.sql") + "_up.sql"
			// la tabla de versiones puede no existir si el down borró todo
			_, _ = s.pool.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, up)
			n++
		}
		return nil
	})
	return n, err
}

func withMigrationLock(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "select pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "select pg_advisory_unlock($1)", migrationLockID)
	}()
	return fn(ctx)
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) (int, error) {
	var applied int
	err := withMigrationLock(ctx, pool, func(ctx context.Context) error {
		if _, err := pool.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`); err != nil {
			return fmt.Errorf("ensure schema_migrations: %w", err)
		}

		rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
		if err != nil {
			return fmt.Errorf("query applied migrations: %w", err)
		}
		done := map[string]bool{}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return err
			}
			done[v] = true
		}
		rows.Close()

		files, err := listSQL(fsys, "_up.sql")
		if err != nil {
			return err
		}
		for _, f := range files {
			if done[f] {
				continue
			}
			b, err := fs.ReadFile(fsys, f)
			if err != nil {
				return err
			}
			tx, err := pool.Begin(ctx)
			if err != nil {
				return fmt.Errorf("begin tx: %w", err)
			}
			if _, err := tx.Exec(ctx, string(b)); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("exec %s: %w", f, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, f); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("record version %s: %w", f, err)
			}
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("commit tx: %w", err)
			}
			applied++
		}
		return nil
	})
	return applied, err
}

func listSQL(fsys fs.FS, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
