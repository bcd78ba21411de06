package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

const migrationLockName = "authgate:migrate"

// Migrate aplica los *_up.sql pendientes. MySQL no permite DDL transaccional,
// así que cada sentencia corre suelta y la versión se registra al final del archivo.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS) (int, error) {
	var applied int
	err := s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version VARCHAR(255) PRIMARY KEY,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`); err != nil {
			return fmt.Errorf("ensure schema_migrations: %w", err)
		}

		rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
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
			if err := execFile(ctx, conn, fsys, f); err != nil {
				return err
			}
			if _, err := conn.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, f); err != nil {
				return fmt.Errorf("record version %s: %w", f, err)
			}
			applied++
		}
		return nil
	})
	return applied, err
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
	err = s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		for _, f := range files {
			if err := execFile(ctx, conn, fsys, f); err != nil {
				return err
			}
			up := strings.TrimSuffix(f, "_down.sql") + "_up.sql"
			_, _ = conn.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, up)
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 30)`, migrationLockName).Scan(&got); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		return fmt.Errorf("migration lock: timeout waiting for %s", migrationLockName)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?)`, migrationLockName)
	}()
	return fn(conn)
}

func execFile(ctx context.Context, conn *sql.Conn, fsys fs.FS, name string) error {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	for _, stmt := range splitStatements(string(b)) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %s: %w", name, err)
		}
	}
	return nil
}

// splitStatements corta por ';'. Los archivos de migración no usan ';' dentro de literales.
func splitStatements(src string) []string {
	var out []string
	for _, s := range strings.Split(src, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
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
