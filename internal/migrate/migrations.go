package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"chaptergate/internal/db"
	"chaptergate/internal/domain"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var migrationsFS embed.FS

type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

func loadMigrations(dialect string) ([]Migration, error) {
	dir := "sql/" + dialect
	files, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("no migrations for dialect %s: %w", dialect, err)
	}
	var migrations []Migration
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := migrationsFS.ReadFile(dir + "/" + f.Name())
		if err != nil {
			return nil, err
		}
		var v int
		_, err = fmt.Sscanf(f.Name(), "%d_", &v)
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", f.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: v,
			Name:    f.Name(),
			UpSQL:   string(data),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrate applies embedded migrations for the pool's dialect in order.
func Migrate(ctx context.Context, pool db.Pool) error {
	migrations, err := loadMigrations(pool.Dialect())
	if err != nil {
		return err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	currentVersion, found, err := readVersion(ctx, conn)
	if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	if !found {
		if _, err := conn.Exec(ctx, `INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		if _, err := conn.Exec(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := conn.Exec(ctx, `UPDATE schema_version SET version=$1`, m.Version); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
		currentVersion = m.Version
	}
	return nil
}

func readVersion(ctx context.Context, conn db.Conn) (int, bool, error) {
	rows, err := conn.Query(ctx, `SELECT version FROM schema_version LIMIT 1`)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, false, rows.Err()
	}
	var v int
	if err := rows.Scan(&v); err != nil {
		return 0, false, err
	}
	return v, true, rows.Err()
}

// Provision inserts a not_released row for every act that has none.
// Existing rows keep their state.
func Provision(ctx context.Context, pool db.Pool, now time.Time) (int, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()
	ts := now.UTC().Format(time.RFC3339)
	created := 0
	for _, id := range domain.Acts {
		n, err := conn.Exec(ctx, `INSERT INTO acts(id,state,updated_at) VALUES ($1,$2,$3) ON CONFLICT(id) DO NOTHING`,
			string(id), string(domain.ActNotReleased), ts)
		if err != nil {
			return created, fmt.Errorf("provision act %s: %w", id, err)
		}
		created += int(n)
	}
	return created, nil
}
