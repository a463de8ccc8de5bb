package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrUndefinedTable marks a query against a table that has not been created.
var ErrUndefinedTable = errors.New("undefined table")

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Rows is the cursor returned by Conn.Query.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Conn is one acquired store connection. Queries use $1..$n placeholders.
// Release must be called exactly once on every path.
type Conn interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Release()
}

// Pool hands out connections.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Dialect() string
	Close()
}

type Config struct {
	Driver    string
	DSN       string
	Workspace string
}

const defaultDBName = "chaptergate.db"

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".chaptergate", defaultDBName)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".chaptergate")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Path returns the sqlite db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}

// Open returns a pool for the configured driver. Postgres requires a DSN;
// sqlite defaults to a file in the workspace.
func Open(ctx context.Context, cfg Config) (Pool, error) {
	switch cfg.Driver {
	case "", DialectSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
				return nil, err
			}
			dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dbPath(cfg.Workspace))
		}
		return OpenSQLite(dsn)
	case DialectPostgres:
		if cfg.DSN == "" {
			return nil, errors.New("postgres driver requires a dsn")
		}
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}
