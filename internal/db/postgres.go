package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// undefinedTableCode is SQLSTATE 42P01.
const undefinedTableCode = "42P01"

type pgPool struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pgx pool. Statement timeouts are left to the
// server and the caller's context.
func OpenPostgres(ctx context.Context, dsn string) (Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &pgPool{pool: pool}, nil
}

func (p *pgPool) Dialect() string { return DialectPostgres }

func (p *pgPool) Close() { p.pool.Close() }

func (p *pgPool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgConn{c: c}, nil
}

type pgConn struct {
	c *pgxpool.Conn
}

func (c *pgConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.c.Query(ctx, query, args...)
	if err != nil {
		return nil, pgErr(err)
	}
	return &pgRows{Rows: rows}, nil
}

func (c *pgConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.c.Exec(ctx, query, args...)
	if err != nil {
		return 0, pgErr(err)
	}
	return tag.RowsAffected(), nil
}

func (c *pgConn) Release() { c.c.Release() }

type pgRows struct {
	pgx.Rows
}

func (r *pgRows) Err() error { return pgErr(r.Rows.Err()) }

func pgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode {
		return fmt.Errorf("%w: %v", ErrUndefinedTable, err)
	}
	return err
}
