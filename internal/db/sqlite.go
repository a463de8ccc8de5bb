package db

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

type sqlitePool struct {
	db *sql.DB
}

// OpenSQLite opens a database/sql pool on the modernc sqlite driver.
func OpenSQLite(dsn string) (Pool, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	conn.SetMaxOpenConns(1)
	return &sqlitePool{db: conn}, nil
}

func (p *sqlitePool) Dialect() string { return DialectSQLite }

func (p *sqlitePool) Close() { _ = p.db.Close() }

func (p *sqlitePool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqliteConn{c: c}, nil
}

type sqliteConn struct {
	c *sql.Conn
}

// rebind rewrites $n placeholders to sqlite's ?n form.
func rebind(query string) string {
	return placeholderRe.ReplaceAllString(query, "?$1")
}

func (c *sqliteConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.c.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, sqliteErr(err)
	}
	return &sqliteRows{rows: rows}, nil
}

func (c *sqliteConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.c.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, sqliteErr(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *sqliteConn) Release() { _ = c.c.Close() }

type sqliteRows struct {
	rows *sql.Rows
}

func (r *sqliteRows) Next() bool             { return r.rows.Next() }
func (r *sqliteRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqliteRows) Err() error             { return sqliteErr(r.rows.Err()) }
func (r *sqliteRows) Close()                 { _ = r.rows.Close() }

func sqliteErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %v", ErrUndefinedTable, err)
	}
	return err
}
