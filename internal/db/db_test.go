package db

import (
	"context"
	"errors"
	"testing"
)

func TestRebind(t *testing.T) {
	got := rebind(`SELECT a FROM t WHERE x=$1 AND y=$2 OR z=$10`)
	want := `SELECT a FROM t WHERE x=?1 AND y=?2 OR z=?10`
	if got != want {
		t.Fatalf("rebind = %s", got)
	}
}

func TestSQLiteUndefinedTable(t *testing.T) {
	ctx := context.Background()
	pool, err := Open(ctx, Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer pool.Close()
	if pool.Dialect() != DialectSQLite {
		t.Fatalf("dialect = %s", pool.Dialect())
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer conn.Release()
	_, err = conn.Query(ctx, `SELECT id FROM missing WHERE id=$1`, "x")
	if !errors.Is(err, ErrUndefinedTable) {
		t.Fatalf("expected ErrUndefinedTable, got %v", err)
	}
}

func TestSQLiteQueryExec(t *testing.T) {
	ctx := context.Background()
	pool, err := Open(ctx, Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer pool.Close()
	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, `CREATE TABLE kv(k TEXT PRIMARY KEY, v TEXT NOT NULL)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	n, err := conn.Exec(ctx, `INSERT INTO kv(k,v) VALUES ($1,$2)`, "a", "1")
	if err != nil || n != 1 {
		t.Fatalf("insert: %d %v", n, err)
	}
	rows, err := conn.Query(ctx, `SELECT v FROM kv WHERE k=$1`, "a")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatalf("expected a row")
	}
	var v string
	if err := rows.Scan(&v); err != nil || v != "1" {
		t.Fatalf("scan: %q %v", v, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Open(context.Background(), Config{Driver: DialectPostgres}); err == nil {
		t.Fatalf("expected dsn error")
	}
}
