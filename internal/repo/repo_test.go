package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"chaptergate/internal/db"
	"chaptergate/internal/domain"
	"chaptergate/internal/events"
	"chaptergate/internal/migrate"
	"chaptergate/internal/repo"
)

var now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newRepo(t *testing.T, migrated bool) repo.Repo {
	t.Helper()
	ctx := context.Background()
	pool, err := db.Open(ctx, db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(pool.Close)
	if migrated {
		if err := migrate.Migrate(ctx, pool); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	return repo.Repo{Pool: pool}
}

func TestActRowsMissingTable(t *testing.T) {
	r := newRepo(t, false)
	_, err := r.ActRows(context.Background())
	if !errors.Is(err, db.ErrUndefinedTable) {
		t.Fatalf("expected ErrUndefinedTable, got %v", err)
	}
}

func TestProvisionAndSetActState(t *testing.T) {
	r := newRepo(t, true)
	ctx := context.Background()
	created, err := migrate.Provision(ctx, r.Pool, now)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if created != len(domain.Acts) {
		t.Fatalf("created %d rows", created)
	}
	again, err := migrate.Provision(ctx, r.Pool, now)
	if err != nil || again != 0 {
		t.Fatalf("re-provision created %d rows, err %v", again, err)
	}
	err = r.WithConn(ctx, func(conn db.Conn) error {
		return r.SetActStateConn(ctx, conn, domain.ActIV, domain.ActReleased, now)
	})
	if err != nil {
		t.Fatalf("set state: %v", err)
	}
	state, err := r.ActState(ctx, domain.ActIV)
	if err != nil || state != domain.ActReleased {
		t.Fatalf("state = %s, %v", state, err)
	}
	rows, err := r.ActRows(ctx)
	if err != nil {
		t.Fatalf("act rows: %v", err)
	}
	if len(rows) != len(domain.Acts) || rows[domain.ActI].State != domain.ActNotReleased {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestActStateNotFound(t *testing.T) {
	r := newRepo(t, true)
	if _, err := r.ActState(context.Background(), domain.ActX); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	r := newRepo(t, true)
	if err := migrate.Migrate(context.Background(), r.Pool); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestButtonCounters(t *testing.T) {
	r := newRepo(t, true)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		n, err := r.PressButton(ctx, "bell", now)
		if err != nil {
			t.Fatalf("press: %v", err)
		}
		if n != int64(i) {
			t.Fatalf("press %d returned %d", i, n)
		}
	}
	n, err := r.ButtonPresses(ctx, "do-not-press")
	if err != nil || n != 0 {
		t.Fatalf("untouched counter = %d, %v", n, err)
	}
	list, err := r.ListButtons(ctx)
	if err != nil || len(list) != 1 || list[0].Presses != 3 {
		t.Fatalf("list = %+v, %v", list, err)
	}
}

func TestBans(t *testing.T) {
	r := newRepo(t, true)
	ctx := context.Background()
	err := r.WithConn(ctx, func(conn db.Conn) error {
		return r.BanIPConn(ctx, conn, " 10.0.0.1 ", "spam", now)
	})
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	banned, err := r.IsBanned(ctx, "10.0.0.1")
	if err != nil || !banned {
		t.Fatalf("expected banned, got %v %v", banned, err)
	}
	if banned, _ := r.IsBanned(ctx, "10.0.0.2"); banned {
		t.Fatalf("unexpected ban")
	}
	bans, err := r.ListBans(ctx)
	if err != nil || len(bans) != 1 || bans[0].Reason != "spam" {
		t.Fatalf("bans = %+v, %v", bans, err)
	}
	err = r.WithConn(ctx, func(conn db.Conn) error { return r.UnbanIPConn(ctx, conn, "10.0.0.1") })
	if err != nil {
		t.Fatalf("unban: %v", err)
	}
	err = r.WithConn(ctx, func(conn db.Conn) error { return r.UnbanIPConn(ctx, conn, "10.0.0.1") })
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventsAfter(t *testing.T) {
	r := newRepo(t, true)
	ctx := context.Background()
	w := events.Writer{Now: func() time.Time { return now }}
	err := r.WithConn(ctx, func(conn db.Conn) error {
		for _, id := range []string{"I", "II", "III"} {
			if err := w.Append(ctx, conn, events.TypeActAdvanced, "act", id, "", events.EventPayload{"to": "released"}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	first, err := r.EventsAfter(ctx, 0, 2)
	if err != nil || len(first) != 2 {
		t.Fatalf("first page = %d, %v", len(first), err)
	}
	rest, err := r.EventsAfter(ctx, first[1].Seq, 10)
	if err != nil || len(rest) != 1 || rest[0].EntityID != "III" || rest[0].ActorID != "system" {
		t.Fatalf("rest = %+v, %v", rest, err)
	}
}
