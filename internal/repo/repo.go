package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chaptergate/internal/db"
	"chaptergate/internal/domain"
)

// Repo issues parameterized queries against the store. Identifiers reaching
// SQL are either bind parameters or come from fixed allow-lists.
type Repo struct {
	Pool db.Pool
}

var ErrNotFound = errors.New("not found")

// WithConn acquires a connection for the duration of fn and always releases it.
func (r Repo) WithConn(ctx context.Context, fn func(db.Conn) error) error {
	conn, err := r.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

// ActRows returns the stored act rows keyed by id. Acts without a row are
// absent from the map.
func (r Repo) ActRows(ctx context.Context) (map[domain.ActID]domain.Act, error) {
	res := map[domain.ActID]domain.Act{}
	err := r.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `SELECT id,state,updated_at FROM acts`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var a domain.Act
			var id, state string
			if err := rows.Scan(&id, &state, &a.UpdatedAt); err != nil {
				return err
			}
			a.ID = domain.ActID(id)
			a.State = domain.ActState(state)
			res[a.ID] = a
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ActStateConn reads one act on an acquired connection.
func (r Repo) ActStateConn(ctx context.Context, conn db.Conn, id domain.ActID) (domain.ActState, error) {
	rows, err := conn.Query(ctx, `SELECT state FROM acts WHERE id=$1`, string(id))
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", err
		}
		return "", ErrNotFound
	}
	var state string
	if err := rows.Scan(&state); err != nil {
		return "", err
	}
	return domain.ActState(state), rows.Err()
}

// ActState reads one act.
func (r Repo) ActState(ctx context.Context, id domain.ActID) (domain.ActState, error) {
	var state domain.ActState
	err := r.WithConn(ctx, func(conn db.Conn) error {
		var err error
		state, err = r.ActStateConn(ctx, conn, id)
		return err
	})
	return state, err
}

// SetActStateConn upserts the act row.
func (r Repo) SetActStateConn(ctx context.Context, conn db.Conn, id domain.ActID, state domain.ActState, now time.Time) error {
	_, err := conn.Exec(ctx, `
INSERT INTO acts(id,state,updated_at) VALUES ($1,$2,$3)
ON CONFLICT(id) DO UPDATE SET state=excluded.state, updated_at=excluded.updated_at`,
		string(id), string(state), now.UTC().Format(time.RFC3339))
	return err
}

// Chapters lists chapter statuses.
func (r Repo) Chapters(ctx context.Context) ([]domain.Chapter, error) {
	var res []domain.Chapter
	err := r.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `SELECT id,status,updated_at FROM chapters ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c domain.Chapter
			if err := rows.Scan(&c.ID, &c.Status, &c.UpdatedAt); err != nil {
				return err
			}
			res = append(res, c)
		}
		return rows.Err()
	})
	return res, err
}

// SetChapterStatusConn upserts a chapter status.
func (r Repo) SetChapterStatusConn(ctx context.Context, conn db.Conn, id, status string, now time.Time) error {
	_, err := conn.Exec(ctx, `
INSERT INTO chapters(id,status,updated_at) VALUES ($1,$2,$3)
ON CONFLICT(id) DO UPDATE SET status=excluded.status, updated_at=excluded.updated_at`,
		id, status, now.UTC().Format(time.RFC3339))
	return err
}

// EventsAfter returns up to limit events with seq greater than after.
func (r Repo) EventsAfter(ctx context.Context, after int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var res []domain.Event
	err := r.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `
SELECT seq,id,ts,type,entity_kind,entity_id,actor_id,payload_json
FROM events WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e domain.Event
			var entityID sql.NullString
			if err := rows.Scan(&e.Seq, &e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
				return err
			}
			if entityID.Valid {
				e.EntityID = entityID.String
			}
			res = append(res, e)
		}
		return rows.Err()
	})
	return res, err
}

// LatestEventSeq returns the highest event seq, or 0 when there are none.
func (r Repo) LatestEventSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`)
		if err != nil {
			return err
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&seq); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	return seq, err
}
