package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"chaptergate/internal/db"
	"chaptergate/internal/domain"
)

// PressButton increments the named counter and returns the new total.
func (r Repo) PressButton(ctx context.Context, name string, now time.Time) (int64, error) {
	var presses int64
	err := r.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `
INSERT INTO button_presses(name,presses,updated_at) VALUES ($1,1,$2)
ON CONFLICT(name) DO UPDATE SET presses=button_presses.presses+1, updated_at=excluded.updated_at
RETURNING presses`, name, now.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}
			return ErrNotFound
		}
		if err := rows.Scan(&presses); err != nil {
			return err
		}
		return rows.Err()
	})
	return presses, err
}

// ButtonPresses returns the counter for name; unknown counters are zero.
func (r Repo) ButtonPresses(ctx context.Context, name string) (int64, error) {
	var presses int64
	err := r.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `SELECT presses FROM button_presses WHERE name=$1`, name)
		if err != nil {
			return err
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&presses); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	return presses, err
}

// ListButtons returns every counter that has been pressed at least once.
func (r Repo) ListButtons(ctx context.Context) ([]domain.ButtonCount, error) {
	var res []domain.ButtonCount
	err := r.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `SELECT name,presses FROM button_presses ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var b domain.ButtonCount
			if err := rows.Scan(&b.Name, &b.Presses); err != nil {
				return err
			}
			res = append(res, b)
		}
		return rows.Err()
	})
	return res, err
}

// BanIPConn records ip as banned. Re-banning updates the reason.
func (r Repo) BanIPConn(ctx context.Context, conn db.Conn, ip, reason string, now time.Time) error {
	_, err := conn.Exec(ctx, `
INSERT INTO banned_ips(ip,reason,created_at) VALUES ($1,$2,$3)
ON CONFLICT(ip) DO UPDATE SET reason=excluded.reason`,
		strings.TrimSpace(ip), nullable(reason), now.UTC().Format(time.RFC3339))
	return err
}

// UnbanIPConn removes ip; ErrNotFound when it was not banned.
func (r Repo) UnbanIPConn(ctx context.Context, conn db.Conn, ip string) error {
	n, err := conn.Exec(ctx, `DELETE FROM banned_ips WHERE ip=$1`, strings.TrimSpace(ip))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsBanned reports whether ip is on the ban list.
func (r Repo) IsBanned(ctx context.Context, ip string) (bool, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return false, nil
	}
	var banned bool
	err := r.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `SELECT 1 FROM banned_ips WHERE ip=$1`, ip)
		if err != nil {
			return err
		}
		defer rows.Close()
		banned = rows.Next()
		return rows.Err()
	})
	return banned, err
}

// ListBans returns banned ips, newest first.
func (r Repo) ListBans(ctx context.Context) ([]domain.BannedIP, error) {
	var res []domain.BannedIP
	err := r.WithConn(ctx, func(conn db.Conn) error {
		rows, err := conn.Query(ctx, `SELECT ip,reason,created_at FROM banned_ips ORDER BY created_at DESC, ip`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var b domain.BannedIP
			var reason sql.NullString
			if err := rows.Scan(&b.IP, &reason, &b.CreatedAt); err != nil {
				return err
			}
			if reason.Valid {
				b.Reason = reason.String
			}
			res = append(res, b)
		}
		return rows.Err()
	})
	return res, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
