package engine

import (
	"context"
	"errors"
	"net"
	"strings"

	"chaptergate/internal/db"
	"chaptergate/internal/domain"
	"chaptergate/internal/events"
)

// BanIP adds ip to the ban list.
func (e Engine) BanIP(ctx context.Context, ip, reason, actorID string) (domain.BannedIP, error) {
	ip = strings.TrimSpace(ip)
	if net.ParseIP(ip) == nil {
		return domain.BannedIP{}, errors.New("invalid ip address")
	}
	now := e.now()
	err := e.Repo.WithConn(ctx, func(conn db.Conn) error {
		if err := e.Repo.BanIPConn(ctx, conn, ip, reason, now); err != nil {
			return err
		}
		return e.events().Append(ctx, conn, events.TypeIPBanned, "ip", ip, actorID, events.EventPayload{"reason": reason})
	})
	if err != nil {
		return domain.BannedIP{}, err
	}
	return domain.BannedIP{IP: ip, Reason: reason, CreatedAt: now.UTC().Format("2006-01-02T15:04:05Z")}, nil
}

// UnbanIP removes ip from the ban list.
func (e Engine) UnbanIP(ctx context.Context, ip, actorID string) error {
	ip = strings.TrimSpace(ip)
	return e.Repo.WithConn(ctx, func(conn db.Conn) error {
		if err := e.Repo.UnbanIPConn(ctx, conn, ip); err != nil {
			return err
		}
		return e.events().Append(ctx, conn, events.TypeIPUnbanned, "ip", ip, actorID, nil)
	})
}

// IsBanned reports whether ip may not use the answer endpoints.
func (e Engine) IsBanned(ctx context.Context, ip string) (bool, error) {
	banned, err := e.Repo.IsBanned(ctx, ip)
	if errors.Is(err, db.ErrUndefinedTable) {
		return false, nil
	}
	return banned, err
}
