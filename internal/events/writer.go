package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chaptergate/internal/db"
)

const (
	TypeActAdvanced   = "act.advanced"
	TypeChapterStatus = "chapter.status"
	TypeIPBanned      = "ip.banned"
	TypeIPUnbanned    = "ip.unbanned"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event on conn. The caller owns conn.
func (w Writer) Append(ctx context.Context, conn db.Conn, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = conn.Exec(ctx, `INSERT INTO events(id,ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		uuid.NewString(), ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
