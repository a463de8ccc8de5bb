package domain

import (
	"fmt"
	"strings"
)

// ActID is a roman-numeral act identifier.
type ActID string

const (
	ActI    ActID = "I"
	ActII   ActID = "II"
	ActIII  ActID = "III"
	ActIV   ActID = "IV"
	ActV    ActID = "V"
	ActVI   ActID = "VI"
	ActVII  ActID = "VII"
	ActVIII ActID = "VIII"
	ActIX   ActID = "IX"
	ActX    ActID = "X"
)

// Acts lists every act in story order.
var Acts = []ActID{ActI, ActII, ActIII, ActIV, ActV, ActVI, ActVII, ActVIII, ActIX, ActX}

// ParseActID accepts a roman numeral in any case.
func ParseActID(s string) (ActID, error) {
	id := ActID(strings.ToUpper(strings.TrimSpace(s)))
	for _, a := range Acts {
		if a == id {
			return a, nil
		}
	}
	return "", fmt.Errorf("invalid act id %q", s)
}

// ActState is the lifecycle state of an act as stored.
type ActState string

const (
	ActNotReleased ActState = "not_released"
	ActReleased    ActState = "released"
	ActSucceeded   ActState = "succeeded"
	ActFailed      ActState = "failed"
)

// Valid reports whether s is one of the four known states.
func (s ActState) Valid() bool {
	switch s {
	case ActNotReleased, ActReleased, ActSucceeded, ActFailed:
		return true
	}
	return false
}

// Terminal reports whether no outcome moves the act any further.
func (s ActState) Terminal() bool {
	return s == ActSucceeded || s == ActFailed
}

// Chapter statuses allowed in the chapters table.
const (
	ChapterHidden   = "hidden"
	ChapterVisible  = "visible"
	ChapterArchived = "archived"
)

// ValidChapterStatus reports whether status is allow-listed.
func ValidChapterStatus(status string) bool {
	switch status {
	case ChapterHidden, ChapterVisible, ChapterArchived:
		return true
	}
	return false
}

type Act struct {
	ID        ActID    `json:"id"`
	Title     string   `json:"title,omitempty"`
	State     ActState `json:"state" enum:"not_released,released,succeeded,failed"`
	Timed     bool     `json:"timed,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty" format:"date-time"`
}

type Transition struct {
	Act     ActID    `json:"act"`
	From    ActState `json:"from"`
	To      ActState `json:"to"`
	Outcome string   `json:"outcome"`
}

type Chapter struct {
	ID        string `json:"id"`
	Status    string `json:"status" enum:"hidden,visible,archived"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type ButtonCount struct {
	Name    string `json:"name"`
	Presses int64  `json:"presses"`
}

type BannedIP struct {
	IP        string `json:"ip"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         string `json:"id"`
	Seq        int64  `json:"seq"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
