// Package gate decides where a chapter request goes. Resolve is called once
// per request and returns one of a closed set of decisions, so pages never
// redirect to each other.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chaptergate/internal/config"
	"chaptergate/internal/cookie"
	"chaptergate/internal/domain"
)

// Kind is the closed set of gate outcomes.
type Kind string

const (
	Allow     Kind = "allow"
	Locked    Kind = "locked"
	NotYet    Kind = "not_yet"
	NotFound  Kind = "not_found"
	Failed    Kind = "failed"
	Canonical Kind = "canonical"
)

// Decision is the result of Resolve. Location is empty for Allow.
type Decision struct {
	Kind     Kind         `json:"decision" enum:"allow,locked,not_yet,not_found,failed,canonical"`
	Act      domain.ActID `json:"act,omitempty"`
	Location string       `json:"location,omitempty"`
}

// Redirect reports whether the decision sends the visitor elsewhere.
func (d Decision) Redirect() bool {
	return d.Kind != Allow
}

// StateSource reads the current state of one act.
type StateSource interface {
	ActState(ctx context.Context, id domain.ActID) (domain.ActState, error)
}

var idPrefixes = []string{"chapters", "chapter", "chap", "acts", "act"}

// NormalizeID maps variants such as "chapter-iv", "Act_IV" or "iv" to the
// act id. The second result is false when nothing valid remains.
func NormalizeID(raw string) (domain.ActID, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, "/")
	for _, p := range idPrefixes {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}
	s = strings.TrimLeft(s, "-_ ./")
	if s == "" {
		return "", false
	}
	id, err := domain.ParseActID(s)
	if err != nil {
		return "", false
	}
	return id, true
}

// HasPrerequisite reports whether set proves every prerequisite plaque. With
// no configured prerequisite any verified plaque counts.
func HasPrerequisite(cfg *config.Config, set cookie.UnlockedSet) bool {
	if cfg == nil || len(cfg.Prerequisite.Plaques) == 0 {
		return len(set) > 0
	}
	return set.HasAll(cfg.Prerequisite.Plaques)
}

// Request is one chapter lookup. Path is the URL path being served, empty
// when the decision is only queried.
type Request struct {
	Chapter string
	Path    string
}

var errNoConfig = errors.New("gate: config required")

// Resolver needs a non-nil Config.
type Resolver struct {
	Config *config.Config
}

// Resolve applies the gate rules in order. The prerequisite check runs before
// src is consulted, so visitors without it learn nothing about act state.
// Only a store failure or a missing config returns an error.
func (r Resolver) Resolve(ctx context.Context, req Request, visitor cookie.UnlockedSet, src StateSource) (Decision, error) {
	if r.Config == nil {
		return Decision{}, errNoConfig
	}
	pages := r.Config.Site.Pages
	id, ok := NormalizeID(req.Chapter)
	if !ok {
		return Decision{Kind: NotFound, Location: pages.NotFound}, nil
	}
	if !HasPrerequisite(r.Config, visitor) {
		return Decision{Kind: Locked, Location: pages.Locked}, nil
	}
	state, err := src.ActState(ctx, id)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve act %s: %w", id, err)
	}
	switch state {
	case domain.ActReleased:
		return Decision{Kind: Allow, Act: id}, nil
	case domain.ActFailed:
		if r.Config.TimedAct(id) {
			return Decision{Kind: Failed, Act: id, Location: pages.Failed}, nil
		}
		return r.canonical(req.Path, id), nil
	case domain.ActSucceeded:
		return r.canonical(req.Path, id), nil
	default:
		return Decision{Kind: NotYet, Act: id, Location: pages.NotYet}, nil
	}
}

// canonical collapses variant URLs to the act page. Only a request already
// serving that page is allowed.
func (r Resolver) canonical(path string, id domain.ActID) Decision {
	page := r.Config.ActPage(id)
	if path != "" && path == page {
		return Decision{Kind: Allow, Act: id}
	}
	return Decision{Kind: Canonical, Act: id, Location: page}
}
