package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chaptergate/internal/db"
	"chaptergate/internal/domain"
	"chaptergate/internal/events"
	"chaptergate/internal/repo"
)

// Outcome selects the successor of a released act.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

var (
	ErrUnknownAct     = errors.New("unknown act")
	ErrUnknownOutcome = errors.New("unknown outcome")
	ErrUnknownState   = errors.New("unknown act state")
)

// actTransitions is the only way an act changes state. Terminal states map
// to themselves.
var actTransitions = map[domain.ActState]map[Outcome]domain.ActState{
	domain.ActNotReleased: {OutcomeSuccess: domain.ActReleased, OutcomeFailure: domain.ActReleased},
	domain.ActReleased:    {OutcomeSuccess: domain.ActSucceeded, OutcomeFailure: domain.ActFailed},
	domain.ActSucceeded:   {OutcomeSuccess: domain.ActSucceeded, OutcomeFailure: domain.ActSucceeded},
	domain.ActFailed:      {OutcomeSuccess: domain.ActFailed, OutcomeFailure: domain.ActFailed},
}

// ParseOutcome accepts "success", "failure" or empty (success).
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case "", OutcomeSuccess:
		return OutcomeSuccess, nil
	case OutcomeFailure:
		return OutcomeFailure, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownOutcome, s)
}

// NextActState looks up the successor of from.
func NextActState(from domain.ActState, outcome Outcome) (domain.ActState, error) {
	next, ok := actTransitions[from]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownState, from)
	}
	to, ok := next[outcome]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownOutcome, outcome)
	}
	return to, nil
}

// ActStates returns every act's state. Acts without a row, and all acts when
// the acts table does not exist yet, read as not_released.
func (e Engine) ActStates(ctx context.Context) (map[domain.ActID]domain.ActState, error) {
	res := make(map[domain.ActID]domain.ActState, len(domain.Acts))
	for _, id := range domain.Acts {
		res[id] = domain.ActNotReleased
	}
	rows, err := e.Repo.ActRows(ctx)
	if err != nil {
		if errors.Is(err, db.ErrUndefinedTable) {
			return res, nil
		}
		return nil, fmt.Errorf("fetch act states: %w", err)
	}
	for id, row := range rows {
		if _, known := res[id]; !known {
			continue
		}
		res[id] = e.readableState(id, row.State)
	}
	return res, nil
}

// Acts returns the catalog view of every act with its current state.
func (e Engine) Acts(ctx context.Context) ([]domain.Act, error) {
	states, err := e.ActStates(ctx)
	if err != nil {
		return nil, err
	}
	acts := make([]domain.Act, 0, len(domain.Acts))
	for _, id := range domain.Acts {
		a := domain.Act{ID: id, State: states[id]}
		if e.Config != nil {
			a.Title = e.Config.Acts[id].Title
			a.Timed = e.Config.TimedAct(id)
		}
		acts = append(acts, a)
	}
	return acts, nil
}

// ActState returns one act's state with the same defaults as ActStates.
func (e Engine) ActState(ctx context.Context, id domain.ActID) (domain.ActState, error) {
	state, err := e.Repo.ActState(ctx, id)
	switch {
	case err == nil:
		return e.readableState(id, state), nil
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, db.ErrUndefinedTable):
		return domain.ActNotReleased, nil
	default:
		return "", fmt.Errorf("fetch act state: %w", err)
	}
}

// readableState fails closed on values outside the enum.
func (e Engine) readableState(id domain.ActID, s domain.ActState) domain.ActState {
	if s.Valid() {
		return s
	}
	e.logger().Printf("WARNING: act %s has unknown stored state %q; reading as %s", id, s, domain.ActNotReleased)
	return domain.ActNotReleased
}

// AdvanceAct moves an act one step along the transition table.
//
// The read and the write are two statements on one connection, not a
// transaction: two concurrent advances of the same act can both read the
// same state and one step is lost. Progression is driven by a single
// operator so this is accepted.
func (e Engine) AdvanceAct(ctx context.Context, id domain.ActID, outcome Outcome, actorID string) (domain.Transition, error) {
	parsed, err := domain.ParseActID(string(id))
	if err != nil {
		return domain.Transition{}, fmt.Errorf("%w %q", ErrUnknownAct, id)
	}
	id = parsed
	var tr domain.Transition
	err = e.Repo.WithConn(ctx, func(conn db.Conn) error {
		from, err := e.Repo.ActStateConn(ctx, conn, id)
		if errors.Is(err, repo.ErrNotFound) {
			from = domain.ActNotReleased
		} else if err != nil {
			return err
		}
		to, err := NextActState(from, outcome)
		if err != nil {
			return err
		}
		tr = domain.Transition{Act: id, From: from, To: to, Outcome: string(outcome)}
		if to == from {
			return nil
		}
		if err := e.Repo.SetActStateConn(ctx, conn, id, to, e.now()); err != nil {
			return fmt.Errorf("write act state: %w", err)
		}
		if err := e.events().Append(ctx, conn, events.TypeActAdvanced, "act", string(id), actorID, events.EventPayload{
			"from":    string(from),
			"to":      string(to),
			"outcome": string(outcome),
		}); err != nil {
			e.logger().Printf("act %s advanced to %s but event append failed: %v", id, to, err)
		}
		return nil
	})
	if err != nil {
		return domain.Transition{}, err
	}
	return tr, nil
}

// SetChapterStatus writes an allow-listed status for a chapter.
func (e Engine) SetChapterStatus(ctx context.Context, chapterID, status, actorID string) (domain.Chapter, error) {
	if !domain.ValidChapterStatus(status) {
		return domain.Chapter{}, fmt.Errorf("invalid chapter status %q", status)
	}
	id, err := domain.ParseActID(chapterID)
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("invalid chapter id %q", chapterID)
	}
	now := e.now()
	err = e.Repo.WithConn(ctx, func(conn db.Conn) error {
		if err := e.Repo.SetChapterStatusConn(ctx, conn, string(id), status, now); err != nil {
			return err
		}
		return e.events().Append(ctx, conn, events.TypeChapterStatus, "chapter", string(id), actorID, events.EventPayload{"status": status})
	})
	if err != nil {
		return domain.Chapter{}, err
	}
	return domain.Chapter{ID: string(id), Status: status, UpdatedAt: now.UTC().Format(time.RFC3339)}, nil
}

// Chapters lists stored chapter statuses; none before provisioning.
func (e Engine) Chapters(ctx context.Context) ([]domain.Chapter, error) {
	chapters, err := e.Repo.Chapters(ctx)
	if errors.Is(err, db.ErrUndefinedTable) {
		return []domain.Chapter{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch chapters: %w", err)
	}
	if chapters == nil {
		chapters = []domain.Chapter{}
	}
	return chapters, nil
}
