package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"chaptergate/internal/cookie"
	"chaptergate/internal/domain"
	"chaptergate/internal/gate"
	"chaptergate/internal/repo"
)

const (
	PlaqueSolved   = "solved"
	PlaqueUnsolved = "unsolved"

	wrongAnswerMessage = "That is not what the plaque says."
)

// PlaqueResult is the outcome of a plaque attempt. Token is set only when OK.
type PlaqueResult struct {
	OK       bool
	Message  string
	Token    string
	Unlocked cookie.UnlockedSet
}

func (e Engine) cookieMaxAge() time.Duration {
	if e.Config == nil {
		return 0
	}
	return time.Duration(e.Config.Cookie.MaxAge) * time.Second
}

// Visitor returns the unlocked set carried by an auth cookie value.
// Invalid values read as an empty set.
func (e Engine) Visitor(token string) cookie.UnlockedSet {
	return e.Codec.Unlocked(token, e.cookieMaxAge(), e.now())
}

// HasPrerequisite reports whether the visitor solved every prerequisite plaque.
func (e Engine) HasPrerequisite(set cookie.UnlockedSet) bool {
	return gate.HasPrerequisite(e.Config, set)
}

// Gate resolves a chapter request for the visitor holding token.
func (e Engine) Gate(ctx context.Context, req gate.Request, token string) (gate.Decision, error) {
	return gate.Resolver{Config: e.Config}.Resolve(ctx, req, e.Visitor(token), e)
}

// SolvePlaque checks provided against the plaque's answer. On success it
// mints a token holding the union of the visitor's verified set and plaqueID.
// A wrong answer is not an error.
func (e Engine) SolvePlaque(plaqueID, provided, existingToken string) (PlaqueResult, error) {
	if !e.Verifier.ValidateKeyword(plaqueID, provided) {
		return PlaqueResult{OK: false, Message: wrongAnswerMessage}, nil
	}
	set := e.Visitor(existingToken).Add(plaqueID)
	token, err := e.Codec.MintUnlocked(set, e.now())
	if err != nil {
		return PlaqueResult{}, fmt.Errorf("mint auth token: %w", err)
	}
	res := PlaqueResult{OK: true, Token: token, Unlocked: set}
	if e.Config != nil {
		res.Message = e.Config.Plaques[plaqueID].Message
	}
	return res, nil
}

// PlaqueStatuses maps every configured plaque to solved or unsolved.
func (e Engine) PlaqueStatuses(token string) map[string]string {
	set := e.Visitor(token)
	ids := e.Verifier.PlaqueIDs()
	sort.Strings(ids)
	res := make(map[string]string, len(ids))
	for _, id := range ids {
		if set.Has(id) {
			res[id] = PlaqueSolved
		} else {
			res[id] = PlaqueUnsolved
		}
	}
	return res
}

// CheckKeyword probes numbered keyword number (1..6).
func (e Engine) CheckKeyword(number int, keyword string) bool {
	return e.Verifier.MatchNumbered(number, keyword)
}

// CheckStage validates a staged puzzle answer.
func (e Engine) CheckStage(scope string, stage int, answer string) bool {
	return e.Verifier.ValidateStageAnswer(scope, stage, answer)
}

// PressButton increments an allow-listed counter.
func (e Engine) PressButton(ctx context.Context, name string) (domain.ButtonCount, error) {
	if e.Config == nil || !e.Config.HasButton(name) {
		return domain.ButtonCount{}, fmt.Errorf("button %q: %w", name, repo.ErrNotFound)
	}
	n, err := e.Repo.PressButton(ctx, name, e.now())
	if err != nil {
		return domain.ButtonCount{}, err
	}
	return domain.ButtonCount{Name: name, Presses: n}, nil
}

// ButtonPresses reads an allow-listed counter.
func (e Engine) ButtonPresses(ctx context.Context, name string) (domain.ButtonCount, error) {
	if e.Config == nil || !e.Config.HasButton(name) {
		return domain.ButtonCount{}, fmt.Errorf("button %q: %w", name, repo.ErrNotFound)
	}
	n, err := e.Repo.ButtonPresses(ctx, name)
	if err != nil {
		return domain.ButtonCount{}, err
	}
	return domain.ButtonCount{Name: name, Presses: n}, nil
}
