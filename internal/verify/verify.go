// Package verify checks visitor-submitted answers against server-only secrets.
// Only booleans leave this package; canonical answers are never returned.
package verify

import (
	"crypto/hmac"
	"crypto/subtle"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"chaptergate/internal/config"
	"chaptergate/internal/signing"
)

// Normalize trims surrounding whitespace and lowercases s. The same function
// builds the keyword hash table and normalizes candidates.
func Normalize(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

// Verifier holds the normalized answer catalog.
type Verifier struct {
	plaques  map[string]string
	stages   map[string][]string
	keywords [][]byte
	hasher   signing.Signer
}

// New builds a Verifier from the catalog. salt keys the numbered keyword hashes.
func New(cfg *config.Config, salt string) Verifier {
	v := Verifier{
		plaques: make(map[string]string, len(cfg.Plaques)),
		stages:  make(map[string][]string, len(cfg.Puzzles)),
		hasher:  signing.New(salt),
	}
	for id, p := range cfg.Plaques {
		v.plaques[id] = Normalize(p.Answer)
	}
	for scope, p := range cfg.Puzzles {
		answers := make([]string, len(p.Stages))
		for i, s := range p.Stages {
			answers[i] = Normalize(s)
		}
		v.stages[scope] = answers
	}
	v.keywords = make([][]byte, len(cfg.Keywords))
	for i, k := range cfg.Keywords {
		v.keywords[i] = v.hasher.Sum([]byte(Normalize(k)))
	}
	return v
}

// KnownPlaque reports whether id has an answer. It is used for status
// listings only, never to shape answer responses.
func (v Verifier) KnownPlaque(id string) bool {
	_, ok := v.plaques[id]
	return ok
}

// PlaqueIDs returns the configured plaque ids.
func (v Verifier) PlaqueIDs() []string {
	ids := make([]string, 0, len(v.plaques))
	for id := range v.plaques {
		ids = append(ids, id)
	}
	return ids
}

// ValidateKeyword compares provided with the answer for plaque id.
// Unknown ids are false.
func (v Verifier) ValidateKeyword(id, provided string) bool {
	canonical, ok := v.plaques[id]
	if !ok {
		return false
	}
	return equal(canonical, Normalize(provided))
}

// ValidateStageAnswer compares provided with stage stageIndex (zero based)
// of the puzzle scope. Unknown scopes and out-of-range stages are false.
func (v Verifier) ValidateStageAnswer(scope string, stageIndex int, provided string) bool {
	answers, ok := v.stages[scope]
	if !ok || stageIndex < 0 || stageIndex >= len(answers) {
		return false
	}
	return equal(answers[stageIndex], Normalize(provided))
}

// StageCount returns the number of stages in scope, or 0.
func (v Verifier) StageCount(scope string) int {
	return len(v.stages[scope])
}

// MatchNumbered checks provided against numbered keyword number (1-based)
// by comparing keyed hashes. Plaintext keywords are not retained.
func (v Verifier) MatchNumbered(number int, provided string) bool {
	if number < 1 || number > len(v.keywords) {
		return false
	}
	candidate := v.hasher.Sum([]byte(Normalize(provided)))
	return hmac.Equal(candidate, v.keywords[number-1])
}

// KeywordHash returns the hex keyed hash of a normalized keyword, for
// operators building client-side probes.
func (v Verifier) KeywordHash(keyword string) string {
	return v.hasher.Sign([]byte(Normalize(keyword)))
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
