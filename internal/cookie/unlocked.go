package cookie

import (
	"net/http"
	"sort"
	"strings"
	"time"
)

// clockSkew tolerates tokens issued slightly in the future.
const clockSkew = time.Minute

// AuthPayload is the body of the auth cookie.
type AuthPayload struct {
	Unlocked []string `json:"unlocked"`
	IssuedAt int64    `json:"iat,omitempty"`
}

// UnlockedSet is the set of plaque ids a visitor has solved.
type UnlockedSet map[string]struct{}

func NewUnlockedSet(ids ...string) UnlockedSet {
	s := UnlockedSet{}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s UnlockedSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// HasAll is true for an empty ids list.
func (s UnlockedSet) HasAll(ids []string) bool {
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// Add returns a new set with id included. The receiver is not modified.
func (s UnlockedSet) Add(id string) UnlockedSet {
	out := make(UnlockedSet, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}
	if id = strings.TrimSpace(id); id != "" {
		out[id] = struct{}{}
	}
	return out
}

// IDs returns the members sorted.
func (s UnlockedSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Unlocked verifies token and returns its unlocked set. Tampered, malformed
// or expired tokens yield an empty set.
func (c Codec) Unlocked(token string, maxAge time.Duration, now time.Time) UnlockedSet {
	if token == "" {
		return UnlockedSet{}
	}
	var p AuthPayload
	if !c.Decode(token, &p) {
		return UnlockedSet{}
	}
	if p.IssuedAt != 0 {
		issued := time.Unix(p.IssuedAt, 0)
		if issued.After(now.Add(clockSkew)) {
			return UnlockedSet{}
		}
		if maxAge > 0 && now.Sub(issued) > maxAge {
			return UnlockedSet{}
		}
	}
	return NewUnlockedSet(p.Unlocked...)
}

// MintUnlocked signs set with an issue time of now.
func (c Codec) MintUnlocked(set UnlockedSet, now time.Time) (string, error) {
	return c.MakeSignedValue(AuthPayload{Unlocked: set.IDs(), IssuedAt: now.Unix()})
}

// Read returns the trimmed cookie value when present.
func Read(r *http.Request, name string) (string, bool) {
	if r == nil {
		return "", false
	}
	c, err := r.Cookie(name)
	if err != nil || c == nil {
		return "", false
	}
	value := strings.TrimSpace(c.Value)
	if value == "" {
		return "", false
	}
	return value, true
}

// Build returns the auth cookie with the fixed attributes.
func Build(name, value string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}
