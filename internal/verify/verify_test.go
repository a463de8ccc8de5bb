package verify

import (
	"testing"

	"chaptergate/internal/config"
)

func newVerifier() Verifier {
	return New(config.Default(), "salt")
}

func TestValidateKeywordNormalizes(t *testing.T) {
	v := newVerifier()
	cases := []struct {
		provided string
		want     bool
	}{
		{"fletchling", true},
		{" Fletchling ", true},
		{"FLETCHLING\n", true},
		{"fletchlin", false},
		{"fletch ling", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := v.ValidateKeyword("fountain", tc.provided); got != tc.want {
			t.Fatalf("ValidateKeyword(%q) = %v, want %v", tc.provided, got, tc.want)
		}
	}
	if v.ValidateKeyword("fountain", " Fletchling ") != v.ValidateKeyword("fountain", "fletchling") {
		t.Fatalf("case/whitespace should not matter")
	}
	if !v.ValidateKeyword("lantern", "  Ember TIDE") {
		t.Fatalf("expected multi-word answer to match")
	}
}

func TestValidateKeywordUnknownID(t *testing.T) {
	v := newVerifier()
	for _, id := range []string{"not-a-real-id", "", "Fountain"} {
		if v.ValidateKeyword(id, "fletchling") {
			t.Fatalf("unknown id %q validated", id)
		}
	}
}

func TestValidateStageAnswer(t *testing.T) {
	v := newVerifier()
	if !v.ValidateStageAnswer("bell-tower", 0, "Nine") {
		t.Fatalf("stage 0 should match")
	}
	if !v.ValidateStageAnswer("bell-tower", 2, " low tide ") {
		t.Fatalf("stage 2 should match")
	}
	if v.ValidateStageAnswer("bell-tower", 1, "nine") {
		t.Fatalf("answers are per stage")
	}
	for _, idx := range []int{-1, 4, 100} {
		if v.ValidateStageAnswer("bell-tower", idx, "nine") {
			t.Fatalf("out of range stage %d validated", idx)
		}
	}
	if v.ValidateStageAnswer("no-such-scope", 0, "nine") {
		t.Fatalf("unknown scope validated")
	}
	if v.StageCount("bell-tower") != 4 || v.StageCount("nope") != 0 {
		t.Fatalf("unexpected stage counts")
	}
}

func TestMatchNumbered(t *testing.T) {
	v := newVerifier()
	words := []string{"aurora", "basilisk", "cinder", "dovetail", "ember", "fathom"}
	for i, w := range words {
		if !v.MatchNumbered(i+1, "  "+w+" ") {
			t.Fatalf("keyword %d should match", i+1)
		}
		if v.MatchNumbered(((i+1)%6)+1, w) {
			t.Fatalf("keyword %q matched the wrong position", w)
		}
	}
	if v.MatchNumbered(0, "aurora") || v.MatchNumbered(7, "aurora") {
		t.Fatalf("out of range number matched")
	}
	if v.KeywordHash("Aurora") != v.KeywordHash("aurora ") {
		t.Fatalf("hash should use normalized input")
	}
	if New(config.Default(), "other").KeywordHash("aurora") == v.KeywordHash("aurora") {
		t.Fatalf("salt should change hash")
	}
}
