package engine_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"chaptergate/internal/config"
	"chaptergate/internal/db"
	"chaptergate/internal/domain"
	"chaptergate/internal/engine"
	"chaptergate/internal/gate"
	"chaptergate/internal/migrate"
	"chaptergate/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Logs   *bytes.Buffer
}

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, migrated bool) testEnv {
	t.Helper()
	ctx := context.Background()
	pool, err := db.Open(ctx, db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(pool.Close)
	if migrated {
		if err := migrate.Migrate(ctx, pool); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	var logs bytes.Buffer
	secrets := config.Secrets{SigningSecret: "test-secret", Salt: "test-salt"}
	eng := engine.New(pool, config.Default(), secrets)
	eng.Logger = log.New(&logs, "", 0)
	eng.Now = func() time.Time { return testNow }
	return testEnv{Engine: eng, Ctx: ctx, Logs: &logs}
}

func TestNextActState(t *testing.T) {
	cases := []struct {
		from    domain.ActState
		outcome engine.Outcome
		want    domain.ActState
	}{
		{domain.ActNotReleased, engine.OutcomeSuccess, domain.ActReleased},
		{domain.ActNotReleased, engine.OutcomeFailure, domain.ActReleased},
		{domain.ActReleased, engine.OutcomeSuccess, domain.ActSucceeded},
		{domain.ActReleased, engine.OutcomeFailure, domain.ActFailed},
		{domain.ActSucceeded, engine.OutcomeFailure, domain.ActSucceeded},
		{domain.ActFailed, engine.OutcomeSuccess, domain.ActFailed},
	}
	for _, tc := range cases {
		got, err := engine.NextActState(tc.from, tc.outcome)
		if err != nil || got != tc.want {
			t.Fatalf("%s/%s: got %s, %v; want %s", tc.from, tc.outcome, got, err, tc.want)
		}
	}
	if _, err := engine.NextActState("bogus", engine.OutcomeSuccess); !errors.Is(err, engine.ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
	if _, err := engine.ParseOutcome("maybe"); !errors.Is(err, engine.ErrUnknownOutcome) {
		t.Fatalf("expected ErrUnknownOutcome, got %v", err)
	}
	if o, err := engine.ParseOutcome(""); err != nil || o != engine.OutcomeSuccess {
		t.Fatalf("empty outcome = %s, %v", o, err)
	}
}

func TestActStatesWithoutTable(t *testing.T) {
	env := newTestEnv(t, false)
	states, err := env.Engine.ActStates(env.Ctx)
	if err != nil {
		t.Fatalf("act states: %v", err)
	}
	if len(states) != len(domain.Acts) {
		t.Fatalf("expected %d acts, got %d", len(domain.Acts), len(states))
	}
	for id, s := range states {
		if s != domain.ActNotReleased {
			t.Fatalf("act %s = %s", id, s)
		}
	}
	state, err := env.Engine.ActState(env.Ctx, domain.ActIV)
	if err != nil || state != domain.ActNotReleased {
		t.Fatalf("single act = %s, %v", state, err)
	}
}

func TestAdvanceActLifecycle(t *testing.T) {
	env := newTestEnv(t, true)
	tr, err := env.Engine.AdvanceAct(env.Ctx, "iv", engine.OutcomeSuccess, "operator")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if tr.Act != domain.ActIV || tr.From != domain.ActNotReleased || tr.To != domain.ActReleased {
		t.Fatalf("unexpected transition %+v", tr)
	}
	tr, err = env.Engine.AdvanceAct(env.Ctx, domain.ActIV, engine.OutcomeFailure, "operator")
	if err != nil || tr.To != domain.ActFailed {
		t.Fatalf("fail act: %+v, %v", tr, err)
	}
	tr, err = env.Engine.AdvanceAct(env.Ctx, domain.ActIV, engine.OutcomeSuccess, "operator")
	if err != nil || tr.From != domain.ActFailed || tr.To != domain.ActFailed {
		t.Fatalf("terminal act moved: %+v, %v", tr, err)
	}
	states, err := env.Engine.ActStates(env.Ctx)
	if err != nil {
		t.Fatalf("act states: %v", err)
	}
	if states[domain.ActIV] != domain.ActFailed || states[domain.ActI] != domain.ActNotReleased {
		t.Fatalf("unexpected states %+v", states)
	}
	evts, err := env.Engine.Repo.EventsAfter(env.Ctx, 0, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 2 || evts[0].ActorID != "operator" {
		t.Fatalf("expected two act events, got %+v", evts)
	}
}

func TestAdvanceActRejectsUnknownInput(t *testing.T) {
	env := newTestEnv(t, true)
	if _, err := env.Engine.AdvanceAct(env.Ctx, "XI", engine.OutcomeSuccess, ""); !errors.Is(err, engine.ErrUnknownAct) {
		t.Fatalf("expected ErrUnknownAct, got %v", err)
	}
	if _, err := env.Engine.AdvanceAct(env.Ctx, domain.ActI, "sideways", ""); !errors.Is(err, engine.ErrUnknownOutcome) {
		t.Fatalf("expected ErrUnknownOutcome, got %v", err)
	}
}

func TestCorruptStoredStateReadsNotReleased(t *testing.T) {
	env := newTestEnv(t, true)
	err := env.Engine.Repo.WithConn(env.Ctx, func(conn db.Conn) error {
		return env.Engine.Repo.SetActStateConn(env.Ctx, conn, domain.ActII, "half_released", testNow)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	state, err := env.Engine.ActState(env.Ctx, domain.ActII)
	if err != nil || state != domain.ActNotReleased {
		t.Fatalf("state = %s, %v", state, err)
	}
	if !strings.Contains(env.Logs.String(), "half_released") {
		t.Fatalf("expected warning, got %q", env.Logs.String())
	}
}

func TestSolvePlaqueUnion(t *testing.T) {
	env := newTestEnv(t, true)
	res, err := env.Engine.SolvePlaque("fountain", "wrong", "")
	if err != nil || res.OK || res.Token != "" {
		t.Fatalf("wrong answer: %+v, %v", res, err)
	}
	res, err = env.Engine.SolvePlaque("fountain", "  FLETCHLING ", "")
	if err != nil || !res.OK || res.Token == "" {
		t.Fatalf("first plaque: %+v, %v", res, err)
	}
	if env.Engine.HasPrerequisite(env.Engine.Visitor(res.Token)) {
		t.Fatalf("one plaque should not satisfy the prerequisite")
	}
	res, err = env.Engine.SolvePlaque("lantern", "ember tide", res.Token)
	if err != nil || !res.OK {
		t.Fatalf("second plaque: %+v, %v", res, err)
	}
	set := env.Engine.Visitor(res.Token)
	if !set.Has("fountain") || !set.Has("lantern") {
		t.Fatalf("expected union, got %v", set.IDs())
	}
	if !env.Engine.HasPrerequisite(set) {
		t.Fatalf("expected prerequisite satisfied")
	}
	statuses := env.Engine.PlaqueStatuses(res.Token)
	if statuses["fountain"] != engine.PlaqueSolved || statuses["gate"] != engine.PlaqueUnsolved {
		t.Fatalf("statuses = %+v", statuses)
	}
}

func TestSolvePlaqueIgnoresForgedExisting(t *testing.T) {
	env := newTestEnv(t, true)
	res, err := env.Engine.SolvePlaque("gate", "quietus", "eyJ1bmxvY2tlZCI6WyJmb3VudGFpbiJdfQ==.00")
	if err != nil || !res.OK {
		t.Fatalf("solve: %+v, %v", res, err)
	}
	if ids := res.Unlocked.IDs(); len(ids) != 1 || ids[0] != "gate" {
		t.Fatalf("forged set leaked into token: %v", ids)
	}
}

func TestVisitorExpiry(t *testing.T) {
	env := newTestEnv(t, true)
	res, err := env.Engine.SolvePlaque("fountain", "fletchling", "")
	if err != nil || !res.OK {
		t.Fatalf("solve: %+v, %v", res, err)
	}
	env.Engine.Now = func() time.Time { return testNow.Add(25 * time.Hour) }
	if set := env.Engine.Visitor(res.Token); len(set) != 0 {
		t.Fatalf("expired token still unlocks %v", set.IDs())
	}
}

func TestKeywordAndStageChecks(t *testing.T) {
	env := newTestEnv(t, true)
	if !env.Engine.CheckKeyword(3, " Cinder") {
		t.Fatalf("expected keyword 3 to match")
	}
	if env.Engine.CheckKeyword(3, "ember") || env.Engine.CheckKeyword(7, "cinder") {
		t.Fatalf("unexpected keyword match")
	}
	if !env.Engine.CheckStage("bell-tower", 2, "Low Tide") || env.Engine.CheckStage("bell-tower", 4, "vesper") {
		t.Fatalf("stage checks wrong")
	}
}

func TestButtonsAllowList(t *testing.T) {
	env := newTestEnv(t, true)
	if _, err := env.Engine.PressButton(env.Ctx, "self-destruct"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := env.Engine.PressButton(env.Ctx, "bell"); err != nil {
			t.Fatalf("press: %v", err)
		}
	}
	count, err := env.Engine.ButtonPresses(env.Ctx, "bell")
	if err != nil || count.Presses != 2 {
		t.Fatalf("count = %+v, %v", count, err)
	}
}

func TestBanLifecycle(t *testing.T) {
	env := newTestEnv(t, true)
	if _, err := env.Engine.BanIP(env.Ctx, "not-an-ip", "", "operator"); err == nil {
		t.Fatalf("expected invalid ip error")
	}
	if _, err := env.Engine.BanIP(env.Ctx, "192.0.2.7", "guessing", "operator"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	banned, err := env.Engine.IsBanned(env.Ctx, "192.0.2.7")
	if err != nil || !banned {
		t.Fatalf("banned = %v, %v", banned, err)
	}
	if err := env.Engine.UnbanIP(env.Ctx, "192.0.2.7", "operator"); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if err := env.Engine.UnbanIP(env.Ctx, "192.0.2.7", "operator"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetChapterStatus(t *testing.T) {
	env := newTestEnv(t, true)
	if _, err := env.Engine.SetChapterStatus(env.Ctx, "IV", "published", ""); err == nil {
		t.Fatalf("expected invalid status")
	}
	ch, err := env.Engine.SetChapterStatus(env.Ctx, "iv", domain.ChapterVisible, "operator")
	if err != nil || ch.ID != "IV" {
		t.Fatalf("set: %+v, %v", ch, err)
	}
	list, err := env.Engine.Repo.Chapters(env.Ctx)
	if err != nil || len(list) != 1 || list[0].Status != domain.ChapterVisible {
		t.Fatalf("chapters = %+v, %v", list, err)
	}
}

func TestGateUsesStoredState(t *testing.T) {
	env := newTestEnv(t, true)
	res, err := env.Engine.SolvePlaque("fountain", "fletchling", "")
	if err != nil {
		t.Fatal(err)
	}
	res, err = env.Engine.SolvePlaque("lantern", "ember tide", res.Token)
	if err != nil {
		t.Fatal(err)
	}
	d, err := env.Engine.Gate(env.Ctx, gate.Request{Chapter: "chapter-iv"}, res.Token)
	if err != nil || d.Kind != gate.NotYet {
		t.Fatalf("before release: %+v, %v", d, err)
	}
	if _, err := env.Engine.AdvanceAct(env.Ctx, domain.ActIV, engine.OutcomeSuccess, ""); err != nil {
		t.Fatal(err)
	}
	d, err = env.Engine.Gate(env.Ctx, gate.Request{Chapter: "chapter-iv"}, res.Token)
	if err != nil || d.Kind != gate.Allow {
		t.Fatalf("after release: %+v, %v", d, err)
	}
	d, err = env.Engine.Gate(env.Ctx, gate.Request{Chapter: "chapter-iv"}, "")
	if err != nil || d.Kind != gate.Locked {
		t.Fatalf("without cookie: %+v, %v", d, err)
	}
}
