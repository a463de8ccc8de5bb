package config

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"chaptergate/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if cfg.Cookie.Name != "chapIV_auth" {
		t.Fatalf("expected chapIV_auth cookie, got %s", cfg.Cookie.Name)
	}
	if len(cfg.Keywords) != KeywordCount {
		t.Fatalf("expected %d keywords, got %d", KeywordCount, len(cfg.Keywords))
	}
	if !cfg.TimedAct(domain.ActV) || cfg.TimedAct(domain.ActIV) {
		t.Fatalf("unexpected timed subset")
	}
	if got := cfg.ActPage(domain.ActIV); got != "/chapters/IV" {
		t.Fatalf("act page = %s", got)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"short keywords":        strings.Replace(defaultTemplate, "keywords: [aurora, basilisk, cinder, dovetail, ember, fathom]", "keywords: [aurora]", 1),
		"unknown act":           strings.Replace(defaultTemplate, "  X:\n", "  XI:\n", 1),
		"unknown prerequisite":  strings.Replace(defaultTemplate, "plaques: [fountain, lantern]", "plaques: [fountain, missing]", 1),
		"empty plaque answer":   strings.Replace(defaultTemplate, "answer: quietus", "answer: \"\"", 1),
		"relative locked page":  strings.Replace(defaultTemplate, "locked: /locked", "locked: locked", 1),
		"act page without verb": strings.Replace(defaultTemplate, "act: /chapters/%s", "act: /chapters", 1),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if _, ok := cfg.Plaques["fountain"]; !ok {
		t.Fatalf("expected default catalog")
	}
}

func TestSecretsFallbackWarns(t *testing.T) {
	var buf bytes.Buffer
	s := Secrets{Salt: "pepper"}.WithFallbacks(log.New(&buf, "", 0))
	if s.SigningSecret != FallbackSigningSecret {
		t.Fatalf("expected fallback signing secret")
	}
	if s.Salt != "pepper" {
		t.Fatalf("salt overwritten: %s", s.Salt)
	}
	if !s.Degraded {
		t.Fatalf("expected degraded flag")
	}
	if !strings.Contains(buf.String(), "CHAPTERGATE_SIGNING_SECRET") {
		t.Fatalf("expected warning, got %q", buf.String())
	}
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("CHAPTERGATE_SIGNING_SECRET", "s3cret")
	t.Setenv("CHAPTERGATE_SALT", "salty")
	t.Setenv("CHAPTERGATE_ENV", "production")
	s, err := LoadSecrets(log.New(&bytes.Buffer{}, "", 0))
	if err != nil {
		t.Fatalf("load secrets: %v", err)
	}
	if s.Degraded || s.SigningSecret != "s3cret" || s.Salt != "salty" {
		t.Fatalf("unexpected secrets %+v", s)
	}
	if !s.Production() {
		t.Fatalf("expected production")
	}
}
