package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Development fallbacks used when the environment does not provide secrets.
// Tokens signed with these are forgeable by anyone who reads this file.
const (
	FallbackSigningSecret = "chaptergate-dev-signing-secret"
	FallbackSalt          = "chaptergate-dev-salt"
)

// Secrets are the server-only keys. They are never part of chaptergate.yml.
type Secrets struct {
	SigningSecret  string `env:"CHAPTERGATE_SIGNING_SECRET"`
	Salt           string `env:"CHAPTERGATE_SALT"`
	AdminJWTSecret string `env:"CHAPTERGATE_ADMIN_JWT_SECRET"`
	Env            string `env:"CHAPTERGATE_ENV" envDefault:"development"`

	// Degraded is set when a fallback secret was substituted.
	Degraded bool `env:"-"`
}

// Production reports whether cookies must be marked Secure.
func (s Secrets) Production() bool {
	return strings.EqualFold(s.Env, "production")
}

// LoadSecrets reads secrets from the environment and substitutes the
// documented fallbacks for any missing value, logging the misconfiguration.
func LoadSecrets(logger *log.Logger) (Secrets, error) {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("parse env: %w", err)
	}
	return s.WithFallbacks(logger), nil
}

// WithFallbacks fills empty signing secret and salt.
func (s Secrets) WithFallbacks(logger *log.Logger) Secrets {
	if logger == nil {
		logger = log.Default()
	}
	var missing []string
	if strings.TrimSpace(s.SigningSecret) == "" {
		s.SigningSecret = FallbackSigningSecret
		missing = append(missing, "CHAPTERGATE_SIGNING_SECRET")
	}
	if strings.TrimSpace(s.Salt) == "" {
		s.Salt = FallbackSalt
		missing = append(missing, "CHAPTERGATE_SALT")
	}
	if len(missing) > 0 {
		s.Degraded = true
		logger.Printf("WARNING: %s not set; using development fallback, signed cookies are forgeable", strings.Join(missing, ", "))
	}
	return s
}
