package engine

import (
	"log"
	"time"

	"chaptergate/internal/config"
	"chaptergate/internal/cookie"
	"chaptergate/internal/db"
	"chaptergate/internal/events"
	"chaptergate/internal/repo"
	"chaptergate/internal/signing"
	"chaptergate/internal/verify"
)

type Engine struct {
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Codec    cookie.Codec
	Verifier verify.Verifier
	Logger   *log.Logger
	Now      func() time.Time
}

// New wires an Engine. secrets must already carry fallbacks.
func New(pool db.Pool, cfg *config.Config, secrets config.Secrets) Engine {
	return Engine{
		Repo:     repo.Repo{Pool: pool},
		Events:   events.Writer{},
		Config:   cfg,
		Codec:    cookie.NewCodec(signing.New(secrets.SigningSecret)),
		Verifier: verify.New(cfg, secrets.Salt),
		Logger:   log.Default(),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}
