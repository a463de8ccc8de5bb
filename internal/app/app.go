package app

import (
	"context"
	"fmt"
	"log"

	"chaptergate/internal/config"
	"chaptergate/internal/db"
	"chaptergate/internal/engine"
	"chaptergate/internal/migrate"
)

// Options select the workspace, store and catalog for a command.
type Options struct {
	Workspace string
	Driver    string
	DSN       string
	// ConfigPath overrides <workspace>/chaptergate.yml.
	ConfigPath string
	// Migrate applies pending migrations after opening the store.
	Migrate bool
	Logger  *log.Logger
}

// Env is everything a command or the server needs, opened once.
type Env struct {
	Pool    db.Pool
	Config  *config.Config
	Secrets config.Secrets
	Engine  engine.Engine
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

// LoadConfig reads the catalog, falling back to the built-in default when the
// workspace has none.
func LoadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.FromFile(opts.ConfigPath)
	}
	return config.LoadOptional(opts.Workspace)
}

// Open loads catalog and secrets, opens the store and wires the engine.
// The caller must Close the returned Env.
func Open(ctx context.Context, opts Options) (*Env, error) {
	logger := opts.logger()
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	secrets, err := config.LoadSecrets(logger)
	if err != nil {
		return nil, err
	}
	pool, err := db.Open(ctx, db.Config{Driver: opts.Driver, DSN: opts.DSN, Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if opts.Migrate {
		if err := migrate.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	e := engine.New(pool, cfg, secrets)
	e.Logger = logger
	return &Env{Pool: pool, Config: cfg, Secrets: secrets, Engine: e}, nil
}

func (e *Env) Close() {
	if e != nil && e.Pool != nil {
		e.Pool.Close()
	}
}
