package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chaptergate/internal/app"
	"chaptergate/internal/config"
	"chaptergate/internal/cookie"
	"chaptergate/internal/domain"
	"chaptergate/internal/engine"
	"chaptergate/internal/migrate"
	"chaptergate/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "chaptergate",
	Short: "Chaptergate CLI",
	Long: `Chaptergate gates story chapters behind solved plaques and act state.
- Plaques: riddles whose answers live only on the server; solving one adds it to the visitor's signed cookie.
- Acts: I..X, each not_released -> released -> succeeded|failed, advanced by an operator.
- Gate: one decision per chapter request (allow, locked, not_yet, not_found, failed, canonical).
Secrets come from CHAPTERGATE_SIGNING_SECRET, CHAPTERGATE_SALT and CHAPTERGATE_ADMIN_JWT_SECRET.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CHAPTERGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "catalog file (default <workspace>/chaptergate.yml)")
	flags.String("driver", "sqlite", "store driver (sqlite, postgres)")
	flags.String("dsn", "", "store DSN (required for postgres)")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "operator", "actor recorded on events")
	for _, name := range []string{"workspace", "config", "driver", "dsn", "json", "actor-id"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(provisionCmd())
	rootCmd.AddCommand(actsCmd())
	rootCmd.AddCommand(chaptersCmd())
	rootCmd.AddCommand(bansCmd())
	rootCmd.AddCommand(buttonsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(cookieCmd())
}

func options(autoMigrate bool) app.Options {
	return app.Options{
		Workspace:  viper.GetString("workspace"),
		Driver:     viper.GetString("driver"),
		DSN:        viper.GetString("dsn"),
		ConfigPath: viper.GetString("config"),
		Migrate:    autoMigrate,
		Logger:     log.New(os.Stderr, "", log.LstdFlags),
	}
}

func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	env, err := app.Open(ctx, options(true))
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var trustProxy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			opts := options(true)
			env, err := app.Open(ctx, opts)
			if err != nil {
				return err
			}
			defer env.Close()
			handler, err := server.New(server.Config{
				Engine:     env.Engine,
				BasePath:   basePath,
				Auth:       server.AuthConfig{JWTSecret: env.Secrets.AdminJWTSecret, Logger: opts.Logger},
				TrustProxy: trustProxy,
				Production: env.Secrets.Production(),
				Logger:     opts.Logger,
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(ctx, env.Engine, opts.Logger)
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Chaptergate on http://%s (API at %s, OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	cmd.Flags().BoolVar(&trustProxy, "trust-proxy", false, "take client address from X-Forwarded-For")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Open(cmd.Context(), options(false))
			if err != nil {
				return err
			}
			defer env.Close()
			if err := migrate.Migrate(cmd.Context(), env.Pool); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func provisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create a not_released row for every act",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				n, err := migrate.Provision(ctx, env.Pool, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("provisioned %d act(s)\n", n)
				return nil
			})
		},
	}
}

func actsCmd() *cobra.Command {
	acts := &cobra.Command{Use: "acts", Short: "Inspect and advance acts"}
	acts.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List act states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Engine.Acts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"Act", "Title", "State", "Timed"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Title, a.State, a.Timed})
				}
				tw.Render()
				return nil
			})
		},
	})
	acts.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one act",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseActID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				state, err := env.Engine.ActState(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(domain.Act{ID: id, Title: env.Config.Acts[id].Title, State: state, Timed: env.Config.TimedAct(id)})
			})
		},
	})
	var outcome string
	advance := &cobra.Command{
		Use:   "advance <id>",
		Short: "Advance an act (success by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := engine.ParseOutcome(outcome)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				tr, err := env.Engine.AdvanceAct(ctx, domain.ActID(args[0]), o, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tr)
				}
				fmt.Printf("act %s: %s -> %s\n", tr.Act, tr.From, tr.To)
				return nil
			})
		},
	}
	advance.Flags().StringVar(&outcome, "outcome", "success", "success or failure")
	acts.AddCommand(advance)
	return acts
}

func chaptersCmd() *cobra.Command {
	chapters := &cobra.Command{Use: "chapters", Short: "Manage chapter statuses"}
	chapters.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List chapter statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Engine.Chapters(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"Chapter", "Status", "Updated"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Status, c.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	chapters.AddCommand(&cobra.Command{
		Use:   "set <id> <hidden|visible|archived>",
		Short: "Set a chapter status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ch, err := env.Engine.SetChapterStatus(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(ch)
			})
		},
	})
	return chapters
}

func bansCmd() *cobra.Command {
	bans := &cobra.Command{Use: "bans", Short: "Manage banned addresses"}
	var reason string
	add := &cobra.Command{
		Use:   "add <ip>",
		Short: "Ban an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				ban, err := env.Engine.BanIP(ctx, args[0], reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(ban)
			})
		},
	}
	add.Flags().StringVar(&reason, "reason", "", "why the address is banned")
	bans.AddCommand(add)
	bans.AddCommand(&cobra.Command{
		Use:   "remove <ip>",
		Short: "Lift a ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				return env.Engine.UnbanIP(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	})
	bans.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List banned addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Engine.Repo.ListBans(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"IP", "Reason", "Since"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.IP, b.Reason, b.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return bans
}

func buttonsCmd() *cobra.Command {
	buttons := &cobra.Command{Use: "buttons", Short: "Interaction counters"}
	buttons.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List button press counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Engine.Repo.ListButtons(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"Button", "Presses"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.Name, b.Presses})
				}
				tw.Render()
				return nil
			})
		},
	})
	return buttons
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Catalog file"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.LoadConfig(options(false))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			out, err := c.ToYAML()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.LoadConfig(options(false)); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default catalog to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfg.AddCommand(initCmd)
	return cfg
}

func tokenCmd() *cobra.Command {
	token := &cobra.Command{Use: "token", Short: "Admin bearer tokens"}
	var subject string
	var ttl time.Duration
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint an admin JWT signed with CHAPTERGATE_ADMIN_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secrets, err := config.LoadSecrets(log.New(os.Stderr, "", 0))
			if err != nil {
				return err
			}
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			t, err := server.SignAdminToken(secrets.AdminJWTSecret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(t)
			return nil
		},
	}
	mint.Flags().StringVar(&subject, "subject", "", "token subject (default --actor-id)")
	mint.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	token.AddCommand(mint)
	return token
}

func cookieCmd() *cobra.Command {
	c := &cobra.Command{Use: "cookie", Short: "Signed auth cookie values"}
	var plaques []string
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint an auth cookie value unlocking the given plaques",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(options(false))
			if err != nil {
				return err
			}
			secrets, err := config.LoadSecrets(log.New(os.Stderr, "", 0))
			if err != nil {
				return err
			}
			e := engine.New(nil, cfg, secrets)
			for _, p := range plaques {
				if !e.Verifier.KnownPlaque(p) {
					return fmt.Errorf("unknown plaque %q", p)
				}
			}
			value, err := e.Codec.MintUnlocked(cookie.NewUnlockedSet(plaques...), time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("%s=%s\n", cfg.Cookie.Name, value)
			return nil
		},
	}
	mint.Flags().StringSliceVar(&plaques, "plaque", nil, "plaque id (repeatable)")
	c.AddCommand(mint)
	c.AddCommand(&cobra.Command{
		Use:   "inspect <value>",
		Short: "Verify a cookie value and print its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(options(false))
			if err != nil {
				return err
			}
			secrets, err := config.LoadSecrets(log.New(os.Stderr, "", 0))
			if err != nil {
				return err
			}
			e := engine.New(nil, cfg, secrets)
			raw, ok := e.Codec.VerifySignedValue(strings.TrimSpace(args[0]))
			if !ok {
				return errors.New("invalid or tampered value")
			}
			return printJSON(map[string]any{
				"payload":  raw,
				"unlocked": e.Visitor(strings.TrimSpace(args[0])).IDs(),
			})
		},
	})
	return c
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
