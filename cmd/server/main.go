package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"gitea.jw6.us/james/calsync/internal/api"
	"gitea.jw6.us/james/calsync/internal/auth"
	"gitea.jw6.us/james/calsync/internal/config"
	httpserver "gitea.jw6.us/james/calsync/internal/http"
	"gitea.jw6.us/james/calsync/internal/provider"
	"gitea.jw6.us/james/calsync/internal/store"
	"gitea.jw6.us/james/calsync/internal/syncer"
)

func main() {
	// A missing .env file is fine; the environment may already be populated.
	_ = godotenv.Load()

	app := &cli.App{
		Name:   "calsync",
		Usage:  "Import Google and Outlook calendars into the canonical event store.",
		Action: serve,
		Flags:  serveFlags(),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server (default).",
				Flags:  serveFlags(),
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit.",
				Action: migrate,
			},
			{
				Name:  "sync",
				Usage: "Run one sync for a user with an existing provider access token.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "provider", Required: true, Usage: "google or outlook"},
					&cli.StringFlag{Name: "user", Required: true, Usage: "user id that owns the imported events"},
					&cli.StringFlag{Name: "token", Required: true, EnvVars: []string{"CALSYNC_ACCESS_TOKEN"}, Usage: "provider access token"},
				},
				Action: syncOnce,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("calsync: %v", err)
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "skip-migrations", Usage: "Do not apply migrations on startup."},
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("create db pool: %w", err)
	}
	return store.New(pool), pool.Close, nil
}

func migrate(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pool, err := pgxpool.New(c.Context, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("create db pool: %w", err)
	}
	defer pool.Close()

	if err := store.ApplyMigrations(c.Context, pool); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Println("migrations applied")
	return nil
}

func syncOnce(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, closeStore, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry, err := provider.NewFromConfig(c.Context, cfg)
	if err != nil {
		return fmt.Errorf("init providers: %w", err)
	}

	res, err := syncer.New(registry, st.Events).Sync(c.Context, syncer.Request{
		Provider: c.String("provider"),
		Token:    c.String("token"),
		UserID:   c.String("user"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("synced %d %s events for %s\n", res.Count, res.Provider, c.String("user"))
	return nil
}

func serve(c *cli.Context) error {
	log.Println("Starting calsync server...")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("create db pool: %w", err)
	}
	defer pool.Close()

	if !c.Bool("skip-migrations") {
		if err := store.ApplyMigrations(ctx, pool); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	st := store.New(pool)

	registry, err := provider.NewFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init providers: %w", err)
	}
	log.Printf("calendar providers: %v", registry.Names())
	authService, err := auth.NewService(cfg, registry, st.Handoffs)
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}
	apiHandler := api.NewHandler(syncer.New(registry, st.Events), st.Events)

	scheduler := cron.New()
	if cfg.Tokens.Delivery == config.TokenDeliveryHandoff {
		if _, err := authService.SchedulePurge(scheduler, cfg.Tokens.PurgeSpec); err != nil {
			return fmt.Errorf("schedule handoff purge: %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      httpserver.NewRouter(cfg, st, authService, apiHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	log.Printf("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	return nil
}
