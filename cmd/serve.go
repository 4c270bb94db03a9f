package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/clubhub/internal/api"
	"github.com/jon4hz/clubhub/internal/catalog"
	"github.com/jon4hz/clubhub/internal/config"
	"github.com/jon4hz/clubhub/internal/database"
	"github.com/jon4hz/clubhub/internal/gravatar"
	"github.com/jon4hz/clubhub/internal/notify/email"
	"github.com/jon4hz/clubhub/internal/recordstore/local"
	"github.com/jon4hz/clubhub/internal/scheduler"
	"github.com/jon4hz/clubhub/internal/session"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the clubhub server",
	Long:  `Start the clubhub server serving the members area and the record store API.`,
	Example: `clubhub serve --config config.yml
clubhub serve -c /path/to/config.yml --log-level debug
`,
	Run: startServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func startServer(cmd *cobra.Command, _ []string) {
	cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := gravatar.Validate(cfg.Gravatar); err != nil {
		log.Fatalf("invalid gravatar config: %v", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	seedAdmin(ctx, cfg, db)

	registry := session.NewRegistry(time.Duration(cfg.SessionMaxAge) * time.Second)
	cat := catalog.New(cfg.Cache)

	sched, err := scheduler.New()
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	for _, job := range []scheduler.Job{
		scheduler.SweepSessionsJob(registry),
		scheduler.FlushCatalogCacheJob(cat),
	} {
		if err := sched.Add(job); err != nil {
			log.Fatalf("failed to schedule job: %v", err)
		}
	}
	sched.Start()
	defer sched.Stop() //nolint:errcheck

	server, err := api.New(cfg, api.Deps{
		DB:        db,
		Signer:    local.NewSigner(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL),
		Registry:  registry,
		Catalog:   cat,
		Email:     email.New(cfg.Email),
		Scheduler: sched,
	})
	if err != nil {
		log.Fatalf("failed to create API server: %v", err)
	}

	log.Info("clubhub started successfully")
	if err := server.Run(ctx); err != nil {
		log.Error("API server error", "error", err)
	}
	log.Info("shutting down gracefully...")
}

// seedAdmin creates the configured bootstrap administrator on first start.
func seedAdmin(ctx context.Context, cfg *config.Config, db database.UserStore) {
	if cfg.Seed == nil || cfg.Seed.Username == "" {
		return
	}
	created, err := local.SeedAdmin(ctx, db, cfg.Seed.Username, cfg.Seed.Email, cfg.Seed.Password)
	if err != nil {
		log.Fatalf("failed to seed admin: %v", err)
	}
	if created {
		log.Info("Created admin account", "username", cfg.Seed.Username)
	}
}
