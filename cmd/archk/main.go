// archk - identity, authorization and audit backend
//
// This is the main entry point for the archk server. archk provides:
//   - Invite-gated registration with password and SSH key credentials
//   - Stateless-looking bearer tokens backed by revocable server state
//   - A configurable level-based permission model
//   - Spaces holding platform accounts and tracked items
//   - An append-only per-space audit log with a service reporting surface
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/Amchik/archk/migrations"

	"github.com/Amchik/archk/internal/api"
	"github.com/Amchik/archk/internal/authz"
	"github.com/Amchik/archk/internal/identity"
	"github.com/Amchik/archk/internal/infrastructure/config"
	"github.com/Amchik/archk/internal/infrastructure/database"
	"github.com/Amchik/archk/internal/infrastructure/logging"
	"github.com/Amchik/archk/internal/roles"
	"github.com/Amchik/archk/internal/service"
	"github.com/Amchik/archk/internal/space"
	"github.com/Amchik/archk/internal/token"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting archk",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	table, err := buildRoleTable(cfg.Roles)
	if err != nil {
		return fmt.Errorf("building role table: %w", err)
	}
	resolver := authz.NewResolver(table)
	log.Info("role table loaded", "tiers", len(table.Tiers()))

	identitySvc := identity.NewService(db, table, resolver,
		cfg.Security.PasswordMinLength, cfg.Security.PasswordMaxLength, log)

	authority := token.NewAuthority(
		token.NewTokenRepository(db.DB),
		token.NewServiceTokenRepository(db.DB),
		cfg.Security.TokenMaxAge,
		log,
	)
	// Password changes revoke sessions through the authority.
	identitySvc.SetTokenRevoker(authority)

	registry := space.NewRegistry(db, resolver, log)
	services := service.NewManager(service.NewRepository(db.DB), registry.Spaces(), resolver, log)

	server, err := api.New(api.Deps{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Identity: identitySvc,
		Tokens:   authority,
		Authz:    resolver,
		Roles:    table,
		Registry: registry,
		Services: services,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", cfg.ListenAddr())

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (graceful drain)
	// 2. Database

	log.Info("archk stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ARCHK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ARCHK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildRoleTable converts the configured role tiers into the runtime table.
// Permission names are resolved strictly; an unknown name is a startup error.
func buildRoleTable(configured []config.RoleConfig) (*roles.Table, error) {
	tiers := make([]roles.Tier, 0, len(configured))
	for _, rc := range configured {
		perms := make([]roles.Permission, 0, len(rc.Permissions))
		for _, name := range rc.Permissions {
			p, err := roles.Parse(name)
			if err != nil {
				return nil, fmt.Errorf("tier %q: %w", rc.Name, err)
			}
			perms = append(perms, p)
		}
		tiers = append(tiers, roles.Tier{
			Name:        rc.Name,
			Level:       rc.Level,
			Permissions: perms,
		})
	}
	return roles.New(tiers)
}
