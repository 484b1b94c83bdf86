// Package main applies and inspects the fee account schema.
//
// Usage:
//
//	migrate up       apply pending migrations
//	migrate down     roll back the last applied migration
//	migrate status   list migrations and when they were applied
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/music-school/student-fees/config"
	"github.com/music-school/student-fees/internal/infrastructure/persistence/postgres"
	"github.com/music-school/student-fees/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: migrate up|down|status")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Store.Driver != config.StorePostgres {
		return fmt.Errorf("STORE_DRIVER=%s has no schema to migrate", cfg.Store.Driver)
	}

	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = logger.FormatConsole
	log := logger.New(opts).With(logger.Component("migrate"))
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.DefaultPoolOptions())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	migrator := postgres.NewMigrator(conn)

	switch args[0] {
	case "up":
		applied, err := migrator.Migrate(ctx)
		if err != nil {
			return err
		}
		log.Info("migrations applied", logger.Int("count", applied))

	case "down":
		version, err := migrator.Rollback(ctx)
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("nothing to roll back")
			return nil
		}
		log.Info("migration rolled back", logger.Int("version", version))

	case "status":
		migrations, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		return printStatus(migrations)

	default:
		return fmt.Errorf("unknown command %q, expected up|down|status", args[0])
	}

	return nil
}

func printStatus(migrations []postgres.Migration) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
	for _, m := range migrations {
		appliedAt := "pending"
		if m.IsApplied {
			appliedAt = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, appliedAt)
	}
	return w.Flush()
}
