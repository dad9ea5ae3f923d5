// Package main is a small tool for the database schema of the olymp queue bot.
//
// Usage:
//
//	migrate up       apply pending migrations
//	migrate down     roll back the last applied migration
//	migrate status   list migrations and their state
//
// The bot applies migrations on start when DB_AUTO_MIGRATE is on; this tool is
// for deployments that run them separately.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/hselingforschool/olymp-queue-bot/config"
	"github.com/hselingforschool/olymp-queue-bot/internal/infrastructure/persistence/postgres"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
	"github.com/hselingforschool/olymp-queue-bot/pkg/retry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	if err := run(ctx, cmd); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string) error {
	log := logger.New(logger.Options{Level: os.Getenv("LOG_LEVEL")})

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := postgres.DefaultPoolOptions()
	opts.MaxConns = 2
	opts.MinConns = 0

	var conn *postgres.Connection
	err = retry.DatabaseRetrier().Do(ctx, func(ctx context.Context) error {
		var err error
		conn, err = postgres.NewConnection(ctx, dbCfg.URL, opts)
		if err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	migrator := postgres.NewMigrator(conn)

	switch cmd {
	case "up":
		if err := migrator.Migrate(ctx); err != nil {
			return err
		}
		log.Info("database schema is up to date")
	case "down":
		if err := migrator.Rollback(ctx); err != nil {
			return err
		}
		log.Info("last migration rolled back")
	case "status":
		status, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(status)
	default:
		return fmt.Errorf("unknown command %q (want up, down or status)", cmd)
	}
	return nil
}

func printStatus(migrations []postgres.Migration) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
	for _, m := range migrations {
		applied := "pending"
		if m.IsApplied {
			applied = m.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, applied)
	}
	_ = w.Flush()
}
