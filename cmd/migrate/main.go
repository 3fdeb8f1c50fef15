// Command migrate применяет миграции схемы настроек витрины (storefront_preferences).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "STOREFRONT_POSTGRES_DSN"
)

type command struct {
	direction string
	steps     int
	dsn       string
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout); err != nil {
		cancel()
		fail("%v", err)
	}
}

func parseCommand(args []string, getenv func(string) string) (command, error) {
	var cmd command
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cmd.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&cmd.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&cmd.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	if err := fs.Parse(args); err != nil {
		return command{}, err
	}

	cmd.direction = strings.ToLower(strings.TrimSpace(cmd.direction))
	switch cmd.direction {
	case "up", "status":
	case "down":
		if cmd.steps <= 0 {
			cmd.steps = 1
		}
	default:
		return command{}, fmt.Errorf("unsupported direction: %s (use up|down|status)", cmd.direction)
	}
	if cmd.steps < 0 {
		return command{}, errors.New("steps must be >= 0")
	}

	cmd.dsn = strings.TrimSpace(cmd.dsn)
	if cmd.dsn == "" && getenv != nil {
		cmd.dsn = strings.TrimSpace(getenv(envPostgresDSN))
	}
	if cmd.dsn == "" {
		return command{}, fmt.Errorf("%s (or -dsn) is required", envPostgresDSN)
	}
	return cmd, nil
}

func run(ctx context.Context, args []string, getenv func(string) string, out io.Writer) error {
	cmd, err := parseCommand(args, getenv)
	if err != nil {
		return err
	}

	// Миграции идут под advisory lock на одном соединении.
	store, err := postgres.Open(ctx, cmd.dsn, func(o *postgres.Options) { o.MaxOpenConns = 1 })
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	migrator := store.Migrator()
	switch cmd.direction {
	case "up":
		if err := migrator.Up(ctx, cmd.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		if err := migrator.Down(ctx, cmd.steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	schema := "ready"
	if err := store.Ready(ctx); errors.Is(err, postgres.ErrSchemaMissing) {
		schema = "missing"
	} else if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "migrate %s: version=%d applied=%d available=%d preferences=%s\n",
		cmd.direction, status.Version, status.Applied, status.Available, schema)
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
