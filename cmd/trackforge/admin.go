package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Strob0t/TrackForge/internal/adapter/postgres"
	"github.com/Strob0t/TrackForge/internal/config"
	"github.com/Strob0t/TrackForge/internal/domain/board"
)

// runAdmin dispatches admin subcommands (migrate-status, migrate-down, create-board).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate-status":
		return runAdminMigrateStatus(args[1:])
	case "migrate-down":
		return runAdminMigrateDown(args[1:])
	case "create-board":
		return runAdminCreateBoard(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: trackforge admin <command> [options]

Commands:
  migrate-status   Show the applied schema version
  migrate-down     Roll back schema migrations
  create-board     Create a board for a tenant
  help             Show this help message

Examples:
  trackforge admin migrate-status
  trackforge admin migrate-down --steps 1
  trackforge admin create-board --tenant acme --name Web --prefix WEB --columns "todo:To Do,done:Done"
`)
}

func runAdminMigrateStatus(args []string) error {
	fs := flag.NewFlagSet("migrate-status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	v, err := postgres.MigrationVersion(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Printf("schema version: %d\n", v)
	return nil
}

func runAdminMigrateDown(args []string) error {
	fs := flag.NewFlagSet("migrate-down", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := postgres.RollbackMigrations(context.Background(), cfg.Postgres.DSN, *steps); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Rolled back %d migration(s)\n", *steps)
	return nil
}

func runAdminCreateBoard(args []string) error {
	fs := flag.NewFlagSet("create-board", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "tenant id (required)")
	name := fs.String("name", "", "board name (required)")
	prefix := fs.String("prefix", "", "task sequence prefix")
	columns := fs.String("columns", "todo:To Do,doing:In Progress,done:Done", "comma separated id:name column list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *tenant == "" {
		return fmt.Errorf("--tenant is required")
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	cols, err := parseColumns(*columns)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	b := &board.Board{TenantID: *tenant, Name: *name, Prefix: *prefix, Columns: cols}
	if err := postgres.NewStore(pool).CreateBoard(ctx, b); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BOARD\tCOLUMN_ID\tCOLUMN_NAME")
	for _, c := range b.Columns {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, c.ID, c.Name)
	}
	return w.Flush()
}

// parseColumns reads "id:name,id:name". A column without a name uses its id.
func parseColumns(s string) ([]board.Column, error) {
	var cols []board.Column
	seen := make(map[string]bool)
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, name, _ := strings.Cut(part, ":")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("column %q has no id", part)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate column id %q", id)
		}
		seen[id] = true
		if name == "" {
			name = id
		}
		cols = append(cols, board.Column{ID: id, Name: name})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}
	return cols, nil
}
