package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/db"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

const usage = `usage: migrate [flags] <command>

commands:
  up                apply pending migrations
  down              roll back the latest migration
  status            list migrations and whether they are applied
  to <version>      move the schema to YYYYMMDDHHMMSS
  create <name>     write a new migration file into -dir
  validate          check the migration files in -dir
`

func main() {
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory for create and validate")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, args := flag.Arg(0), flag.Args()[1:]

	// authoring commands never touch a database
	switch command {
	case "create":
		if len(args) != 1 {
			exitf("create needs exactly one name")
		}
		path, err := migrate.CreateSQLMigration(*dir, args[0])
		if err != nil {
			exitf("create: %v", err)
		}
		fmt.Println(path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			exitf("validate:\n%v", err)
		}
		fmt.Println("ok")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		exitf("config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "stockroom-migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      logger.FormatConsole,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "command": command})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "migrate.db_unavailable", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := run(ctx, cfg, client, command, args); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		client.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migrate.done")
}

func run(ctx context.Context, cfg *config.Config, client *db.Client, command string, args []string) error {
	if cfg.DB.IsSQLite() {
		// the sqlite schema is a single idempotent DDL set with no versions
		if command != "up" {
			return fmt.Errorf("%s is not supported with the sqlite driver", command)
		}
		return migrate.ApplySQLite(ctx, client.DB())
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}
	migrator, err := migrate.NewMigrator(sqlDB, nil)
	if err != nil {
		return err
	}

	var results []migrate.Result
	switch command {
	case "up":
		results, err = migrator.Up(ctx)
	case "down":
		results, err = migrator.Down(ctx)
	case "to":
		if len(args) != 1 {
			return fmt.Errorf("to needs exactly one version")
		}
		results, err = migrator.To(ctx, args[0])
	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(statuses)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	for _, r := range results {
		fmt.Printf("%-4s %d %s\n", r.Direction, r.Version, r.Path)
	}
	return err
}

func printStatus(statuses []migrate.Status) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tFILE")
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, state, s.Path)
	}
	_ = w.Flush()
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
