package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"assetdesk.org/internal/config"
	"assetdesk.org/internal/logging"
	"assetdesk.org/internal/migrate"
	"assetdesk.org/migrations"
)

func main() {
	var (
		dsn     = flag.String("dsn", "", "PostgreSQL DSN (defaults to database.dsn from config)")
		timeout = flag.Duration("timeout", 60*time.Second, "Overall timeout")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	if flag.NArg() == 0 {
		logging.Fatal().Msg("usage: migrate [up|down|seed|status]")
	}
	if *dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			logging.Fatal().Err(err).Msg("load config")
		}
		*dsn = cfg.Database.DSN
	}
	if *dsn == "" {
		logging.Fatal().Msg("missing DSN: provide via -dsn or ASSETDESK_DATABASE_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		logging.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrations.FS, migrations.SQLDir, migrations.SeedsDir)

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil {
			logging.Info().Int("applied", len(applied)).Msg("migrations up to date")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			logging.Info().Str("file", name).Msg("rolled back")
		}
	case "seed":
		var applied []string
		applied, err = mgr.Seed(ctx)
		if err == nil {
			logging.Info().Int("applied", len(applied)).Msg("seeds up to date")
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Fprintln(os.Stdout, item)
			}
		}
	default:
		logging.Fatal().Str("command", cmd).Msg("unknown command")
	}
	if err != nil {
		logging.Fatal().Err(err).Str("command", cmd).Msg("migrate failed")
	}
}
