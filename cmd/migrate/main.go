package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tallyboard.io/internal/config"
	"tallyboard.io/internal/migrate"
)

func main() {
	log.SetFlags(0)
	defaultDSN := os.Getenv("TALLYBOARD_PG_DSN")
	if defaultDSN == "" {
		if cfg, err := config.Load(); err == nil {
			defaultDSN = cfg.Database.DSN
		}
	}
	var (
		dsn     = flag.String("dsn", defaultDSN, "PostgreSQL DSN")
		timeout = flag.Duration("timeout", 60*time.Second, "Overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn, TALLYBOARD_PG_DSN or the config file")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrate.Embedded())

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
		if err == nil && len(applied) == 0 {
			fmt.Println("up to date")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			fmt.Println("nothing to roll back")
			return
		}
		if err == nil {
			fmt.Println("rolled back", name)
		}
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
