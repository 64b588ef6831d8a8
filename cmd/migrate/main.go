package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"presale-referral/internal/config"
	"presale-referral/internal/logger"
	"presale-referral/internal/migrations"
)

func main() {
	flag.Usage = func() {
		log.Println("usage: migrate [up|down|status]")
	}
	flag.Parse()

	command := migrations.CommandUp
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if cfg.Database.Driver != "postgres" {
		zlog.Fatal("sql migrations target postgres; sqlite databases are migrated on startup",
			zap.String("driver", cfg.Database.Driver))
	}

	db, err := migrations.Open(cfg.GetMigrationURL())
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.Run(db, command, zlog); err != nil {
		zlog.Fatal("migration failed", zap.Error(err))
	}
}
