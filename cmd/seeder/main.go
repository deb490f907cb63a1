// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/unclebandit/canvass-backend/internal/config"
	"github.com/unclebandit/canvass-backend/internal/db"
	"github.com/unclebandit/canvass-backend/internal/logger"
)

func main() {
	files := flag.String("seed", "seed/demo.sql", "comma separated seed files, applied in order")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, os.Stdout)
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn, cfg.DBDriver); err != nil {
		log.Error("failed to migrate", "error", err)
		os.Exit(1)
	}
	for _, file := range strings.Split(*files, ",") {
		if err := db.ExecFile(ctx, conn, strings.TrimSpace(file)); err != nil {
			log.Error("failed to seed", "file", file, "error", err)
			os.Exit(1)
		}
		log.Info("seeded", "file", file)
	}
	log.Info("database seeding completed")
}
