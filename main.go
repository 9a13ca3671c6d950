package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/andrepetsch/secret-library/internal/config"
	"github.com/andrepetsch/secret-library/internal/database"
	"github.com/andrepetsch/secret-library/internal/gate"
	"github.com/andrepetsch/secret-library/internal/lifecycle"
	"github.com/andrepetsch/secret-library/internal/mailer"
	"github.com/andrepetsch/secret-library/internal/router"
	"github.com/andrepetsch/secret-library/internal/storage"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

func main() {
	// load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := newLogger(cfg.Log.Level)

	// ensure basic directories exist
	if err := ensureDir(filepath.Dir(cfg.Database.Path)); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	// init database
	db, err := database.Init(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	// run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	blobs, err := storage.NewLocalBlobStore(cfg.Storage.BlobDir, logger)
	if err != nil {
		log.Fatalf("init blob store: %v", err)
	}

	deps := router.Deps{
		DB:      db,
		Blobs:   blobs,
		Gate:    gate.New(db, logger),
		Manager: lifecycle.NewManager(db, logger),
		Sweeper: lifecycle.NewSweeper(db, blobs, cfg.Purge.BatchSize, logger),
		Mailer:  mailer.New(cfg.Email, logger),
		Log:     logger,
	}

	// scheduled purge sweep; the same operation is reachable on demand
	// through POST /api/media/cleanup
	schedule := cron.New()
	if _, err := schedule.AddFunc(cfg.Purge.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		purged, err := deps.Sweeper.Sweep(ctx)
		if err != nil {
			logger.Error().Err(err).Int("purged", purged).Msg("scheduled sweep failed")
			return
		}
		if purged > 0 {
			logger.Info().Int("purged", purged).Msg("scheduled sweep done")
		}
	}); err != nil {
		log.Fatalf("schedule purge sweep: %v", err)
	}
	schedule.Start()
	defer schedule.Stop()

	// setup router
	r := router.SetupRouter(cfg, deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	log.Printf("server listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("run server: %v", err)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().
		Str("service", "secret-library").
		Timestamp().
		Logger()
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
