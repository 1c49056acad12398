package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"docaria/internal/adapters/blob"
	"docaria/internal/adapters/connectivity"
	"docaria/internal/adapters/observability"
	"docaria/internal/app"
	"docaria/internal/shared"
	mysqlstore "docaria/internal/storage/mysql"
	"docaria/internal/storage/sqlite"
)

// syncer pushes pending reviews from the local cache on a fixed interval.
func main() {
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.Serve(cfg.MetricsAddr, observability.InitRegistry())

	log.Info().
		Dur("interval", cfg.SyncInterval).
		Int("workers", cfg.SyncWorkers).
		Msg("syncer starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()

	local, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("open local cache")
	}
	defer local.Close()

	blobs, err := blob.NewS3(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint, cfg.BlobPublicBase)
	if err != nil {
		log.Fatal().Err(err).Msg("blob store init failed")
	}

	probe := connectivity.NewProbe(cfg.ProbeURL, cfg.ProbeTTL)
	reviews := app.NewReviewService(mysqlstore.New(db), blobs, local, probe, cfg.SyncWorkers).WithMediaRoot(cfg.MediaRoot)

	logger := observability.Component("syncer")
	sweep := func() {
		// failures force a fresh probe on the next sweep
		rep, err := reviews.SyncPending(ctx)
		if err != nil || rep.Failed > 0 {
			probe.Invalidate()
		}
		if err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("sync sweep failed")
		}
	}

	sweep()
	t := time.NewTicker(cfg.SyncInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("syncer stopped")
			return
		case <-t.C:
			sweep()
		}
	}
}
