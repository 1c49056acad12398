package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"docaria/internal/adapters/blob"
	"docaria/internal/adapters/connectivity"
	server "docaria/internal/adapters/http_server"
	"docaria/internal/adapters/observability"
	"docaria/internal/adapters/places"
	redisad "docaria/internal/adapters/redis"
	"docaria/internal/app"
	"docaria/internal/domain"
	"docaria/internal/shared"
	mysqlstore "docaria/internal/storage/mysql"
	"docaria/internal/storage/sqlite"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// document store; an unreachable database is not fatal, the probe decides
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Warn().Err(err).Msg("document store unreachable at startup")
	} else {
		log.Info().Msg("database connection ok")
	}

	local, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("open local cache")
	}
	defer local.Close()

	blobs, err := blob.NewS3(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint, cfg.BlobPublicBase)
	if err != nil {
		log.Fatal().Err(err).Msg("blob store init failed")
	}

	pc, err := places.New(cfg.PlacesBase, cfg.PlacesKey, cfg.PlacesRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize places client")
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	var placesSrc domain.PlacesSource = pc
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, places responses are not cached")
	} else {
		placesSrc = app.NewNearbyCache(pc, cache, cfg.CacheTTL)
	}

	docs := mysqlstore.New(db)
	probe := connectivity.NewProbe(cfg.ProbeURL, cfg.ProbeTTL)

	est := app.NewEstablishmentService(placesSrc, docs, local, probe, cfg.PlacesRadius, cfg.PlacesType)
	reviews := app.NewReviewService(docs, blobs, local, probe, cfg.SyncWorkers).WithMediaRoot(cfg.MediaRoot)

	srv := server.New(30 * time.Second)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Est:     est,
		Reviews: reviews,
		Ranking: app.NewRankingService(est, reviews, probe),
		Gate:    app.NewSubmitGate(est, reviews, probe, cfg.GateRadiusMeters, cfg.GateCooldown),
		Users:   app.NewUserService(docs, local, probe),
		Default: domain.Coords{Lat: cfg.DefaultLat, Lon: cfg.DefaultLon},
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
