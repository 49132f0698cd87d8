package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"xcom/map-go/internal/config"
	"xcom/map-go/internal/feeds"
	"xcom/map-go/internal/feedstore"
	"xcom/map-go/internal/hidden"
	"xcom/map-go/internal/httpapi"
	"xcom/map-go/internal/metrics"
	"xcom/map-go/internal/openmanet"
	"xcom/map-go/internal/overlay"
	"xcom/map-go/internal/roster"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(envOr("CONFIG_PATH", "map-go.yaml"))
	if err != nil {
		bootLog := httpapi.NewLogger("map-go", "info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	logger := httpapi.NewLogger("map-go", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var stores []httpapi.Pinger

	var archive feeds.Archive
	if cfg.DatabaseURL != "" {
		store, err := feedstore.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer store.Close()
		archive = store
		stores = append(stores, store)
	}

	var kv hidden.KV
	if cfg.RedisAddr != "" {
		rkv := hidden.NewRedisKV(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		kv = rkv
		stores = append(stores, rkv)
	}

	var units *roster.Roster
	if cfg.RosterPath != "" {
		units, err = roster.Load(cfg.RosterPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.RosterPath).Msg("failed to load roster")
		}
	} else {
		units = roster.New(nil)
	}

	feedLog := feeds.NewLog(logger, archive)
	feedLog.Load(ctx)
	meshState := feeds.NewMeshState()
	stream := httpapi.NewMapStream(logger)

	// The controller is wired before its triggers so every onChange/onUpdate
	// callback can safely fire immediately.
	var controller *overlay.Controller
	resync := func() {
		if controller != nil {
			controller.Resync()
		}
	}

	hiddenStore := hidden.NewStore(logger, kv, resync)
	hiddenStore.Load(ctx)

	poller := openmanet.New(logger, openmanet.Config{
		BridgeURL: cfg.OpenMANET.BridgeURL,
		NodeURL:   cfg.OpenMANET.NodeURL,
		Refresh:   cfg.OpenMANET.Refresh(),
		DNSServer: cfg.OpenMANET.DNSServer,
	}, resync, m)

	controller = overlay.New(logger, overlay.Options{
		Feeds:       feedLog,
		Mesh:        meshState,
		Polled:      poller,
		Hidden:      hiddenStore,
		Roster:      units,
		Assignments: units,
		Markers:     stream,
		Vectors:     stream,
		Metrics:     m,
		Filters:     overlay.DefaultFilters(),
	})
	stream.SetMapReadyFunc(controller.SetMapReady)
	// The stream mirror is always writable, so the overlay starts ready; a
	// client's map_reset drops it back to not-ready during base-style reloads.
	controller.SetMapReady(true)

	if cfg.OpenMANET.NodeURL != "" || cfg.OpenMANET.BridgeURL != "" {
		poller.Start()
		defer poller.Stop()
	}

	h := httpapi.NewHandler(logger, httpapi.Deps{
		Controller: controller,
		Hidden:     hiddenStore,
		Feeds:      feedLog,
		Mesh:       meshState,
		Poller:     poller,
		Roster:     units,
		Stream:     stream,
		Metrics:    m,
		Stores:     stores,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("map-go listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
