// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/webdarts/signaling-service/internal/config"
	"github.com/webdarts/signaling-service/internal/handlers"
	"github.com/webdarts/signaling-service/internal/ice"
	"github.com/webdarts/signaling-service/internal/lifecycle"
	"github.com/webdarts/signaling-service/internal/registry"
	"github.com/webdarts/signaling-service/internal/relay"
	"github.com/webdarts/signaling-service/internal/store"
	"github.com/webdarts/signaling-service/internal/tracker"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	// Room persistence: Postgres with a transient fallback when configured,
	// pure in-memory otherwise. The service runs either way.
	var (
		roomStore   store.Store
		storageMode func() string
	)
	if cfg.DatabaseURL != "" {
		pg, err := store.ConnectPostgres(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Warnf("postgres unavailable, rooms are in-memory only: %v", err)
			roomStore = store.NewMemory()
		} else {
			defer pg.Close()
			fb := store.NewFallback(pg, logger)
			roomStore = fb
			storageMode = func() string {
				if fb.Degraded() {
					return "fallback"
				}
				return "durable"
			}
			logger.Info("connected to postgres")
		}
	} else {
		logger.Info("DATABASE_URL not set, rooms are in-memory only")
		roomStore = store.NewMemory()
	}

	// Redis backs the ICE credential cache. Optional.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warnf("redis unavailable, ICE cache is in-process only: %v", err)
			rdb = nil
		}
		cancel()
	}

	reg := registry.New(roomStore, logger)
	tr := tracker.New(logger)
	rl := relay.New(tr, logger)

	mon := lifecycle.New(reg, rl, logger)
	mon.StaleTimeout = cfg.StaleTimeout
	mon.RoomMaxAge = cfg.RoomMaxAge
	mon.SweepInterval = cfg.SweepInterval

	iceProvider := ice.NewProvider(cfg.XirsysURL, cfg.XirsysIdent, cfg.XirsysSecret, cfg.IceCacheTTL, rdb, logger)

	srv := handlers.NewServer(logger, reg, tr, rl, mon, iceProvider, cfg)
	srv.StorageMode = storageMode

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go mon.Run(sweepCtx)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket sessions outlive any sane write timeout
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Addr)
		errc <- server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("server exited: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}
