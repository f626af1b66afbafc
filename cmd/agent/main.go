package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/floorsync/internal/auth"
	"github.com/prudhvinik1/floorsync/internal/config"
	"github.com/prudhvinik1/floorsync/internal/connectivity"
	"github.com/prudhvinik1/floorsync/internal/database"
	"github.com/prudhvinik1/floorsync/internal/engine"
	"github.com/prudhvinik1/floorsync/internal/httpapi"
	"github.com/prudhvinik1/floorsync/internal/localstore"
	"github.com/prudhvinik1/floorsync/internal/queue"
	"github.com/prudhvinik1/floorsync/internal/realtime"
	"github.com/prudhvinik1/floorsync/internal/remote"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Durable local storage
	badgerDB, err := database.NewBadgerDB(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer badgerDB.Close()

	store := localstore.New(badgerDB, nil)
	deviceID, err := store.DeviceID()
	if err != nil {
		log.Fatalf("Failed to resolve device id: %v", err)
	}
	log.Printf("Device id: %s", deviceID)

	// Discard stale queue entries, prune aged cache
	syncQueue := queue.NewWithLimits(badgerDB, nil, cfg.QueueMaxAge, cfg.MaxPushRetries)
	pending, err := syncQueue.Load()
	if err != nil {
		log.Printf("Failed to load persisted queue: %v", err)
	} else if len(pending) > 0 {
		log.Printf("Loaded %d pending operations", len(pending))
	}
	if _, err := store.Prune(cfg.CacheMaxAge); err != nil {
		log.Printf("Startup prune failed: %v", err)
	}

	// Remote store and change feed
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	feed := remote.NewRedisFeed(redisClient, nil)
	remoteStore := remote.NewPostgresStore(postgresPool, feed, nil)
	if err := remoteStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure remote schema: %v", err)
	}

	minter := auth.NewTokenMinter(cfg.JWTSecret, cfg.TokenExpiry)
	var prober remote.Prober
	if cfg.HealthURL != "" {
		prober = remote.NewHTTPProber(cfg.HealthURL, minter, deviceID, cfg.UserID)
	} else {
		prober = remote.NewPingProber(postgresPool.Ping)
	}
	flusher := remote.NewFlushClient(cfg.FlushURL, minter, deviceID, cfg.UserID, nil)

	// Engine and monitor are wired to each other through hooks so each can
	// be constructed and tested on its own.
	var monitor *connectivity.Monitor
	eng := engine.New(engine.Params{
		Store:       store,
		Queue:       syncQueue,
		Remote:      remoteStore,
		Online:      func() bool { return monitor.Online() },
		DeviceID:    deviceID,
		UserID:      cfg.UserID,
		BatchSize:   cfg.DrainBatchSize,
		BatchPause:  cfg.BatchPause,
		CacheMaxAge: cfg.CacheMaxAge,
	})
	monitor = connectivity.New(prober, cfg.HeartbeatInterval, cfg.HeartbeatCeiling, connectivity.Hooks{
		Drain: func() {
			if err := eng.DrainQueue(context.Background()); err != nil {
				log.Printf("Drain failed: %v", err)
			}
		},
		Resync: func() {
			if err := eng.FullResync(context.Background()); err != nil {
				log.Printf("Resync failed: %v", err)
			}
		},
		Flush:    func() { flusher.Flush(syncQueue.Snapshot()) },
		QueueLen: syncQueue.Len,
	}, nil)

	subscriber := realtime.New(realtime.Params{
		Feed:        feed,
		Store:       store,
		Remote:      remoteStore,
		LocalUserID: cfg.UserID,
	})

	// Initial connectivity from one probe
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	online := prober.Probe(probeCtx) == nil
	cancel()

	monitor.Start(online)
	defer monitor.Stop()

	subscriber.Start(ctx)
	defer subscriber.Stop()

	signals := connectivity.NewOSSignalSource()
	signals.Start(monitor)

	// Full resync at startup if reachable
	if online {
		go func() {
			if err := eng.FullResync(context.Background()); err != nil {
				log.Printf("Startup resync failed: %v", err)
			}
		}()
	}

	api := httpapi.New(eng, monitor, deviceID, nil)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.StatusPort),
		Handler: api.Handler(),
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down agent...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Status API listening on port %s", cfg.StatusPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Agent stopped gracefully")
}
