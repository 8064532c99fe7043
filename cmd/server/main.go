// Command server boots the inference cache: it wires the upstream
// client, the persistent cache store, the aggregation service, the
// seven background refresh loops, and the HTTP API, then serves until
// a shutdown signal arrives.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // Postgres driver
	"github.com/redis/go-redis/v9"

	"github.com/gonka-ai/inferencecache/internal/aggregate"
	"github.com/gonka-ai/inferencecache/internal/api"
	"github.com/gonka-ai/inferencecache/internal/config"
	"github.com/gonka-ai/inferencecache/internal/scheduler"
	"github.com/gonka-ai/inferencecache/internal/store"
	"github.com/gonka-ai/inferencecache/internal/upstream"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Cache.DBPath)
	if err != nil {
		log.Fatalf("failed to open cache store: %v", err)
	}
	defer st.Close()

	client := upstream.New(
		cfg.Upstream.BaseURLs,
		time.Duration(cfg.Upstream.RequestTimeoutSec)*time.Second,
		time.Duration(cfg.Upstream.HealthTimeoutSec)*time.Second,
	)

	svc := aggregate.New(client, st)

	if cfg.Cache.RedisAddr != "" {
		svc.SetRedisCache(redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr}))
		log.Printf("current-epoch cache backed by redis at %s", cfg.Cache.RedisAddr)
	}

	sched := scheduler.New(cfg.Poll, scheduler.Actions{
		CurrentEpoch: func(ctx context.Context) error {
			_, err := svc.CurrentEpochStats(ctx, true)
			return err
		},
		JailStatus:        svc.RefreshJailStatuses,
		NodeHealth:        svc.RefreshNodeHealth,
		Rewards:           svc.PollParticipantRewards,
		WarmKeys:          svc.RefreshWarmKeys,
		HardwareNodes:     svc.RefreshHardwareNodes,
		EpochTotalRewards: svc.RefreshEpochTotalRewards,
	})
	sched.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewServer(svc).Router(cfg.Server.CORSAllowOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
	}()

	log.Printf("inference cache listening on :%s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
	log.Println("server stopped")
}
