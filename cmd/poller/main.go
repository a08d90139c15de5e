package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/User159951/IntelliPM-sub015/internal/config"
	"github.com/User159951/IntelliPM-sub015/internal/dispatch"
	"github.com/User159951/IntelliPM-sub015/internal/logger"
	"github.com/User159951/IntelliPM-sub015/internal/outbox"
	"github.com/User159951/IntelliPM-sub015/internal/projection"
	"github.com/User159951/IntelliPM-sub015/internal/repo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer kw.Close()

	clock := func() time.Time { return time.Now().UTC() }
	repository := repo.NewRepository(gdb, rdb, cfg.Cache.TTL(), log)
	store := outbox.NewStore(gdb, clock, log)

	// same projection set as the synchronous dispatcher; handlers are
	// idempotent, so the backstop may redeliver what the request path
	// already handled
	registry := dispatch.NewRegistry(
		projection.NewSprintSummaryHandler(repository, log, clock),
		projection.NewProjectOverviewHandler(repository, log, clock),
	)
	consumers := []outbox.Consumer{
		outbox.NewRegistryConsumer(registry),
		outbox.NewKafkaNotifier(kw),
	}

	processor := outbox.NewProcessor(store, consumers, outbox.Config{
		PollInterval: cfg.Outbox.PollInterval(),
		BatchSize:    cfg.Outbox.BatchSize,
		MaxRetries:   cfg.Outbox.MaxRetries,
		BackoffBase:  cfg.Outbox.BackoffBase(),
		BackoffCap:   cfg.Outbox.BackoffCap(),
		ClaimLease:   cfg.Outbox.ClaimLease(),
	}, clock, log)

	// dead-letter counters and friends
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		log.Infof("metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			log.Errorf("metrics listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("intellipm-poller started")
	processor.Run(ctx)
}
