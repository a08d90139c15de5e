package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/User159951/IntelliPM-sub015/internal/config"
	"github.com/User159951/IntelliPM-sub015/internal/dispatch"
	"github.com/User159951/IntelliPM-sub015/internal/logger"
	"github.com/User159951/IntelliPM-sub015/internal/model"
	"github.com/User159951/IntelliPM-sub015/internal/outbox"
	"github.com/User159951/IntelliPM-sub015/internal/projection"
	"github.com/User159951/IntelliPM-sub015/internal/repo"
	"github.com/User159951/IntelliPM-sub015/internal/service"
	httptransport "github.com/User159951/IntelliPM-sub015/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.Project{}, &model.ProjectMember{}, &model.Sprint{}, &model.Task{},
		&model.Comment{}, &model.Activity{}, &model.OutboxEntry{},
		&model.SprintSummary{}, &model.ProjectOverview{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. repo, outbox store, projection registry
	clock := func() time.Time { return time.Now().UTC() }
	repository := repo.NewRepository(gdb, rdb, cfg.Cache.TTL(), log)
	store := outbox.NewStore(gdb, clock, log)
	registry := dispatch.NewRegistry(
		projection.NewSprintSummaryHandler(repository, log, clock),
		projection.NewProjectOverviewHandler(repository, log, clock),
	)
	dispatcher := dispatch.NewDispatcher(registry, log)

	// 6. services
	svcs := httptransport.Services{
		Projects: service.NewProjectService(repository, store, dispatcher, log, clock),
		Sprints:  service.NewSprintService(repository, store, dispatcher, log, clock),
		Tasks:    service.NewTaskService(repository, store, dispatcher, log, clock),
		Repo:     repository,
		Outbox:   store,
	}

	// 7. gin router
	router := httptransport.NewRouter(svcs, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("intellipm-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
