package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"comms-platform/internal/actions"
	"comms-platform/internal/auth"
	"comms-platform/internal/batch"
	"comms-platform/internal/comms"
	"comms-platform/internal/config"
	"comms-platform/internal/decision"
	"comms-platform/internal/gateway"
	"comms-platform/internal/pipeline"
	"comms-platform/internal/projects"
	"comms-platform/internal/providers"
	"comms-platform/internal/webhooks"
	"comms-platform/pkg/logger"
	"comms-platform/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores
	webhookStore := webhooks.NewStore(db)
	commStore := comms.NewStore(db)
	projectStore := projects.NewStore(db)
	batchStore := batch.NewStore(db)
	runStore := decision.NewRunStore(db)

	// Decision engine
	model := decision.ModelConfig{Provider: cfg.Engine.Provider, Model: cfg.Engine.Model}
	engine := decision.NewOpenAIEngine(cfg.Engine.APIKey, cfg.Engine.APIBase, model, cfg.Engine.CallTimeout)
	runner := decision.NewRunner(engine, runStore, model, rdb, cfg.Engine.MaxConcurrentPerCompany)

	// Outbound providers are deployment-specific; wired via env-selected
	// adapters in production builds. Absent adapters fail closed per action.
	var messenger actions.Messenger
	var crm actions.CRMWriter
	var knowledge decision.KnowledgeSearcher

	actionSvc := actions.NewService(db, projectStore, messenger, crm)
	updater := pipeline.NewUpdater(runner, projectStore, actionSvc)
	disambiguator := pipeline.NewDisambiguator(runner, projectStore, commStore, updater)

	dispatcher := batch.NewDispatcher(
		batchStore, commStore, projectStore, updater, disambiguator,
		cfg.Batch.DebounceWindow, cfg.Batch.ImmediateMode,
	)

	normalizer := webhooks.NewNormalizer(
		webhookStore, commStore, providers.Default(), dispatcher,
		webhooks.NewLineResolver(db),
		webhooks.OpenProjectClassifier{Projects: projectStore},
	)

	batchSweeper := batch.NewSweeper(batchStore, commStore, updater, cfg.Batch.SweepClaimLimit)
	reminderSweeper := pipeline.NewReminderSweeper(projectStore, updater, cfg.Batch.SweepClaimLimit)

	gatewayHandler := gateway.NewHandler(
		gateway.NewKeyStore(db),
		gateway.NewDefaultRegistry(gateway.Deps{
			Actions:   actionSvc,
			Projects:  projectStore,
			Knowledge: knowledge,
			Messenger: messenger,
			CRM:       crm,
		}),
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		DB:              db,
		Normalizer:      normalizer,
		WebhookStore:    webhookStore,
		RunStore:        runStore,
		Gateway:         gatewayHandler,
		BatchSweeper:    batchSweeper,
		ReminderSweeper: reminderSweeper,
		AuthMW:          auth.RequireAccessToken(authManager),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
