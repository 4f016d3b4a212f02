package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sql-gateway/internal/api"
	"sql-gateway/internal/audit"
	"sql-gateway/internal/auth"
	"sql-gateway/internal/config"
	"sql-gateway/internal/directory"
	"sql-gateway/internal/executor"
	"sql-gateway/internal/guard"
	"sql-gateway/internal/llm"
	"sql-gateway/internal/messaging"
	"sql-gateway/internal/metrics"
	"sql-gateway/internal/pool"
	"sql-gateway/internal/session"
	"sql-gateway/internal/storage"
)

// @title Multi-Tenant SQL Gateway
// @version 1.0
// @description Natural-language query gateway routing read-only SQL to per-tenant PostgreSQL databases
// @BasePath /

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Init Metrics
	metrics.Init()

	// Load Configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		"max_result_rows", cfg.Query.MaxResultRows,
		"query_timeout", cfg.Query.Timeout,
		"max_retries", cfg.Query.MaxRetries)

	// Setup JWT Secret
	auth.SetSecret(cfg.Auth.JWTSecret)

	// Admin database: tenant directory records and the audit table
	store, err := storage.NewStorage(cfg.AdminDB.URL)
	if err != nil {
		logger.Error("failed to init admin db", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("admin database connected")

	dir := directory.New(store, cfg.Directory.CacheTTL, logger)

	// Per-tenant connection pools
	pools := pool.NewManager(pool.Config{
		MinConns:        cfg.Pool.MinConns,
		MaxConns:        cfg.Pool.MaxConns,
		CheckoutTimeout: cfg.Pool.CheckoutTimeout,
		IdleTTL:         cfg.Pool.IdleTTL,
	}, dir, logger)

	exec := executor.New(pools, cfg.Query.Timeout, logger)

	// SQL-generation collaborator
	generator, err := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout, logger)
	if err != nil {
		logger.Error("failed to init llm client", "error", err)
		os.Exit(1)
	}

	// Audit sink: admin DB always, AMQP fan-out when configured
	targets := []audit.Target{&audit.DBTarget{Store: store}}
	var rabbit *messaging.RabbitClient
	if cfg.Audit.AMQPURL != "" {
		rabbit, err = messaging.NewRabbitClient(cfg.Audit.AMQPURL, "gateway_audit")
		if err != nil {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer rabbit.Close()
		targets = append(targets, &audit.AMQPTarget{Client: rabbit})
		logger.Info("audit AMQP target enabled")
	}
	sink := audit.NewSink(cfg.Audit.QueueSize, logger, targets...)

	runner := session.NewRunner(
		dir,
		guard.New(cfg.Query.MaxResultRows),
		exec,
		generator,
		sink,
		cfg.Query.MaxRetries,
		cfg.Query.MaxResultRows,
		logger,
	)

	// Init API
	apiHandler := api.NewAPI(runner, dir, store, pools, cfg, logger)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: apiHandler.Router(),
	}

	// Graceful Shutdown Setup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting gateway", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done() // Wait for interrupt signal
	logger.Info("shutdown initiated")

	// Shutdown sequence
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop HTTP server, then drain pools and flush pending audit records
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}
	pools.Shutdown()
	sink.Close()

	logger.Info("graceful shutdown complete")
}
