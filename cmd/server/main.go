package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meridianbank/core/internal/audit"
	"github.com/meridianbank/core/internal/auth"
	"github.com/meridianbank/core/internal/config"
	"github.com/meridianbank/core/internal/events/kafka"
	"github.com/meridianbank/core/internal/fraud"
	"github.com/meridianbank/core/internal/interfaces"
	"github.com/meridianbank/core/internal/ledger"
	"github.com/meridianbank/core/internal/server"
	"github.com/meridianbank/core/internal/storage/memory"
	"github.com/meridianbank/core/internal/storage/postgres"
	"github.com/meridianbank/core/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	var store interfaces.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatal("open database", zap.Error(err))
		}
		if err := db.Ping(); err != nil {
			log.Fatal("ping database", zap.Error(err))
		}
		defer db.Close()
		store = postgres.NewStore(db)
		log.Info("using postgres store")
	} else {
		store = memory.NewStore()
		log.Info("no DATABASE_URL set, using in-memory store")
	}

	var publisher interfaces.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		publisher = kp
		log.Info("kafka publisher enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	notifier := webhook.NewNotifier(webhook.Config{
		Enabled: cfg.WebhookEnabled,
		URL:     cfg.WebhookURL,
		APIKey:  cfg.WebhookAPIKey,
		Timeout: cfg.WebhookTimeout,
	}, log)

	auditor := audit.NewRecorder(store, log)
	sentinel := fraud.NewSentinel(store, log)
	engine := ledger.NewEngine(store, auditor, sentinel, notifier, publisher, log)
	authService := auth.NewService(store, auditor, sentinel, cfg.JWTSecret, cfg.TokenTTL)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.New(engine, authService, store, log).Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("starting server", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
