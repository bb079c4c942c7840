package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/events"
	httpapi "github.com/example/ride-dispatch/internal/http"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	// optional migration: apply the audit schema if requested
	if cfg.PGDSN != "" && cfg.RunMigrations {
		if db, err := sql.Open("postgres", cfg.PGDSN); err == nil {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_create_dispatch_events.sql")); err == nil {
				if _, err := db.Exec(string(b)); err != nil {
					logger.Error("migration exec error", "error", err)
				} else {
					logger.Info("migration applied", "file", "001_create_dispatch_events.sql")
				}
			}
			_ = db.Close()
		} else {
			logger.Error("migration db open error", "error", err)
		}
	}

	st := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
	defer st.Close()

	wsreg := notify.NewWSRegistry()

	var sinks events.MultiSink
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic)
		defer producer.Close()
		sinks = append(sinks, producer)
	}
	if cfg.PGDSN != "" {
		if audit, err := store.NewAuditStore(cfg.PGDSN); err == nil {
			defer audit.Close()
			sinks = append(sinks, audit)
		} else {
			logger.Error("audit store unavailable, continuing without it", "error", err)
		}
	}
	sinks = append(sinks, notify.NewPushNotifier(cfg.PushEndpoint, wsreg))

	engine := dispatch.NewEngine(st, sinks, logger)
	srv := httpapi.NewServer(st, engine, wsreg, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-dispatch ops API listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
