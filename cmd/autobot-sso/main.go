package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mrveiss/AutoBot-AI-sub025/pkg/audit"
	"github.com/mrveiss/AutoBot-AI-sub025/pkg/config"
	"github.com/mrveiss/AutoBot-AI-sub025/pkg/observability"
	"github.com/mrveiss/AutoBot-AI-sub025/pkg/sso"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	var recorder audit.Recorder = audit.NopRecorder{}
	var auditLogger *audit.FileLogger
	if cfg.Storage.AuditDir != "" {
		auditLogger, err = audit.NewFileLogger(audit.FileLoggerConfig{BasePath: cfg.Storage.AuditDir})
		if err != nil {
			log.Fatalf("Failed to initialize audit logger: %v", err)
		}
		defer auditLogger.Close()
		recorder = auditLogger
	}

	store, fileStore, err := buildProviderStore(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize provider store: %v", err)
	}

	state, err := buildStateStore(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize state store: %v", err)
	}

	framework := sso.NewFramework(sso.FrameworkConfig{
		BaseURL:        cfg.SSO.BaseURL,
		EntityID:       cfg.SSO.EntityID,
		KeyDir:         cfg.SSO.KeyDir,
		SessionTimeout: cfg.SSO.SessionTimeout,
		StateTTL:       cfg.SSO.StateTTL,
		HTTPTimeout:    cfg.SSO.HTTPTimeout,
		DefaultRole:    cfg.SSO.DefaultRole,
	}, store, state, logger, metrics, recorder)

	if err := framework.LoadProviders(); err != nil {
		log.Fatalf("Failed to load providers: %v", err)
	}
	if cfg.SSO.BootstrapFile != "" {
		if _, err := framework.BootstrapProviders(cfg.SSO.BootstrapFile); err != nil {
			log.Fatalf("Failed to bootstrap providers: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	if cfg.SSO.WatchProviders && fileStore != nil {
		watcher, err := sso.NewProviderWatcher(framework, fileStore, logrus.NewEntry(logrus.StandardLogger()))
		if err != nil {
			log.Fatalf("Failed to start provider watcher: %v", err)
		}
		group.Go(func() error {
			watcher.Run(ctx)
			return nil
		})
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.SSO.CleanupInterval), func() {
		framework.CleanupExpiredSessions(context.Background())
	}); err != nil {
		log.Fatalf("Failed to schedule session cleanup: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	router := mux.NewRouter()
	handler := sso.NewHandler(framework, logger, metrics)
	handler.RegisterRoutes(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux(metrics),
	}

	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("SSO API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		apiServer.Shutdown(shutdownCtx)
		healthServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	logger.Info("shutdown complete")
}

// buildProviderStore selects the durable provider store. The file store is
// returned separately because only it supports hot reload.
func buildProviderStore(cfg *config.Config, logger *observability.Logger) (sso.ProviderStore, *sso.FileProviderStore, error) {
	switch cfg.Storage.Type {
	case "sql":
		db, err := sql.Open(cfg.Storage.DatabaseDriver, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store := sso.NewSQLProviderStore(db)
		if err := store.Migrate(); err != nil {
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return store, nil, nil
	default:
		store, err := sso.NewFileProviderStore(cfg.Storage.ProviderDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
}

// buildStateStore selects Redis-backed or in-memory transient login state.
func buildStateStore(cfg *config.Config, logger *observability.Logger) (sso.TransientStateStore, error) {
	if cfg.Storage.RedisURL == "" {
		return sso.NewMemoryStateStore(cfg.SSO.StateTTL), nil
	}
	store, err := sso.NewRedisStateStore(cfg.Storage.RedisURL, cfg.SSO.StateTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("using Redis-backed transient state")
	return store, nil
}

func healthMux(metrics *observability.Metrics) *http.ServeMux {
	m := http.NewServeMux()
	m.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	m.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})
	if metrics != nil {
		m.Handle("/metrics", metrics.Handler())
	}
	return m
}
