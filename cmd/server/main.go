package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Skotchmaster/incident_desk/internal/audit"
	"github.com/Skotchmaster/incident_desk/internal/config"
	pkgdb "github.com/Skotchmaster/incident_desk/internal/db"
	"github.com/Skotchmaster/incident_desk/internal/es"
	"github.com/Skotchmaster/incident_desk/internal/httpserver"
	"github.com/Skotchmaster/incident_desk/internal/logging"
	"github.com/Skotchmaster/incident_desk/internal/metrics"
	authmw "github.com/Skotchmaster/incident_desk/internal/middleware/auth"
	"github.com/Skotchmaster/incident_desk/internal/mykafka"
	"github.com/Skotchmaster/incident_desk/internal/realtime"
	"github.com/Skotchmaster/incident_desk/internal/repo"
	"github.com/Skotchmaster/incident_desk/internal/service"
	"github.com/Skotchmaster/incident_desk/internal/storage"
	"github.com/Skotchmaster/incident_desk/internal/tokens"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	if err := cfg.RequireServer(); err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := pkgdb.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := pkgdb.Migrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	evidence, err := storage.NewLocal(cfg.UploadDir, "/uploads", cfg.MaxEvidenceBytes)
	if err != nil {
		log.Fatalf("upload dir: %v", err)
	}

	r := &repo.GormRepo{DB: db}

	sinks := []audit.Sink{audit.StoreSink(r)}
	esClient, err := es.NewClient(cfg, logger)
	switch {
	case err != nil:
		logger.Warn("audit_mirror_disabled", "reason", "elasticsearch unavailable", "error", err)
	case esClient != nil:
		indexer := &es.AuditIndexer{Client: esClient, Index: cfg.ESAuditIndex}
		ictx, icancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := indexer.EnsureIndex(ictx); err != nil {
			logger.Warn("audit_index_setup_failed", "index", cfg.ESAuditIndex, "error", err)
		}
		icancel()
		sinks = append(sinks, indexer)
	}
	recorder := audit.NewRecorder(logger, m, sinks...)

	registry := realtime.NewRegistry(realtime.DefaultBuffer, m)
	notifier := &realtime.Router{Registry: registry, Logger: logger, Metrics: m}

	var producer *mykafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = mykafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
		notifier.Publisher = producer
	}

	issuer := &tokens.Issuer{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}
	authSvc := &service.AuthService{Repo: r, Tokens: issuer}
	incidentSvc := &service.IncidentService{Repo: r, Notifier: notifier, Evidence: evidence}

	e := echo.New()
	e.HideBanner = true
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(httpserver.Common(httpserver.CommonOptions{
		Logger:    logger,
		Metrics:   m,
		ClientURL: cfg.ClientURL,
		BodyLimit: bodyLimit(cfg.MaxEvidenceBytes),
	})...)

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:     &httpserver.AuthHTTP{Svc: authSvc},
		IncidentHandler: &httpserver.IncidentHTTP{Svc: incidentSvc, Evidence: evidence},
		UserHandler:     &httpserver.UserHTTP{Svc: &service.UserService{Repo: r}},
		AuditHandler:    &httpserver.AuditHTTP{Svc: &service.AuditService{Repo: r}},
		HealthHandler:   &httpserver.HealthHTTP{DB: db},
		RealtimeHandler: &realtime.Handler{
			Registry:       registry,
			Auth:           authSvc,
			OriginPatterns: originPatterns(cfg.ClientURL),
		},
		AuthMW:     authmw.New(authSvc),
		Recorder:   recorder,
		Metrics:    metrics.Handler(reg),
		UploadDir:  cfg.UploadDir,
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateWindow,
	})

	// No read/write timeouts: /ws connections stay open.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server_shutdown_error", "error", err)
	}
	if err := notifier.Wait(shutdownCtx); err != nil {
		logger.Warn("event_publish_drain_error", "error", err)
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Warn("audit_drain_error", "error", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Warn("kafka_close_error", "error", err)
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("server_stopped")
}

// bodyLimit leaves room for a full set of evidence files plus form fields.
func bodyLimit(maxEvidence int64) string {
	total := maxEvidence*storage.MaxEvidenceFiles + 1<<20
	return fmt.Sprintf("%dK", total/1024)
}

func originPatterns(clientURL string) []string {
	u, err := url.Parse(clientURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
