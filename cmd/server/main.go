// Asset Engine Server
//
// Features:
// - Upload/download/delete of documents, images and videos
// - Purchase-based entitlement with preview support
// - PDF footer stamping and preview watermarking
// - Post-upload integrity verification
// - Prometheus metrics & structured logging (zap)
// - S3 or local filesystem object storage
package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/skillforge/assetengine/internal/api"
	"github.com/skillforge/assetengine/internal/assets"
	"github.com/skillforge/assetengine/internal/auth"
	"github.com/skillforge/assetengine/internal/config"
	"github.com/skillforge/assetengine/internal/entitlement"
	"github.com/skillforge/assetengine/internal/logging"
	"github.com/skillforge/assetengine/internal/metadata/postgres"
	"github.com/skillforge/assetengine/internal/metrics"
	"github.com/skillforge/assetengine/internal/model"
	"github.com/skillforge/assetengine/internal/storage"
	"github.com/skillforge/assetengine/internal/storage/local"
	s3storage "github.com/skillforge/assetengine/internal/storage/s3"
	"github.com/skillforge/assetengine/internal/transform"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Asset Engine Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("backend", cfg.StorageBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logging.Info("connecting to PostgreSQL...")
	metaStore, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer metaStore.Close()

	// Run migrations
	if cfg.MigrationsDir != "" {
		logging.Info("running migrations...", zap.String("dir", cfg.MigrationsDir))
		if err := metaStore.Migrate(cfg.MigrationsDir); err != nil {
			logging.Fatal("migration failed", zap.Error(err))
		}
	}

	// Initialize storage backend
	var backend storage.Backend
	if cfg.StorageBackend == "s3" {
		backend, err = s3storage.New(ctx, s3storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	} else {
		backend, err = local.New(local.Config{
			RootPath:   cfg.LocalStoragePath,
			CreateDirs: true,
		})
	}
	if err != nil {
		logging.Fatal("storage backend init failed", zap.Error(err))
	}
	defer backend.Close()

	keys := assets.KeyScheme{
		Environment: cfg.Environment,
		Tier:        cfg.VisibilityTier,
	}

	validator := &assets.Validator{Metadata: metaStore, MaxSize: cfg.MaxUploadSize}
	uploader := &assets.Uploader{Backend: backend, Metadata: metaStore, Keys: keys}
	deleter := &assets.Deleter{Backend: backend, Metadata: metaStore, Keys: keys, LegacyFallback: cfg.LegacyKeyFallback}
	reconciler := &assets.Reconciler{
		Backend:       backend,
		Metadata:      metaStore,
		Keys:          keys,
		RaceThreshold: cfg.RaceThreshold,
		RetryWait:     cfg.RetryWait,
	}
	verifier := &assets.Verifier{Backend: backend}

	resolver := entitlement.NewSQLResolver(metaStore.DB())

	pipeline := &transform.Pipeline{
		Stamper:        transform.NewPDFStamper(),
		FooterDefaults: model.FooterSettings{Text: cfg.FooterText},
		WatermarkText:  cfg.WatermarkText,
	}

	authHandler := auth.New(cfg.JWTSecret)

	// Create API server
	srv := api.NewServer(
		metaStore, backend, authHandler,
		validator, uploader, deleter, reconciler, verifier,
		resolver, pipeline, keys, cfg,
		metaStore.Ping,
	)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP(S) server
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	useTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Close()
	}()

	// Start periodic metrics update
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metaStore.UpdateConnectionMetrics()
			}
		}
	}()

	if useTLS {
		logging.Info("server listening (TLS)", zap.String("addr", cfg.ListenAddr))
		err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
		err = httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}
