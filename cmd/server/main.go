package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/facturaIA/captcha-ocr-service/api"
	"github.com/facturaIA/captcha-ocr-service/internal/auth"
	"github.com/facturaIA/captcha-ocr-service/internal/config"
	"github.com/facturaIA/captcha-ocr-service/internal/db"
	"github.com/facturaIA/captcha-ocr-service/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher, closeBackends, err := buildDispatcher(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure OCR backends", "error", err)
		os.Exit(1)
	}
	defer closeBackends()

	opts := []api.Option{api.WithLogger(logger)}

	// Initialize database connection pool
	if cfg.Database.URL != "" {
		store, err := db.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err == nil {
			err = store.EnsureSchema(ctx)
			if err != nil {
				store.Close()
			}
		}
		if err != nil {
			logger.Warn("database not available, running in OCR-only mode (no audit log)", "error", err)
		} else {
			defer store.Close()
			opts = append(opts, api.WithStore(store))
			logger.Info("database connection pool initialized")
		}
	}

	// Initialize MinIO storage
	if cfg.Storage.Endpoint != "" {
		archive, err := storage.Open(ctx, storage.Options{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
			Region:    cfg.Storage.Region,
			Prefix:    cfg.Storage.Prefix,
		})
		if err != nil {
			logger.Warn("MinIO storage not available, samples will not be stored", "error", err)
		} else {
			opts = append(opts, api.WithArchive(archive))
			logger.Info("MinIO storage initialized", "bucket", archive.Bucket())
		}
	}

	handler := api.NewHandler(cfg, dispatcher, opts...)
	router := handler.SetupRoutes()

	authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.APIKeyHash)
	if !authenticator.Enabled() {
		logger.Warn("no api_key_hash or jwt_secret configured, API is unauthenticated")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.LogRequests(authenticator.Middleware(router)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	logger.Info("starting captcha OCR service",
		"version", api.Version,
		"addr", addr,
		"default_backend", cfg.OCR.DefaultBackend,
		"backends", strings.Join(dispatcher.Backends(), ","),
		"max_concurrent", cfg.Server.MaxConcurrent,
		"auth", authenticator.Enabled(),
	)
	logEndpoints(logger, addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func logEndpoints(logger *slog.Logger, addr string) {
	for _, e := range []string{
		"POST /api/ocr/{backend}          - Recognize a multipart upload",
		"POST /api/ocr/{backend}/base64   - Recognize a base64 image",
		"GET  /api/backends               - List backends",
		"GET  /api/recognitions           - Recent recognitions (requires DB)",
		"GET  /api/stats                  - Per-backend stats (requires DB)",
		"GET  /health                     - Health check",
		"POST /ocr/captcha, /ocr/captcha-base64, /ocr/captcha-easy, /ocr/captcha-easy-base64, /ocr/by-base64, /api/v1/ocr",
	} {
		logger.Info("endpoint", "route", e, "addr", addr)
	}
}
