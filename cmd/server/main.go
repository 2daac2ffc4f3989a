package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samvaad-ai/speech-service/cmd/server/internal/api"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/config"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/metrics"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/middleware"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/pipeline"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/pipeline/diarizer"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/pipeline/health"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/pipeline/recognizer"
	"github.com/samvaad-ai/speech-service/cmd/server/internal/transcript"
	"github.com/samvaad-ai/speech-service/pkg/logger"
)

func main() {
	logInstance, err := logger.Init(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: os.Getenv("ENV"),
		WithSource:  !strings.EqualFold(os.Getenv("ENV"), "production"),
		FilePath:    os.Getenv("LOG_FILE"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "speech-server")

	cfg, err := config.LoadConfig()
	if err != nil {
		appLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	profile := cfg.ResolveModelProfile()
	appLogger.Info("model profile resolved",
		"device", profile.Device,
		"compute_type", profile.ComputeType,
		"model", profile.Model)

	// Provider singletons; models are loaded once by the sidecars.
	diar := diarizer.NewPyannoteClient(cfg.Providers.DiarizerURL, cfg.Providers.HuggingFaceToken)
	rec := recognizer.NewFasterWhisperClient(cfg.Providers.RecognizerURL)

	defaultStrategy, err := transcript.ParseStrategy(cfg.Audio.DefaultStrategy)
	if err != nil {
		appLogger.Error("invalid default strategy", "error", err)
		os.Exit(1)
	}

	pipe, err := pipeline.New(diar, rec, pipeline.Config{
		TempDir:             cfg.Audio.TempDir,
		Model:               profile.Model,
		DefaultBeamSize:     cfg.Audio.DefaultBeamSize,
		DefaultStrategy:     defaultStrategy,
		DiarizerReentrant:   cfg.Providers.DiarizerReentrant,
		RecognizerReentrant: cfg.Providers.RecognizerReentrant,
	}, appLogger.With("component", "pipeline"))
	if err != nil {
		appLogger.Error("pipeline init failed", "error", err)
		os.Exit(1)
	}

	// Background health probing for both providers.
	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	checkers := map[string]*health.Checker{
		diar.Name(): health.NewChecker(diar, appLogger.With("component", "health"), cfg.Health.CheckInterval, cfg.Health.FailThreshold),
		rec.Name():  health.NewChecker(rec, appLogger.With("component", "health"), cfg.Health.CheckInterval, cfg.Health.FailThreshold),
	}
	for _, checker := range checkers {
		go checker.Start(healthCtx)
	}
	go publishReadiness(healthCtx, checkers)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.MaxMultipartMemory = cfg.Server.MaxUploadSize

	api.NewHandler(pipe, cfg.Server.MaxUploadSize, checkers).RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    cfg.GetServerAddr(),
		Handler: r,
	}

	go func() {
		appLogger.Info("server starting", "addr", srv.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	stopHealth()
	for _, checker := range checkers {
		checker.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server shutdown complete")
}

// publishReadiness mirrors the aggregate provider health into the readiness
// gauge every 30 seconds.
func publishReadiness(ctx context.Context, checkers map[string]*health.Checker) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ready := true
			for _, checker := range checkers {
				if !checker.GetStatus().IsHealthy {
					ready = false
					break
				}
			}
			metrics.SetProvidersReady(ready)
		case <-ctx.Done():
			return
		}
	}
}
