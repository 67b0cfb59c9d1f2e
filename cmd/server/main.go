package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxline/session-gateway/internal/config"
	"github.com/voxline/session-gateway/internal/gateway"
	"github.com/voxline/session-gateway/internal/observability"
	"github.com/voxline/session-gateway/internal/weather"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("transcription_url", cfg.TranscriptionURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Session Gateway starting")

	registry := gateway.NewRegistry()

	mux := http.NewServeMux()

	// Voice session WebSocket endpoint
	mux.Handle("/ws", gateway.NewHandler(cfg, registry))

	// Weather passthrough for browser clients
	mux.Handle("/api/weather", weather.NewHandler(cfg))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness checks validate configured endpoints without spending
	// provider credits
	checks := map[string]observability.CheckFunc{
		"transcription_endpoint": endpointCheck(cfg.TranscriptionURL),
		"synthesis_endpoint":     endpointCheck(cfg.SynthesisURL),
		"search_endpoint":        endpointCheck(cfg.SearchURL),
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Demo client
	mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
		os.Exit(1)
	}

	logger.Info().Msg("Server exited")
}

// endpointCheck verifies a configured provider URL parses and names a host.
func endpointCheck(rawURL string) observability.CheckFunc {
	return func(ctx context.Context) (bool, error) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return false, fmt.Errorf("invalid endpoint %q: %w", rawURL, err)
		}
		if u.Host == "" {
			return false, fmt.Errorf("endpoint %q has no host", rawURL)
		}
		return true, nil
	}
}
