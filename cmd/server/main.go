package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nemui39/conversational-voice-agent/internal/config"
	"github.com/nemui39/conversational-voice-agent/internal/llm"
	"github.com/nemui39/conversational-voice-agent/internal/observability"
	"github.com/nemui39/conversational-voice-agent/internal/pipeline"
	"github.com/nemui39/conversational-voice-agent/internal/session"
	"github.com/nemui39/conversational-voice-agent/internal/stt"
	"github.com/nemui39/conversational-voice-agent/internal/tts"
	"github.com/nemui39/conversational-voice-agent/internal/work"
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
		Str("whisper_url", cfg.WhisperURL).
		Str("voicevox_url", cfg.VoicevoxURL).
		Str("gemini_model", cfg.GeminiModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Agent Service starting")

	// Service clients and the worker pool are process-wide, created once.
	transcriber := stt.NewWhisperClient(cfg)
	synthesizer := tts.NewVoicevoxClient(cfg)
	replier, err := llm.NewGeminiClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	orch := pipeline.NewOrchestrator(cfg, transcriber, replier, synthesizer)

	pool := work.NewPool(cfg.WorkerPoolSize, cfg.WorkerQueueSize, logger)
	pool.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", session.Handler(cfg, orch, transcriber, pool))
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"whisper":  transcriber.HealthCheck,
		"voicevox": synthesizer.HealthCheck,
		"gemini":   replier.HealthCheck,
	}))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
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
	}
	pool.Stop()

	logger.Info().Msg("Server exited gracefully")
}
