// Package main is the entry point for the assistant service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vanilka-ai/bento-assistant/internal/config"
	"github.com/vanilka-ai/bento-assistant/internal/handler"
	"github.com/vanilka-ai/bento-assistant/internal/history"
	"github.com/vanilka-ai/bento-assistant/internal/knowledge"
	"github.com/vanilka-ai/bento-assistant/internal/llm"
	"github.com/vanilka-ai/bento-assistant/internal/middleware"
	natsclient "github.com/vanilka-ai/bento-assistant/internal/nats"
	"github.com/vanilka-ai/bento-assistant/internal/orchestrator"
	"github.com/vanilka-ai/bento-assistant/internal/prompt"
	"github.com/vanilka-ai/bento-assistant/internal/transcribe"
	"github.com/vanilka-ai/bento-assistant/pkg/logger"
	"github.com/vanilka-ai/bento-assistant/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting assistant service")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "bento-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	// Ensure the outbound delivery stream exists
	publisher := natsclient.NewPublisher(natsClient)
	if err := publisher.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure outbound stream", zap.Error(err))
		os.Exit(1)
	}

	// Open the turn store
	store, err := history.NewStore(cfg.HistoryDBPath, cfg.MaxHistoryTurns)
	if err != nil {
		log.Error("failed to open turn store", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	// Knowledge provider: Drive when configured, local file otherwise.
	var fetcher knowledge.Fetcher
	if cfg.DriveFileID != "" {
		fetcher, err = knowledge.NewDriveFetcher(ctx, cfg.DriveFileID, cfg.GoogleCredentialsFile, cfg.KnowledgeCachePath, log)
		if err != nil {
			log.Error("failed to create drive fetcher", zap.Error(err))
			os.Exit(1)
		}
	} else {
		fetcher = knowledge.NewFileFetcher(cfg.KnowledgeCachePath)
	}

	provider := knowledge.NewProvider(fetcher, log)
	if _, err := provider.Reload(ctx); err != nil {
		// Turns degrade to the no-knowledge placeholder until a reload
		// succeeds; the service still starts.
		log.Warn("initial knowledge load failed", zap.Error(err))
	}

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	provider.StartRefresh(refreshCtx, cfg.KnowledgeRefresh)

	// Completion client with bounded retries
	baseClient, err := llm.NewClient(llm.Provider(cfg.DefaultLLM), completionAPIKey(cfg), cfg.OpenAIBaseURL)
	if err != nil {
		log.Error("failed to create completion client", zap.Error(err))
		os.Exit(1)
	}
	completion := llm.WithRetry(baseClient, llm.RetryPolicy{
		MaxRetries:  cfg.MaxRetries,
		InitialWait: cfg.RetryInitialWait,
		Timeout:     cfg.CompletionTimeout,
	}, log)

	// Voice transcription
	transcriber, err := transcribe.NewWhisperTranscriber(cfg.OpenAIAPIKey, cfg.WhisperModel)
	if err != nil {
		log.Error("failed to create transcriber", zap.Error(err))
		os.Exit(1)
	}

	// Orchestrator
	orch := orchestrator.New(
		store,
		provider,
		transcriber,
		completion,
		publisher,
		prompt.NewBuilder(cfg.ContextCharBudget, cfg.KnowledgeMaxChars),
		orchestrator.Config{
			MaxHistoryTurns: cfg.MaxHistoryTurns,
			CompletionModel: cfg.CompletionModel,
		},
		log,
	)

	// Handlers
	healthHandler := handler.NewHealthHandler(natsClient, store)

	// The turn deadline must outlive the worst-case completion retry
	// schedule, or a hung provider leaves no time to emit the apology.
	turnTimeout := time.Duration(cfg.MaxRetries+1)*cfg.CompletionTimeout + 30*time.Second
	webhookHandler := handler.NewWebhookHandler(orch, log, turnTimeout)
	adminHandler := handler.NewAdminHandler(store, provider, orch, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Inbound events from the chat-platform bridge
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/webhook", webhookHandler.Receive)
	})

	// Admin surface
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWTSecret, cfg.IsAdmin))
		r.Use(middleware.AdminRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/stats", adminHandler.Stats)
		r.Post("/knowledge/reload", adminHandler.ReloadKnowledge)
		r.Post("/broadcast", adminHandler.Broadcast)
		r.Delete("/history/{userID}", adminHandler.ResetHistory)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func completionAPIKey(cfg *config.Config) string {
	if cfg.DefaultLLM == string(llm.ProviderAnthropic) {
		return cfg.AnthropicAPIKey
	}
	return cfg.OpenAIAPIKey
}
