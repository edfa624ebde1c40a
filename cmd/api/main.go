// Package main is the entry point for the API server.
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

	"github.com/nomas-app/companion-platform/internal/config"
	"github.com/nomas-app/companion-platform/internal/events"
	"github.com/nomas-app/companion-platform/internal/exchange"
	"github.com/nomas-app/companion-platform/internal/handler"
	"github.com/nomas-app/companion-platform/internal/llm"
	"github.com/nomas-app/companion-platform/internal/middleware"
	"github.com/nomas-app/companion-platform/internal/session"
	"github.com/nomas-app/companion-platform/internal/store"
	"github.com/nomas-app/companion-platform/pkg/logger"
	"github.com/nomas-app/companion-platform/pkg/tracing"
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

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "companion-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open storage
	db, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS; the summarize/event pipeline is best effort and the
	// server still runs without it.
	var natsClient *events.Client
	var publisher *events.Publisher
	natsClient, err = events.Connect(ctx, events.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Warn("NATS unavailable, summarize and event publishing disabled", zap.Error(err))
		natsClient = nil
	} else {
		defer natsClient.Close()
		publisher = events.NewPublisher(natsClient, log)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Warn("failed to ensure stream", zap.Error(err))
		}
	}

	// Pick the exchanger: a remote edge function when configured, the local
	// LLM-backed one otherwise.
	var exchanger session.Exchanger
	if cfg.ExchangeEndpoint != "" {
		exchanger = exchange.NewHTTP(cfg.ExchangeEndpoint, cfg.ExchangeBearer, &http.Client{Timeout: 30 * time.Second})
	} else {
		apiKey := cfg.AnthropicAPIKey
		if llm.Provider(cfg.LLMProvider) == llm.ProviderOpenAI {
			apiKey = cfg.OpenAIAPIKey
		}
		provider, err := llm.NewClient(llm.Provider(cfg.LLMProvider), apiKey)
		if err != nil {
			log.Error("no exchange endpoint and no usable LLM credentials", zap.Error(err))
			os.Exit(1)
		}
		exchanger = exchange.NewLLM(provider, db, db, db, cfg.DailyMessageLimit, cfg.LLMModel)
	}

	// Session registry: one manager per authenticated user.
	deps := session.Deps{
		Conversations: db,
		Messages:      db,
		Usage:         db,
		Exchanger:     exchanger,
		Logger:        log,
		DailyLimit:    cfg.DailyMessageLimit,
		PageSize:      cfg.PageSize,
	}
	if publisher != nil {
		deps.Summarizer = publisher
		deps.Events = publisher
	}
	sessions := session.NewRegistry(deps)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(db, natsClient)
	conversationHandler := handler.NewConversationHandler(sessions, log)
	messageHandler := handler.NewMessageHandler(sessions, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/usage", messageHandler.Usage)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", conversationHandler.Update)
				r.Delete("/", conversationHandler.Delete)
				r.Post("/select", conversationHandler.Select)
				r.Post("/summarize", conversationHandler.Summarize)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
			})
		})
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
