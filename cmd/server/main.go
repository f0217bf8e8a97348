// RegDesk - Conversational Registration Assistant Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/akulikov/regdesk/internal/api"
	"github.com/akulikov/regdesk/internal/config"
	"github.com/akulikov/regdesk/internal/crud"
	"github.com/akulikov/regdesk/internal/dialogue"
	"github.com/akulikov/regdesk/internal/middleware"
	"github.com/akulikov/regdesk/internal/nlu"
	"github.com/akulikov/regdesk/internal/session"
	"github.com/akulikov/regdesk/internal/store"
	"github.com/akulikov/regdesk/internal/transcript"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Intent classification: keyword rules, escalating to Gemini when an
	// API key is configured.
	var classifier nlu.Classifier = nlu.NewRuleClassifier()
	if cfg.GeminiAPIKey != "" {
		gemini, err := nlu.NewGeminiClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			slog.Warn("Failed to initialize Gemini classifier, falling back to keyword rules", "error", err)
		} else {
			classifier = gemini
			slog.Info("Gemini classifier initialized", "model", cfg.GeminiModel)
		}
	} else {
		slog.Info("Model-backed classification disabled (GEMINI_API_KEY not set)")
	}

	transcripts, err := transcript.New(transcript.Config{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	// Initialize services.
	sessions := session.NewStore(cfg.SessionTTL)
	sessions.StartSweeper(ctx, cfg.SweepInterval)
	slog.Info("Session sweeper started", "ttl", cfg.SessionTTL, "interval", cfg.SweepInterval)

	dispatcher := crud.NewDispatcher(repo, logger)
	engine := dialogue.New(sessions, classifier, dispatcher, logger,
		dialogue.WithTranscript(transcripts),
		dialogue.WithMaxRetries(cfg.MaxFieldRetries),
	)

	// Initialize handlers.
	chatHandler := api.NewHandler(engine, repo)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := api.NewWebSocketHandler(engine, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket chat sessions keep connections open indefinitely.
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
