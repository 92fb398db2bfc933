// Careerbot - lead-capturing chat backend
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/careerbot/internal/agent"
	"github.com/ashureev/careerbot/internal/api"
	"github.com/ashureev/careerbot/internal/config"
	"github.com/ashureev/careerbot/internal/health"
	"github.com/ashureev/careerbot/internal/lead"
	"github.com/ashureev/careerbot/internal/metrics"
	"github.com/ashureev/careerbot/internal/middleware"
	"github.com/ashureev/careerbot/internal/provider"
	"github.com/ashureev/careerbot/internal/session"
	"github.com/ashureev/careerbot/internal/setup"
	"github.com/ashureev/careerbot/internal/store"
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

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "store", cfg.Store.Backend, "dev", cfg.IsDevelopment())

	repo, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	slog.Info("Store connected")

	sessions, err := session.NewManager(ctx, repo)
	if err != nil {
		return err
	}
	if cfg.ClearOnStart {
		if err := sessions.ClearAll(ctx); err != nil {
			return err
		}
		slog.Info("Conversations cleared on startup")
	}

	leads, err := lead.NewBook(ctx, repo)
	if err != nil {
		return err
	}

	setups, err := setup.NewRegistry(ctx, repo)
	if err != nil {
		return err
	}
	if cfg.SetupsFile != "" {
		n, err := setups.LoadFile(ctx, cfg.SetupsFile)
		if err != nil {
			return err
		}
		slog.Info("Seeded setups", "file", cfg.SetupsFile, "added", n)
	}
	slog.Info("State restored", "conversations", sessions.Len(), "setups", setups.Len())

	providers, err := newProviders(cfg)
	if err != nil {
		return err
	}
	slog.Info("Providers ready", "names", providers.Names(), "default", cfg.DefaultProvider, "mock", cfg.UseMockLLM)

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("init conversation logger: %w", err)
	}

	origins := middleware.TrimOrigins(cfg.FrontendOrigins)
	svc := agent.NewService(sessions, leads, setups, providers)
	chatHandler := agent.NewHandler(svc, conversationLogger, agent.HandlerConfig{
		MaxRequestBodySize: cfg.MaxBodySize,
		AllowedOrigins:     origins,
	})
	defer chatHandler.Close()

	adminHandler := api.NewAdminHandler(sessions, leads, setups)
	healthHandler := api.NewHealthHandler(repo, 0)

	r := newRouter(origins, healthHandler, adminHandler, chatHandler)

	// SSE responses stay open for the whole turn, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if cfg.GRPCHealthPort != "" {
		hs := health.NewServer()
		hs.StartProbe(gctx, repo, cfg.ProbeInterval, 5*time.Second)
		g.Go(func() error {
			return hs.Serve(gctx, ":"+cfg.GRPCHealthPort)
		})
	}

	return g.Wait()
}

// newRouter assembles the middleware stack and every route group.
func newRouter(origins []string, healthHandler *api.HealthHandler, adminHandler *api.AdminHandler, chatHandler *agent.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(origins))

	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", metrics.Handler())
	adminHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)
	return r
}

// newProviders builds the provider registry. Mock mode registers offline
// providers under the real names so clients need no changes.
func newProviders(cfg *config.Config) (*provider.Registry, error) {
	if cfg.UseMockLLM {
		return provider.NewRegistry(cfg.DefaultProvider,
			provider.NewMock(provider.ChatGPT),
			provider.NewMock(provider.DeepSeek),
		)
	}

	var list []provider.Provider
	if cfg.OpenAI.APIKey != "" {
		p, err := provider.NewOpenAI(provider.OpenAIConfig{
			Name:        provider.ChatGPT,
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			StreamModel: cfg.OpenAI.StreamModel,
			Functions:   cfg.OpenAI.Functions,
		})
		if err != nil {
			return nil, fmt.Errorf("init %s: %w", provider.ChatGPT, err)
		}
		list = append(list, p)
	}
	if cfg.DeepSeek.APIKey != "" {
		p, err := provider.NewOpenAI(provider.OpenAIConfig{
			Name:      provider.DeepSeek,
			APIKey:    cfg.DeepSeek.APIKey,
			BaseURL:   cfg.DeepSeek.BaseURL,
			Model:     cfg.DeepSeek.Model,
			Functions: cfg.DeepSeek.Functions,
		})
		if err != nil {
			return nil, fmt.Errorf("init %s: %w", provider.DeepSeek, err)
		}
		list = append(list, p)
	}
	return provider.NewRegistry(cfg.DefaultProvider, list...)
}
