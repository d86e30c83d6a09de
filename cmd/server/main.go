package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/muse/internal/ai"
	"github.com/p-n-ai/muse/internal/api"
	"github.com/p-n-ai/muse/internal/content"
	"github.com/p-n-ai/muse/internal/curriculum"
	"github.com/p-n-ai/muse/internal/feedback"
	"github.com/p-n-ai/muse/internal/imagegen"
	"github.com/p-n-ai/muse/internal/platform/cache"
	"github.com/p-n-ai/muse/internal/platform/config"
	"github.com/p-n-ai/muse/internal/platform/database"
	"github.com/p-n-ai/muse/internal/state"
	"github.com/p-n-ai/muse/internal/study"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	storage, events, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStorage()

	catalog, err := curriculum.NewLoader(cfg.CatalogPath)
	if err != nil {
		slog.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}

	router := newRouter(cfg)
	slog.Info("AI providers registered", "providers", router.Providers())
	if !cfg.HasFallbackProvider() {
		slog.Warn("no fallback AI provider configured; Gemini outages will fail requests")
	}

	speech, err := ai.NewGenAISpeech(ctx, cfg.AI.Google.APIKey, ai.WithSpeechModel(cfg.AI.Google.TTSModel))
	if err != nil {
		slog.Error("failed to create speech client", "error", err)
		os.Exit(1)
	}

	svcCfg := content.ServiceConfig{
		Generator: router,
		Speaker:   speech,
		Styles:    catalog,
		Voice:     cfg.AI.Google.Voice,
	}
	if cfg.ImageEnabled() {
		svcCfg.Imager = imagegen.New(cfg.Image.HuggingFaceAPIKey, imagegen.WithModelURL(cfg.Image.ModelURL))
	}
	svc := content.NewService(svcCfg)

	manager := study.NewManager(study.Config{
		Storage:     storage,
		Content:     svc,
		Catalog:     catalog,
		Events:      events,
		IdleTimeout: time.Duration(cfg.Server.SessionIdleMinutes) * time.Minute,
	})
	go manager.Run(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Manager:  manager,
			Feedback: feedback.New(cfg.Feedback.Endpoint, nil),
		}),
		ReadTimeout: 10 * time.Second,
		// Unit tests on the larger model and streamed chat replies run long.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "storage", cfg.Storage.Backend, "images", cfg.ImageEnabled())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// openStorage connects the configured backend. Study events are recorded
// only on postgres. The returned func releases its connections.
func openStorage(ctx context.Context, cfg *config.Config) (state.Storage, study.EventLogger, func(), error) {
	quota := cfg.Storage.QuotaBytes
	noop := func() {}
	nop := study.NopEventLogger{}

	switch cfg.Storage.Backend {
	case "file":
		s, err := state.NewFileStorage(cfg.Storage.Dir, quota)
		return s, nop, noop, err
	case "redis":
		c, err := cache.New(ctx, cfg.Cache)
		if err != nil {
			return nil, nil, noop, err
		}
		return state.NewRedisStorage(c, quota), nop, func() { c.Close() }, nil
	case "postgres":
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, nil, noop, err
		}
		s, err := state.NewPostgresStorage(db.Pool, quota)
		if err != nil {
			db.Close()
			return nil, nil, noop, err
		}
		events, err := study.NewPostgresEventLogger(db.Pool)
		if err != nil {
			db.Close()
			return nil, nil, noop, err
		}
		return s, events, db.Close, nil
	default:
		return state.NewMemoryStorage(quota), nop, noop, nil
	}
}

// newRouter registers Gemini first, then every configured fallback.
func newRouter(cfg *config.Config) *ai.Router {
	router := ai.NewRouter()

	g := cfg.AI.Google
	router.Register("google", ai.NewGoogleProvider(g.APIKey,
		ai.WithGoogleModel(g.Model),
		ai.WithGoogleTaskModel(ai.TaskUnitTest, g.UnitTestModel),
	))

	if cfg.AI.OpenAI.APIKey != "" {
		var opts []ai.OpenAIOption
		if cfg.AI.OpenAI.BaseURL != "" {
			opts = append(opts, ai.WithBaseURL(cfg.AI.OpenAI.BaseURL))
		}
		router.Register("openai", ai.NewOpenAIProvider(cfg.AI.OpenAI.APIKey, opts...))
	}
	if cfg.AI.OpenRouter.APIKey != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(cfg.AI.OpenRouter.APIKey))
	}
	if cfg.AI.Anthropic.APIKey != "" {
		p, err := ai.NewAnthropicProvider(cfg.AI.Anthropic.APIKey)
		if err != nil {
			slog.Warn("skipping anthropic provider", "error", err)
		} else {
			router.Register("anthropic", p)
		}
	}
	if cfg.AI.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.AI.Ollama.URL))
	}
	return router
}
