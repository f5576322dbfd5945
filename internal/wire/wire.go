package wire

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/MikeSquared-Agency/casi/internal/anthropic"
	"github.com/MikeSquared-Agency/casi/internal/config"
	"github.com/MikeSquared-Agency/casi/internal/embedding"
	"github.com/MikeSquared-Agency/casi/internal/gemini"
	"github.com/MikeSquared-Agency/casi/internal/paraphrase"
	"github.com/MikeSquared-Agency/casi/internal/store"
	"github.com/MikeSquared-Agency/casi/internal/store/memstore"
	"github.com/MikeSquared-Agency/casi/internal/store/mongostore"
	"github.com/MikeSquared-Agency/casi/internal/store/sqlitestore"
)

// OpenStore connects the repository selected by cfg.Store.
func OpenStore(ctx context.Context, cfg config.Config) (store.Repository, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memstore.New(), nil
	case config.StoreSQLite:
		db, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.StorePostgres:
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx, cfg.EmbedDim); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return pg, nil
	case config.StoreMongo:
		m, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("open store: unknown backend %q", cfg.Store)
	}
}

// Embedder wraps the configured embedding model in a Service.
func Embedder(ctx context.Context, cfg config.Config, logger *slog.Logger) (*embedding.Service, error) {
	var model embedding.Model
	switch cfg.Embedder {
	case "gemini":
		g, err := gemini.New(ctx, gemini.Config{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			EmbedModel: cfg.GeminiEmbedModel,
			Dimension:  cfg.EmbedDim,
		})
		if err != nil {
			return nil, err
		}
		model = g
	case "openai":
		o, err := embedding.NewOpenAI(embedding.OpenAIConfig{
			BaseURL:   cfg.OpenAIBaseURL,
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.OpenAIEmbedModel,
			Dimension: cfg.EmbedDim,
		})
		if err != nil {
			return nil, err
		}
		model = o
	default:
		model = embedding.NewHash(cfg.EmbedDim)
	}
	return embedding.NewService(model, cfg.CacheSize, cfg.EmbedTimeout, logger)
}

// Generator returns the configured paraphrase generator, or nil for "none".
func Generator(ctx context.Context, cfg config.Config) (paraphrase.Generator, error) {
	switch cfg.Generator {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("generator: ANTHROPIC_API_KEY is required")
		}
		return anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	case "gemini":
		g, err := gemini.New(ctx, gemini.Config{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			EmbedModel: cfg.GeminiEmbedModel,
			Dimension:  cfg.EmbedDim,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, nil
	}
}

// SetupLogging installs a JSON handler on stdout at level.
func SetupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
