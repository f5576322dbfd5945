package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/MikeSquared-Agency/casi/internal/cache"
	"github.com/MikeSquared-Agency/casi/internal/config"
	"github.com/MikeSquared-Agency/casi/internal/extract"
	"github.com/MikeSquared-Agency/casi/internal/learn"
	"github.com/MikeSquared-Agency/casi/internal/seed"
	"github.com/MikeSquared-Agency/casi/internal/wire"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	file := flag.String("file", cfg.SeedFile, "seed YAML file (default: built-in corpus)")
	reset := flag.Bool("reset", false, "delete every stored pattern before seeding")
	flag.Parse()

	wire.SetupLogging(cfg.LogLevel)
	logger := slog.Default()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Store == config.StoreMemory {
		slog.Warn("CASI_STORE=memory: seeded patterns are discarded on exit")
	}

	ctx := context.Background()
	entries, err := seed.Load(*file)
	if err != nil {
		slog.Error("failed to load seeds", "error", err)
		os.Exit(1)
	}

	repo, err := wire.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open pattern store", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	emb, err := wire.Embedder(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	loop := learn.New(repo, cache.New(cfg.CacheSize, logger), extract.New(), emb, nil, learn.Config{StoreTimeout: cfg.StoreTimeout}, logger)
	n, err := seed.New(repo, loop, emb, logger).Seed(ctx, entries, *reset)
	if err != nil {
		slog.Error("seeding failed", "stored", n, "error", err)
		os.Exit(1)
	}
	slog.Info("seeding complete", "stored", n, "reset", *reset, "store", cfg.Store)
}
