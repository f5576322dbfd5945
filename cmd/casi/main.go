package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MikeSquared-Agency/casi/internal/api"
	"github.com/MikeSquared-Agency/casi/internal/cache"
	"github.com/MikeSquared-Agency/casi/internal/config"
	"github.com/MikeSquared-Agency/casi/internal/engine"
	"github.com/MikeSquared-Agency/casi/internal/extract"
	"github.com/MikeSquared-Agency/casi/internal/hermes"
	"github.com/MikeSquared-Agency/casi/internal/knowledge"
	"github.com/MikeSquared-Agency/casi/internal/learn"
	"github.com/MikeSquared-Agency/casi/internal/paraphrase"
	"github.com/MikeSquared-Agency/casi/internal/prune"
	"github.com/MikeSquared-Agency/casi/internal/schedule"
	"github.com/MikeSquared-Agency/casi/internal/scrape"
	"github.com/MikeSquared-Agency/casi/internal/seed"
	"github.com/MikeSquared-Agency/casi/internal/selector"
	"github.com/MikeSquared-Agency/casi/internal/synth"
	"github.com/MikeSquared-Agency/casi/internal/wire"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	wire.SetupLogging(cfg.LogLevel)
	logger := slog.Default()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("casi starting", "port", cfg.Port, "store", cfg.Store, "embedder", cfg.Embedder, "generator", cfg.Generator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repository
	repo, err := wire.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open pattern store", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("pattern store ready", "backend", cfg.Store)

	// Models
	emb, err := wire.Embedder(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	gen, err := wire.Generator(ctx, cfg)
	if err != nil {
		slog.Error("failed to create text generator", "error", err)
		os.Exit(1)
	}
	if gen == nil {
		slog.Warn("no text generator configured, paraphrasing disabled")
	}

	// NATS/Hermes (optional; without it replicas don't share learned patterns)
	var (
		hermesClient *hermes.Client
		pub          learn.Publisher
	)
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		pub = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running as a single replica")
	}

	// Knowledge service (optional)
	knowCfg := knowledge.Config{
		URL:     cfg.KnowledgeURL,
		Source:  cfg.KnowledgeSource,
		RPS:     cfg.KnowledgeRPS,
		Timeout: cfg.KnowledgeTimeout,
	}
	if cfg.RedisURL != "" {
		rdb, err := knowledge.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, knowledge cache is process-local", "error", err)
		} else {
			defer rdb.Close()
			knowCfg.Redis = rdb
		}
	}
	know, err := knowledge.New(knowCfg, logger)
	if err != nil {
		slog.Error("invalid knowledge service configuration", "error", err)
		os.Exit(1)
	}

	// Pipeline
	ex := extract.New()
	retrieval := cache.New(cfg.CacheSize, logger)
	loop := learn.New(repo, retrieval, ex, emb, pub, learn.Config{StoreTimeout: cfg.StoreTimeout, VoteWait: cfg.EmbedTimeout + cfg.StoreTimeout}, logger)
	loop.Start(ctx)

	entries, err := seed.Load(cfg.SeedFile)
	if err != nil {
		slog.Error("failed to load seed corpus", "error", err)
		os.Exit(1)
	}
	if n, err := seed.New(repo, loop, emb, logger).IfEmpty(ctx, entries); err != nil {
		slog.Warn("seeding failed", "error", err)
	} else if n > 0 {
		slog.Info("empty store seeded", "patterns", n)
	}
	if _, err := retrieval.Load(ctx, repo); err != nil {
		slog.Warn("initial cache load failed", "error", err)
	}

	sel := selector.New(repo, retrieval, emb, ex, selector.Config{MinConfidence: cfg.MinConfidence, StoreTimeout: cfg.StoreTimeout}, logger)
	syn := synth.New(emb, paraphrase.New(gen, cfg.GenerateTimeout, logger), ex, logger)
	eng := engine.New(sel, syn, know, loop, ex, logger)

	pruner := prune.New(repo, emb, retrieval, logger)
	pruneOpts := prune.Options{
		MaxDocs:       cfg.PruneMaxDocs,
		MinConfidence: cfg.PruneMinConfidence,
		MinDiversity:  cfg.PruneMinDiversity,
	}
	state, err := scrape.LoadState(cfg.IngestStatePath)
	if err != nil {
		slog.Warn("ingest state unreadable, starting fresh", "path", cfg.IngestStatePath, "error", err)
		state, _ = scrape.LoadState("")
	}
	ingester := scrape.New(loop, ex, state, cfg.KnowledgeTimeout, logger)

	// Event subscriptions
	if hermesClient != nil {
		if err := hermesClient.OnPatternLearned(loop.Learned); err != nil {
			slog.Error("failed to subscribe to learned patterns", "error", err)
			os.Exit(1)
		}
		if err := hermesClient.OnVote(eng.HandleVote); err != nil {
			slog.Error("failed to subscribe to votes", "error", err)
			os.Exit(1)
		}
	}

	// Maintenance jobs
	sched, err := schedule.New(logger)
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	for _, job := range []schedule.Job{
		schedule.PruneJob(cfg.PruneSchedule, pruner, pruneOpts, logger),
		schedule.ReloadJob(cfg.ReloadSchedule, retrieval, repo),
		schedule.IngestJob(cfg.IngestSchedule, ingester, cfg.IngestURLs, logger),
	} {
		if _, err := sched.Add(job); err != nil {
			slog.Error("failed to schedule job", "job", job.Name, "error", err)
			os.Exit(1)
		}
	}
	sched.Start()

	// HTTP API
	srv := api.NewServer(cfg.Port, api.Deps{
		Engine:        eng,
		Pruner:        pruner,
		PruneDefaults: pruneOpts,
		Ingester:      ingester,
		Reload:        func(ctx context.Context) (int, error) { return retrieval.Load(ctx, repo) },
		CacheSize:     retrieval.Len,
		Status: api.Status{
			Store:     cfg.Store,
			Embedder:  emb.ModelName(),
			Generator: cfg.Generator,
			Knowledge: know.Enabled(),
		},
		APIToken:        cfg.APIToken,
		GenerateTimeout: cfg.GenerateTimeout,
		Logger:          logger,
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// Announce registration
	if hermesClient != nil {
		if err := hermesClient.Publish(hermes.SubjectRegistered, hermes.Registered{
			Origin:    hermesClient.Origin(),
			Port:      cfg.Port,
			Store:     cfg.Store,
			Embedder:  emb.ModelName(),
			Timestamp: time.Now().UTC(),
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("casi ready", "port", cfg.Port, "cache_patterns", retrieval.Len())

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := sched.Stop(); err != nil {
		slog.Warn("scheduler shutdown incomplete", "error", err)
	}
	loop.Stop()
	cancel()
	slog.Info("casi stopped")
}
