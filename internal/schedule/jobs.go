package schedule

import (
	"context"
	"log/slog"

	"github.com/MikeSquared-Agency/casi/internal/cache"
	"github.com/MikeSquared-Agency/casi/internal/prune"
	"github.com/MikeSquared-Agency/casi/internal/scrape"
	"github.com/MikeSquared-Agency/casi/internal/store"
)

func PruneJob(spec string, p *prune.Pruner, opts prune.Options, logger *slog.Logger) Job {
	return Job{Name: "prune", Spec: spec, Run: func(ctx context.Context) error {
		res, err := p.Prune(ctx, opts)
		if err != nil {
			return err
		}
		logger.Info("scheduled prune complete", "deleted", res.Deleted(), "remaining", res.Remaining)
		return nil
	}}
}

func ReloadJob(spec string, c *cache.Cache, repo store.Repository) Job {
	return Job{Name: "cache_reload", Spec: spec, Run: func(ctx context.Context) error {
		_, err := c.Load(ctx, repo)
		return err
	}}
}

// IngestJob is disabled when urls is empty.
func IngestJob(spec string, in *scrape.Ingester, urls []string, logger *slog.Logger) Job {
	if len(urls) == 0 {
		spec = "off"
	}
	return Job{Name: "ingest", Spec: spec, Run: func(ctx context.Context) error {
		stored := in.IngestAll(ctx, urls)
		logger.Info("scheduled ingest complete", "urls", len(urls), "stored", stored)
		return nil
	}}
}
