package wire

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/MikeSquared-Agency/casi/internal/config"
	"github.com/MikeSquared-Agency/casi/internal/store/memstore"
	"github.com/MikeSquared-Agency/casi/internal/store/sqlitestore"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	repo, err := OpenStore(ctx, config.Config{Store: config.StoreMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := repo.(*memstore.Store); !ok {
		t.Errorf("expected memstore, got %T", repo)
	}

	repo, err = OpenStore(ctx, config.Config{Store: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "casi.db")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer repo.Close()
	if _, ok := repo.(*sqlitestore.Store); !ok {
		t.Errorf("expected sqlitestore, got %T", repo)
	}

	if _, err := OpenStore(ctx, config.Config{Store: "cassandra"}); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestEmbedder(t *testing.T) {
	svc, err := Embedder(context.Background(), config.Config{Embedder: "hash", EmbedDim: 64}, quiet())
	if err != nil {
		t.Fatalf("Embedder: %v", err)
	}
	if svc.Dimension() != 64 || svc.ModelName() != "hash" {
		t.Errorf("unexpected embedder %s/%d", svc.ModelName(), svc.Dimension())
	}
	if _, err := Embedder(context.Background(), config.Config{Embedder: "openai", EmbedDim: 64}, quiet()); err == nil {
		t.Error("expected an error without an OpenAI key")
	}
}

func TestGenerator(t *testing.T) {
	gen, err := Generator(context.Background(), config.Config{Generator: "none"})
	if err != nil || gen != nil {
		t.Errorf("none: gen=%v err=%v", gen, err)
	}
	if _, err := Generator(context.Background(), config.Config{Generator: "anthropic"}); err == nil {
		t.Error("expected an error without an Anthropic key")
	}
	gen, err = Generator(context.Background(), config.Config{Generator: "anthropic", AnthropicAPIKey: "k", AnthropicModel: "m"})
	if err != nil || gen == nil {
		t.Errorf("anthropic: gen=%v err=%v", gen, err)
	}
}
