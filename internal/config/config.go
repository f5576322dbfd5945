package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MikeSquared-Agency/casi/internal/casierr"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type Config struct {
	Port     int
	LogLevel string
	APIToken string

	Store       string
	SQLitePath  string
	DatabaseURL string
	MongoURI    string
	MongoDB     string
	RedisURL    string

	NatsURL   string
	NatsToken string

	Embedder           string
	EmbedDim           int
	Generator          string
	AnthropicAPIKey    string
	AnthropicModel     string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiEmbedModel   string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIEmbedModel   string
	KnowledgeURL       string
	KnowledgeSource    string
	KnowledgeRPS       float64
	MinConfidence      float64
	CacheSize          int
	SeedFile           string
	PruneSchedule      string
	PruneMaxDocs       int
	PruneMinConfidence float64
	PruneMinDiversity  float64
	ReloadSchedule     string
	IngestURLs         []string
	IngestSchedule     string
	IngestStatePath    string
	EmbedTimeout       time.Duration
	GenerateTimeout    time.Duration
	KnowledgeTimeout   time.Duration
	StoreTimeout       time.Duration
}

func Load() Config {
	return Config{
		Port:     envInt("CASI_PORT", 8760),
		LogLevel: envStr("LOG_LEVEL", "info"),
		APIToken: envStr("CASI_API_TOKEN", ""),

		Store:       strings.ToLower(envStr("CASI_STORE", StoreMemory)),
		SQLitePath:  envStr("CASI_SQLITE_PATH", "casi.db"),
		DatabaseURL: envStr("DATABASE_URL", ""),
		MongoURI:    envStr("MONGO_URI", ""),
		MongoDB:     envStr("CASI_MONGO_DB", "casi"),
		RedisURL:    envStr("REDIS_URL", ""),

		NatsURL:   envStr("NATS_URL", ""),
		NatsToken: envStr("NATS_TOKEN", ""),

		Embedder:           strings.ToLower(envStr("CASI_EMBEDDER", "hash")),
		EmbedDim:           envInt("CASI_EMBED_DIM", 384),
		Generator:          strings.ToLower(envStr("CASI_GENERATOR", "none")),
		AnthropicAPIKey:    envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:     envStr("CASI_ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		GeminiAPIKey:       envStr("GEMINI_API_KEY", ""),
		GeminiModel:        envStr("CASI_GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiEmbedModel:   envStr("CASI_GEMINI_EMBED_MODEL", "text-embedding-004"),
		OpenAIAPIKey:       envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      envStr("CASI_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIEmbedModel:   envStr("CASI_OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		KnowledgeURL:       envStr("CASI_KNOWLEDGE_URL", ""),
		KnowledgeSource:    envStr("CASI_KNOWLEDGE_SOURCE", "external"),
		KnowledgeRPS:       envFloat("CASI_KNOWLEDGE_RPS", 2),
		MinConfidence:      envFloat("CASI_MIN_CONFIDENCE", 0.95),
		CacheSize:          envInt("CASI_CACHE_SIZE", 5000),
		SeedFile:           envStr("CASI_SEED_FILE", ""),
		PruneSchedule:      envStr("CASI_PRUNE_SCHEDULE", "6h"),
		PruneMaxDocs:       envInt("CASI_PRUNE_MAX_DOCS", 5000),
		PruneMinConfidence: envFloat("CASI_PRUNE_MIN_CONFIDENCE", 0.9),
		PruneMinDiversity:  envFloat("CASI_PRUNE_MIN_DIVERSITY", 0.05),
		ReloadSchedule:     envStr("CASI_RELOAD_SCHEDULE", "1h"),
		IngestURLs:         envList("CASI_INGEST_URLS"),
		IngestSchedule:     envStr("CASI_INGEST_SCHEDULE", "6h"),
		IngestStatePath:    envStr("CASI_INGEST_STATE", "~/.casi/ingest-state.json"),
		EmbedTimeout:       envDuration("CASI_EMBED_TIMEOUT", 10*time.Second),
		GenerateTimeout:    envDuration("CASI_GENERATE_TIMEOUT", 30*time.Second),
		KnowledgeTimeout:   envDuration("CASI_KNOWLEDGE_TIMEOUT", 15*time.Second),
		StoreTimeout:       envDuration("CASI_STORE_TIMEOUT", 5*time.Second),
	}
}

// Validate reports the first setting the server cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return invalid("DATABASE_URL is required for the postgres store")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return invalid("MONGO_URI is required for the mongo store")
		}
	default:
		return invalid("unknown CASI_STORE %q", c.Store)
	}
	switch c.Embedder {
	case "hash", "gemini", "openai":
	default:
		return invalid("unknown CASI_EMBEDDER %q", c.Embedder)
	}
	switch c.Generator {
	case "none", "anthropic", "gemini":
	default:
		return invalid("unknown CASI_GENERATOR %q", c.Generator)
	}
	if c.EmbedDim <= 0 {
		return invalid("CASI_EMBED_DIM must be positive")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return invalid("CASI_MIN_CONFIDENCE must be in [0,1]")
	}
	if c.PruneMinConfidence < 0 || c.PruneMinConfidence > 1 {
		return invalid("CASI_PRUNE_MIN_CONFIDENCE must be in [0,1]")
	}
	if c.PruneMinDiversity < 0 || c.PruneMinDiversity > 1 {
		return invalid("CASI_PRUNE_MIN_DIVERSITY must be in [0,1]")
	}
	if c.PruneMaxDocs <= 0 {
		return invalid("CASI_PRUNE_MAX_DOCS must be positive")
	}
	for name, spec := range map[string]string{
		"CASI_PRUNE_SCHEDULE":  c.PruneSchedule,
		"CASI_RELOAD_SCHEDULE": c.ReloadSchedule,
		"CASI_INGEST_SCHEDULE": c.IngestSchedule,
	} {
		if _, _, err := ParseSchedule(spec); err != nil {
			return invalid("%s: %v", name, err)
		}
	}
	return nil
}

// ParseSchedule accepts either a Go duration ("6h") or a standard
// five-field cron expression. An empty or "off" spec disables the job.
func ParseSchedule(spec string) (time.Duration, string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "off" {
		return 0, "", nil
	}
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return 0, "", fmt.Errorf("interval must be positive")
		}
		return d, "", nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(spec); err != nil {
		return 0, "", fmt.Errorf("not a duration or cron expression: %w", err)
	}
	return 0, spec, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), casierr.ErrInvalidConfig)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
