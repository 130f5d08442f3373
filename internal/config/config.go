package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	GitHub    GitHubConfig    `yaml:"github"`
	Providers ProvidersConfig `yaml:"providers"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Retry     RetryConfig     `yaml:"retry"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Commits   CommitsConfig   `yaml:"commits"`
	Server    ServerConfig    `yaml:"server"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// GitHubConfig holds GitHub authentication and request pacing settings.
// Auth is "token" (default) or "app".
type GitHubConfig struct {
	Auth              string   `yaml:"auth"`
	Token             string   `yaml:"token"`
	AppID             string   `yaml:"app_id"`
	InstallationID    string   `yaml:"installation_id"`
	PrivateKeyPath    string   `yaml:"private_key_path"`
	PrivateKey        string   `yaml:"private_key"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	LoadConcurrency   int      `yaml:"load_concurrency"`
	MaxFileBytes      int      `yaml:"max_file_bytes"`
	IgnorePaths       []string `yaml:"ignore_paths"`
}

// ProviderConfig holds settings for a single provider (embedding or LLM).
type ProviderConfig struct {
	Type   string `yaml:"type"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`
}

// ProvidersConfig groups embedding and LLM provider configs.
type ProvidersConfig struct {
	Embedding ProviderConfig `yaml:"embedding"`
	LLM       ProviderConfig `yaml:"llm"`
}

// StoreConfig selects the storage backend. Driver is "sqlite" (default,
// using Path) or "postgres" (using DSN).
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// CacheConfig selects the commit summary cache: "memory" (default),
// "redis" or "none".
type CacheConfig struct {
	Type     string `yaml:"type"`
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RetryConfig is the backoff policy shared by ingestion, commit summaries
// and question answering.
type RetryConfig struct {
	BaseRaw      string  `yaml:"base"`
	MaxDelayRaw  string  `yaml:"max_delay"`
	JitterFactor float64 `yaml:"jitter_factor"`
	MaxAttempts  int     `yaml:"max_attempts"`
}

// IngestConfig tunes the batch embedding pipeline.
type IngestConfig struct {
	BatchSize        int    `yaml:"batch_size"`
	TimeoutRaw       string `yaml:"timeout"`
	BatchDelayRaw    string `yaml:"batch_delay"`
	MinBatchDelayRaw string `yaml:"min_batch_delay"`
	MaxSourceChars   int    `yaml:"max_source_chars"`
	SaveConcurrency  int    `yaml:"save_concurrency"`
}

// RetrievalConfig tunes question answering.
type RetrievalConfig struct {
	Threshold       float64 `yaml:"threshold"`
	TopK            int     `yaml:"top_k"`
	MaxContextChars int     `yaml:"max_context_chars"`
}

// CommitsConfig tunes commit polling and summaries.
type CommitsConfig struct {
	Limit           int    `yaml:"limit"`
	Concurrency     int    `yaml:"concurrency"`
	PollIntervalRaw string `yaml:"poll_interval"`
	SummaryTTLRaw   string `yaml:"summary_ttl"`
	MaxDiffChars    int    `yaml:"max_diff_chars"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr               string `yaml:"addr"`
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout"`
}

// NotifyConfig holds notification webhook URLs.
type NotifyConfig struct {
	SlackWebhook   string `yaml:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook"`
}

// Base returns the parsed retry base delay.
func (r RetryConfig) Base() time.Duration { return mustDuration(r.BaseRaw) }

// MaxDelay returns the parsed retry delay cap.
func (r RetryConfig) MaxDelay() time.Duration { return mustDuration(r.MaxDelayRaw) }

// Timeout returns the parsed per-document attempt timeout.
func (i IngestConfig) Timeout() time.Duration { return mustDuration(i.TimeoutRaw) }

// BatchDelay returns the parsed pause target between batches.
func (i IngestConfig) BatchDelay() time.Duration { return mustDuration(i.BatchDelayRaw) }

// MinBatchDelay returns the parsed minimum pause between batches.
func (i IngestConfig) MinBatchDelay() time.Duration { return mustDuration(i.MinBatchDelayRaw) }

// PollInterval returns the parsed commit poll interval.
func (c CommitsConfig) PollInterval() time.Duration { return mustDuration(c.PollIntervalRaw) }

// SummaryTTL returns the parsed commit summary cache TTL.
func (c CommitsConfig) SummaryTTL() time.Duration { return mustDuration(c.SummaryTTLRaw) }

// ShutdownTimeout returns the parsed graceful shutdown timeout.
func (s ServerConfig) ShutdownTimeout() time.Duration { return mustDuration(s.ShutdownTimeoutRaw) }

// mustDuration parses a duration already checked by validate.
func mustDuration(raw string) time.Duration {
	d, _ := time.ParseDuration(raw)
	return d
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Default returns a config with every default applied, as used when no
// config file exists.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

func applyDefaults(cfg *Config) {
	setDefault(&cfg.GitHub.Auth, "token")
	setDefault(&cfg.GitHub.RequestsPerSecond, 10)
	setDefault(&cfg.GitHub.Burst, 5)
	setDefault(&cfg.GitHub.LoadConcurrency, 5)
	setDefault(&cfg.GitHub.MaxFileBytes, 1<<20)

	setDefault(&cfg.Store.Driver, "sqlite")
	if cfg.Store.Driver == "sqlite" {
		setDefault(&cfg.Store.Path, "~/.codebrief/codebrief.db")
		cfg.Store.Path = expandTilde(cfg.Store.Path)
	}

	setDefault(&cfg.Cache.Type, "memory")
	if cfg.Cache.Type == "redis" {
		setDefault(&cfg.Cache.Addr, "localhost:6379")
	}

	setDefault(&cfg.Retry.BaseRaw, "1s")
	setDefault(&cfg.Retry.MaxDelayRaw, "60s")
	setDefault(&cfg.Retry.JitterFactor, 0.2)
	setDefault(&cfg.Retry.MaxAttempts, 10)

	setDefault(&cfg.Ingest.BatchSize, 3)
	setDefault(&cfg.Ingest.TimeoutRaw, "30s")
	setDefault(&cfg.Ingest.BatchDelayRaw, "10s")
	setDefault(&cfg.Ingest.MinBatchDelayRaw, "1s")
	setDefault(&cfg.Ingest.MaxSourceChars, 8000)
	setDefault(&cfg.Ingest.SaveConcurrency, 8)

	setDefault(&cfg.Retrieval.Threshold, 0.5)
	setDefault(&cfg.Retrieval.TopK, 10)
	setDefault(&cfg.Retrieval.MaxContextChars, 100_000)

	setDefault(&cfg.Commits.Limit, 10)
	setDefault(&cfg.Commits.Concurrency, 4)
	setDefault(&cfg.Commits.PollIntervalRaw, "5m")
	setDefault(&cfg.Commits.SummaryTTLRaw, "1h")
	setDefault(&cfg.Commits.MaxDiffChars, 60000)

	setDefault(&cfg.Server.Addr, ":8080")
	setDefault(&cfg.Server.ShutdownTimeoutRaw, "10s")
}

func validate(cfg *Config) error {
	switch cfg.GitHub.Auth {
	case "token":
	case "app":
		if cfg.GitHub.AppID == "" || cfg.GitHub.InstallationID == "" {
			return fmt.Errorf("github app auth requires app_id and installation_id")
		}
		if cfg.GitHub.PrivateKey == "" && cfg.GitHub.PrivateKeyPath == "" {
			return fmt.Errorf("github app auth requires private_key or private_key_path")
		}
	default:
		return fmt.Errorf("unsupported github auth %q (want token or app)", cfg.GitHub.Auth)
	}

	switch cfg.Store.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	switch cfg.Cache.Type {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unsupported cache type %q", cfg.Cache.Type)
	}

	if cfg.Retrieval.Threshold < 0 || cfg.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be between 0 and 1, got %f", cfg.Retrieval.Threshold)
	}
	if cfg.Retry.JitterFactor < 0 || cfg.Retry.JitterFactor > 1 {
		return fmt.Errorf("retry.jitter_factor must be between 0 and 1, got %f", cfg.Retry.JitterFactor)
	}
	if cfg.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be at least 1, got %d", cfg.Ingest.BatchSize)
	}

	durations := []struct {
		name string
		raw  string
	}{
		{"retry.base", cfg.Retry.BaseRaw},
		{"retry.max_delay", cfg.Retry.MaxDelayRaw},
		{"ingest.timeout", cfg.Ingest.TimeoutRaw},
		{"ingest.batch_delay", cfg.Ingest.BatchDelayRaw},
		{"ingest.min_batch_delay", cfg.Ingest.MinBatchDelayRaw},
		{"commits.poll_interval", cfg.Commits.PollIntervalRaw},
		{"commits.summary_ttl", cfg.Commits.SummaryTTLRaw},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %s", d.name, d.raw)
		}
	}

	validEmbedTypes := map[string]bool{"openai": true, "ollama": true, "gemini": true, "": true}
	if !validEmbedTypes[cfg.Providers.Embedding.Type] {
		return fmt.Errorf("unsupported embedding provider type: %s", cfg.Providers.Embedding.Type)
	}

	validLLMTypes := map[string]bool{"openai": true, "ollama": true, "anthropic": true, "gemini": true, "": true}
	if !validLLMTypes[cfg.Providers.LLM.Type] {
		return fmt.Errorf("unsupported LLM provider type: %s", cfg.Providers.LLM.Type)
	}

	return nil
}
