package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jacklau/codebrief/internal/cache"
	"github.com/jacklau/codebrief/internal/commits"
	"github.com/jacklau/codebrief/internal/config"
	"github.com/jacklau/codebrief/internal/github"
	"github.com/jacklau/codebrief/internal/ingest"
	"github.com/jacklau/codebrief/internal/notify"
	"github.com/jacklau/codebrief/internal/provider"
	"github.com/jacklau/codebrief/internal/pubsub"
	"github.com/jacklau/codebrief/internal/qa"
	"github.com/jacklau/codebrief/internal/retry"
	"github.com/jacklau/codebrief/internal/store"
	"github.com/jacklau/codebrief/internal/store/postgres"
	"github.com/jacklau/codebrief/internal/summarize"

	gogithub "github.com/google/go-github/v60/github"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "codebrief",
	Short: "Summarize GitHub repositories and answer questions about them",
	Long: `Codebrief loads a GitHub repository, summarizes and embeds every source
file, keeps AI summaries of recent commits and answers questions about the
code grounded in the most relevant files.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".codebrief", "config.yaml")
	}
	return filepath.Join(home, ".codebrief", "config.yaml")
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// loadConfig reads .env into the environment, then the config file. A
// missing default config file yields the built-in defaults; a missing
// --config file is an error.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// openStore opens the configured storage backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		s, err := postgres.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return s, nil
	default:
		if dir := filepath.Dir(cfg.Store.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		return db, nil
	}
}

// newGitHubClient builds the paced GitHub client for the configured auth mode.
func newGitHubClient(cfg *config.Config, logger *slog.Logger) (*github.Client, error) {
	var gh *gogithub.Client
	switch cfg.GitHub.Auth {
	case "app":
		appID, err := strconv.ParseInt(cfg.GitHub.AppID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing app_id: %w", err)
		}
		installID, err := strconv.ParseInt(cfg.GitHub.InstallationID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing installation_id: %w", err)
		}
		gh, err = github.NewGitHubClient(appID, installID, []byte(cfg.GitHub.PrivateKey), cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("creating GitHub client: %w", err)
		}
	default:
		gh = github.NewTokenClient(cfg.GitHub.Token)
	}
	return github.NewClient(gh,
		github.WithRateLimit(cfg.GitHub.RequestsPerSecond, cfg.GitHub.Burst),
		github.WithLogger(logger),
	), nil
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		Base:         cfg.Retry.Base(),
		MaxDelay:     cfg.Retry.MaxDelay(),
		JitterFactor: cfg.Retry.JitterFactor,
		MaxAttempts:  cfg.Retry.MaxAttempts,
	}
}

// components holds initialized components for use by subcommands.
type components struct {
	Config    *config.Config
	Store     store.Store
	GitHub    *github.Client
	Embedder  provider.Embedder
	Completer provider.StreamCompleter
	Cache     cache.Cache
	Broker    *pubsub.Broker[ingest.Progress]
	Ingest    *ingest.Pipeline
	Poller    *commits.Poller
	QA        *qa.Service
	Logger    *slog.Logger
}

// Close releases the store and, when it holds connections, the cache.
func (c *components) Close() error {
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if closer, ok := c.Cache.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// initComponents creates all components from config.
func initComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	if cfg.Providers.Embedding.Type == "" {
		return nil, fmt.Errorf("providers.embedding.type is not configured")
	}
	if cfg.Providers.LLM.Type == "" {
		return nil, fmt.Errorf("providers.llm.type is not configured")
	}

	c := &components{
		Config: cfg,
		Logger: logger,
		Broker: pubsub.NewBroker[ingest.Progress](),
	}

	gh, err := newGitHubClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.GitHub = gh

	c.Embedder, err = provider.NewEmbedder(ctx, provider.EmbedderConfig{
		Type:   cfg.Providers.Embedding.Type,
		Model:  cfg.Providers.Embedding.Model,
		APIKey: cfg.Providers.Embedding.APIKey,
		URL:    cfg.Providers.Embedding.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	c.Completer, err = provider.NewCompleter(ctx, provider.CompleterConfig{
		Type:   cfg.Providers.LLM.Type,
		Model:  cfg.Providers.LLM.Model,
		APIKey: cfg.Providers.LLM.APIKey,
		URL:    cfg.Providers.LLM.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}

	c.Cache, err = cache.New(ctx, cache.Config{
		Type:     cfg.Cache.Type,
		Addr:     cfg.Cache.Addr,
		Username: cfg.Cache.Username,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	c.Store, err = openStore(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	n, err := createNotifier(cfg, "")
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("creating notifier: %w", err)
	}

	policy := retryPolicy(cfg)
	sum := summarize.New(c.Completer, cfg.Ingest.MaxSourceChars, cfg.Commits.MaxDiffChars)

	c.Ingest = ingest.New(ingest.Deps{
		Store: c.Store,
		Loader: github.NewLoader(gh, github.LoaderOptions{
			Concurrency:  cfg.GitHub.LoadConcurrency,
			MaxFileBytes: cfg.GitHub.MaxFileBytes,
			IgnorePaths:  cfg.GitHub.IgnorePaths,
		}, logger),
		Summarizer: sum,
		Embedder:   c.Embedder,
		Reporter: ingest.MultiReporter{
			Reporters: []ingest.Reporter{
				ingest.StoreReporter{Store: c.Store},
				ingest.BrokerReporter{Broker: c.Broker},
			},
			Logger: logger,
		},
		Notifier: n,
		Config: ingest.Config{
			BatchSize:       cfg.Ingest.BatchSize,
			Timeout:         cfg.Ingest.Timeout(),
			BatchDelay:      cfg.Ingest.BatchDelay(),
			MinBatchDelay:   cfg.Ingest.MinBatchDelay(),
			Policy:          policy,
			SaveConcurrency: cfg.Ingest.SaveConcurrency,
		},
		Logger: logger,
	})

	c.Poller = commits.NewPoller(commits.PollerDeps{
		Store:  c.Store,
		GitHub: gh,
		Summarizer: commits.NewSummarizer(commits.SummarizerDeps{
			GitHub: gh,
			LLM:    sum,
			Cache:  c.Cache,
			Policy: policy,
			TTL:    cfg.Commits.SummaryTTL(),
			Logger: logger,
		}),
		Limit:       cfg.Commits.Limit,
		Concurrency: cfg.Commits.Concurrency,
		Logger:      logger,
	})

	c.QA = qa.New(qa.Deps{
		Store:     c.Store,
		Embedder:  c.Embedder,
		Completer: c.Completer,
		Config: qa.Config{
			Threshold:       cfg.Retrieval.Threshold,
			TopK:            cfg.Retrieval.TopK,
			MaxContextChars: cfg.Retrieval.MaxContextChars,
			Policy:          policy,
		},
		Logger: logger,
	})

	return c, nil
}

// createNotifier builds a Notifier from config and flag override.
func createNotifier(cfg *config.Config, notifyFlag string) (notify.Notifier, error) {
	notifyType := notifyFlag
	if notifyType == "" {
		hasSlack := cfg.Notify.SlackWebhook != ""
		hasDiscord := cfg.Notify.DiscordWebhook != ""
		switch {
		case hasSlack && hasDiscord:
			notifyType = "both"
		case hasSlack:
			notifyType = "slack"
		case hasDiscord:
			notifyType = "discord"
		default:
			return nil, nil // no notification configured
		}
	}

	return notify.NewNotifier(notifyType, cfg.Notify.SlackWebhook, cfg.Notify.DiscordWebhook)
}
