package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	pollWatch    bool
	pollInterval string
)

var pollCmd = &cobra.Command{
	Use:   "poll <project-id> [project-id ...]",
	Short: "Record and summarize new commits",
	Long: `Poll lists each project's most recent commits and stores a summary for
every commit not seen before.

With --watch, polling repeats on an interval until interrupted:
  codebrief poll --watch --interval 10m <project-id>`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().BoolVar(&pollWatch, "watch", false, "keep polling until interrupted")
	pollCmd.Flags().StringVar(&pollInterval, "interval", "", "poll interval with --watch (default commits.poll_interval from config)")
	rootCmd.AddCommand(pollCmd)
}

// resolvePollInterval returns the flag value when set, otherwise the configured interval.
func resolvePollInterval(flag string, configured time.Duration) (time.Duration, error) {
	if flag == "" {
		return configured, nil
	}
	d, err := time.ParseDuration(flag)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", flag, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", flag)
	}
	return d, nil
}

func runPoll(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	interval, err := resolvePollInterval(pollInterval, cfg.Commits.PollInterval())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := initComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Close()

	for _, id := range args {
		if _, err := c.Store.GetProject(ctx, id); err != nil {
			return fmt.Errorf("looking up project %s: %w", id, err)
		}
	}

	if !pollWatch {
		for _, id := range args {
			added, err := c.Poller.PollCommits(ctx, id)
			if err != nil {
				return fmt.Errorf("polling %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d new commits\n", id, len(added))
		}
		return nil
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	errCh := make(chan error, len(args))
	for _, id := range args {
		go func() {
			errCh <- c.Poller.Run(ctx, id, interval)
		}()
	}

	var errs []error
	for range args {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	logger.Info("poll stopped")
	return errors.Join(errs...)
}
