package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var ingestToken string

var ingestCmd = &cobra.Command{
	Use:   "ingest <project-id>",
	Short: "Ingest a project created with --no-ingest",
	Long: `Ingest loads the project's repository, summarizes and embeds every source
file and records its recent commits. Progress is drawn on stderr.

Projects that already hold embeddings are refused; create a new project to
index a repository again.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestToken, "token", "", "GitHub token for this repository (overrides github.token)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := initComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Close()

	p, err := c.Store.GetProject(ctx, args[0])
	if err != nil {
		return fmt.Errorf("looking up project: %w", err)
	}
	n, err := c.Store.CountEmbeddings(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("counting embeddings: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("project %s already has %d embedded files", p.ID, n)
	}
	return ingestProject(ctx, c, p, ingestToken, cmd.OutOrStdout(), os.Stderr)
}
