package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jacklau/codebrief/internal/github"
	"github.com/jacklau/codebrief/internal/ingest"
	"github.com/jacklau/codebrief/internal/notify"
	"github.com/jacklau/codebrief/internal/store"
)

var (
	projectToken    string
	projectNoIngest bool
	projectArchived bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create, list, archive and delete projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name> <github-url>",
	Short: "Link a GitHub repository and ingest it",
	Long: `Create a project for a GitHub repository, then load, summarize and
embed every source file and record summaries of its recent commits.

Use --no-ingest to only create the project record.`,
	Args: cobra.ExactArgs(2),
	RunE: runProjectCreate,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectArchiveCmd = &cobra.Command{
	Use:   "archive <project-id>",
	Short: "Archive a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
			if err := s.ArchiveProject(ctx, args[0]); err != nil {
				return fmt.Errorf("archiving project: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived project %s\n", args[0])
			return nil
		})
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project with its embeddings, commits and questions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
			if err := s.DeleteProject(ctx, args[0]); err != nil {
				return fmt.Errorf("deleting project: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", args[0])
			return nil
		})
	},
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectToken, "token", "", "GitHub token for this repository (overrides github.token)")
	projectCreateCmd.Flags().BoolVar(&projectNoIngest, "no-ingest", false, "create the project without ingesting it")
	projectListCmd.Flags().BoolVar(&projectArchived, "archived", false, "include archived projects")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectArchiveCmd, projectDeleteCmd)
	rootCmd.AddCommand(projectCmd)
}

// withStore opens the configured store for commands that need nothing else.
func withStore(ctx context.Context, fn func(ctx context.Context, s store.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// validateProjectInput checks a project name and repository URL.
func validateProjectInput(name, repoURL string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("project name must not be empty")
	}
	if _, err := github.ParseRepoURL(repoURL); err != nil {
		return err
	}
	return nil
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	name, repoURL := args[0], args[1]
	if err := validateProjectInput(name, repoURL); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if projectNoIngest {
		return withStore(ctx, func(ctx context.Context, s store.Store) error {
			p := &store.Project{Name: strings.TrimSpace(name), GitHubURL: repoURL}
			if err := s.CreateProject(ctx, p); err != nil {
				return fmt.Errorf("creating project: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", p.ID, p.Name)
			return nil
		})
	}

	logger := setupLogger()
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c, err := initComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Close()

	p := &store.Project{Name: strings.TrimSpace(name), GitHubURL: repoURL}
	if err := c.Store.CreateProject(ctx, p); err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", p.ID, p.Name)

	return ingestProject(ctx, c, p, projectToken, cmd.OutOrStdout(), os.Stderr)
}

// ingestProject ingests p with a progress bar on progress, then records the
// repository's recent commits. A failed commit poll is reported but does
// not fail the command.
func ingestProject(ctx context.Context, c *components, p *store.Project, token string, out, progress io.Writer) error {
	bar := newProgressBar(0, "Ingesting", progress)
	followCtx, cancel := context.WithCancel(ctx)
	done := followProgress(followCtx, c.Broker, p.ID, bar)

	result, err := c.Ingest.Ingest(ctx, p.ID, p.GitHubURL, token)
	cancel()
	<-done
	if err != nil && !errors.Is(err, ingest.ErrNoResults) {
		return fmt.Errorf("ingesting %s: %w", p.GitHubURL, err)
	}

	fmt.Fprintf(out, "\nIngestion of %s\n", p.GitHubURL)
	fmt.Fprintf(out, "  Files:     %s\n", notify.FormatProgress(result.Processed, result.Total))
	fmt.Fprintf(out, "  Duration:  %s\n", notify.FormatDuration(result.Duration))
	if len(result.Failed) > 0 {
		fmt.Fprintf(out, "  Failed:\n%s\n", notify.FormatFailed(result.Failed))
	}
	if err != nil {
		return err
	}

	added, err := c.Poller.PollCommits(ctx, p.ID)
	if err != nil {
		c.Logger.Warn("polling commits failed", "project", p.ID, "error", err)
		return nil
	}
	fmt.Fprintf(out, "  Commits:   %d recorded\n", len(added))
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
		projects, err := s.ListProjects(ctx, projectArchived)
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
		if len(projects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No projects yet.")
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'codebrief project create <name> <github-url>' to get started.")
			return nil
		}
		printProjects(cmd.OutOrStdout(), projects)
		return nil
	})
}

func printProjects(out io.Writer, projects []store.Project) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREPOSITORY\tSTATUS\tCREATED")
	for _, p := range projects {
		status := string(p.Status)
		if p.DeletedAt != nil {
			status = "ARCHIVED"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.GitHubURL, status, notify.TimeAgo(p.CreatedAt))
	}
	w.Flush()
}
