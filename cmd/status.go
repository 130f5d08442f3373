package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jacklau/codebrief/internal/notify"
	"github.com/jacklau/codebrief/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status [project-id]",
	Short: "Show projects with their ingestion progress",
	Long: `Display every project with its status, the progress message of any
ingestion in flight, embedded file and commit counts, and the database size.
With a project ID only that project is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// projectStats is one row of the status table.
type projectStats struct {
	Project    store.Project
	Progress   string
	Embeddings int
	Commits    int
}

func collectStats(ctx context.Context, s store.Store, projects []store.Project) ([]projectStats, error) {
	stats := make([]projectStats, 0, len(projects))
	for _, p := range projects {
		st := projectStats{Project: p}

		ps, err := s.GetProcessStatus(ctx, p.ID)
		switch {
		case err == nil:
			st.Progress = ps.Message
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("reading status of %s: %w", p.ID, err)
		}

		if st.Embeddings, err = s.CountEmbeddings(ctx, p.ID); err != nil {
			return nil, fmt.Errorf("counting embeddings of %s: %w", p.ID, err)
		}
		list, err := s.ListCommits(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("listing commits of %s: %w", p.ID, err)
		}
		st.Commits = len(list)
		stats = append(stats, st)
	}
	return stats, nil
}

func printStats(out io.Writer, stats []projectStats) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tSTATUS\tFILES\tCOMMITS\tCREATED\tPROGRESS")
	fmt.Fprintln(w, "-------\t------\t-----\t-------\t-------\t--------")

	var totalFiles, totalCommits int
	for _, s := range stats {
		progress := s.Progress
		if progress == "" {
			progress = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Project.Name, s.Project.Status,
			humanize.Comma(int64(s.Embeddings)), humanize.Comma(int64(s.Commits)),
			notify.TimeAgo(s.Project.CreatedAt), progress)
		totalFiles += s.Embeddings
		totalCommits += s.Commits
	}

	if len(stats) > 1 {
		fmt.Fprintf(w, "TOTAL\t\t%s\t%s\t\t\n", humanize.Comma(int64(totalFiles)), humanize.Comma(int64(totalCommits)))
	}
	w.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
		var projects []store.Project
		if len(args) == 1 {
			p, err := s.GetProject(ctx, args[0])
			if err != nil {
				return fmt.Errorf("looking up project: %w", err)
			}
			projects = []store.Project{*p}
		} else {
			projects, err = s.ListProjects(ctx, false)
			if err != nil {
				return fmt.Errorf("listing projects: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		if len(projects) == 0 {
			fmt.Fprintln(out, "No projects yet.")
			fmt.Fprintln(out, "Run 'codebrief project create <name> <github-url>' to get started.")
			return nil
		}

		stats, err := collectStats(ctx, s, projects)
		if err != nil {
			return err
		}
		printStats(out, stats)

		if cfg.Store.Driver == "sqlite" {
			fmt.Fprintln(out)
			if size, err := dbFileSize(cfg.Store.Path); err != nil {
				fmt.Fprintf(out, "Database: %s (size unknown)\n", cfg.Store.Path)
			} else {
				fmt.Fprintf(out, "Database: %s (%s)\n", cfg.Store.Path, formatBytes(size))
			}
		}
		return nil
	})
}

// formatBytes formats bytes into a human-readable string.
func formatBytes(b int64) string {
	return humanize.IBytes(uint64(max(b, 0)))
}

// dbFileSize returns the size in bytes of the database file.
func dbFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
