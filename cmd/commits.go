package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jacklau/codebrief/internal/notify"
	"github.com/jacklau/codebrief/internal/store"
)

var commitsCmd = &cobra.Command{
	Use:   "commits <project-id>",
	Short: "List a project's summarized commits",
	Long:  `Commits prints the stored commits of a project, newest first, with their AI summaries.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
			if _, err := s.GetProject(ctx, args[0]); err != nil {
				return fmt.Errorf("looking up project: %w", err)
			}
			list, err := s.ListCommits(ctx, args[0])
			if err != nil {
				return fmt.Errorf("listing commits: %w", err)
			}
			if len(list) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No commits recorded yet. Run 'codebrief poll %s'.\n", args[0])
				return nil
			}
			printCommits(cmd.OutOrStdout(), list)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(commitsCmd)
}

func printCommits(out io.Writer, list []store.Commit) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortHash(c.Hash), c.AuthorName, notify.TimeAgo(c.Date), firstLine(c.Message))
		if c.Summary != "" {
			for _, line := range strings.Split(strings.TrimSpace(c.Summary), "\n") {
				fmt.Fprintf(w, "\t\t\t  %s\n", line)
			}
		}
	}
	w.Flush()
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
