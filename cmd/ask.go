package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jacklau/codebrief/internal/store"
)

var askSave bool

var askCmd = &cobra.Command{
	Use:   "ask <project-id> <question>",
	Short: "Ask a question about a project's code",
	Long: `Ask retrieves the files most similar to the question, streams an answer
grounded in them to stdout and lists the referenced files.

Everything after the project ID is joined into the question:
  codebrief ask 3f2a... how is authentication handled?`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askSave, "save", false, "save the question and answer to the project")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	projectID := args[0]
	question := strings.Join(args[1:], " ")

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

	if _, err := c.Store.GetProject(ctx, projectID); err != nil {
		return fmt.Errorf("looking up project: %w", err)
	}

	out := cmd.OutOrStdout()
	answer, err := c.QA.Ask(ctx, projectID, question, func(delta string) error {
		_, err := io.WriteString(out, delta)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out)

	printReferences(out, answer.References)

	if askSave {
		q, err := c.QA.Save(ctx, projectID, answer)
		if err != nil {
			return fmt.Errorf("saving question: %w", err)
		}
		fmt.Fprintf(out, "\nSaved as question %s\n", q.ID)
	}
	return nil
}

func printReferences(out io.Writer, refs []store.Match) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintln(out, "\nReferences:")
	for _, r := range refs {
		fmt.Fprintf(out, "  %s (%.0f%%)\n", r.FileName, r.Similarity*100)
	}
}
