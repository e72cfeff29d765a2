package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/annotext/internal/core/ports/driving"
)

var importWatch bool

var articleImportCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Import article files from a directory",
	Long: `Creates an article for every .txt, .md and .html file under the directory
and updates articles whose file changed. The article id is the file's path
relative to the directory without its extension, with "/" replaced by "-".
Updated articles keep their comments, re-anchored to the new text.

With --watch, keeps applying file changes until interrupted. Deleting a
file deletes its article.`,
	Args: cobra.ExactArgs(1),
	RunE: runArticleImport,
}

func init() {
	articleImportCmd.Flags().BoolVarP(&importWatch, "watch", "w", false, "keep importing changes until interrupted")
	articleCmd.AddCommand(articleImportCmd)
}

func runArticleImport(cmd *cobra.Command, args []string) error {
	if importService == nil {
		return notConfigured("import")
	}

	report, err := importService.Import(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	propagate(cmd)

	if jsonOutput {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
	} else {
		cmd.Printf("Imported %s: %d created, %d updated, %d unchanged, %d failed\n",
			args[0], report.Created, report.Updated, report.Unchanged, report.Failed)
		if report.Orphaned > 0 {
			cmd.Printf("  %d comments orphaned\n", report.Orphaned)
		}
	}
	if !importWatch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", args[0])
	err = importService.Watch(ctx, args[0], func(ev driving.ImportEvent) {
		if ev.Err != nil {
			cmd.PrintErrf("  %s %s: %v\n", ev.Action, ev.Change.File.ArticleID, ev.Err)
			return
		}
		cmd.Printf("  %s %s\n", ev.Action, ev.Change.File.ArticleID)
		propagate(cmd)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
