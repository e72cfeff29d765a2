package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/annotext/internal/core/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect and drive search index propagation",
	Long: `Every change to articles and comments is recorded in an outbox and
propagated to the search index. These commands show the outbox, push
pending work, rebuild the index and retry failed tasks.`,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show outbox counts and index state",
	Args:  cobra.NoArgs,
	RunE:  runSyncStatus,
}

var syncDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Propagate every due task now",
	Args:  cobra.NoArgs,
	RunE:  runSyncDrain,
}

var syncReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the row store",
	Args:  cobra.NoArgs,
	RunE:  runSyncReindex,
}

var syncDeadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "List tasks that failed after all retries",
	Args:  cobra.NoArgs,
	RunE:  runSyncDeadLetters,
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Requeue failed tasks and propagate them",
	Args:  cobra.NoArgs,
	RunE:  runSyncRetry,
}

var deadLetterLimit int

func init() {
	syncDeadLettersCmd.Flags().IntVarP(&deadLetterLimit, "limit", "n", 100, "maximum number of tasks")
	syncCmd.AddCommand(syncStatusCmd, syncDrainCmd, syncReindexCmd, syncDeadLettersCmd, syncRetryCmd)
	rootCmd.AddCommand(syncCmd)
}

func runSyncStatus(cmd *cobra.Command, _ []string) error {
	if syncCoordinator == nil {
		return notConfigured("sync")
	}

	status, err := syncCoordinator.Status(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, status)
	}

	cmd.Println("Outbox")
	for _, state := range []domain.TaskState{
		domain.TaskPending, domain.TaskAppliedToStore, domain.TaskPropagated, domain.TaskPropagationFailed,
	} {
		cmd.Printf("  %-20s %d\n", state, status.Counts[state])
	}
	cmd.Println()
	cmd.Println("Index")
	cmd.Printf("  Status:     %s\n", status.Index.Status)
	cmd.Printf("  Generation: %d\n", status.Index.Generation)
	if !status.Index.CompletedAt.IsZero() {
		cmd.Printf("  Completed:  %s (%d articles, %d comments)\n",
			status.Index.CompletedAt.Format(time.RFC3339), status.Index.Articles, status.Index.Comments)
	}
	if status.Index.LastError != "" {
		cmd.Printf("  Error:      %s\n", status.Index.LastError)
	}
	if !status.LastPropagation.IsZero() {
		cmd.Printf("  Last write: %s\n", status.LastPropagation.Format(time.RFC3339))
	}
	return nil
}

func runSyncDrain(cmd *cobra.Command, _ []string) error {
	if syncCoordinator == nil {
		return notConfigured("sync")
	}

	n, err := syncCoordinator.Drain(cmd.Context())
	if err != nil {
		return fmt.Errorf("drain failed after %d tasks: %w", n, err)
	}
	cmd.Printf("Propagated %d tasks\n", n)
	return nil
}

func runSyncReindex(cmd *cobra.Command, _ []string) error {
	if syncCoordinator == nil {
		return notConfigured("sync")
	}

	cmd.Println("Rebuilding search index...")
	state, err := syncCoordinator.Reindex(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, state)
	}
	cmd.Printf("Indexed %d articles and %d comments (generation %d)\n",
		state.Articles, state.Comments, state.Generation)
	return nil
}

func runSyncDeadLetters(cmd *cobra.Command, _ []string) error {
	if syncCoordinator == nil {
		return notConfigured("sync")
	}

	tasks, err := syncCoordinator.DeadLetters(cmd.Context(), deadLetterLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, tasks)
	}
	if len(tasks) == 0 {
		cmd.Println("No failed tasks.")
		return nil
	}
	for _, t := range tasks {
		cmd.Printf("  #%d %s %s %s after %d attempts: %s\n",
			t.ID, t.Op, t.Entity, t.EntityID, t.Attempts, t.LastError)
	}
	return nil
}

func runSyncRetry(cmd *cobra.Command, _ []string) error {
	if syncCoordinator == nil {
		return notConfigured("sync")
	}

	n, err := syncCoordinator.RetryDeadLetters(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("Requeued %d tasks\n", n)
	if n > 0 {
		propagate(cmd)
	}
	return nil
}
