package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ricirt/job-harvester/internal/worker"
)

var runBatchSize int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drain the queue once and exit",
	Long: `run processes queued URLs in batches until the queue is empty or only
items that failed during this run remain. SIGINT or SIGTERM finishes the item
in flight and exits cleanly; a second signal exits immediately.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "items per dequeue (default BATCH_SIZE)")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	setupCtx := cmd.Context()
	a, err := newApp(setupCtx, true)
	if err != nil {
		return err
	}
	defer a.close()

	proc, err := a.processor(setupCtx, worker.Hooks{})
	if err != nil {
		return err
	}

	batch := a.cfg.BatchSize
	if runBatchSize > 0 {
		batch = runBatchSize
	}

	ctx, stop := signalContext(a.logger)
	defer stop()

	sum, err := proc.ProcessAll(ctx, batch)
	if err != nil {
		a.logger.Error("run aborted", zap.Error(err))
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d succeeded, %d failed, %d dead-lettered",
		sum.RunID, sum.Succeeded, sum.Failed, sum.DeadLettered)
	if sum.Interrupted {
		fmt.Fprint(cmd.OutOrStdout(), " (stopped by signal)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
