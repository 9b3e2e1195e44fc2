package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricirt/job-harvester/internal/service"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth and the next queued items",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "number of queued items to list")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	svc := service.NewQueueService(a.store, a.logger.Named("service"))

	depth, err := svc.Depth(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend: %s\nqueued:  %d\n", a.cfg.QueueBackend, depth)
	if depth == 0 || statusLimit <= 0 {
		return nil
	}

	items, err := svc.Peek(ctx, statusLimit)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFAILURES\tENQUEUED\tURL")
	for _, it := range items {
		enqueued := "-"
		if !it.EnqueuedAt.IsZero() {
			enqueued = it.EnqueuedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", it.ID(), it.Failures, enqueued, it.URL)
	}
	return w.Flush()
}
