package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ricirt/job-harvester/internal/service"
)

var enqueueFile string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [url...]",
	Short: "Add job posting URLs to the queue",
	Long: `enqueue adds the URLs given as arguments. With --file, LinkedIn job links
are extracted from the file instead (an alert email, a saved page) and
rewritten to their canonical form; use --file - to read standard input.
URLs already queued are skipped.`,
	Example: `  harvester enqueue https://www.linkedin.com/jobs/view/4011223344/
  harvester enqueue --file alerts.eml`,
	RunE: enqueue,
}

func init() {
	enqueueCmd.Flags().StringVarP(&enqueueFile, "file", "f", "", "extract job links from this file ('-' for stdin)")
	rootCmd.AddCommand(enqueueCmd)
}

func enqueue(cmd *cobra.Command, args []string) error {
	if enqueueFile == "" && len(args) == 0 {
		return errors.New("give at least one url or --file")
	}
	if enqueueFile != "" && len(args) > 0 {
		return errors.New("use either url arguments or --file, not both")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	svc := service.NewQueueService(a.store, a.logger.Named("service"))

	var res service.EnqueueResult
	if enqueueFile != "" {
		text, err := readInput(cmd, enqueueFile)
		if err != nil {
			return err
		}
		res, err = svc.EnqueueFromText(ctx, text)
		if err != nil {
			return err
		}
	} else {
		res, err = svc.Enqueue(ctx, args)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "submitted %d, inserted %d, already queued %d\n",
		res.Submitted, res.Inserted, res.Duplicates)
	return nil
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}
