package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var backfillQuiet bool

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Replay every historical journal into the database",
	Long: `Replay every journal file in the journal directory, oldest first, into the
exploration database. Replaying is idempotent: running it again, or after an
interrupted run, never duplicates data.

Ctrl-C stops after the file being replayed.

Examples:
  edjournal backfill
  edjournal backfill --journal-dir /mnt/games/journals`,
	GroupID: groupCore,
	Args:    cobra.NoArgs,
	RunE:    runBackfill,
}

func init() {
	backfillCmd.Flags().BoolVarP(&backfillQuiet, "quiet", "q", false, "only print the summary")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.engine.RunBackfill(ctx)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	out := cmd.OutOrStdout()
	progress := run.Progress()
	for progress != nil {
		select {
		case p, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			if !backfillQuiet {
				fmt.Fprintf(out, "[%d/%d] %s\n", p.Index, p.Total, p.File)
			}
		case <-sigCh:
			fmt.Fprintln(out, "cancelling after the current file...")
			a.engine.CancelBackfill()
		}
	}

	res, err := run.Wait()
	status := "complete"
	if res.Cancelled {
		status = "cancelled"
	}
	fmt.Fprintf(out, "backfill %s: %d/%d files, %d lines applied, %d parse errors, %d store errors",
		status, res.FilesProcessed, res.FilesTotal, res.LinesApplied, res.ParseErrors, res.StoreErrors)
	if res.Skipped > 0 {
		fmt.Fprintf(out, ", %d unreadable", res.Skipped)
	}
	if res.Dropped > 0 {
		fmt.Fprintf(out, ", %d oldest files over the cap skipped", res.Dropped)
	}
	fmt.Fprintf(out, " (%s)\n", res.Duration.Round(time.Millisecond))
	return err
}
