package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/runger/edjournal/internal/events"
	"github.com/runger/edjournal/internal/logging"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the newest journal and print domain events",
	Long: `Follow the journal directory. The newest file is replayed first so the
current system is known, then every new line is applied as the game writes
it. Each domain event is printed to stdout as one JSON object per line.

Stop with Ctrl-C.

Examples:
  edjournal watch
  edjournal watch --metrics-addr 127.0.0.1:9464`,
	GroupID: groupCore,
	Args:    cobra.NoArgs,
	RunE:    runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// watchLine is the JSON form of one emitted event.
type watchLine struct {
	Event   events.Name `json:"event"`
	Time    time.Time   `json:"time"`
	Payload any         `json:"payload,omitempty"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd.ErrOrStderr(), appOptions{metricsAddr: watchMetricsAddr})
	if err != nil {
		return err
	}
	defer a.Close()

	sub, unsubscribe := a.engine.Subscribe()
	defer unsubscribe()

	if err := a.engine.StartTailing(ctx); err != nil {
		return err
	}

	printEvents(ctx, cmd.OutOrStdout(), sub)

	logging.LogShutdown(a.logger, "interrupted")
	if path, offset, err := a.engine.Position(context.WithoutCancel(ctx)); err == nil {
		a.logger.Info("tail position saved", "path", path, "offset", offset)
	}
	return a.engine.StopTailing()
}

// printEvents writes events as JSON lines until ctx is done or the stream
// closes.
func printEvents(ctx context.Context, w io.Writer, sub <-chan events.Event) {
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := enc.Encode(watchLine{Event: ev.Name, Time: ev.Time, Payload: ev.Payload}); err != nil {
				fmt.Fprintf(os.Stderr, "edjournal: write event: %v\n", err)
				return
			}
		}
	}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// checkpointInterval maps the config value, where 0 disables periodic
// checkpoints, onto the store option, where 0 means the default.
func checkpointInterval(ms int) time.Duration {
	if ms <= 0 {
		return -1
	}
	return msDuration(ms)
}
