package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/runger/edjournal/internal/store"
)

var routeLimit int

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Show recent jumps and what was found in each system",
	Long: `Show the most recent arrivals from route history, newest first, with
the scan progress and estimated value of each system.

Examples:
  edjournal route
  edjournal route --limit 50`,
	GroupID: groupData,
	Args:    cobra.NoArgs,
	RunE:    runRoute,
}

func init() {
	routeCmd.Flags().IntVarP(&routeLimit, "limit", "n", 20, "number of jumps to show (0 = all)")
}

func runRoute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.store.ListRoute(ctx, routeLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "%sNo jumps recorded yet. Run `edjournal backfill` to import history.%s\n", colorDim, colorReset)
		return nil
	}

	for _, e := range entries {
		bodies := "-"
		value := "-"
		sys, err := a.store.GetSystem(ctx, e.SystemAddress)
		switch {
		case err == nil:
			bodies = formatBodies(sys)
			value = fmt.Sprintf("%d cr", sys.EstimatedValue)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		fmt.Fprintf(out, "%s  %-28s %-7s %6.2f ly  %-7s %s\n",
			e.Timestamp.Local().Format(time.DateTime), e.SystemName, e.Kind, e.JumpDist, bodies, value)
	}
	return nil
}

// formatBodies renders known/declared bodies, marking fully scanned systems.
func formatBodies(sys *store.System) string {
	if sys.DeclaredBodyCount == 0 {
		return fmt.Sprintf("%d/?", sys.KnownBodies)
	}
	s := fmt.Sprintf("%d/%d", sys.KnownBodies, sys.DeclaredBodyCount)
	if sys.AllBodiesFound {
		s += "*"
	}
	return s
}
