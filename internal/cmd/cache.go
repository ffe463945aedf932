package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/runger/edjournal/internal/upstream"
)

var cacheCmd = &cobra.Command{
	Use:     "cache",
	Short:   "Inspect and manage the EDSM lookup cache",
	GroupID: groupData,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entries and hit counts",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearKind string

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached lookups",
	Long: `Drop cached EDSM lookups from memory and from the database.

Examples:
  edjournal cache clear
  edjournal cache clear --kind bodies`,
	Args: cobra.NoArgs,
	RunE: runCacheClear,
}

var cacheLookupBodies bool

var cacheLookupCmd = &cobra.Command{
	Use:   "lookup <system>",
	Short: "Look up a system on EDSM through the cache",
	Long: `Look up a system on EDSM. Answers come from memory, then the database,
then the network.

Examples:
  edjournal cache lookup Sol
  edjournal cache lookup "Colonia" --bodies`,
	Args: cobra.ExactArgs(1),
	RunE: runCacheLookup,
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheClearKind, "kind", "", "only clear this kind (system or bodies)")
	cacheLookupCmd.Flags().BoolVar(&cacheLookupBodies, "bodies", false, "look up the system's bodies instead")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheLookupCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.engine.CacheStats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%sEDSM Cache%s\n", colorBold, colorReset)
	fmt.Fprintln(out, strings.Repeat("-", 40))
	if p := stats.Persistent; p != nil {
		fmt.Fprintf(out, "  Entries:  %d (%d expired)\n", p.TotalEntries, p.ExpiredEntries)
		fmt.Fprintf(out, "  Hits:     %d\n", p.TotalHits)
		kinds := make([]string, 0, len(p.ByKind))
		for k := range p.ByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(out, "    %-8s %d\n", k+":", p.ByKind[k])
		}
	}
	printLastFailure(out, a.engine.LastUpstreamError())
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.engine.ClearCache(ctx, cacheClearKind)
	if err != nil {
		return err
	}
	what := "cache entries"
	if cacheClearKind != "" {
		what = cacheClearKind + " entries"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s\n", n, what)
	return nil
}

func runCacheLookup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	name := args[0]

	if cacheLookupBodies {
		bodies, err := a.engine.LookupBodies(ctx, name)
		if err != nil {
			return err
		}
		if bodies == nil {
			return lookupMiss(out, a.engine.LastUpstreamError(), name)
		}
		fmt.Fprintf(out, "%s%s%s: %d bodies\n", colorBold, bodies.Name, colorReset, len(bodies.Bodies))
		for _, b := range bodies.Bodies {
			landable := ""
			if b.IsLandable {
				landable = " landable"
			}
			fmt.Fprintf(out, "  %-30s %s%s %s(%.0f ls)%s\n", b.Name, b.SubType, landable, colorDim, b.DistanceToArrival, colorReset)
		}
		return nil
	}

	sys, err := a.engine.LookupSystem(ctx, name)
	if err != nil {
		return err
	}
	if sys == nil {
		return lookupMiss(out, a.engine.LastUpstreamError(), name)
	}
	fmt.Fprintf(out, "%s%s%s (id64 %d)\n", colorBold, sys.Name, colorReset, sys.ID64)
	if sys.Coords != nil {
		fmt.Fprintf(out, "  Coords:  %.2f, %.2f, %.2f\n", sys.Coords.X, sys.Coords.Y, sys.Coords.Z)
	}
	if sys.PrimaryStar != nil {
		fmt.Fprintf(out, "  Star:    %s\n", sys.PrimaryStar.Type)
	}
	return nil
}

// lookupMiss explains an empty lookup. A failure that happened for this
// name is shown, otherwise EDSM simply does not know the system.
func lookupMiss(out io.Writer, f *upstream.Failure, name string) error {
	if f != nil && strings.EqualFold(f.Name, strings.TrimSpace(name)) {
		printLastFailure(out, f)
		return nil
	}
	fmt.Fprintf(out, "%s%s is not known to EDSM%s\n", colorDim, name, colorReset)
	return nil
}

func printLastFailure(out io.Writer, f *upstream.Failure) {
	if f == nil {
		return
	}
	fmt.Fprintf(out, "%sLast failure:%s %s %q at %s: %v\n",
		colorRed, colorReset, f.Kind, f.Name, f.At.Format(time.DateTime), f.Err)
}
