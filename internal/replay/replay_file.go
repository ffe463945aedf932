package replay

import (
	"context"
	"errors"
	"sort"

	"github.com/runger/edjournal/internal/journal"
)

// ReplayFile rebuilds state from a whole journal file, as at start-up or
// after a rotation.
//
// Every navigation event and footfall is persisted in file order so route
// history is complete. The latest event of each state-defining kind is then
// applied with State updates and emission. Detail events of systems other
// than the one the file ends in are persisted quietly; those of the final
// system are applied last and emit. Replaying the same file twice leaves the
// store unchanged.
//
// The returned Stats cover this file only. Store failures do not stop the
// replay and are returned joined.
func (r *Reconstructor) ReplayFile(ctx context.Context, path string, lines []string) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.stats
	parsed := make([]journal.Event, 0, len(lines))
	for _, line := range lines {
		if ev, ok := r.parse(line); ok {
			parsed = append(parsed, ev)
		}
	}

	var errs []error
	record := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	current := r.state.System.Address
	for _, ev := range parsed {
		switch ev.(type) {
		case *journal.LoadGame, *journal.Location, *journal.FSDJump, *journal.CarrierJump, *journal.Disembark:
			record(r.apply(ctx, ev, quiet))
		}
		if journal.IsNavigation(ev) {
			current, _ = journal.SystemAddressOf(ev)
		}
	}

	latest := make(map[journal.Kind]int)
	for i, ev := range parsed {
		if journal.IsStateDefining(ev) {
			latest[ev.Kind()] = i
		}
	}
	order := make([]int, 0, len(latest))
	for _, i := range latest {
		order = append(order, i)
	}
	sort.Ints(order)
	for _, i := range order {
		record(r.apply(ctx, parsed[i], live))
	}

	for _, ev := range parsed {
		if addr, ok := journal.SystemAddressOf(ev); journal.IsDetail(ev) && ok && addr != current {
			record(r.apply(ctx, ev, quiet))
		}
	}
	r.dropPendingExcept(current)

	for _, ev := range parsed {
		if addr, ok := journal.SystemAddressOf(ev); journal.IsDetail(ev) && ok && addr == current {
			record(r.apply(ctx, ev, live))
		}
	}

	stats := r.stats.sub(before)
	r.logger.Debug("replayed journal file",
		"path", path,
		"lines", stats.Lines,
		"applied", stats.Applied,
		"parse_errors", stats.ParseErrors,
		"store_errors", stats.StoreErrors,
		"system", current,
	)
	return stats, errors.Join(errs...)
}

func (s Stats) sub(o Stats) Stats {
	return Stats{
		Lines:       s.Lines - o.Lines,
		Applied:     s.Applied - o.Applied,
		Empty:       s.Empty - o.Empty,
		ParseErrors: s.ParseErrors - o.ParseErrors,
		Unknown:     s.Unknown - o.Unknown,
		StoreErrors: s.StoreErrors - o.StoreErrors,
		Emitted:     s.Emitted - o.Emitted,
	}
}
