package engine

import (
	"context"
	"fmt"

	"github.com/runger/edjournal/internal/backfill"
	"github.com/runger/edjournal/internal/store"
	"github.com/runger/edjournal/internal/tail"
	"github.com/runger/edjournal/internal/upstream"
)

// BackfillRun is a backfill started through the engine. It ends once live
// state has been rebuilt from the newest journal file.
type BackfillRun struct {
	run  *backfill.Run
	done chan struct{}
}

// Progress yields one report per replayed file.
func (r *BackfillRun) Progress() <-chan backfill.Progress { return r.run.Progress() }

// Done is closed when the run and the resync after it have finished.
func (r *BackfillRun) Done() <-chan struct{} { return r.done }

// Wait blocks until Done and returns the run's result.
func (r *BackfillRun) Wait() (backfill.Result, error) {
	<-r.done
	return r.run.Wait()
}

// RunBackfill replays every journal file in the directory, oldest first.
// It waits for a poll in progress and holds the in-flight guard until live
// state is rebuilt, so nothing else writes through the replay path
// meanwhile. A second call while one runs returns backfill.ErrAlreadyRunning.
func (e *Engine) RunBackfill(ctx context.Context) (*BackfillRun, error) {
	if !e.backfilling.CompareAndSwap(false, true) {
		return nil, backfill.ErrAlreadyRunning
	}
	if err := e.acquire(ctx); err != nil {
		e.backfilling.Store(false)
		return nil, err
	}

	run, err := e.backfill.Start(ctx, e.JournalDir())
	if err != nil {
		e.inFlight.Store(false)
		e.backfilling.Store(false)
		return nil, err
	}

	br := &BackfillRun{run: run, done: make(chan struct{})}
	e.runMu.Lock()
	e.lastRun = br
	e.runMu.Unlock()

	go func() {
		defer close(br.done)
		defer e.backfilling.Store(false)
		defer e.inFlight.Store(false)

		<-run.Done()
		e.resync(context.WithoutCancel(ctx), false)
	}()
	return br, nil
}

// CancelBackfill stops a running backfill after its current file.
func (e *Engine) CancelBackfill() {
	e.backfill.Cancel()
}

// BackfillRunning reports whether a backfill is in progress.
func (e *Engine) BackfillRunning() bool {
	return e.backfilling.Load()
}

// ClearCache drops upstream cache entries of one kind, or all when kind is
// empty, and returns how many persistent entries were removed.
func (e *Engine) ClearCache(ctx context.Context, kind string) (int64, error) {
	switch kind {
	case "", upstream.KindSystem, upstream.KindBodies:
	default:
		return 0, fmt.Errorf("unknown cache kind %q", kind)
	}
	return e.cache.Clear(ctx, kind)
}

// CacheStats reports the upstream cache tiers.
func (e *Engine) CacheStats(ctx context.Context) (*upstream.CacheStats, error) {
	return e.cache.Stats(ctx)
}

// LastUpstreamError returns the most recent failed upstream lookup, or nil.
func (e *Engine) LastUpstreamError() *upstream.Failure {
	return e.cache.LastError()
}

// LookupSystem returns EDSM's record of a system, nil when unavailable.
func (e *Engine) LookupSystem(ctx context.Context, name string) (*upstream.SystemInfo, error) {
	return e.cache.LookupSystem(ctx, name)
}

// LookupBodies returns EDSM's bodies for a system, nil when unavailable.
func (e *Engine) LookupBodies(ctx context.Context, name string) (*upstream.BodiesInfo, error) {
	return e.cache.LookupBodies(ctx, name)
}

// ValidateImport checks a database file without importing it.
func (e *Engine) ValidateImport(ctx context.Context, path string) (*store.ImportInfo, error) {
	return e.store.ValidateImport(ctx, path)
}

// Import replaces exploration data with the database at path, then
// rebuilds live state on top of it from the newest journal file.
func (e *Engine) Import(ctx context.Context, path string) (*store.ImportInfo, error) {
	if e.backfilling.Load() {
		return nil, ErrBusy
	}
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.inFlight.Store(false)

	info, err := e.store.Import(ctx, path)
	if err != nil {
		return nil, err
	}
	e.resync(ctx, true)
	return info, nil
}

// Backup writes a copy of the database to dest.
func (e *Engine) Backup(ctx context.Context, dest string) error {
	return e.store.Backup(ctx, dest)
}

// ClearExplorationData wipes every exploration record and forgets live
// state. Tailing continues from the current end of the newest file, so
// only what happens from now on is recorded again.
func (e *Engine) ClearExplorationData(ctx context.Context) error {
	if e.backfilling.Load() {
		return ErrBusy
	}
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.inFlight.Store(false)

	if err := e.store.ClearExplorationData(ctx); err != nil {
		return err
	}
	e.live.Reset()

	// A tracked position already points past everything applied. Without
	// one, start after what the newest file holds now.
	if path, _ := e.tailer.Position(); path == "" {
		latest, ok, err := tail.Latest(e.tailer.Dir(), e.readOpts)
		if err != nil || !ok {
			return nil
		}
		chunk, err := tail.ReadSince(latest, 0, e.readOpts)
		if err != nil {
			return nil
		}
		e.tailer.Seek(latest, chunk.Offset)
	}
	e.savePosition(ctx)
	return nil
}
