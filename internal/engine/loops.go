package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runger/edjournal/internal/events"
	"github.com/runger/edjournal/internal/tail"
)

func (e *Engine) tailLoop(ctx context.Context, dir string, w *tail.Watcher) error {
	e.catchUp(ctx, dir)
	e.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.C():
			e.poll(ctx)
		}
	}
}

// acquire takes the in-flight guard, waiting for a running poll or replay
// to finish.
func (e *Engine) acquire(ctx context.Context) error {
	for !e.inFlight.CompareAndSwap(false, true) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

// poll applies whatever the tailer finds. It is skipped while a backfill
// runs or another poll or replay holds the guard; the next wakeup retries.
func (e *Engine) poll(ctx context.Context) bool {
	if e.backfilling.Load() {
		return false
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer e.inFlight.Store(false)

	u, err := e.tailer.Poll(ctx)
	if err != nil {
		e.logger.Warn("journal poll failed", "dir", e.tailer.Dir(), "error", err)
		return true
	}
	if u.Empty() {
		return true
	}
	e.applyUpdate(ctx, u)
	e.savePosition(ctx)
	return true
}

func (e *Engine) applyUpdate(ctx context.Context, u tail.Update) {
	var errs []error
	switch {
	case u.Rotated:
		if len(u.Drained) > 0 {
			errs = append(errs, e.live.ApplyLines(ctx, u.Drained))
		}
		e.bus.Emit(events.Event{
			Name:    events.FileRotated,
			Time:    time.Now(),
			Payload: events.RotationPayload{Previous: u.Previous, Next: u.Path},
		})
		_, err := e.live.ReplayFile(ctx, u.Path, u.Lines)
		errs = append(errs, err)
	case u.Initial, u.Truncated:
		_, err := e.live.ReplayFile(ctx, u.Path, u.Lines)
		errs = append(errs, err)
	default:
		errs = append(errs, e.live.ApplyLines(ctx, u.Lines))
	}
	if err := errors.Join(errs...); err != nil {
		e.logger.Warn("journal lines applied with store errors",
			"path", filepath.Base(u.Path),
			"error", err,
		)
	}
}

// catchUp persists journal files written since the position saved by the
// previous run, up to but excluding the newest file, which the first poll
// replays. Nothing reaches live state or subscribers. It holds the
// in-flight guard, waiting out a backfill or import first.
func (e *Engine) catchUp(ctx context.Context, dir string) {
	if err := e.acquire(ctx); err != nil {
		return
	}
	defer e.inFlight.Store(false)

	saved, _, err := e.Position(ctx)
	if err != nil || filepath.Dir(saved) != filepath.Clean(dir) {
		return
	}
	listing, err := tail.List(dir, e.readOpts)
	if err != nil {
		return
	}

	start := -1
	for i, path := range listing.Files {
		if path == saved {
			start = i
			break
		}
	}
	if start < 0 || start >= len(listing.Files)-1 {
		return
	}

	missed := listing.Files[start : len(listing.Files)-1]
	for _, path := range missed {
		if ctx.Err() != nil {
			return
		}
		chunk, err := tail.ReadSince(path, 0, e.readOpts)
		if err != nil {
			e.logger.Warn("skipping unreadable journal file", "path", path, "error", err)
			continue
		}
		if _, err := e.quiet.ReplayFile(ctx, path, chunk.Lines); err != nil {
			e.logger.Warn("journal file replayed with store errors", "path", path, "error", err)
		}
	}
	e.logger.Info("caught up on journal files written while stopped", "files", len(missed))
}

// resync rebuilds live state from the newest journal file and moves the
// tail position to its end. The caller holds the in-flight guard.
func (e *Engine) resync(ctx context.Context, reset bool) {
	dir := e.tailer.Dir()
	latest, ok, err := tail.Latest(dir, e.readOpts)
	if err != nil || !ok {
		if reset {
			e.live.Reset()
		}
		return
	}
	chunk, err := tail.ReadSince(latest, 0, e.readOpts)
	if err != nil {
		e.logger.Warn("cannot read newest journal file", "path", latest, "error", err)
		return
	}
	if reset {
		e.live.Reset()
	}
	if _, err := e.live.ReplayFile(ctx, latest, chunk.Lines); err != nil {
		e.logger.Warn("journal file replayed with store errors", "path", latest, "error", err)
	}
	e.tailer.Seek(latest, chunk.Offset)
	e.savePosition(ctx)
}

// sweepLoop drops expired upstream cache entries, once at start and then
// every configured interval.
func (e *Engine) sweepLoop(ctx context.Context) error {
	e.sweep(ctx)

	mins := e.cfg.Upstream.SweepIntervalMins
	if mins <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(time.Duration(mins) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *Engine) sweep(ctx context.Context) {
	pruned, err := e.cache.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("failed to prune upstream cache", "error", err)
		}
		return
	}
	if pruned > 0 {
		e.logger.Info("pruned expired cache entries", "count", pruned)
	}
}

// MetricsHandler serves the Prometheus registry, or 404 when the engine
// has no metrics.
func (e *Engine) MetricsHandler() http.Handler {
	if e.metrics == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(e.metrics.Registry(), promhttp.HandlerOpts{})
}

func (e *Engine) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.MetricsHandler())
	srv := &http.Server{
		Addr:              e.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	e.logger.Info("serving metrics", "addr", e.metricsAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
