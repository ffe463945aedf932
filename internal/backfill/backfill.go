// Package backfill replays every historical journal file, oldest first,
// through the cold-start replay path.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/runger/edjournal/internal/logging"
	"github.com/runger/edjournal/internal/metrics"
	"github.com/runger/edjournal/internal/replay"
	"github.com/runger/edjournal/internal/tail"
)

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("backfill already running")

// Replayer applies one whole journal file.
type Replayer interface {
	ReplayFile(ctx context.Context, path string, lines []string) (replay.Stats, error)
}

// Options configures an Orchestrator.
type Options struct {
	Replayer Replayer
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// MaxFiles caps the files replayed; the oldest are dropped first.
	// Zero or anything above tail.MaxFiles means tail.MaxFiles.
	MaxFiles int
	// MaxLines caps the lines read from one file.
	MaxLines int
}

// Progress is reported after each file.
type Progress struct {
	// Index is 1-based.
	Index int
	Total int
	File  string
}

// Result summarizes a run.
type Result struct {
	FilesProcessed int
	FilesTotal     int
	LinesApplied   int
	ParseErrors    int
	StoreErrors    int
	// Skipped counts files that could not be read.
	Skipped int
	// Dropped counts files left out by the MaxFiles cap.
	Dropped   int
	Cancelled bool
	Duration  time.Duration
}

// Orchestrator runs at most one backfill at a time.
type Orchestrator struct {
	replayer Replayer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	opts     tail.Options
	list     func(dir string, opts tail.Options) (tail.Listing, error)

	running atomic.Bool

	// mu orders Start against Cancel: a run's cancel func is published
	// before anything else in Start can block.
	mu     sync.Mutex
	cancel context.CancelFunc
}

// New returns an idle orchestrator.
func New(opts Options) *Orchestrator {
	logger := logging.OrDefault(opts.Logger)
	return &Orchestrator{
		replayer: opts.Replayer,
		logger:   logger,
		metrics:  opts.Metrics,
		opts:     tail.Options{MaxFiles: opts.MaxFiles, MaxLines: opts.MaxLines, Logger: logger},
		list:     tail.List,
	}
}

// Run is a backfill in progress.
type Run struct {
	progress chan Progress
	done     chan struct{}
	result   Result
	err      error
}

// Progress yields one report per finished file and is closed when the run
// ends. It is buffered for every file, so a caller may ignore it.
func (r *Run) Progress() <-chan Progress { return r.progress }

// Done is closed when the run ends.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run ends.
func (r *Run) Wait() (Result, error) {
	<-r.done
	return r.result, r.err
}

// Running reports whether a backfill is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Cancel asks the current run to stop after the file it is replaying.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// Start lists dir and begins replaying it in the background. It returns
// ErrAlreadyRunning if another run has not finished.
func (o *Orchestrator) Start(ctx context.Context, dir string) (*Run, error) {
	o.mu.Lock()
	if !o.running.CompareAndSwap(false, true) {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	finish := func() {
		o.mu.Lock()
		o.cancel = nil
		o.running.Store(false)
		o.mu.Unlock()
		cancel()
	}

	listing, err := o.list(dir, o.opts)
	if err != nil {
		finish()
		o.metrics.BackfillRun("failed")
		return nil, fmt.Errorf("list journal files: %w", err)
	}

	run := &Run{
		progress: make(chan Progress, len(listing.Files)),
		done:     make(chan struct{}),
	}
	go func() {
		defer func() {
			close(run.progress)
			finish()
			close(run.done)
		}()
		run.result, run.err = o.run(runCtx, listing, run.progress)
	}()
	return run, nil
}

// RunSync starts a backfill and waits for it.
func (o *Orchestrator) RunSync(ctx context.Context, dir string) (Result, error) {
	run, err := o.Start(ctx, dir)
	if err != nil {
		return Result{}, err
	}
	return run.Wait()
}

func (o *Orchestrator) run(ctx context.Context, listing tail.Listing, progress chan<- Progress) (Result, error) {
	start := time.Now()
	res := Result{
		FilesTotal: len(listing.Files),
		Dropped:    listing.Total - len(listing.Files),
	}
	o.logger.Info("backfill started", "files", res.FilesTotal, "dropped", res.Dropped)

	var errs []error
	for i, path := range listing.Files {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}

		chunk, err := tail.ReadSince(path, 0, o.opts)
		if err != nil {
			res.Skipped++
			o.logger.Warn("skipping unreadable journal file", "path", path, "error", err)
		} else {
			// A started file is always finished; cancellation waits for it.
			stats, err := o.replayer.ReplayFile(context.WithoutCancel(ctx), path, chunk.Lines)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
			}
			res.LinesApplied += stats.Applied
			res.ParseErrors += stats.ParseErrors
			res.StoreErrors += stats.StoreErrors
			res.FilesProcessed++
			o.metrics.BackfillFile()
		}

		progress <- Progress{Index: i + 1, Total: res.FilesTotal, File: filepath.Base(path)}
	}
	res.Duration = time.Since(start)

	outcome := "completed"
	if res.Cancelled {
		outcome = "cancelled"
	}
	o.metrics.BackfillRun(outcome)
	o.logger.Info("backfill finished",
		"result", outcome,
		"files_processed", res.FilesProcessed,
		"files_total", res.FilesTotal,
		"lines_applied", res.LinesApplied,
		"parse_errors", res.ParseErrors,
		"store_errors", res.StoreErrors,
		"skipped", res.Skipped,
		"duration", res.Duration,
	)
	return res, errors.Join(errs...)
}
