// Package engine wires the tailer, reconstructor, store, backfill and
// upstream cache into one long-running process and exposes the operations
// the command line drives.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runger/edjournal/internal/backfill"
	"github.com/runger/edjournal/internal/config"
	"github.com/runger/edjournal/internal/events"
	"github.com/runger/edjournal/internal/logging"
	"github.com/runger/edjournal/internal/metrics"
	"github.com/runger/edjournal/internal/replay"
	"github.com/runger/edjournal/internal/store"
	"github.com/runger/edjournal/internal/tail"
	"github.com/runger/edjournal/internal/upstream"
)

var (
	// ErrAlreadyTailing is returned by StartTailing when tailing is active.
	ErrAlreadyTailing = errors.New("already tailing")
	// ErrBusy is returned by operations that replace exploration data while
	// a backfill is running.
	ErrBusy = errors.New("a backfill is in progress")
)

// Meta keys for the persisted tail position.
const (
	metaTailPath   = "tail_path"
	metaTailOffset = "tail_offset"
)

// Options configures an Engine.
type Options struct {
	// Config is required.
	Config *config.Config
	// Store is required. The engine does not close it.
	Store   *store.Store
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// HTTPClient overrides the upstream transport.
	HTTPClient *http.Client
	// MetricsAddr, when set, serves Prometheus metrics while tailing.
	MetricsAddr string
}

// Engine is the running application.
type Engine struct {
	cfg     *config.Config
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	bus     *events.Bus

	live     *replay.Reconstructor
	quiet    *replay.Reconstructor
	tailer   *tail.Tailer
	readOpts tail.Options
	backfill *backfill.Orchestrator
	cache    *upstream.Cache

	metricsAddr string

	// inFlight is held while a poll, and any whole-file replay it triggers,
	// is in progress. Polls that find it set are skipped.
	inFlight atomic.Bool
	// backfilling pauses live tailing for the duration of a backfill.
	backfilling atomic.Bool

	mu     sync.Mutex
	dir    string
	parent context.Context
	loop   *loop

	runMu   sync.Mutex
	lastRun *BackfillRun
}

// loop is one run of the tail goroutines. err is written before done is
// closed.
type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// New builds an engine. Nothing runs until StartTailing or RunBackfill.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	cfg := opts.Config
	logger := logging.OrDefault(opts.Logger)
	dir := cfg.JournalDir()

	e := &Engine{
		cfg:         cfg,
		store:       opts.Store,
		logger:      logger,
		metrics:     opts.Metrics,
		bus:         events.NewBus(events.DefaultBufferSize, logger),
		metricsAddr: opts.MetricsAddr,
		dir:         dir,
	}

	e.live = replay.New(replay.Options{
		Store:      opts.Store,
		Emitter:    e.bus,
		Logger:     logger,
		Metrics:    opts.Metrics,
		JournalDir: dir,
	})

	e.readOpts = tail.Options{
		MaxFiles: cfg.Journal.MaxFiles,
		MaxLines: cfg.Journal.MaxLinesPerRead,
		Logger:   logger,
	}
	e.tailer = tail.New(dir, tail.WithOptions(e.readOpts), tail.WithOnRotate(e.onRotate))

	// Backfill persists through its own reconstructor so historical files
	// never touch live state or reach subscribers.
	e.quiet = replay.New(replay.Options{Store: opts.Store, Logger: logger, Metrics: opts.Metrics})
	e.backfill = backfill.New(backfill.Options{
		Replayer: e.quiet,
		Logger:   logger,
		Metrics:  opts.Metrics,
		MaxFiles: cfg.Backfill.MaxFiles,
		MaxLines: cfg.Journal.MaxLinesPerRead,
	})

	// Zero in the config means no spacing; the client reads zero as its
	// one-second default.
	minInterval := time.Duration(cfg.Upstream.MinIntervalMs) * time.Millisecond
	if minInterval == 0 {
		minInterval = -1
	}
	client, err := upstream.NewClient(upstream.ClientOptions{
		BaseURL:     cfg.Upstream.BaseURL,
		HTTPClient:  opts.HTTPClient,
		MinInterval: minInterval,
		MaxRetries:  cfg.Upstream.MaxRetries,
		Backoff:     time.Duration(cfg.Upstream.RetryBackoffMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.Upstream.TimeoutMs) * time.Millisecond,
		Logger:      logger,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create upstream client: %w", err)
	}
	e.cache, err = upstream.NewCache(upstream.CacheOptions{
		Fetcher:          client,
		Persistent:       opts.Store,
		MemoryTTL:        cfg.MemoryTTL(),
		PersistentTTL:    cfg.PersistentTTL(),
		MaxMemoryEntries: cfg.Upstream.MaxMemoryEntries,
		Logger:           logger,
		Metrics:          opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create upstream cache: %w", err)
	}

	return e, nil
}

// JournalDir returns the directory being followed.
func (e *Engine) JournalDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

// State returns a copy of the reconstructed live state.
func (e *Engine) State() replay.State {
	return e.live.State()
}

// Stats returns the live reconstructor's line counters.
func (e *Engine) Stats() replay.Stats {
	return e.live.Stats()
}

// Subscribe returns a stream of domain events and its cancel function.
func (e *Engine) Subscribe() (<-chan events.Event, func()) {
	return e.bus.Subscribe()
}

// Tailing reports whether the tail loop is running.
func (e *Engine) Tailing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loop != nil
}

// StartTailing starts following the journal directory in the background.
// The newest file is replayed whole first, so State reflects it before the
// first live line is applied.
func (e *Engine) StartTailing(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loop != nil {
		return ErrAlreadyTailing
	}
	return e.startLocked(ctx)
}

func (e *Engine) startLocked(ctx context.Context) error {
	e.parent = ctx
	runCtx, cancel := context.WithCancel(ctx)
	l := &loop{cancel: cancel, done: make(chan struct{})}
	e.loop = l

	dir := e.dir
	watcher := tail.NewWatcher(dir, e.cfg.PollInterval(), e.logger)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return e.tailLoop(gctx, dir, watcher) })
	g.Go(func() error { return e.sweepLoop(gctx) })
	if e.metricsAddr != "" {
		g.Go(func() error { return e.serveMetrics(gctx) })
	}

	go func() {
		l.err = g.Wait()
		close(l.done)
	}()

	e.logger.Info("tailing journal directory", "dir", dir)
	return nil
}

// StopTailing stops the tail loop and waits for it. It returns the error
// that ended the loop, if any.
func (e *Engine) StopTailing() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	l := e.loop
	if l == nil {
		return nil
	}
	l.cancel()
	// The loop goroutines never take e.mu, so waiting here cannot deadlock.
	<-l.done
	e.loop = nil
	e.logger.Info("stopped tailing", "dir", e.dir)
	return l.err
}

// SetJournalDir switches to another journal directory. State is rebuilt
// from that directory's newest file; tailing restarts if it was running.
func (e *Engine) SetJournalDir(dir string) error {
	if dir == "" {
		return errors.New("journal directory is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	wasTailing := e.loop != nil
	if err := e.stopLocked(); err != nil {
		e.logger.Warn("tail loop ended with error", "error", err)
	}
	e.dir = dir
	e.tailer.SetDir(dir)
	e.live.SetJournalDir(dir)
	e.live.Reset()
	e.logger.Info("journal directory changed", "dir", dir)

	if wasTailing {
		return e.startLocked(e.parent)
	}
	return nil
}

// Close stops tailing, cancels a running backfill and ends every
// subscription.
func (e *Engine) Close() error {
	err := e.StopTailing()
	e.backfill.Cancel()
	e.runMu.Lock()
	run := e.lastRun
	e.runMu.Unlock()
	if run != nil {
		<-run.Done()
	}
	e.bus.Close()
	return err
}

// Position returns the tracked file and offset as last persisted.
func (e *Engine) Position(ctx context.Context) (string, int64, error) {
	path, err := e.store.GetMeta(ctx, metaTailPath)
	if err != nil {
		return "", 0, err
	}
	raw, err := e.store.GetMeta(ctx, metaTailOffset)
	if err != nil {
		return "", 0, err
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("parse tail offset: %w", err)
	}
	return path, offset, nil
}

func (e *Engine) savePosition(ctx context.Context) {
	// Stopping mid-poll must not lose the position of lines already applied.
	ctx = context.WithoutCancel(ctx)
	path, offset := e.tailer.Position()
	if path == "" {
		return
	}
	if err := e.store.SetMeta(ctx, metaTailPath, path); err != nil {
		logging.LogSQLiteError(e.logger, "save tail path", err)
		return
	}
	if err := e.store.SetMeta(ctx, metaTailOffset, strconv.FormatInt(offset, 10)); err != nil {
		logging.LogSQLiteError(e.logger, "save tail offset", err)
	}
}

// onRotate counts rotations. Subscribers hear about the rotation from
// applyUpdate, once the lines drained from the previous file are applied.
func (e *Engine) onRotate(context.Context, string, string) {
	e.metrics.Rotation()
}
