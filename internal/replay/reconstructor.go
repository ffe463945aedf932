// Package replay turns journal lines into store mutations, an in-memory
// State and emitted domain events.
//
// Lines arrive either one by one while the game is running (ApplyLines) or
// as a whole file at start-up, on rotation and during backfill
// (ReplayFile). Both paths go through the same per-event handlers; they
// differ only in which events update State and emit.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runger/edjournal/internal/events"
	"github.com/runger/edjournal/internal/journal"
	"github.com/runger/edjournal/internal/journal/signals"
	"github.com/runger/edjournal/internal/logging"
	"github.com/runger/edjournal/internal/metrics"
	"github.com/runger/edjournal/internal/store"
)

// Store is the persistence the reconstructor writes to.
type Store interface {
	UpsertSystem(ctx context.Context, obs store.SystemObservation) error
	RecordVisit(ctx context.Context, v store.Visit) error
	SetDeclaredBodyCount(ctx context.Context, address int64, name string, count int) error
	MarkAllBodiesFound(ctx context.Context, address int64, name string, count int) error
	UpsertBody(ctx context.Context, obs store.BodyObservation) error
	ApplySignals(ctx context.Context, u store.SignalUpdate) (bool, error)
	MarkMapped(ctx context.Context, m store.MappingObservation) error
	MarkFootfall(ctx context.Context, address int64, bodyID int, name string, obs store.BodyObservation) error
	GetBody(ctx context.Context, address int64, bodyID int) (*store.Body, error)
	UpsertBiological(ctx context.Context, obs store.BiologicalObservation) error
	UpsertCodexEntry(ctx context.Context, e store.CodexEntry) error
}

// Options configures a Reconstructor.
type Options struct {
	Store   Store
	Emitter events.Emitter
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// JournalDir is where NavRoute.json is looked up when a NavRoute event
	// carries no hops.
	JournalDir string
}

// Stats counts what happened to the lines seen so far.
type Stats struct {
	Lines       int
	Applied     int
	Empty       int
	ParseErrors int
	Unknown     int
	StoreErrors int
	Emitted     int
}

type bodyKey struct {
	address int64
	bodyID  int
}

// pendingSignals is a signals report waiting for its body to be scanned.
type pendingSignals struct {
	result signals.Result
	seen   time.Time
}

// Reconstructor owns the reconstructed State and the pending signal
// buffer. It is safe for concurrent use; calls are serialized.
type Reconstructor struct {
	mu         sync.Mutex
	store      Store
	emitter    events.Emitter
	logger     *slog.Logger
	metrics    *metrics.Metrics
	journalDir string

	state State
	// session is the id of the session the applied lines belong to. It
	// follows LoadGame in every mode, unlike state.SessionID.
	session string
	pending map[bodyKey]pendingSignals
	stats   Stats
}

// New returns a reconstructor with empty state.
func New(opts Options) *Reconstructor {
	if opts.Emitter == nil {
		opts.Emitter = events.Discard
	}
	opts.Logger = logging.OrDefault(opts.Logger)
	return &Reconstructor{
		store:      opts.Store,
		emitter:    opts.Emitter,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		journalDir: opts.JournalDir,
		state:      State{Bodies: make(map[int]BodySummary)},
		pending:    make(map[bodyKey]pendingSignals),
	}
}

// State returns a copy of the current state.
func (r *Reconstructor) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Stats returns line counters.
func (r *Reconstructor) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// PendingCount returns the number of buffered signal reports.
func (r *Reconstructor) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// SetJournalDir changes where NavRoute.json is read from.
func (r *Reconstructor) SetJournalDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.journalDir = dir
}

// Reset forgets state, pending signals and stats.
func (r *Reconstructor) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = State{Bodies: make(map[int]BodySummary)}
	r.pending = make(map[bodyKey]pendingSignals)
	r.stats = Stats{}
	r.session = ""
}

// ApplyLine applies one live journal line. Malformed lines are counted and
// skipped; only store failures are returned.
func (r *Reconstructor) ApplyLine(ctx context.Context, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, ok := r.parse(line)
	if !ok {
		return nil
	}
	return r.apply(ctx, ev, live)
}

// ApplyLines applies live lines in order. A store failure does not stop
// the batch; all failures are returned joined.
func (r *Reconstructor) ApplyLines(ctx context.Context, lines []string) error {
	var errs []error
	for _, line := range lines {
		if err := r.ApplyLine(ctx, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// parse counts the line and returns its event, false if there is nothing
// to apply.
func (r *Reconstructor) parse(line string) (journal.Event, bool) {
	r.stats.Lines++
	ev, err := journal.ParseString(line)
	switch {
	case errors.Is(err, journal.ErrEmptyLine):
		r.stats.Empty++
		r.metrics.Line(metrics.LineEmpty)
		return nil, false
	case err != nil:
		r.stats.ParseErrors++
		r.metrics.Line(metrics.LineParseError)
		r.logger.Debug("skipping malformed journal line", "error", err)
		return nil, false
	}
	if _, unknown := ev.(*journal.Unknown); unknown {
		r.stats.Unknown++
		r.metrics.Line(metrics.LineUnknown)
		return nil, false
	}
	r.stats.Applied++
	r.metrics.Line(metrics.LineApplied)
	return ev, true
}

// mode says what an applied event may touch besides the store.
type mode struct {
	// track updates in-memory State.
	track bool
	// emit sends domain events.
	emit bool
}

var (
	live  = mode{track: true, emit: true}
	quiet = mode{}
)

func (r *Reconstructor) emit(m mode, name events.Name, at time.Time, payload any) {
	if !m.emit {
		return
	}
	r.stats.Emitted++
	r.metrics.EventEmitted(string(name))
	r.emitter.Emit(events.Event{Name: name, Time: at, Payload: payload})
}

func (r *Reconstructor) storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	r.stats.StoreErrors++
	r.metrics.StoreError(store.Classify(err).String())
	r.logger.Warn("store write failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, err)
}

// SessionID derives a stable session id from the commander and the
// LoadGame time, so replaying a file reproduces the same id.
func SessionID(fid string, loadedAt time.Time) string {
	return uuid.NewSHA1(sessionNamespace, []byte(fid+"|"+loadedAt.UTC().Format(time.RFC3339Nano))).String()
}

var sessionNamespace = uuid.MustParse("6f1c2a7e-3d4b-5c8a-9e0f-1a2b3c4d5e6f")

func (r *Reconstructor) navRoutePath() string {
	if r.journalDir == "" {
		return ""
	}
	return filepath.Join(r.journalDir, "NavRoute.json")
}
