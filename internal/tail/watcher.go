package tail

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/runger/edjournal/internal/journal"
)

// DefaultPollInterval is the fallback poll period. Network shares often do
// not deliver change notifications at all.
const DefaultPollInterval = time.Second

// Watcher signals when the journal directory may have new data. Wakeups
// are coalesced: a reader that falls behind sees one pending signal.
type Watcher struct {
	dir      string
	interval time.Duration
	logger   *slog.Logger
	wake     chan struct{}
}

// NewWatcher returns a watcher for dir. A non-positive interval uses
// DefaultPollInterval.
func NewWatcher(dir string, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		interval: interval,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// C delivers wakeups.
func (w *Watcher) C() <-chan struct{} {
	return w.wake
}

// Run watches until ctx is done. Failing to set up change notifications is
// not fatal; the ticker keeps polling.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("file notifications unavailable; polling only", "error", err)
	} else {
		defer fw.Close()
		if err := fw.Add(w.dir); err != nil {
			w.logger.Warn("cannot watch journal directory; polling only", "dir", w.dir, "error", err)
		} else {
			events = fw.Events
			errs = fw.Errors
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.signal()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if relevant(ev) {
				w.signal()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("journal watcher error", "error", err)
		}
	}
}

func (w *Watcher) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(ev.Name)
	return journal.IsJournalFile(name) || name == NavRouteFile
}

// NavRouteFile is the companion file the game rewrites when a route is
// plotted.
const NavRouteFile = "NavRoute.json"
