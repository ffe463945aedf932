package tail

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Update is the result of one Poll.
type Update struct {
	// Path is the tracked file after the poll.
	Path string
	// Lines are new complete lines of Path. After a switch to a new file
	// they are the whole file read from offset 0.
	Lines []string
	// Initial is set on the first poll that found a file.
	Initial bool
	// Rotated is set when the game started a new file since the last poll.
	Rotated bool
	// Previous is the file tracked before a rotation.
	Previous string
	// Drained are lines appended to Previous after the last poll and before
	// the switch. They belong before Lines.
	Drained []string
	// Truncated is set when the tracked file shrank, was rewritten in place
	// or was replaced, and was re-read from the start.
	Truncated bool
}

// Empty reports whether the poll produced nothing to apply.
func (u Update) Empty() bool {
	return len(u.Lines) == 0 && len(u.Drained) == 0 && !u.Rotated && !u.Initial
}

// RotateFunc is called when a new journal file appears, before the tailer
// switches to it.
type RotateFunc func(ctx context.Context, previous, next string)

// Option configures a Tailer.
type Option func(*Tailer)

// WithOnRotate registers the rotation hook.
func WithOnRotate(fn RotateFunc) Option {
	return func(t *Tailer) { t.onRotate = fn }
}

// WithOptions sets read limits and the logger.
func WithOptions(opts Options) Option {
	return func(t *Tailer) { t.opts = opts }
}

// Tailer tracks one (file, offset) position in a journal directory.
type Tailer struct {
	mu       sync.Mutex
	dir      string
	path     string
	offset   int64
	opts     Options
	onRotate RotateFunc
	ident    *fileIdent
}

// New returns a tailer for dir with no tracked position.
func New(dir string, options ...Option) *Tailer {
	t := &Tailer{dir: dir}
	for _, o := range options {
		o(t)
	}
	return t
}

// Dir returns the watched directory.
func (t *Tailer) Dir() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir
}

// SetDir points the tailer at another directory and forgets the position.
func (t *Tailer) SetDir(dir string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dir = dir
	t.path = ""
	t.offset = 0
	t.ident = nil
}

// Seek restores a persisted position. The next Poll continues from offset
// if path is still the newest file.
func (t *Tailer) Seek(path string, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.path = path
	t.offset = offset
	t.ident = nil
}

// Position returns the tracked file and offset.
func (t *Tailer) Position() (string, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path, t.offset
}

// Poll reads whatever is new. A newer file than the tracked one is a
// rotation: the new file is read from the start, then the rest of the old
// file is drained and the hook fires. Nothing changes when the new file
// cannot be read yet, so the next Poll retries the whole rotation.
func (t *Tailer) Poll(ctx context.Context) (Update, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	latest, ok, err := Latest(t.dir, t.opts)
	if err != nil {
		return Update{}, err
	}
	if !ok {
		return Update{}, nil
	}

	if latest == t.path {
		offset, rewritten := t.offset, false
		if t.ident != nil && !t.ident.matches(t.path) {
			t.logger().Warn("journal replaced or rewritten; re-reading from start", "path", t.path)
			offset, rewritten = 0, true
		}
		c, err := ReadSince(t.path, offset, t.opts)
		if err != nil {
			return Update{}, err
		}
		t.offset = c.Offset
		t.ident = identify(t.path, t.offset)
		return Update{Path: t.path, Lines: c.Lines, Truncated: c.Truncated || rewritten}, nil
	}

	next, err := ReadSince(latest, 0, t.opts)
	if err != nil {
		return Update{}, err
	}

	u := Update{Path: latest, Previous: t.path, Initial: t.path == "", Lines: next.Lines}
	if !u.Initial {
		u.Rotated = true
		if c, err := ReadSince(t.path, t.offset, t.opts); err == nil {
			u.Drained = c.Lines
		} else {
			t.logger().Warn("could not drain previous journal", "path", t.path, "error", err)
		}
		t.logger().Info("journal rotated", "previous", t.path, "next", latest)
		if t.onRotate != nil {
			t.onRotate(ctx, t.path, latest)
		}
	}

	t.path = latest
	t.offset = next.Offset
	t.ident = identify(t.path, t.offset)
	return u, nil
}

// identHeadBytes is how much of the start of the tracked file is compared
// between polls.
const identHeadBytes = 256

// fileIdent is what the tracked file looked like at the last poll. The game
// writes a session header first, so the head of the file tells one session
// apart from another even at the same size.
type fileIdent struct {
	info os.FileInfo
	head []byte
}

// identify records the tracked file, nil when it cannot be read.
func identify(path string, offset int64) *fileIdent {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil
	}
	head := make([]byte, min(offset, identHeadBytes))
	if _, err := io.ReadFull(f, head); err != nil {
		return nil
	}
	return &fileIdent{info: info, head: head}
}

// matches reports whether path is still the same file with the same head.
// A file that cannot be checked counts as a match; the read reports the
// real error.
func (id *fileIdent) matches(path string) bool {
	cur := identify(path, int64(len(id.head)))
	if cur == nil {
		return true
	}
	if !os.SameFile(id.info, cur.info) {
		return false
	}
	return bytes.Equal(id.head, cur.head)
}

func (t *Tailer) logger() *slog.Logger {
	return t.opts.logger()
}
