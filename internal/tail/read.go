// Package tail follows the game's journal directory: it finds the active
// journal file, reads complete lines appended since a byte offset and
// notices when the game starts a new file.
package tail

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/runger/edjournal/internal/journal"
)

// Fixed upper bounds. The journal directory is not trusted to be small.
const (
	// MaxFiles is the most journal files considered in one directory.
	MaxFiles = 10000
	// MaxLines is the most lines returned by one read.
	MaxLines = 200000
	// MaxLineBytes is the longest line kept. Longer lines are skipped.
	MaxLineBytes = 4 << 20
)

// Options bounds directory listings and reads. Zero values use the package
// defaults.
type Options struct {
	MaxFiles     int
	MaxLines     int
	MaxLineBytes int
	Logger       *slog.Logger
}

func (o Options) maxFiles() int {
	if o.MaxFiles <= 0 || o.MaxFiles > MaxFiles {
		return MaxFiles
	}
	return o.MaxFiles
}

func (o Options) maxLines() int {
	if o.MaxLines <= 0 || o.MaxLines > MaxLines {
		return MaxLines
	}
	return o.MaxLines
}

func (o Options) maxLineBytes() int {
	if o.MaxLineBytes <= 0 || o.MaxLineBytes > MaxLineBytes {
		return MaxLineBytes
	}
	return o.MaxLineBytes
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Listing is the result of List.
type Listing struct {
	// Files are full paths, oldest first.
	Files []string
	// Total is the number of journal files found before capping.
	Total int
	// Truncated is set when older files were dropped to honour MaxFiles.
	Truncated bool
}

// List returns the journal files in dir, oldest first. When more than
// MaxFiles exist the oldest are dropped and a warning is logged.
func List(dir string, opts Options) (Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Listing{}, fmt.Errorf("read journal directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !journal.IsJournalFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sortJournalNames(names)

	l := Listing{Total: len(names)}
	if limit := opts.maxFiles(); len(names) > limit {
		opts.logger().Warn("journal file cap reached; oldest files ignored",
			"dir", dir,
			"found", len(names),
			"limit", limit,
		)
		names = names[len(names)-limit:]
		l.Truncated = true
	}

	l.Files = make([]string, len(names))
	for i, n := range names {
		l.Files[i] = filepath.Join(dir, n)
	}
	return l, nil
}

// Latest returns the newest journal file in dir, false when there is none.
func Latest(dir string, opts Options) (string, bool, error) {
	l, err := List(dir, opts)
	if err != nil {
		return "", false, err
	}
	if len(l.Files) == 0 {
		return "", false, nil
	}
	return l.Files[len(l.Files)-1], true, nil
}

// sortJournalNames orders names chronologically. Both filename formats
// embed the session start; the part number breaks ties and the name is the
// last resort.
func sortJournalNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ti, okI := journal.JournalTime(names[i])
		tj, okJ := journal.JournalTime(names[j])
		if okI && okJ && !ti.Equal(tj) {
			return ti.Before(tj)
		}
		pi, _ := journal.JournalPart(names[i])
		pj, _ := journal.JournalPart(names[j])
		if okI && okJ && pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
}

// Chunk is the result of ReadSince.
type Chunk struct {
	// Lines are the complete, non-blank lines read, without terminators.
	Lines []string
	// Offset is the position just after the last complete line consumed.
	Offset int64
	// Truncated is set when the file was shorter than the requested offset
	// and was re-read from the start.
	Truncated bool
	// Capped is set when MaxLines stopped the read early. Offset then points
	// at the first unread line.
	Capped bool
	// Oversized counts complete lines longer than MaxLineBytes. They are
	// consumed but not returned.
	Oversized int
}

// ReadSince reads the complete lines appended to path after offset. A final
// line without a newline is the game still writing; it is left for the next
// call.
func ReadSince(path string, offset int64, opts Options) (Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return Chunk{}, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Chunk{}, fmt.Errorf("stat journal: %w", err)
	}

	var c Chunk
	if offset < 0 || info.Size() < offset {
		opts.logger().Warn("journal shorter than tracked offset; re-reading from start",
			"path", path,
			"offset", offset,
			"size", info.Size(),
		)
		offset = 0
		c.Truncated = true
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return Chunk{}, fmt.Errorf("seek journal: %w", err)
	}

	limit := opts.maxLines()
	r := bufio.NewReaderSize(f, 64*1024)
	c.Offset = offset
	read := 0
	for {
		line, n, oversized, err := readLine(r, opts.maxLineBytes())
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Unterminated tail is held back.
				break
			}
			return c, fmt.Errorf("read journal: %w", err)
		}
		if read >= limit {
			c.Capped = true
			opts.logger().Warn("journal line cap reached; continuing on next read",
				"path", path,
				"limit", limit,
				"offset", c.Offset,
			)
			break
		}
		c.Offset += n
		read++
		if oversized {
			c.Oversized++
			opts.logger().Warn("skipping oversized journal line",
				"path", path,
				"offset", c.Offset-n,
				"bytes", n,
			)
			continue
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		c.Lines = append(c.Lines, string(line))
	}
	return c, nil
}

// readLine reads up to and including the next newline. It returns the
// bytes consumed. Past limit bytes the line is still consumed but its
// content is dropped and oversized is set. io.EOF means no newline was
// found; the partial line is not consumed.
func readLine(r *bufio.Reader, limit int) (line []byte, n int64, oversized bool, err error) {
	for {
		frag, err := r.ReadSlice('\n')
		n += int64(len(frag))
		if !oversized {
			if len(line)+len(frag) > limit+2 {
				oversized = true
				line = nil
			} else {
				line = append(line, frag...)
			}
		}
		switch {
		case err == nil:
			return line, n, oversized, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, n, oversized, err
		}
	}
}
