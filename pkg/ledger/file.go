package ledger

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileLedger appends one line per entry to a plain text file.
type FileLedger struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	sync   bool
	closed bool
}

// NewFileLedger opens path for appending, creating it and its directory
// when missing. With syncWrites every Append is flushed to disk.
func NewFileLedger(path string, syncWrites bool) (*FileLedger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &UnavailableError{Backend: "file", Cause: err}
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &UnavailableError{Backend: "file", Cause: err}
	}
	return &FileLedger{path: path, file: f, sync: syncWrites}, nil
}

// Path returns the ledger file path.
func (l *FileLedger) Path() string {
	return l.path
}

func (l *FileLedger) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(entry); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if _, err := fmt.Fprintln(l.file, entry.String()); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	if l.sync {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("sync ledger file: %w", err)
		}
	}
	return nil
}

// Entries scans the whole file. Lines that do not parse are skipped.
func (l *FileLedger) Entries(ctx context.Context, session string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil, &UnavailableError{Backend: "file", Cause: err}
	}
	defer f.Close()

	want := field(session)
	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry, err := ParseEntry(scanner.Text())
		if err != nil || entry.Session != want {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	return entries, nil
}

func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
