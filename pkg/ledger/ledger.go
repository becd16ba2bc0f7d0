// Package ledger records step claims and transitions in an append-only
// coordination log. Entries are written as a run progresses and are never
// read back to resume a run.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Entry statuses.
const (
	StatusActive     = "active"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
	StatusUndone     = "undone"
	StatusUndoFailed = "undo_failed"
)

// ErrClosed is returned by a ledger after Close.
var ErrClosed = errors.New("ledger closed")

// Entry is one ledger record. Session is the run ID and Role names the
// worker that made the claim.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Session   string    `json:"session"`
	Status    string    `json:"status"`
}

// Ledger is an append-only store of entries grouped by session.
type Ledger interface {
	// Append writes one entry.
	Append(ctx context.Context, entry Entry) error

	// Entries returns the entries of session in append order.
	Entries(ctx context.Context, session string) ([]Entry, error)

	// Close releases the backend.
	Close() error
}

// UnavailableError indicates the ledger backend could not be opened or
// reached.
type UnavailableError struct {
	Backend string
	Cause   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s ledger unavailable: %v", e.Backend, e.Cause)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// MalformedEntryError is returned when a stored record cannot be decoded.
type MalformedEntryError struct {
	Record string
	Reason string
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("malformed ledger record %q: %s", e.Record, e.Reason)
}

// String renders the entry as timestamp:role:session:status with a unix
// seconds timestamp.
func (e Entry) String() string {
	return strings.Join([]string{
		strconv.FormatInt(e.Timestamp.Unix(), 10),
		field(e.Role),
		field(e.Session),
		field(e.Status),
	}, ":")
}

// ParseEntry parses a line written by Entry.String.
func ParseEntry(line string) (Entry, error) {
	line = strings.TrimSpace(line)
	parts := strings.Split(line, ":")
	if len(parts) != 4 {
		return Entry{}, &MalformedEntryError{Record: line, Reason: "expected 4 fields"}
	}
	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Entry{}, &MalformedEntryError{Record: line, Reason: "invalid timestamp"}
	}
	return Entry{
		Timestamp: time.Unix(secs, 0),
		Role:      parts[1],
		Session:   parts[2],
		Status:    parts[3],
	}, nil
}

func validate(entry Entry) error {
	if entry.Session == "" {
		return errors.New("ledger entry session is required")
	}
	if entry.Status == "" {
		return errors.New("ledger entry status is required")
	}
	return nil
}

// field keeps a value from breaking the colon-delimited record.
func field(s string) string {
	return strings.NewReplacer(":", "_", "\n", " ", "\r", " ").Replace(s)
}
