package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []Entry {
	ts := time.Unix(1700000000, 0)
	return []Entry{
		{Timestamp: ts, Role: "reactor.reserve", Session: "run-1", Status: StatusActive},
		{Timestamp: ts, Role: "reactor.reserve", Session: "run-1", Status: StatusComplete},
		{Timestamp: ts, Role: "reactor.reserve", Session: "run-2", Status: StatusActive},
		{Timestamp: ts.Add(time.Second), Role: "reactor.charge", Session: "run-1", Status: StatusFailed},
	}
}

// exerciseLedger runs the behaviour every backend shares.
func exerciseLedger(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()

	for _, e := range sampleEntries() {
		require.NoError(t, l.Append(ctx, e))
	}

	got, err := l.Entries(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, StatusActive, got[0].Status)
	assert.Equal(t, StatusComplete, got[1].Status)
	assert.Equal(t, "reactor.charge", got[2].Role)
	assert.Equal(t, int64(1700000001), got[2].Timestamp.Unix())

	other, err := l.Entries(ctx, "run-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	none, err := l.Entries(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Error(t, l.Append(ctx, Entry{Status: StatusActive}))
	assert.Error(t, l.Append(ctx, Entry{Session: "run-1"}))

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Append(ctx, sampleEntries()[0]), ErrClosed)
	_, err = l.Entries(ctx, "run-1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEntryString(t *testing.T) {
	e := Entry{Timestamp: time.Unix(1700000000, 0), Role: "PM_Agent", Session: "claude_1700000000", Status: StatusActive}
	assert.Equal(t, "1700000000:PM_Agent:claude_1700000000:active", e.String())

	parsed, err := ParseEntry(e.String() + "\n")
	require.NoError(t, err)
	assert.Equal(t, e.Role, parsed.Role)
	assert.Equal(t, e.Session, parsed.Session)
	assert.True(t, e.Timestamp.Equal(parsed.Timestamp))

	odd := Entry{Timestamp: time.Unix(1, 0), Role: "a:b", Session: "s\n1", Status: "x"}
	assert.Equal(t, "1:a_b:s 1:x", odd.String())
}

func TestParseEntry_Malformed(t *testing.T) {
	var malformed *MalformedEntryError

	_, err := ParseEntry("1700000000:role:session")
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, err.Error(), "expected 4 fields")

	_, err = ParseEntry("yesterday:role:session:active")
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, err.Error(), "invalid timestamp")
}

func TestFileLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.log")
	l, err := NewFileLedger(path, true)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())

	exerciseLedger(t, l)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "1700000000:reactor.reserve:run-1:active", lines[0])
}

func TestFileLedger_SkipsForeignLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.log")
	require.NoError(t, os.WriteFile(path, []byte("garbage\n1700000000:PM_Agent:run-1:active\n"), 0o644))

	l, err := NewFileLedger(path, false)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(context.Background(), Entry{Timestamp: time.Unix(1700000001, 0), Role: "dev", Session: "run-1", Status: StatusComplete}))

	got, err := l.Entries(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "PM_Agent", got[0].Role)
	assert.Equal(t, StatusComplete, got[1].Status)
}

func TestFileLedger_CancelledContext(t *testing.T) {
	l, err := NewFileLedger(filepath.Join(t.TempDir(), "ledger.log"), false)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Append(ctx, sampleEntries()[0]), context.Canceled)
}

func TestFileLedger_Unavailable(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileLedger(dir, false)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "file", unavailable.Backend)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestBadgerLedger(t *testing.T) {
	l, err := NewBadgerLedger(BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	exerciseLedger(t, l)
}

func TestBadgerLedger_ReopenKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l, err := NewBadgerLedger(BadgerConfig{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, Entry{Timestamp: time.Unix(1, 0), Role: "a", Session: "run-1", Status: StatusActive}))
	require.NoError(t, l.Close())

	l, err = NewBadgerLedger(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Append(ctx, Entry{Timestamp: time.Unix(2, 0), Role: "a", Session: "run-1", Status: StatusComplete}))

	got, err := l.Entries(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, StatusActive, got[0].Status)
	assert.Equal(t, StatusComplete, got[1].Status)
}

func TestBadgerLedger_InMemory(t *testing.T) {
	l, err := NewBadgerLedger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	exerciseLedger(t, l)
}
