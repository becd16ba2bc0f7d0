package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const sequenceBandwidth = 128

// BadgerConfig holds configuration for BadgerLedger.
type BadgerConfig struct {
	Path       string
	SyncWrites bool

	// InMemory runs without touching disk. Path must be empty.
	InMemory bool
}

// BadgerLedger stores entries in Badger under ledger:<session>:<seq>.
// Sequence numbers are zero padded so a prefix scan returns append order.
type BadgerLedger struct {
	db  *badger.DB
	seq *badger.Sequence

	mu     sync.RWMutex
	closed bool
}

// NewBadgerLedger opens the database at cfg.Path.
func NewBadgerLedger(cfg BadgerConfig) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.SyncWrites).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &UnavailableError{Backend: "badger", Cause: err}
	}
	seq, err := db.GetSequence([]byte("seq:ledger"), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, &UnavailableError{Backend: "badger", Cause: err}
	}
	return &BadgerLedger{db: db, seq: seq}, nil
}

func entryKey(session string, seq uint64) []byte {
	return []byte(fmt.Sprintf("ledger:%s:%020d", session, seq))
}

func sessionPrefix(session string) []byte {
	return []byte(fmt.Sprintf("ledger:%s:", session))
}

func (l *BadgerLedger) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(entry); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	n, err := l.seq.Next()
	if err != nil {
		return fmt.Errorf("next ledger sequence: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(field(entry.Session), n), data)
	})
}

func (l *BadgerLedger) Entries(ctx context.Context, session string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}

	var entries []Entry
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionPrefix(field(session))

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var entry Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return &MalformedEntryError{Record: string(item.Key()), Reason: err.Error()}
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *BadgerLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Join(l.seq.Release(), l.db.Close())
}
