// Package store persists delivered writes, so a replica rebuilds its state on restart.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrMalformed reports a record that cannot be decoded in the middle of a log.
var ErrMalformed = errors.New("malformed record")

// Record is a single durable entry of a Log.
type Record struct {
	Type   string          `json:"type"`
	Fields json.RawMessage `json:"fields"`
}

// Log is an append only sequence of Records.
type Log interface {
	// Append durably appends the Record. The Record is persisted once Append returns.
	Append(context.Context, Record) error
	// Replay streams all the Records in append order. An error returned by the callback stops it.
	Replay(context.Context, func(Record) error) error
	// Close releases the resources of the Log.
	Close() error
}

// MemLog is a volatile Log.
type MemLog struct {
	mu      sync.Mutex
	records []Record
}

func NewMemLog() *MemLog {
	return &MemLog{}
}

func (l *MemLog) Append(_ context.Context, r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
	return nil
}

func (l *MemLog) Replay(ctx context.Context, fn func(Record) error) error {
	l.mu.Lock()
	records := append([]Record(nil), l.records...)
	l.mu.Unlock()

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of Records.
func (l *MemLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *MemLog) Close() error {
	return nil
}
