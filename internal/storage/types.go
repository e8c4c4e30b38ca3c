package storage

import (
	"context"
	"errors"
	"sort"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file" (default): JSON document at Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one persisted entry.
type Record struct {
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// Snapshot is the whole buffer. Order lists every topic, including empty
// ones, in display order.
type Snapshot struct {
	Order  []string
	Topics map[string][]Record
}

// Backend loads and saves snapshots.
type Backend interface {
	// Load returns an empty snapshot (not an error) when nothing was saved yet.
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

// Normalize makes Order and Topics agree: topics missing from Order are
// appended in sorted order and Order entries get a (possibly empty) slot.
func (s Snapshot) Normalize() Snapshot {
	out := Snapshot{Topics: make(map[string][]Record, len(s.Topics))}
	seen := make(map[string]bool, len(s.Order))
	for _, k := range s.Order {
		if seen[k] {
			continue
		}
		seen[k] = true
		out.Order = append(out.Order, k)
		out.Topics[k] = s.Topics[k]
	}
	var rest []string
	for k := range s.Topics {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out.Order = append(out.Order, k)
		out.Topics[k] = s.Topics[k]
	}
	return out
}
