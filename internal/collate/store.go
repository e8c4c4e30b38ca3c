package collate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"notirelay/internal/storage"
	logx "notirelay/pkg/logx"
)

var ErrEmptyKey = errors.New("collate: empty routing key")

// Store is the durable per-topic buffer of withheld messages.
//
// Every mutation holds mu across modify and persist, and persists the full
// buffer before returning.
type Store struct {
	mu      sync.Mutex
	backend storage.Backend
	order   []string
	topics  map[string][]Entry
	log     logx.Logger
}

// Open loads the buffer from backend and makes sure every configured topic
// exists. Topics found in storage but no longer configured are kept.
func Open(ctx context.Context, backend storage.Backend, topics []string, log logx.Logger) (*Store, error) {
	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load collation buffer: %w", err)
	}
	snap = snap.Normalize()

	s := &Store{
		backend: backend,
		topics:  make(map[string][]Entry, len(snap.Order)+len(topics)),
		log:     log,
	}

	// configured order first, then whatever else was on disk
	for _, k := range topics {
		if k == "" {
			continue
		}
		if _, ok := s.topics[k]; ok {
			continue
		}
		s.order = append(s.order, k)
		s.topics[k] = fromRecords(snap.Topics[k])
	}
	var extra []string
	for _, k := range snap.Order {
		if _, ok := s.topics[k]; ok {
			continue
		}
		s.order = append(s.order, k)
		s.topics[k] = fromRecords(snap.Topics[k])
		extra = append(extra, k)
	}
	if len(extra) > 0 {
		log.Info("keeping unconfigured topics from storage", logx.Strings("topics", extra))
	}

	s.mu.Lock()
	err = s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Append adds e under key, creating the topic if needed. If the buffer
// cannot be persisted the append is undone and the error returned.
func (s *Store) Append(ctx context.Context, key string, e Entry) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.topics[key]
	if !existed {
		s.order = append(s.order, key)
	}
	s.topics[key] = append(prev[:len(prev):len(prev)], e)

	if err := s.persistLocked(ctx); err != nil {
		if existed {
			s.topics[key] = prev
		} else {
			delete(s.topics, key)
			s.order = s.order[:len(s.order)-1]
		}
		return err
	}
	return nil
}

// Drain returns a copy of every non-empty topic in store order. The store
// is not modified; callers Ack what they delivered.
func (s *Store) Drain() []Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Topic
	for _, k := range s.order {
		es := s.topics[k]
		if len(es) == 0 {
			continue
		}
		out = append(out, Topic{Key: k, Entries: append([]Entry(nil), es...)})
	}
	return out
}

// Ack removes the first n entries of key, the ones a flush delivered.
// Entries appended after the drain stay. The in-memory state changes even
// if persisting fails.
func (s *Store) Ack(ctx context.Context, key string, n int) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	es, ok := s.topics[key]
	if !ok || len(es) == 0 {
		return nil
	}
	if n > len(es) {
		n = len(es)
	}
	rest := make([]Entry, len(es)-n)
	copy(rest, es[n:])
	s.topics[key] = rest
	return s.persistLocked(ctx)
}

// Clear empties key. Clearing an empty or unknown topic does nothing.
func (s *Store) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.topics[key]) == 0 {
		return nil
	}
	s.topics[key] = []Entry{}
	return s.persistLocked(ctx)
}

// Topics lists every topic, including empty ones.
func (s *Store) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *Store) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.topics[key])
}

// Pending returns the entry count per topic.
func (s *Store) Pending() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.order))
	for _, k := range s.order {
		out[k] = len(s.topics[k])
	}
	return out
}

func (s *Store) persistLocked(ctx context.Context) error {
	snap := storage.Snapshot{
		Order:  append([]string(nil), s.order...),
		Topics: make(map[string][]storage.Record, len(s.topics)),
	}
	for k, es := range s.topics {
		snap.Topics[k] = toRecords(es)
	}
	if err := s.backend.Save(ctx, snap); err != nil {
		s.log.Error("collation buffer persist failed", logx.Err(err))
		return &PersistError{Err: err}
	}
	return nil
}

// PersistError reports that the buffer could not be written to storage.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return "persist collation buffer: " + e.Err.Error() }
func (e *PersistError) Unwrap() error { return e.Err }
