package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	logx "notirelay/pkg/logx"
)

// fileStore keeps the buffer as one JSON object, topic -> entries, with
// keys in buffer order.
//
// Saves go to a temp file in the same directory which is fsynced and
// renamed over the old file, so a crash leaves either the old or the new
// document.
type fileStore struct {
	path string
	log  logx.Logger

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{path: cfg.Path, log: log}, nil
}

func (s *fileStore) Load(ctx context.Context) (Snapshot, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{Topics: map[string][]Record{}}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return Snapshot{Topics: map[string][]Record{}}, nil
	}
	snap, err := decodeOrdered(b)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return snap, nil
}

// decodeOrdered reads {"topic": [...], ...} keeping the key order.
func decodeOrdered(b []byte) (Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return Snapshot{}, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Snapshot{}, errors.New("expected a JSON object of topics")
	}

	snap := Snapshot{Topics: map[string][]Record{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Snapshot{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Snapshot{}, fmt.Errorf("unexpected token %v", tok)
		}
		var recs []Record
		if err := dec.Decode(&recs); err != nil {
			return Snapshot{}, fmt.Errorf("topic %q: %w", key, err)
		}
		if _, dup := snap.Topics[key]; !dup {
			snap.Order = append(snap.Order, key)
		}
		snap.Topics[key] = recs
	}
	if _, err := dec.Token(); err != nil {
		return Snapshot{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Snapshot{}, errors.New("trailing data after topics object")
	}
	return snap, nil
}

func encodeOrdered(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if len(snap.Order) == 0 {
		buf.WriteString("{}\n")
		return buf.Bytes(), nil
	}
	buf.WriteString("{\n")
	for i, k := range snap.Order {
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		recs := snap.Topics[k]
		if recs == nil {
			recs = []Record{}
		}
		vb, err := json.MarshalIndent(recs, "  ", "  ")
		if err != nil {
			return nil, err
		}
		buf.WriteString("  ")
		buf.Write(kb)
		buf.WriteString(": ")
		buf.Write(vb)
		if i < len(snap.Order)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func (s *fileStore) Save(ctx context.Context, snap Snapshot) error {
	_ = ctx
	data, err := encodeOrdered(snap.Normalize())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	// fsync the directory so the rename itself is durable; not all
	// platforms allow it.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
