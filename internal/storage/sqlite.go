package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	logx "notirelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

// Rows per multi-row INSERT, well under SQLite's variable limit.
const insertBatch = 100

type sqliteStore struct {
	mu     sync.Mutex
	closed bool
	db     *sql.DB
	log    logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Backend, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if _, err := db.ExecContext(context.Background(), migrationsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite storage opened", logx.String("path", cfg.Path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	snap := Snapshot{Topics: map[string][]Record{}}

	q, args, err := sq.Select("name").From("topics").OrderBy("position", "name").ToSql()
	if err != nil {
		return Snapshot{}, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Snapshot{}, err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return Snapshot{}, err
		}
		snap.Order = append(snap.Order, name)
		snap.Topics[name] = nil
	}
	if err := rows.Close(); err != nil {
		return Snapshot{}, err
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	q, args, err = sq.Select("topic", "at", "title", "body").From("entries").OrderBy("topic", "seq").ToSql()
	if err != nil {
		return Snapshot{}, err
	}
	rows, err = s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var topic string
		var r Record
		if err := rows.Scan(&topic, &r.Timestamp, &r.Title, &r.Body); err != nil {
			return Snapshot{}, err
		}
		snap.Topics[topic] = append(snap.Topics[topic], r)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	return snap.Normalize(), nil
}

// Save replaces both tables in one transaction.
func (s *sqliteStore) Save(ctx context.Context, snap Snapshot) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	snap = snap.Normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"entries", "topics"} {
		q, args, qerr := sq.Delete(table).ToSql()
		if qerr != nil {
			return qerr
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}

	topics := sq.Insert("topics").Columns("name", "position")
	for i, name := range snap.Order {
		topics = topics.Values(name, i)
	}
	if len(snap.Order) > 0 {
		if err = execBuilder(ctx, tx, topics); err != nil {
			return err
		}
	}

	batch := sq.Insert("entries").Columns("topic", "seq", "at", "title", "body")
	n := 0
	for _, name := range snap.Order {
		for seq, r := range snap.Topics[name] {
			batch = batch.Values(name, seq, r.Timestamp, r.Title, r.Body)
			n++
			if n == insertBatch {
				if err = execBuilder(ctx, tx, batch); err != nil {
					return err
				}
				batch = sq.Insert("entries").Columns("topic", "seq", "at", "title", "body")
				n = 0
			}
		}
	}
	if n > 0 {
		if err = execBuilder(ctx, tx, batch); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func execBuilder(ctx context.Context, tx *sql.Tx, b sq.InsertBuilder) error {
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, q, args...)
	return err
}

// Close waits for an in-flight Load or Save to finish.
func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.db.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}
