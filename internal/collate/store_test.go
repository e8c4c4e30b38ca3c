package collate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"notirelay/internal/storage"
	logx "notirelay/pkg/logx"
)

// memBackend is an in-memory Backend whose Save can be made to fail.
type memBackend struct {
	mu    sync.Mutex
	snap  storage.Snapshot
	fail  error
	saves int
}

func (m *memBackend) Load(context.Context) (storage.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

func (m *memBackend) Save(_ context.Context, s storage.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.snap = s
	return nil
}

func (m *memBackend) Close() error { return nil }

func entry(i int) Entry {
	return Entry{Timestamp: "01.02.2024 10:00", Title: fmt.Sprintf("t%d", i), Body: fmt.Sprintf("b%d", i)}
}

func openMem(t *testing.T, topics ...string) (*Store, *memBackend) {
	t.Helper()
	b := &memBackend{}
	s, err := Open(context.Background(), b, topics, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, b
}

func TestAppendDrainOrder(t *testing.T) {
	t.Parallel()
	s, _ := openMem(t, "heating", "washer")
	ctx := context.Background()

	var want []Entry
	for i := 0; i < 5; i++ {
		e := entry(i)
		want = append(want, e)
		if err := s.Append(ctx, "heating", e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got := s.Drain()
	if len(got) != 1 || got[0].Key != "heating" {
		t.Fatalf("Drain = %+v", got)
	}
	if diff := cmp.Diff(want, got[0].Entries); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
	// Drain does not consume
	if s.Len("heating") != 5 {
		t.Fatalf("Len = %d", s.Len("heating"))
	}
}

func TestClearIsIdempotent(t *testing.T) {
	t.Parallel()
	s, b := openMem(t, "heating")
	ctx := context.Background()
	if err := s.Append(ctx, "heating", entry(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx, "heating"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if d := s.Drain(); len(d) != 0 {
		t.Fatalf("Drain after Clear = %+v", d)
	}
	saves := b.saves
	if err := s.Clear(ctx, "heating"); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	if b.saves != saves {
		t.Fatal("second Clear persisted")
	}
	if diff := cmp.Diff([]string{"heating"}, s.Topics()); diff != "" {
		t.Fatalf("topics (-want +got):\n%s", diff)
	}
}

func TestAckKeepsLaterAppends(t *testing.T) {
	t.Parallel()
	s, _ := openMem(t, "heating")
	ctx := context.Background()
	_ = s.Append(ctx, "heating", entry(1))
	_ = s.Append(ctx, "heating", entry(2))

	drained := s.Drain()
	// arrives while the flush is sending
	_ = s.Append(ctx, "heating", entry(3))

	if err := s.Ack(ctx, "heating", len(drained[0].Entries)); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	got := s.Drain()
	if diff := cmp.Diff([]Topic{{Key: "heating", Entries: []Entry{entry(3)}}}, got); diff != "" {
		t.Fatalf("after Ack (-want +got):\n%s", diff)
	}
}

func TestAppendRollsBackOnPersistFailure(t *testing.T) {
	t.Parallel()
	s, b := openMem(t, "heating")
	ctx := context.Background()
	_ = s.Append(ctx, "heating", entry(1))

	b.fail = errors.New("disk full")
	err := s.Append(ctx, "heating", entry(2))
	var pe *PersistError
	if !errors.As(err, &pe) || !errors.Is(err, b.fail) {
		t.Fatalf("err = %v, want PersistError wrapping disk full", err)
	}
	if err := s.Append(ctx, "newkey", entry(3)); err == nil {
		t.Fatal("expected error")
	}
	if s.Len("heating") != 1 {
		t.Fatalf("Len = %d, want 1", s.Len("heating"))
	}
	if diff := cmp.Diff([]string{"heating"}, s.Topics()); diff != "" {
		t.Fatalf("topics (-want +got):\n%s", diff)
	}
}

func TestLazyTopicsAreKept(t *testing.T) {
	t.Parallel()
	s, _ := openMem(t, "heating")
	ctx := context.Background()
	if err := s.Append(ctx, "garage", entry(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx, "garage"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"heating", "garage"}, s.Topics()); diff != "" {
		t.Fatalf("topics (-want +got):\n%s", diff)
	}
	if err := s.Append(ctx, "", entry(2)); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("empty key err = %v", err)
	}
}

func TestReopenRestoresBuffer(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "collated_messages.json")
	ctx := context.Background()

	b, err := storage.Open(storage.Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(ctx, b, []string{"heating", "washer"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Append(ctx, "washer", entry(1))
	_ = s.Append(ctx, "heating", entry(2))
	_ = s.Append(ctx, "extra", entry(3))
	_ = b.Close()

	b2, err := storage.Open(storage.Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// "washer" dropped from config, "door" added
	s2, err := Open(ctx, b2, []string{"heating", "door"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"heating", "door", "washer", "extra"}, s2.Topics()); diff != "" {
		t.Fatalf("topics (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s.Drain(), s2.Drain()); diff != "" {
		t.Fatalf("drain (-want +got):\n%s", diff)
	}
}

func TestConcurrentAppends(t *testing.T) {
	t.Parallel()
	s, _ := openMem(t, "a")
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(ctx, "a", entry(i))
		}(i)
	}
	wg.Wait()
	if s.Len("a") != 20 {
		t.Fatalf("Len = %d, want 20", s.Len("a"))
	}
}

func TestNewEntryFormatsInLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("X", 2*3600)
	e := NewEntry(time.Date(2024, 2, 1, 7, 30, 0, 0, time.UTC), loc, "heating on", "18C")
	if e.Timestamp != "01.02.2024 09:30" {
		t.Fatalf("Timestamp = %q", e.Timestamp)
	}
	if e.Render() != "01.02.2024 09:30<br>heating on<br>18C" {
		t.Fatalf("Render = %q", e.Render())
	}
}

func TestRenderBareBody(t *testing.T) {
	t.Parallel()
	e := Entry{Body: "01.02.2024 09:30<br>18C"}
	if got := e.Render(); got != "01.02.2024 09:30<br>18C" {
		t.Fatalf("Render = %q", got)
	}
}
