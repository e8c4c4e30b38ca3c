package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the relay.
const (
	TypeRelaySent     = "relay.sent"
	TypeRelayCollated = "relay.collated"
	TypeRelayFailed   = "relay.failed"
	TypeFlushDone     = "flush.done"
	TypeNotifySent    = "notifier.sent"
	TypeNotifyFailed  = "notifier.failed"
)

// Event is a small in-memory signal.
//
// Publish never blocks. Subscribers get a buffered channel and a slow
// subscriber drops events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// RouteData accompanies relay.* events.
type RouteData struct {
	Key   string // matched toggle key, "" when none
	Title string
	Err   string
}

// FlushData accompanies flush.done.
type FlushData struct {
	Sent   int
	Failed int
	Empty  bool
	Reason string // "schedule", "api" or "startup"
}

// NotifyData accompanies notifier.* events.
type NotifyData struct {
	Kind     string // "text" or "image"
	Duration time.Duration
	Err      string
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Publish holds the read lock while sending, so closing under the
			// write lock cannot race a send.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Nop is a Bus that drops everything.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
