package condition

import (
	"sync"
	"time"
)

// breaker is a consecutive-failure circuit breaker keyed by toggle URL.
//
// Once a URL fails trip times in a row, lookups are skipped for a cooldown
// that doubles with every further failure up to maxDelay. A success closes
// the circuit; so does a quiet period of resetAfter since the last failure.
type breaker struct {
	trip       int
	baseDelay  time.Duration
	maxDelay   time.Duration
	resetAfter time.Duration
	now        func() time.Time

	mu sync.Mutex
	m  map[string]*circuitState
}

type circuitState struct {
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

func newBreaker() *breaker {
	return &breaker{
		trip:       3,
		baseDelay:  30 * time.Second,
		maxDelay:   5 * time.Minute,
		resetAfter: 10 * time.Minute,
		now:        time.Now,
		m:          make(map[string]*circuitState),
	}
}

// open reports whether lookups for url are currently skipped.
func (b *breaker) open(url string) (bool, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.m[url]
	if st == nil {
		return false, time.Time{}
	}
	now := b.now()
	b.expireLocked(st, now)
	if !st.openUntil.IsZero() && now.Before(st.openUntil) {
		return true, st.openUntil
	}
	return false, time.Time{}
}

func (b *breaker) record(url string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.m[url]
	if err == nil {
		if st != nil {
			delete(b.m, url)
		}
		return
	}
	if st == nil {
		st = &circuitState{}
		b.m[url] = st
	}
	now := b.now()
	b.expireLocked(st, now)

	st.fails++
	st.lastFailure = now
	if st.fails < b.trip {
		return
	}
	d := b.baseDelay
	for i := 0; i < st.fails-b.trip; i++ {
		d *= 2
		if d >= b.maxDelay {
			break
		}
	}
	if d > b.maxDelay {
		d = b.maxDelay
	}
	st.openUntil = now.Add(d)
}

func (b *breaker) expireLocked(st *circuitState, now time.Time) {
	if !st.lastFailure.IsZero() && now.Sub(st.lastFailure) > b.resetAfter {
		st.fails = 0
		st.openUntil = time.Time{}
	}
}
