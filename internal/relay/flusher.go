package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"notirelay/internal/collate"
	"notirelay/internal/eventbus"
	"notirelay/internal/transport"
	logx "notirelay/pkg/logx"
)

// Flush reasons.
const (
	ReasonSchedule = "schedule"
	ReasonAPI      = "api"
	ReasonStartup  = "startup"
)

var ErrAllTopicsFailed = errors.New("every collated topic failed to send")

// Report summarizes one flush.
type Report struct {
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
	Sent   []string  `json:"sent"`
	Failed []string  `json:"failed"`
	Empty  bool      `json:"empty"`
}

// Flusher sends one collated message per non-empty topic. Flushes are
// serialized, so a scheduled and an on-demand flush never send the same
// entries twice.
type Flusher struct {
	run sync.Mutex

	store  *collate.Store
	sender transport.Sender
	clk    clock.Clock
	bus    eventbus.Bus
	log    logx.Logger

	mu   sync.Mutex
	last *Report
}

func NewFlusher(store *collate.Store, sender transport.Sender, clk clock.Clock, bus eventbus.Bus, log logx.Logger) *Flusher {
	if clk == nil {
		clk = clock.New()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Flusher{store: store, sender: sender, clk: clk, bus: bus, log: log}
}

// Flush delivers every pending topic. A topic whose send fails keeps its
// entries for the next flush and the others continue. If nothing is
// pending, a single "no new messages" notice is sent instead.
//
// The returned error is non-nil only when the notice failed or every topic
// failed; partial failures are listed in the report.
func (f *Flusher) Flush(ctx context.Context, reason string) (Report, error) {
	f.run.Lock()
	defer f.run.Unlock()

	rep := Report{At: f.clk.Now(), Reason: reason, Sent: []string{}, Failed: []string{}}
	topics := f.store.Drain()

	var err error
	if len(topics) == 0 {
		rep.Empty = true
		if _, serr := f.sender.SendText(ctx, emptyNotice); serr != nil {
			err = fmt.Errorf("send empty notice: %w", serr)
		}
	} else {
		for _, t := range topics {
			if ctx.Err() != nil {
				rep.Failed = append(rep.Failed, t.Key)
				continue
			}
			if _, serr := f.sender.SendText(ctx, formatCollated(t)); serr != nil {
				f.log.Error("collated send failed, keeping entries", logx.String("key", t.Key), logx.Int("entries", len(t.Entries)), logx.Err(serr))
				rep.Failed = append(rep.Failed, t.Key)
				continue
			}
			rep.Sent = append(rep.Sent, t.Key)
			if aerr := f.store.Ack(ctx, t.Key, len(t.Entries)); aerr != nil {
				// delivered but not persisted: entries may repeat after a restart
				f.log.Error("collated entries sent but buffer not persisted", logx.String("key", t.Key), logx.Err(aerr))
			}
		}
		if len(rep.Sent) == 0 {
			err = ErrAllTopicsFailed
		}
	}

	f.mu.Lock()
	cp := rep
	f.last = &cp
	f.mu.Unlock()

	f.bus.Publish(eventbus.Event{Type: eventbus.TypeFlushDone, Data: eventbus.FlushData{
		Sent: len(rep.Sent), Failed: len(rep.Failed), Empty: rep.Empty, Reason: reason,
	}})
	f.log.Info("flush finished", logx.String("reason", reason), logx.Strings("sent", rep.Sent), logx.Strings("failed", rep.Failed), logx.Bool("empty", rep.Empty))
	return rep, err
}

// Last returns the most recent report, or nil.
func (f *Flusher) Last() *Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return nil
	}
	cp := *f.last
	return &cp
}
