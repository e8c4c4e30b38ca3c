package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"notirelay/internal/collate"
	"notirelay/internal/condition"
	"notirelay/internal/eventbus"
	"notirelay/internal/transport"
	logx "notirelay/pkg/logx"
)

var (
	ErrEmptyTitle   = errors.New("title is required")
	ErrEmptyMessage = errors.New("message is required")
)

// Outcome tells an API caller what happened to a titled message.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeCollated Outcome = "collated"
)

// Gate is the condition gate as seen by the router.
type Gate interface {
	Evaluate(ctx context.Context, title string) condition.Decision
}

// Router sends a message now or parks it in the collation store, depending
// on the gate.
type Router struct {
	gate   Gate
	store  *collate.Store
	sender transport.Sender
	clk    clock.Clock
	loc    *time.Location
	bus    eventbus.Bus
	log    logx.Logger
}

func NewRouter(gate Gate, store *collate.Store, sender transport.Sender, clk clock.Clock, loc *time.Location, bus eventbus.Bus, log logx.Logger) *Router {
	if clk == nil {
		clk = clock.New()
	}
	if loc == nil {
		loc = time.Local
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Router{gate: gate, store: store, sender: sender, clk: clk, loc: loc, bus: bus, log: log}
}

// Route delivers a titled message. When the gate denies it, the message is
// appended to the matched topic and the sender is not touched.
func (r *Router) Route(ctx context.Context, title, body string) (Outcome, error) {
	if strings.TrimSpace(title) == "" {
		return "", ErrEmptyTitle
	}

	d := r.gate.Evaluate(ctx, title)
	if !d.Allowed {
		e := collate.NewEntry(r.clk.Now(), r.loc, title, body)
		if err := r.store.Append(ctx, d.Key, e); err != nil {
			r.failed(d.Key, title, err)
			return "", err
		}
		r.log.Info("message collated", logx.String("key", d.Key), logx.String("title", title))
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeRelayCollated, Data: eventbus.RouteData{Key: d.Key, Title: title}})
		return OutcomeCollated, nil
	}

	if _, err := r.sender.SendText(ctx, formatImmediate(title, body)); err != nil {
		r.failed(d.Key, title, err)
		return "", err
	}
	r.log.Debug("message sent", logx.String("title", title), logx.Bool("gated", d.Matched))
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeRelaySent, Data: eventbus.RouteData{Key: d.Key, Title: title}})
	return OutcomeSent, nil
}

// RouteUntitled sends body as is. Untitled messages are never gated.
func (r *Router) RouteUntitled(ctx context.Context, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	if _, err := r.sender.SendText(ctx, body); err != nil {
		r.failed("", "", err)
		return err
	}
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeRelaySent, Data: eventbus.RouteData{}})
	return nil
}

func (r *Router) failed(key, title string, err error) {
	r.log.Warn("relay failed", logx.String("key", key), logx.String("title", title), logx.Err(err))
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeRelayFailed, Data: eventbus.RouteData{Key: key, Title: title, Err: err.Error()}})
}
