package condition

import (
	"context"
	"strings"
	"time"

	"notirelay/internal/config"
	logx "notirelay/pkg/logx"
)

const stateOn = "on"

// Provider reads the state of an external toggle.
type Provider interface {
	State(ctx context.Context, url string) (string, error)
}

// Decision is the outcome of Evaluate.
//
// Matched is true only when a toggle matched, had a URL, and its state was
// read successfully. Allowed=false always comes with Matched=true.
type Decision struct {
	Allowed bool
	Key     string
	Matched bool
}

type Gate struct {
	toggles  config.Toggles
	lower    []string
	provider Provider
	timeout  time.Duration
	breaker  *breaker
	log      logx.Logger
}

// NewGate builds a gate over toggles, which are scanned in order.
// timeout bounds each provider call; <=0 means no extra bound.
func NewGate(toggles config.Toggles, p Provider, timeout time.Duration, log logx.Logger) *Gate {
	lower := make([]string, len(toggles))
	for i, tg := range toggles {
		lower[i] = strings.ToLower(strings.TrimSpace(tg.Key))
	}
	return &Gate{toggles: toggles, lower: lower, provider: p, timeout: timeout, breaker: newBreaker(), log: log}
}

// Evaluate decides whether a titled message may be sent now.
// Provider errors fail open: the message is allowed and the error logged.
func (g *Gate) Evaluate(ctx context.Context, title string) Decision {
	candidate := strings.ToLower(title)

	idx := -1
	for i, k := range g.lower {
		if k != "" && strings.HasPrefix(candidate, k) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Decision{Allowed: true}
	}
	tg := g.toggles[idx]
	if tg.URL == "" || g.provider == nil {
		return Decision{Allowed: true}
	}

	if open, until := g.breaker.open(tg.URL); open {
		g.log.Debug("condition provider circuit open, sending immediately",
			logx.String("key", tg.Key), logx.Time("until", until))
		return Decision{Allowed: true}
	}

	pctx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	state, err := g.provider.State(pctx, tg.URL)
	if ctx.Err() == nil {
		g.breaker.record(tg.URL, err)
	}
	if err != nil {
		g.log.Warn("condition lookup failed, sending immediately",
			logx.String("key", tg.Key), logx.String("title", title), logx.Err(err))
		return Decision{Allowed: true}
	}
	g.log.Debug("condition evaluated", logx.String("key", tg.Key), logx.String("state", state))
	return Decision{Allowed: state == stateOn, Key: tg.Key, Matched: true}
}
