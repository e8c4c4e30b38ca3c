package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"notirelay/internal/eventbus"
	"notirelay/internal/transport"
	logx "notirelay/pkg/logx"
)

const (
	defaultRatePerSec  = 3
	defaultSendTimeout = 10 * time.Second
	historySize        = 100
	previewLen         = 80
)

var ErrNoSender = errors.New("notifier: no sender configured")

// Service implements transport.Sender on top of another Sender.
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender transport.Sender
	bus    eventbus.Bus
	log    logx.Logger

	hmu     sync.Mutex
	history []HistoryItem
}

var _ transport.Sender = (*Service)(nil)

func New(cfg Config, sender transport.Sender, bus eventbus.Bus, log logx.Logger) *Service {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{sender: sender, bus: bus, log: log}
	s.applyLocked(cfg)
	return s
}

// Apply swaps rate and timeout at runtime.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	s.cfg = cfg
	// burst = rate, so short spikes do not block
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Name() string { return transport.NameOf(s.sender) }

func (s *Service) SendText(ctx context.Context, markup string) (string, error) {
	if markup == "" {
		return "", transport.ErrEmptyMessage
	}
	return s.send(ctx, "text", markup, func(c context.Context) (string, error) {
		return s.sender.SendText(c, markup)
	})
}

func (s *Service) SendImage(ctx context.Context, img transport.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", transport.ErrEmptyMessage
	}
	preview := fmt.Sprintf("%s (%s, %d bytes)", img.Filename, img.MimeType, len(img.Data))
	return s.send(ctx, "image", preview, func(c context.Context) (string, error) {
		return s.sender.SendImage(c, img)
	})
}

func (s *Service) send(ctx context.Context, kind, preview string, fn func(context.Context) (string, error)) (string, error) {
	if s.sender == nil {
		return "", ErrNoSender
	}
	s.mu.Lock()
	lim := s.limiter
	timeout := s.cfg.SendTimeout
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	id, err := fn(callCtx)
	cancel()
	dur := time.Since(start)

	item := HistoryItem{At: start, Kind: kind, EventID: id, Preview: truncate(preview, previewLen), Duration: dur}
	data := eventbus.NotifyData{Kind: kind, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		data.Err = err.Error()
		s.appendHistory(item)
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifyFailed, Data: data})
		s.log.Debug("notify send failed", logx.String("kind", kind), logx.Duration("took", dur), logx.Err(err))
		return "", err
	}
	s.appendHistory(item)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifySent, Data: data})
	return id, nil
}

// Snapshot returns the recent sends, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
