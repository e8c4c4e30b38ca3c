package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/benbjohnson/clock"

	logx "notirelay/pkg/logx"
)

func New(cfg Config, clk clock.Clock, flush FlushFunc, log logx.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{cfg: cfg, clk: clk, flush: flush, log: log}
}

// Run sleeps until each send time and flushes, until ctx is canceled.
// Flush errors and panics are logged; the loop keeps going.
func (s *Service) Run(ctx context.Context) error {
	if _, next := NextWait(s.now(), s.cfg.SendTimes); next.IsZero() {
		return ErrNoSendTimes
	}
	s.log.Info("flush scheduler started",
		logx.Strings("send_times", s.sendTimeStrings()),
		logx.String("tz", s.cfg.Location.String()))

	if s.cfg.FlushOnStart {
		s.runFlush(ctx, ReasonStartup)
	}

	for {
		wait, next := NextWait(s.now(), s.cfg.SendTimes)
		t := s.clk.Timer(wait)
		s.mu.Lock()
		s.next = next
		s.mu.Unlock()
		s.log.Debug("next flush scheduled", logx.Time("at", next), logx.Duration("in", wait))

		select {
		case <-ctx.Done():
			t.Stop()
			s.log.Info("flush scheduler stopped")
			return ctx.Err()
		case <-t.C:
		}
		s.runFlush(ctx, ReasonSchedule)
	}
}

func (s *Service) runFlush(ctx context.Context, reason string) {
	start := s.clk.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("flush panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		return s.flush(ctx, reason)
	}()

	s.mu.Lock()
	s.lastRun = start
	s.runs++
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("scheduled flush failed", logx.String("reason", reason), logx.Err(err))
		return
	}
	s.log.Info("scheduled flush done", logx.String("reason", reason), logx.Duration("took", s.clk.Since(start)))
}

// Next is the upcoming flush time, zero before Run has scheduled one.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SendTimes: s.sendTimeStrings(),
		Timezone:  s.cfg.Location.String(),
		Next:      s.next,
		LastRun:   s.lastRun,
		LastError: s.lastErr,
		Runs:      s.runs,
	}
}

func (s *Service) now() time.Time { return s.clk.Now().In(s.cfg.Location) }

func (s *Service) sendTimeStrings() []string {
	out := make([]string, 0, len(s.cfg.SendTimes))
	for _, t := range s.cfg.SendTimes {
		out = append(out, t.String())
	}
	return out
}
