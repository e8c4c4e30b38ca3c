package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"notirelay/internal/config"
	logx "notirelay/pkg/logx"
)

func at(h, m, s int) time.Time {
	return time.Date(2024, 3, 10, h, m, s, 0, time.UTC)
}

func TestNextWait(t *testing.T) {
	t.Parallel()
	times := []config.SendTime{{Hour: 8}, {Hour: 20}}

	tests := []struct {
		name     string
		now      time.Time
		wantWait time.Duration
		wantAt   time.Time
	}{
		{name: "one minute before evening", now: at(19, 59, 0), wantWait: time.Minute, wantAt: at(20, 0, 0)},
		{name: "morning", now: at(7, 0, 0), wantWait: time.Hour, wantAt: at(8, 0, 0)},
		{name: "rolls to tomorrow", now: at(21, 0, 0), wantWait: 11 * time.Hour, wantAt: at(8, 0, 0).AddDate(0, 0, 1)},
		{name: "sub-minute", now: at(19, 59, 30), wantWait: 30 * time.Second, wantAt: at(20, 0, 0)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			wait, next := NextWait(tt.now, times)
			if wait != tt.wantWait || !next.Equal(tt.wantAt) {
				t.Fatalf("NextWait(%s) = %s, %s; want %s, %s", tt.now, wait, next, tt.wantWait, tt.wantAt)
			}
		})
	}
}

func TestNextWaitExactTimeIsTomorrow(t *testing.T) {
	t.Parallel()
	wait, next := NextWait(at(8, 0, 0), []config.SendTime{{Hour: 8}})
	if wait != 24*time.Hour {
		t.Fatalf("wait = %s, want 24h", wait)
	}
	if !next.Equal(at(8, 0, 0).AddDate(0, 0, 1)) {
		t.Fatalf("next = %s", next)
	}
}

func TestNextWaitBounds(t *testing.T) {
	t.Parallel()
	times := []config.SendTime{{Hour: 6, Minute: 15}, {Hour: 13, Minute: 45}, {Hour: 23, Minute: 59}}
	now := at(0, 0, 0)
	for i := 0; i < 24*60; i += 7 {
		n := now.Add(time.Duration(i)*time.Minute + 13*time.Second)
		wait, _ := NextWait(n, times)
		if wait <= 0 || wait >= 24*time.Hour {
			t.Fatalf("NextWait(%s) = %s out of range", n, wait)
		}
	}
}

func TestNextWaitUsesLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+2", 2*3600)
	now := time.Date(2024, 3, 10, 7, 0, 0, 0, loc) // 05:00 UTC
	wait, next := NextWait(now, []config.SendTime{{Hour: 8}})
	if wait != time.Hour || next.Hour() != 8 {
		t.Fatalf("wait = %s, next = %s", wait, next)
	}
}

func TestNextWaitNoTimes(t *testing.T) {
	t.Parallel()
	wait, next := NextWait(at(1, 0, 0), []config.SendTime{{Hour: 25}})
	if wait != 0 || !next.IsZero() {
		t.Fatalf("NextWait = %s, %s", wait, next)
	}
}

func TestParseSendTime(t *testing.T) {
	t.Parallel()
	got, err := ParseSendTime("20:00")
	if err != nil || got != (config.SendTime{Hour: 20}) {
		t.Fatalf("ParseSendTime = %+v, %v", got, err)
	}
	if _, err := ParseSendTime("20h"); err == nil {
		t.Fatal("expected error")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunFlushesAtSendTimes(t *testing.T) {
	t.Parallel()
	mock := clock.NewMock()
	mock.Set(at(19, 59, 0))

	var flushes atomic.Int32
	var reasons atomic.Value
	svc := New(Config{SendTimes: []config.SendTime{{Hour: 8}, {Hour: 20}}, Location: time.UTC}, mock,
		func(ctx context.Context, reason string) error {
			flushes.Add(1)
			reasons.Store(reason)
			return nil
		}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	waitFor(t, func() bool { return svc.Next().Equal(at(20, 0, 0)) })
	mock.Add(30 * time.Second)
	if flushes.Load() != 0 {
		t.Fatal("flushed early")
	}
	mock.Add(30 * time.Second)
	waitFor(t, func() bool { return flushes.Load() == 1 })
	if reasons.Load() != ReasonSchedule {
		t.Fatalf("reason = %v", reasons.Load())
	}

	waitFor(t, func() bool { return svc.Next().Equal(at(8, 0, 0).AddDate(0, 0, 1)) })
	snap := svc.Snapshot()
	if snap.Runs != 1 || snap.LastError != "" || len(snap.SendTimes) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunSurvivesFlushFailureAndPanic(t *testing.T) {
	t.Parallel()
	mock := clock.NewMock()
	mock.Set(at(7, 59, 0))

	var calls atomic.Int32
	svc := New(Config{SendTimes: []config.SendTime{{Hour: 8}}, Location: time.UTC, FlushOnStart: true}, mock,
		func(ctx context.Context, reason string) error {
			switch calls.Add(1) {
			case 1:
				if reason != ReasonStartup {
					t.Errorf("first reason = %s", reason)
				}
				return errors.New("room unreachable")
			default:
				panic("boom")
			}
		}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	waitFor(t, func() bool { return !svc.Next().IsZero() })
	if svc.Snapshot().LastError != "room unreachable" {
		t.Fatalf("snapshot = %+v", svc.Snapshot())
	}
	mock.Add(time.Minute)
	waitFor(t, func() bool { return calls.Load() == 2 })
	waitFor(t, func() bool { return svc.Next().Equal(at(8, 0, 0).AddDate(0, 0, 1)) })
	if svc.Snapshot().Runs != 2 {
		t.Fatalf("runs = %d", svc.Snapshot().Runs)
	}
}

func TestRunRejectsEmptySchedule(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, clock.NewMock(), func(context.Context, string) error { return nil }, logx.Nop())
	if err := svc.Run(context.Background()); !errors.Is(err, ErrNoSendTimes) {
		t.Fatalf("Run = %v", err)
	}
}
