package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"notirelay/internal/config"
	logx "notirelay/pkg/logx"
)

var ErrNoSendTimes = errors.New("scheduler: no valid send times")

// Flush reasons passed to FlushFunc.
const (
	ReasonSchedule = "schedule"
	ReasonStartup  = "startup"
)

type Config struct {
	SendTimes []config.SendTime
	// Location for send times. nil means time.Local.
	Location *time.Location
	// FlushOnStart runs one flush as soon as Run starts.
	FlushOnStart bool
}

// FlushFunc performs one flush.
type FlushFunc func(ctx context.Context, reason string) error

// Snapshot is the scheduler state shown by /api/status.
type Snapshot struct {
	SendTimes []string  `json:"send_times"`
	Timezone  string    `json:"timezone"`
	Next      time.Time `json:"next,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      uint64    `json:"runs"`
}

type Service struct {
	cfg   Config
	clk   clock.Clock
	flush FlushFunc
	log   logx.Logger

	mu      sync.Mutex
	next    time.Time
	lastRun time.Time
	lastErr string
	runs    uint64
}
