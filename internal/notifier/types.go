package notifier

import "time"

type Config struct {
	RatePerSec  int
	SendTimeout time.Duration
}

// HistoryItem is one delivered or failed send, shown by /api/status.
type HistoryItem struct {
	At       time.Time     `json:"at"`
	Kind     string        `json:"kind"`
	EventID  string        `json:"event_id,omitempty"`
	Preview  string        `json:"preview"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}
