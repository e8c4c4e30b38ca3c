package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"notirelay/internal/config"
)

// ParseSendTime parses "HH:MM" on a 24h clock.
func ParseSendTime(raw string) (config.SendTime, error) {
	return config.ParseSendTime(raw)
}

// dailySpec is the five-field cron expression firing once a day at t.
func dailySpec(t config.SendTime) string {
	return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour)
}

func dailySchedule(t config.SendTime) (cron.Schedule, error) {
	if err := t.Valid(); err != nil {
		return nil, err
	}
	return cron.ParseStandard(dailySpec(t))
}
