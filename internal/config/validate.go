package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied by the app when a field is omitted.
const (
	DefaultHTTPAddr     = ":8000"
	DefaultStoragePath  = "config/collated_messages.json"
	DefaultSendTimeout  = 10 * time.Second
	DefaultImageTimeout = 30 * time.Second
	DefaultCondTimeout  = 5 * time.Second
	DefaultRatePerSec   = 3
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// TransportDriver returns the normalized transport name.
func (c *Config) TransportDriver() string {
	d := strings.ToLower(strings.TrimSpace(c.Transport))
	if d == "" {
		return "matrix"
	}
	return d
}

// Location resolves collate.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Collate.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("collate.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// Validate rejects configs the relay cannot run with. It is used both at
// startup and before committing a hot reload.
func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	switch c.TransportDriver() {
	case "matrix":
		if strings.TrimSpace(c.Matrix.Server) == "" {
			return fmt.Errorf("matrix.server is required")
		}
		if strings.TrimSpace(c.Matrix.Token) == "" {
			return fmt.Errorf("matrix.token is required")
		}
		if strings.TrimSpace(c.Matrix.Room) == "" {
			return fmt.Errorf("matrix.room is required")
		}
	case "telegram":
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required")
		}
	default:
		return fmt.Errorf("transport: unknown driver %q", c.Transport)
	}

	seen := map[string]bool{}
	for i, tg := range c.HomeAssistant.Toggles {
		k := strings.ToLower(strings.TrimSpace(tg.Key))
		if k == "" {
			return fmt.Errorf("homeassistant.toggles[%d]: key required", i)
		}
		if seen[k] {
			return fmt.Errorf("homeassistant.toggles: duplicate key %q", tg.Key)
		}
		seen[k] = true
	}

	times := c.EffectiveSendTimes()
	if len(times) == 0 {
		return fmt.Errorf("collate.send_times: at least one time is required")
	}
	for i, t := range times {
		if err := t.Valid(); err != nil {
			return fmt.Errorf("collate.send_times[%d]: %w", i, err)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	if c.Notifier.RatePerSec < 0 {
		return fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if c.Logging.Chat.RatePerSec < 0 {
		return fmt.Errorf("logging.chat.rate_per_sec must be >= 0")
	}

	durations := []struct{ path, raw string }{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"http.read_timeout", c.HTTP.ReadTimeout},
		{"http.write_timeout", c.HTTP.WriteTimeout},
		{"http.idle_timeout", c.HTTP.IdleTimeout},
		{"notifier.send_timeout", c.Notifier.SendTimeout},
		{"notifier.image_timeout", c.Notifier.ImageTimeout},
		{"condition.timeout", c.Condition.Timeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	return nil
}
