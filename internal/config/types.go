package config

// Config is the relay configuration file.
//
// The file may be JSON or YAML (by extension). Unknown fields are rejected so
// typos surface at load time instead of silently changing behavior.
type Config struct {
	// Transport selects the chat room driver: "matrix" (default) or "telegram".
	Transport string `json:"transport,omitempty"`

	Matrix        MatrixConfig        `json:"matrix"`
	Telegram      TelegramConfig      `json:"telegram"`
	HomeAssistant HomeAssistantConfig `json:"homeassistant"`
	Collate       CollateConfig       `json:"collate"`
	Storage       StorageConfig       `json:"storage"`
	HTTP          HTTPConfig          `json:"http"`
	Notifier      NotifierConfig      `json:"notifier"`
	Condition     ConditionConfig     `json:"condition"`
	Logging       LoggingConfig       `json:"logging"`
}

// MatrixConfig addresses a single room on a homeserver.
// Empty values fall back to MATRIX_SERVER, MATRIX_USER, MATRIX_TOKEN and
// MATRIX_ROOM.
type MatrixConfig struct {
	Server string `json:"server"`
	User   string `json:"user"`
	Token  string `json:"token"`
	Room   string `json:"room"`
}

// TelegramConfig addresses a single chat (optionally a forum thread).
// Token falls back to TELEGRAM_TOKEN.
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// HomeAssistantConfig holds the condition provider settings.
//
// Example:
//
//	"homeassistant": {
//	  "token": "...",
//	  "toggles": [
//	    {"key": "heating", "url": "http://ha:8123/api/states/input_boolean.heating_notify"}
//	  ]
//	}
//
// toggles may also be an object {"heating": "http://..."}; object keys are
// then matched in file order.
type HomeAssistantConfig struct {
	Token   string  `json:"token"`
	Toggles Toggles `json:"toggles"`

	// CollateSettings is the legacy location of the send times.
	// Prefer collate.send_times.
	CollateSettings *LegacyCollateSettings `json:"collate_settings,omitempty"`
}

type LegacyCollateSettings struct {
	Time SendTimes `json:"time"`
}

type CollateConfig struct {
	// SendTimes are the daily flush times, "HH:MM" (or [h, m]).
	SendTimes SendTimes `json:"send_times"`
	// Timezone is an IANA name used for send times and entry timestamps.
	// Empty means the process local zone.
	Timezone string `json:"timezone,omitempty"`
	// FlushOnStart runs one flush right after startup.
	FlushOnStart bool `json:"flush_on_start,omitempty"`
}

// StorageConfig controls where the collation buffer lives.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./config/collated_messages.json" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" (default) | "sqlite"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type HTTPConfig struct {
	Addr string `json:"addr,omitempty"` // default ":8000"

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`
}

// NotifierConfig bounds outbound sends.
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	// ImageTimeout bounds fetching the source of /api/send_image_url.
	ImageTimeout string `json:"image_timeout,omitempty"`
}

type ConditionConfig struct {
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// EffectiveSendTimes returns collate.send_times, falling back to the legacy
// homeassistant.collate_settings.time.
func (c *Config) EffectiveSendTimes() SendTimes {
	if c == nil {
		return nil
	}
	if len(c.Collate.SendTimes) > 0 {
		return c.Collate.SendTimes
	}
	if c.HomeAssistant.CollateSettings != nil {
		return c.HomeAssistant.CollateSettings.Time
	}
	return nil
}
