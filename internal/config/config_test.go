package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const baseJSON = `{
  "matrix": {"server": "https://matrix.example.org", "user": "@relay:example.org", "token": "t", "room": "!room:example.org"},
  "homeassistant": {
    "token": "ha",
    "toggles": [
      {"key": "heating", "url": "http://ha/api/states/input_boolean.heating"},
      {"key": "heat", "url": "http://ha/api/states/input_boolean.heat"},
      {"key": "door", "url": null}
    ]
  },
  "collate": {"send_times": ["08:00", [20, 30]], "timezone": "UTC"},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}, "chat": {"enabled": false, "min_level": "", "rate_per_sec": 0}}
}`

func TestDecodeOrderedToggles(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.json", []byte(baseJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := Toggles{
		{Key: "heating", URL: "http://ha/api/states/input_boolean.heating"},
		{Key: "heat", URL: "http://ha/api/states/input_boolean.heat"},
		{Key: "door"},
	}
	if !reflect.DeepEqual(cfg.HomeAssistant.Toggles, want) {
		t.Fatalf("toggles = %+v, want %+v", cfg.HomeAssistant.Toggles, want)
	}
	wantTimes := SendTimes{{Hour: 8}, {Hour: 20, Minute: 30}}
	if !reflect.DeepEqual(cfg.EffectiveSendTimes(), wantTimes) {
		t.Fatalf("send times = %+v, want %+v", cfg.EffectiveSendTimes(), wantTimes)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeLegacyShape(t *testing.T) {
	t.Parallel()
	// Layout written by the first relay version: toggles as an object and
	// send times under homeassistant.collate_settings.
	legacy := `{
	  "matrix": {"server": "https://m", "token": "t", "room": "!r"},
	  "homeassistant": {
	    "toggles": {"washer": "http://ha/washer", "alarm": null},
	    "collate_settings": {"time": [[7, 0], [19, 45]]}
	  }
	}`
	cfg, err := Decode("config.json", []byte(legacy))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := Toggles{{Key: "washer", URL: "http://ha/washer"}, {Key: "alarm"}}
	if !reflect.DeepEqual(cfg.HomeAssistant.Toggles, want) {
		t.Fatalf("toggles = %+v, want %+v", cfg.HomeAssistant.Toggles, want)
	}
	wantTimes := SendTimes{{Hour: 7}, {Hour: 19, Minute: 45}}
	if !reflect.DeepEqual(cfg.EffectiveSendTimes(), wantTimes) {
		t.Fatalf("send times = %+v", cfg.EffectiveSendTimes())
	}
}

func TestToggleObjectKeepsFileOrder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		doc  string
	}{
		{
			name: "json",
			path: "config.json",
			doc: `{
			  "matrix": {"server": "https://m", "token": "t", "room": "!r"},
			  "homeassistant": {"toggles": {"heating_floor": "u-floor", "heating": "u-heating", "door": null}},
			  "collate": {"send_times": ["08:00"]}
			}`,
		},
		{
			name: "yaml",
			path: "config.yaml",
			doc: `
matrix: {server: "https://m", token: t, room: "!r"}
homeassistant:
  toggles:
    heating_floor: u-floor
    heating: u-heating
    door: ~
collate:
  send_times: ["08:00"]
`,
		},
	}
	want := Toggles{
		{Key: "heating_floor", URL: "u-floor"},
		{Key: "heating", URL: "u-heating"},
		{Key: "door"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode(tt.path, []byte(tt.doc))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(cfg.HomeAssistant.Toggles, want) {
				t.Fatalf("toggles = %+v, want %+v", cfg.HomeAssistant.Toggles, want)
			}
		})
	}
}

func TestToggleObjectDuplicateKey(t *testing.T) {
	t.Parallel()
	var got Toggles
	if err := got.UnmarshalJSON([]byte(`{"a": "u1", "b": "u2", "a": "u3"}`)); err != nil {
		t.Fatal(err)
	}
	want := Toggles{{Key: "a", URL: "u3"}, {Key: "b", URL: "u2"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("toggles = %+v, want %+v", got, want)
	}
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	doc := `
transport: telegram
telegram:
  token: abc
  chat_id: -100123
homeassistant:
  toggles:
    - key: heating
      url: http://ha/heating
collate:
  send_times: ["08:00"]
`
	cfg, err := Decode("config.yaml", []byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.TransportDriver() != "telegram" || cfg.Telegram.ChatID != -100123 {
		t.Fatalf("unexpected telegram config: %+v", cfg.Telegram)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown field", doc: `{"bogus": true}`},
		{name: "trailing data", doc: `{} {}`},
		{name: "bad send time", doc: `{"collate": {"send_times": ["25:00"]}}`},
		{name: "bad pair", doc: `{"collate": {"send_times": [[8]]}}`},
		{name: "toggle without key", doc: `{"homeassistant": {"toggles": [{"url": "x"}]}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode("config.json", []byte(tt.doc)); err == nil {
				t.Fatalf("expected error for %s", tt.doc)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ok := func() *Config {
		cfg, err := Decode("config.json", []byte(baseJSON))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "missing room", mutate: func(c *Config) { c.Matrix.Room = "" }},
		{name: "no send times", mutate: func(c *Config) { c.Collate.SendTimes = nil }},
		{name: "bad timezone", mutate: func(c *Config) { c.Collate.Timezone = "Mars/Olympus" }},
		{name: "duplicate toggle", mutate: func(c *Config) {
			c.HomeAssistant.Toggles = append(c.HomeAssistant.Toggles, Toggle{Key: "HEATING"})
		}},
		{name: "bad duration", mutate: func(c *Config) { c.Notifier.SendTimeout = "soon" }},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Driver = "redis" }},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "irc" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := ok()
			tt.mutate(c)
			if err := Validate(c); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestManagerLoadAppliesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	doc := `{"matrix": {"server": "https://m", "room": "!r"}, "collate": {"send_times": ["08:00"]}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewConfigManager(path)
	m.getenv = func(k string) string {
		if k == envMatrixToken {
			return "from-env"
		}
		return ""
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Matrix.Token != "from-env" {
		t.Fatalf("token = %q, want from-env", cfg.Matrix.Token)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit config")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a, err := Decode("config.json", []byte(baseJSON))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Decode("config.json", []byte(baseJSON))
	b.Logging.Level = "info"
	b.Collate.SendTimes = SendTimes{{Hour: 9}}

	changed, _ := SummarizeConfigChange(a, b)
	if !reflect.DeepEqual(changed, []string{"collate", "logging"}) {
		t.Fatalf("changed = %v", changed)
	}
	if got := RestartRequired(changed); !reflect.DeepEqual(got, []string{"collate"}) {
		t.Fatalf("RestartRequired = %v", got)
	}
}

func TestParseSendTime(t *testing.T) {
	t.Parallel()
	got, err := ParseSendTime("23:15")
	if err != nil {
		t.Fatalf("ParseSendTime error: %v", err)
	}
	if got.Hour != 23 || got.Minute != 15 {
		t.Fatalf("unexpected result: %v", got)
	}
	if got.String() != "23:15" {
		t.Fatalf("String = %s", got.String())
	}
	for _, bad := range []string{"24:00", "12:60", "noon", "1230"} {
		if _, err := ParseSendTime(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
