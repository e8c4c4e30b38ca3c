package config

import (
	"reflect"
	"strings"

	logx "notirelay/pkg/logx"
)

// Sections that only take effect after a restart.
var restartSections = map[string]bool{
	"transport":     true,
	"homeassistant": true,
	"collate":       true,
	"storage":       true,
	"http":          true,
	"condition":     true,
}

// SummarizeConfigChange lists the changed top-level sections and safe log
// attributes for them. Secrets are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.TransportDriver() != newCfg.TransportDriver() ||
		!reflect.DeepEqual(oldCfg.Matrix, newCfg.Matrix) ||
		!reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "transport")
		attrs = append(attrs,
			logx.String("transport.driver", newCfg.TransportDriver()),
			logx.Bool("matrix.token_set", strings.TrimSpace(newCfg.Matrix.Token) != ""),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.HomeAssistant.Toggles, newCfg.HomeAssistant.Toggles) ||
		oldCfg.HomeAssistant.Token != newCfg.HomeAssistant.Token {
		changed = append(changed, "homeassistant")
		attrs = append(attrs, logx.Strings("homeassistant.toggles", newCfg.HomeAssistant.Toggles.Keys()))
	}
	if !reflect.DeepEqual(oldCfg.EffectiveSendTimes(), newCfg.EffectiveSendTimes()) ||
		oldCfg.Collate.Timezone != newCfg.Collate.Timezone ||
		oldCfg.Collate.FlushOnStart != newCfg.Collate.FlushOnStart {
		changed = append(changed, "collate")
		times := make([]string, 0, len(newCfg.EffectiveSendTimes()))
		for _, t := range newCfg.EffectiveSendTimes() {
			times = append(times, t.String())
		}
		attrs = append(attrs, logx.Strings("collate.send_times", times), logx.String("collate.timezone", newCfg.Collate.Timezone))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver), logx.String("storage.path", newCfg.Storage.Path))
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", newCfg.HTTP.Addr))
	}
	if oldCfg.Condition != newCfg.Condition {
		changed = append(changed, "condition")
	}
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs, logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec), logx.String("notifier.send_timeout", newCfg.Notifier.SendTimeout))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}
	return changed, attrs
}

// RestartRequired returns the sections in changed that cannot apply live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if restartSections[s] {
			out = append(out, s)
		}
	}
	return out
}
