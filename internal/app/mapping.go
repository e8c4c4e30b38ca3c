package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"notirelay/internal/api"
	"notirelay/internal/config"
	"notirelay/internal/notifier"
	"notirelay/internal/storage"
	"notirelay/internal/transport"
	"notirelay/internal/transport/matrix"
	"notirelay/internal/transport/telegram"
	logx "notirelay/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	timeout, err := config.ParseDurationOrDefault("notifier.send_timeout", cfg.Notifier.SendTimeout, config.DefaultSendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	rps := cfg.Notifier.RatePerSec
	if rps <= 0 {
		rps = config.DefaultRatePerSec
	}
	return notifier.Config{RatePerSec: rps, SendTimeout: timeout}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = config.DefaultStoragePath
	}
	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}
}

func mapAPIConfig(cfg *config.Config) (api.Config, error) {
	out := api.Config{Addr: strings.TrimSpace(cfg.HTTP.Addr), Pprof: cfg.HTTP.Pprof}
	if out.Addr == "" {
		out.Addr = config.DefaultHTTPAddr
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 15*time.Second); err != nil {
		return api.Config{}, err
	}
	// flushes send one message per topic, so writes get more room than reads
	if out.WriteTimeout, err = config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 2*time.Minute); err != nil {
		return api.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("http.idle_timeout", cfg.HTTP.IdleTimeout, 60*time.Second); err != nil {
		return api.Config{}, err
	}
	if out.ImageTimeout, err = config.ParseDurationOrDefault("notifier.image_timeout", cfg.Notifier.ImageTimeout, config.DefaultImageTimeout); err != nil {
		return api.Config{}, err
	}
	return out, nil
}

// newTransport builds the raw room sender for the configured driver.
func newTransport(cfg *config.Config, client *http.Client, log logx.Logger) (transport.Sender, error) {
	switch cfg.TransportDriver() {
	case "matrix":
		c, err := matrix.New(matrix.Config{
			Server: cfg.Matrix.Server,
			User:   cfg.Matrix.User,
			Token:  cfg.Matrix.Token,
			Room:   cfg.Matrix.Room,
		}, client, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "telegram":
		s, err := telegram.New(telegram.Config{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		}, client, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("transport: unknown driver %q", cfg.Transport)
	}
}
