package config

import (
	"os"
	"strings"
)

const (
	envMatrixServer  = "MATRIX_SERVER"
	envMatrixUser    = "MATRIX_USER"
	envMatrixToken   = "MATRIX_TOKEN"
	envMatrixRoom    = "MATRIX_ROOM"
	envHomeAssistant = "HOMEASSISTANT_TOKEN"
	envTelegramToken = "TELEGRAM_TOKEN"
)

// applyEnv fills empty secrets from the environment.
func applyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) != "" {
			return
		}
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	fill(&cfg.Matrix.Server, envMatrixServer)
	fill(&cfg.Matrix.User, envMatrixUser)
	fill(&cfg.Matrix.Token, envMatrixToken)
	fill(&cfg.Matrix.Room, envMatrixRoom)
	fill(&cfg.HomeAssistant.Token, envHomeAssistant)
	fill(&cfg.Telegram.Token, envTelegramToken)
}
