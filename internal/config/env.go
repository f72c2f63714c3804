package config

import (
	"context"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// envOverlay holds the environment variables that may override file values.
// The token override exists so deployments can keep the secret out of the
// config file entirely.
type envOverlay struct {
	Token         string `env:"SIGNALBOT_TOKEN"`
	LegacyToken   string `env:"BOT_TOKEN"`
	StorageDriver string `env:"SIGNALBOT_STORAGE_DRIVER"`
	StoragePath   string `env:"SIGNALBOT_STORAGE_PATH"`
	LogLevel      string `env:"SIGNALBOT_LOG_LEVEL"`
	MetricsAddr   string `env:"SIGNALBOT_METRICS_ADDR"`
}

// applyEnv layers environment overrides on top of a parsed config. Empty
// variables leave the file values alone. SIGNALBOT_TOKEN wins over the
// legacy BOT_TOKEN name.
func applyEnv(ctx context.Context, cfg *Config) error {
	var ov envOverlay
	if err := envconfig.Process(ctx, &ov); err != nil {
		return err
	}

	switch {
	case strings.TrimSpace(ov.Token) != "":
		cfg.Telegram.Token = strings.TrimSpace(ov.Token)
	case strings.TrimSpace(ov.LegacyToken) != "":
		cfg.Telegram.Token = strings.TrimSpace(ov.LegacyToken)
	}
	if v := strings.TrimSpace(ov.StorageDriver); v != "" {
		cfg.Storage.Driver = v
	}
	if v := strings.TrimSpace(ov.StoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(ov.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(ov.MetricsAddr); v != "" {
		cfg.Metrics.Addr = v
	}
	return nil
}
