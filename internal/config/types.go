package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Dispatch DispatchConfig `json:"dispatch"`
	Outbox   OutboxConfig   `json:"outbox,omitempty"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminUserIDs are the only users the bot talks to. Everything else is
	// silently ignored.
	AdminUserIDs []int64 `json:"admin_user_ids"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// APIRatePerSec caps outgoing Bot API calls globally. 0 keeps the
	// default of 25.
	APIRatePerSec float64 `json:"api_rate_per_sec,omitempty"`

	// SendTimeout bounds one send attempt. Go duration string; 0 disables.
	SendTimeout string `json:"send_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the durable store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./signalbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DispatchConfig tunes the fan-out loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - retry_count: 3
//   - retry_delay: "3s"
//   - inter_send_delay: "300ms"
//   - jitter: "150ms"
//   - per_channel_cooldown: "0s" (disabled)
//   - forbidden_threshold: 3
//   - remove_on_forbidden: true
type DispatchConfig struct {
	RetryCount         int    `json:"retry_count,omitempty"`
	RetryDelay         string `json:"retry_delay,omitempty"`
	InterSendDelay     string `json:"inter_send_delay,omitempty"`
	Jitter             string `json:"jitter,omitempty"`
	PerChannelCooldown string `json:"per_channel_cooldown,omitempty"`
	ForbiddenThreshold int    `json:"forbidden_threshold,omitempty"`

	// RemoveOnForbidden is a pointer so an explicit false is distinguishable
	// from "omitted" (which defaults to true).
	RemoveOnForbidden *bool `json:"remove_on_forbidden,omitempty"`
}

type OutboxConfig struct {
	// SweepInterval is a Go duration string. Default "1s".
	SweepInterval string `json:"sweep_interval,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9090"
}

// Validate rejects configs the services cannot start with. Called on initial
// load and before every hot-reload commit.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if len(c.Telegram.AdminUserIDs) == 0 {
		return errors.New("telegram.admin_user_ids must not be empty")
	}
	for _, id := range c.Telegram.AdminUserIDs {
		if id == 0 {
			return errors.New("telegram.admin_user_ids must not contain 0")
		}
	}
	if c.Telegram.APIRatePerSec < 0 {
		return errors.New("telegram.api_rate_per_sec must be >= 0")
	}
	if c.Dispatch.RetryCount < 0 {
		return errors.New("dispatch.retry_count must be >= 0")
	}
	if c.Dispatch.ForbiddenThreshold < 0 {
		return errors.New("dispatch.forbidden_threshold must be >= 0")
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) != "" &&
		!strings.Contains(c.Metrics.Addr, ":") {
		return fmt.Errorf("metrics.addr %q: missing port", c.Metrics.Addr)
	}

	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"telegram.send_timeout", c.Telegram.SendTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"dispatch.retry_delay", c.Dispatch.RetryDelay},
		{"dispatch.inter_send_delay", c.Dispatch.InterSendDelay},
		{"dispatch.jitter", c.Dispatch.Jitter},
		{"dispatch.per_channel_cooldown", c.Dispatch.PerChannelCooldown},
		{"outbox.sweep_interval", c.Outbox.SweepInterval},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

// RemoveOnForbiddenEnabled resolves the tri-state flag with its default.
func (c DispatchConfig) RemoveOnForbiddenEnabled() bool {
	if c.RemoveOnForbidden == nil {
		return true
	}
	return *c.RemoveOnForbidden
}
