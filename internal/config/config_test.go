package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const validYAML = `
telegram:
  token: "123:abc"
  admin_user_ids: [42, 99]
  poll_timeout: "10s"
logging:
  level: "info"
  console: true
  file:
    enabled: false
    path: ""
storage:
  driver: "file"
  path: "./data"
dispatch:
  retry_count: 3
  retry_delay: "3s"
  forbidden_threshold: 3
outbox:
  sweep_interval: "1s"
`

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AdminUserIDs) != 2 || cfg.Telegram.AdminUserIDs[0] != 42 {
		t.Fatalf("admins = %v", cfg.Telegram.AdminUserIDs)
	}
	if cfg.Storage.Driver != "file" || cfg.Dispatch.RetryCount != 3 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	m := NewManager(writeFile(t, "config.json", `{
  "telegram": {"token": "123:abc", "admin_user_ids": [42]},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
  "storage": {"driver": "sqlite", "path": "./bot.db"},
  "dispatch": {}
}`))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", validYAML+"\nbroadcast_speed: fast\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("unknown top-level key must be rejected")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "123:abc", AdminUserIDs: []int64{42}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = " " }, "telegram.token"},
		{"no admins", func(c *Config) { c.Telegram.AdminUserIDs = nil }, "admin_user_ids"},
		{"zero admin", func(c *Config) { c.Telegram.AdminUserIDs = []int64{0} }, "admin_user_ids"},
		{"negative retry", func(c *Config) { c.Dispatch.RetryCount = -1 }, "retry_count"},
		{"bad duration", func(c *Config) { c.Dispatch.RetryDelay = "3 parsecs" }, "retry_delay"},
		{"negative duration", func(c *Config) { c.Outbox.SweepInterval = "-1s" }, "sweep_interval"},
		{"metrics addr without port", func(c *Config) {
			c.Metrics = MetricsConfig{Enabled: true, Addr: "localhost"}
		}, "metrics.addr"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTokenOverride(t *testing.T) {
	t.Setenv("SIGNALBOT_TOKEN", "env:token")
	m := NewManager(writeFile(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env:token" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
}

func TestEnvLegacyTokenName(t *testing.T) {
	t.Setenv("BOT_TOKEN", "legacy:token")
	m := NewManager(writeFile(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "legacy:token" {
		t.Fatalf("token = %q, want legacy env override", cfg.Telegram.Token)
	}
}

func TestRemoveOnForbiddenDefault(t *testing.T) {
	t.Parallel()
	var d DispatchConfig
	if !d.RemoveOnForbiddenEnabled() {
		t.Fatal("omitted remove_on_forbidden must default to true")
	}
	f := false
	d.RemoveOnForbidden = &f
	if d.RemoveOnForbiddenEnabled() {
		t.Fatal("explicit false must win")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Telegram: TelegramConfig{Token: "t", AdminUserIDs: []int64{1}}}
	newCfg := &Config{
		Telegram: TelegramConfig{Token: "t", AdminUserIDs: []int64{1}},
		Logging:  LoggingConfig{Level: "debug"},
		Dispatch: DispatchConfig{RetryCount: 5},
	}

	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := []string{"dispatch", "logging"}
	if len(changed) != len(want) || changed[0] != want[0] || changed[1] != want[1] {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
}

func TestReloadKeepsPreviousOnInvalid(t *testing.T) {
	path := writeFile(t, "config.yaml", validYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := m.Get()

	// invalid: no admins
	bad := strings.Replace(validYAML, "admin_user_ids: [42, 99]", "admin_user_ids: []", 1)
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m.reload()

	if m.Get() != before {
		t.Fatal("invalid reload must keep the previous config live")
	}
}
