package config

import (
	"reflect"
	"sort"
	"strings"

	logx "signalbot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. The token is never included, only whether
// one is set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if (strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") ||
		!reflect.DeepEqual(oldCfg.Telegram.AdminUserIDs, newCfg.Telegram.AdminUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.APIRatePerSec != newCfg.Telegram.APIRatePerSec ||
		strings.TrimSpace(oldCfg.Telegram.SendTimeout) != strings.TrimSpace(newCfg.Telegram.SendTimeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Int("telegram.admin_count", len(newCfg.Telegram.AdminUserIDs)),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Float64("telegram.api_rate_per_sec", newCfg.Telegram.APIRatePerSec),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.retry_count", newCfg.Dispatch.RetryCount),
			logx.String("dispatch.retry_delay", strings.TrimSpace(newCfg.Dispatch.RetryDelay)),
			logx.String("dispatch.inter_send_delay", strings.TrimSpace(newCfg.Dispatch.InterSendDelay)),
			logx.String("dispatch.jitter", strings.TrimSpace(newCfg.Dispatch.Jitter)),
			logx.String("dispatch.per_channel_cooldown", strings.TrimSpace(newCfg.Dispatch.PerChannelCooldown)),
			logx.Int("dispatch.forbidden_threshold", newCfg.Dispatch.ForbiddenThreshold),
			logx.Bool("dispatch.remove_on_forbidden", newCfg.Dispatch.RemoveOnForbiddenEnabled()),
		)
	}

	if oldCfg.Outbox != newCfg.Outbox {
		changed = append(changed, "outbox")
		attrs = append(attrs,
			logx.String("outbox.sweep_interval", strings.TrimSpace(newCfg.Outbox.SweepInterval)))
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", strings.TrimSpace(newCfg.Metrics.Addr)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
