// Package app wires configuration, storage, transport and the broadcast
// services into one process.
package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"signalbot/internal/config"
	"signalbot/internal/dispatcher"
	"signalbot/internal/governor"
	"signalbot/internal/metrics"
	"signalbot/internal/outbox"
	"signalbot/internal/registry"
	"signalbot/internal/router"
	rtsup "signalbot/internal/runtime/supervisor"
	"signalbot/internal/store"
	"signalbot/internal/transport/telegram"
	logx "signalbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	st      store.Store
	adapter *telegram.Adapter
	gov     *governor.Governor
	reg     *registry.Registry
	disp    *dispatcher.Dispatcher
	obx     *outbox.Service
	rt      *router.Router

	met    *metrics.Metrics
	metSrv *metrics.Server
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: mustDuration(cfg.Storage.BusyTimeout),
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", cfg.Storage.Driver))

	adCfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(adCfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	var met *metrics.Metrics
	if cfg.Metrics.Enabled {
		met = metrics.New()
	}

	gov := governor.New(mapGovernorConfig(cfg))
	reg := registry.New(st, log.With(logx.String("comp", "registry")))
	disp := dispatcher.New(mapDispatchConfig(cfg), gov, reg, st, ad, met,
		log.With(logx.String("comp", "dispatcher")))

	obx := outbox.New(outbox.Config{
		SweepInterval: mustDuration(cfg.Outbox.SweepInterval),
	}, st, disp, met, log)

	admins := func() []int64 {
		if c := cfgm.Get(); c != nil {
			return c.Telegram.AdminUserIDs
		}
		return nil
	}
	rt := router.New(ad.Bot(), reg, disp, obx, st, admins,
		log.With(logx.String("comp", "router")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		st:      st,
		adapter: ad,
		gov:     gov,
		reg:     reg,
		disp:    disp,
		obx:     obx,
		rt:      rt,
		met:     met,
		metSrv:  metrics.NewServer(metrics.ServerConfig{Enabled: cfg.Metrics.Enabled, Addr: cfg.Metrics.Addr}, met, log.With(logx.String("comp", "metrics"))),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, a.log)

	a.rt.Register(a.sup.Context())
	a.adapter.Start(a.sup.Context())

	if err := a.obx.Start(a.sup.Context()); err != nil {
		return err
	}
	a.metSrv.Start()

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go("config.apply", func(c context.Context) error {
		a.applyLoop(c)
		return nil
	})

	// best-effort under systemd; a no-op elsewhere
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.obx.Stop()
	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Stop(ctx)
	}
	_ = a.adapter.Stop(ctx)
	_ = a.metSrv.Stop(ctx)
	err := a.st.Close()
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

// applyLoop pushes validated config reloads into the running services.
// Storage and metrics changes need a restart; everything else is live.
func (a *App) applyLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)

	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			changed, attrs := config.SummarizeChange(prev, cfg)
			prev = cfg
			if len(changed) == 0 {
				continue
			}
			a.log.Info("applying config change", append(attrs, logx.Any("sections", changed))...)

			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.gov.Apply(mapGovernorConfig(cfg))
			a.disp.Apply(mapDispatchConfig(cfg))

			for _, section := range changed {
				if section == "storage" || section == "metrics" || section == "telegram" {
					a.log.Warn("section change requires restart", logx.String("section", section))
				}
			}
		}
	}
}

// Config mapping. Validate() already ran, so duration parse failures here
// are programming errors, not user errors.

func mustDuration(raw string) time.Duration {
	d, err := config.ParseDurationField("", raw)
	if err != nil {
		return 0
	}
	return d
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		RatePerSec:  int(cfg.Telegram.APIRatePerSec),
		SendTimeout: mustDuration(cfg.Telegram.SendTimeout),
	}, nil
}

func mapGovernorConfig(cfg *config.Config) governor.Config {
	return governor.Config{
		PerChannelCooldown: mustDuration(cfg.Dispatch.PerChannelCooldown),
		InterSendDelay:     durationOr(cfg.Dispatch.InterSendDelay, 300*time.Millisecond),
		Jitter:             durationOr(cfg.Dispatch.Jitter, 150*time.Millisecond),
	}
}

func mapDispatchConfig(cfg *config.Config) dispatcher.Config {
	return dispatcher.Config{
		RetryCount:         cfg.Dispatch.RetryCount,
		RetryDelay:         durationOr(cfg.Dispatch.RetryDelay, 3*time.Second),
		ForbiddenThreshold: cfg.Dispatch.ForbiddenThreshold,
		RemoveOnForbidden:  cfg.Dispatch.RemoveOnForbiddenEnabled(),
	}
}

func durationOr(raw string, def time.Duration) time.Duration {
	d, err := config.ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}
