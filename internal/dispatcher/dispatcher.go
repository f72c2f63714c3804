// Package dispatcher implements the broadcast fan-out.
//
// Delivery is sequential: one channel at a time, with the governor's
// cooldown and jitter between sends, so the traffic pattern does not look
// like an automated burst. Do not parallelize the per-channel loop.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"signalbot/internal/governor"
	"signalbot/internal/metrics"
	"signalbot/internal/registry"
	"signalbot/internal/store"
	"signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

type Config struct {
	RetryCount         int
	RetryDelay         time.Duration
	ForbiddenThreshold int
	RemoveOnForbidden  bool
}

func (c Config) withDefaults() Config {
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.ForbiddenThreshold <= 0 {
		c.ForbiddenThreshold = 3
	}
	return c
}

type Dispatcher struct {
	// mu serializes broadcasts: forbidden-counter mutation, registry
	// removal and the ledger append must stay consistent per invocation.
	mu sync.Mutex

	cfgMu sync.Mutex
	cfg   Config

	gov    *governor.Governor
	reg    *registry.Registry
	st     store.Store
	sender transport.Sender
	log    logx.Logger
	met    *metrics.Metrics

	// forbidden counts consecutive permanent rejections per channel since
	// process start. Reset only on a successful send; cleared on removal.
	forbidden map[string]int

	sleep func(ctx context.Context, d time.Duration)
}

func New(cfg Config, gov *governor.Governor, reg *registry.Registry, st store.Store, sender transport.Sender, met *metrics.Metrics, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:       cfg.withDefaults(),
		gov:       gov,
		reg:       reg,
		st:        st,
		sender:    sender,
		met:       met,
		log:       log,
		forbidden: map[string]int{},
		sleep:     ctxSleep,
	}
}

// Apply swaps retry/removal knobs at runtime.
func (d *Dispatcher) Apply(cfg Config) {
	d.cfgMu.Lock()
	d.cfg = cfg.withDefaults()
	d.cfgMu.Unlock()
}

func (d *Dispatcher) config() Config {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	return d.cfg
}

// Broadcast copies the referenced message to every registered channel and
// appends exactly one ledger entry summarizing the attempt, including the
// empty-registry case. The returned results carry one terminal outcome per
// channel attempted.
func (d *Dispatcher) Broadcast(ctx context.Context, ref transport.MessageRef, origin int64) ([]store.SendResult, error) {
	send := func(ctx context.Context, ch string) error {
		return d.sender.Copy(ctx, ch, ref)
	}
	entry := store.LedgerEntry{
		Kind:        "broadcast",
		FromChatID:  ref.ChatID,
		MessageID:   ref.MessageID,
		OriginActor: origin,
	}
	return d.run(ctx, entry, send)
}

// Direct delivers an ad-hoc text or file post to every registered channel
// through the same paced loop, so direct sends respect the governor exactly
// like copies do.
func (d *Dispatcher) Direct(ctx context.Context, p transport.DirectPayload, origin int64) ([]store.SendResult, error) {
	send := func(ctx context.Context, ch string) error {
		return d.sender.SendDirect(ctx, ch, p)
	}
	entry := store.LedgerEntry{
		Kind:        "direct",
		OriginActor: origin,
	}
	return d.run(ctx, entry, send)
}

func (d *Dispatcher) run(ctx context.Context, entry store.LedgerEntry, send func(ctx context.Context, ch string) error) ([]store.SendResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.met.ObserveBroadcast()
	channels := d.reg.List(ctx)

	results := make([]store.SendResult, 0, len(channels))
	if len(channels) == 0 {
		entry.Status = store.LedgerNoChannels
		entry.Results = results
		entry.Time = time.Now().UTC()
		if err := d.st.AppendPost(ctx, entry); err != nil {
			d.log.Error("ledger append failed", logx.Err(err))
			return results, err
		}
		return results, nil
	}

	d.log.Info("broadcast starting", logx.Int("channels", len(channels)), logx.Int64("origin", entry.OriginActor))

	for _, ch := range channels {
		d.gov.WaitCooldown(ctx, ch)
		res := d.sendWithRetry(ctx, ch, send)
		results = append(results, res)
		d.met.ObserveSend(string(res.Outcome))
		d.gov.MarkAttempt(ch)
		d.gov.WaitInterSend(ctx)
	}

	entry.Results = results
	entry.Time = time.Now().UTC()
	if err := d.st.AppendPost(ctx, entry); err != nil {
		d.log.Error("ledger append failed", logx.Err(err))
		return results, err
	}

	okCount := 0
	for _, r := range results {
		if r.Outcome == store.OutcomeOK {
			okCount++
		}
	}
	d.log.Info("broadcast complete",
		logx.Int("ok", okCount),
		logx.Int("failed", len(results)-okCount),
	)
	return results, nil
}

// sendWithRetry attempts one channel up to RetryCount times. Transient
// failures wait RetryDelay (or the transport-suggested backoff, if longer)
// between attempts. Permanent rejections are never retried past the
// forbidden threshold: reaching it deregisters the channel and abandons the
// remaining attempts.
func (d *Dispatcher) sendWithRetry(ctx context.Context, ch string, send func(ctx context.Context, ch string) error) store.SendResult {
	cfg := d.config()
	res := store.SendResult{Channel: ch}

	var lastErr error
	for attempt := 1; attempt <= cfg.RetryCount; attempt++ {
		res.Attempts = attempt
		err := send(ctx, ch)
		if err == nil {
			res.Outcome = store.OutcomeOK
			delete(d.forbidden, ch)
			return res
		}
		lastErr = err

		if transport.IsPermanent(err) {
			d.forbidden[ch]++
			count := d.forbidden[ch]
			d.log.Warn("permanent rejection",
				logx.String("channel", ch),
				logx.Int("count", count),
				logx.Err(err),
			)
			if cfg.RemoveOnForbidden && count >= cfg.ForbiddenThreshold {
				if removed, rmErr := d.reg.Remove(ctx, ch); rmErr != nil {
					d.log.Error("auto-removal failed", logx.String("channel", ch), logx.Err(rmErr))
				} else if removed {
					d.met.ObserveChannelRemoved()
					d.log.Warn("channel removed after repeated rejections", logx.String("channel", ch))
				}
				delete(d.forbidden, ch)
				res.Outcome = store.OutcomeForbidden
				res.Error = err.Error()
				return res
			}
		} else {
			d.met.ObserveRetry()
		}

		if attempt < cfg.RetryCount {
			wait := cfg.RetryDelay
			if suggested := transport.SuggestedWait(err); suggested > wait {
				wait = suggested
			}
			d.sleep(ctx, wait)
		}
	}

	res.Outcome = store.OutcomeFailed
	if lastErr != nil {
		res.Error = lastErr.Error()
	}
	return res
}

func ctxSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
