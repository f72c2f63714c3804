// Package outbox schedules broadcasts for later delivery.
//
// Entries are written to the durable store first and executed by a periodic
// sweep, so a scheduled send survives process restarts. Delivery is
// at-least-once: an entry interrupted mid-send is left in the sending state
// and picked up again by the next sweep after restart.
package outbox

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"signalbot/internal/metrics"
	"signalbot/internal/store"
	"signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

// Broadcaster is the dispatcher surface the sweep drives.
type Broadcaster interface {
	Broadcast(ctx context.Context, ref transport.MessageRef, origin int64) ([]store.SendResult, error)
	Direct(ctx context.Context, p transport.DirectPayload, origin int64) ([]store.SendResult, error)
}

type Config struct {
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Second
	}
	return c
}

type Service struct {
	cfg  Config
	st   store.Store
	disp Broadcaster
	met  *metrics.Metrics
	log  logx.Logger

	cron *cron.Cron

	// sweepMu guarantees single-flight sweeps: a tick that fires while the
	// previous sweep is still delivering is skipped, not queued.
	sweepMu sync.Mutex

	now func() time.Time
}

func New(cfg Config, st store.Store, disp Broadcaster, met *metrics.Metrics, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:  cfg.withDefaults(),
		st:   st,
		disp: disp,
		met:  met,
		log:  log.With(logx.String("svc", "outbox")),
		now:  time.Now,
	}
}

// Schedule persists a new entry. The entry is durable before Schedule
// returns; execution happens on a later sweep. A zero SendAt means
// "as soon as possible".
func (s *Service) Schedule(ctx context.Context, e store.OutboxEntry) (store.OutboxEntry, error) {
	e.ID = uuid.NewString()
	e.Status = store.OutboxPending
	if e.SendAt.IsZero() {
		e.SendAt = s.now()
	}
	e.SendAt = e.SendAt.UTC()
	if err := s.st.AppendOutbox(ctx, e); err != nil {
		return store.OutboxEntry{}, err
	}
	s.log.Info("scheduled",
		logx.String("id", e.ID),
		logx.String("kind", e.Kind),
		logx.Time("send_at", e.SendAt))
	return e, nil
}

// Entries returns the full outbox, newest last.
func (s *Service) Entries(ctx context.Context) []store.OutboxEntry {
	return s.st.Outbox(ctx)
}

// Start runs one immediate sweep (resuming any entries stranded in the
// sending state by a previous run) and then sweeps on the configured
// interval until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.Sweep(ctx)

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.log})))
	spec := "@every " + s.cfg.SweepInterval.String()
	if _, err := c.AddFunc(spec, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info("sweep started", logx.String("interval", s.cfg.SweepInterval.String()))
	return nil
}

// Stop halts the sweep schedule and waits for an in-flight sweep to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
	s.sweepMu.Lock()
	s.sweepMu.Unlock()
}

// Sweep runs one pass: promote due pending entries to sending, deliver
// everything in the sending state, then persist terminal statuses. Overlapping
// calls are dropped.
func (s *Service) Sweep(ctx context.Context) {
	if !s.sweepMu.TryLock() {
		return
	}
	defer s.sweepMu.Unlock()

	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sweep panicked", logx.Any("panic", r))
		}
		s.met.ObserveSweep(s.now().Sub(start))
	}()

	now := s.now()
	pending := 0
	err := s.st.UpdateOutbox(ctx, func(entries []store.OutboxEntry) ([]store.OutboxEntry, bool) {
		changed := false
		pending = 0
		for i := range entries {
			if entries[i].Status != store.OutboxPending {
				continue
			}
			if entries[i].SendAt.After(now) {
				pending++
				continue
			}
			entries[i].Status = store.OutboxSending
			changed = true
		}
		return entries, changed
	})
	if err != nil {
		s.log.Error("promote failed", logx.Err(err))
		return
	}
	s.met.SetOutboxDepth(pending)

	// Deliver outside the store lock: sends can take seconds per channel and
	// must not block Schedule or the registry.
	for _, e := range s.st.Outbox(ctx) {
		if e.Status != store.OutboxSending {
			continue
		}
		s.deliver(ctx, e)
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Service) deliver(ctx context.Context, e store.OutboxEntry) {
	var (
		results []store.SendResult
		err     error
		status  store.OutboxStatus
	)
	switch e.Kind {
	case store.KindCopy:
		ref := transport.MessageRef{ChatID: e.FromChatID, MessageID: e.MessageID}
		results, err = s.disp.Broadcast(ctx, ref, e.OriginActor)
	case store.KindFile:
		p := transport.DirectPayload{Text: e.Text, FilePath: e.FilePath}
		results, err = s.disp.Direct(ctx, p, e.OriginActor)
	default:
		status = store.OutboxUnknownType
		s.log.Warn("unknown entry kind",
			logx.String("id", e.ID),
			logx.String("kind", e.Kind))
	}
	if status == "" {
		if err != nil {
			status = store.OutboxError
		} else {
			status = store.OutboxSent
		}
	}

	sentAt := s.now().UTC()
	uerr := s.st.UpdateOutbox(ctx, func(entries []store.OutboxEntry) ([]store.OutboxEntry, bool) {
		for i := range entries {
			if entries[i].ID != e.ID {
				continue
			}
			// Terminal states never change, even if a concurrent run got
			// here first.
			if entries[i].Status.Terminal() {
				return entries, false
			}
			entries[i].Status = status
			entries[i].Results = results
			switch status {
			case store.OutboxSent:
				entries[i].SentAt = &sentAt
			case store.OutboxError:
				entries[i].Error = errString(err)
			}
			return entries, true
		}
		return entries, false
	})
	if uerr != nil {
		// Left in sending; the next sweep retries, which is where
		// at-least-once comes from.
		s.log.Error("status update failed", logx.String("id", e.ID), logx.Err(uerr))
		return
	}
	s.log.Info("delivered",
		logx.String("id", e.ID),
		logx.String("status", string(status)),
		logx.Int("results", len(results)))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// cronLogger adapts logx for cron's panic-recovery chain.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, pairs(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(pairs(kv), logx.Err(err))...)
}

func pairs(kv []interface{}) []logx.Field {
	fields := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, logx.Any(strings.ReplaceAll(key, " ", "_"), kv[i+1]))
	}
	return fields
}
