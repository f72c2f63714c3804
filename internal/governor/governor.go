// Package governor paces outgoing sends so the traffic pattern stays under
// the transport's automation heuristics.
//
// Two knobs: a per-channel cooldown (minimum spacing between two sends to the
// same destination) and an inter-send delay with uniform jitter (spacing
// between sends to different destinations, so fan-out never looks like a
// burst). State is in-memory only; losing it on restart just resets pacing.
package governor

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type Config struct {
	PerChannelCooldown time.Duration
	InterSendDelay     time.Duration
	Jitter             time.Duration
}

type Governor struct {
	mu   sync.Mutex
	cfg  Config
	last map[string]time.Time // channel -> last attempt (success or failure)
	rnd  *rand.Rand

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func New(cfg Config) *Governor {
	return &Governor{
		cfg:   cfg,
		last:  map[string]time.Time{},
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
		sleep: ctxSleep,
	}
}

// Apply swaps pacing knobs at runtime (config hot reload).
func (g *Governor) Apply(cfg Config) {
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
}

// WaitCooldown suspends the caller until the per-channel cooldown for ch has
// elapsed since the last recorded attempt.
func (g *Governor) WaitCooldown(ctx context.Context, ch string) {
	g.mu.Lock()
	cooldown := g.cfg.PerChannelCooldown
	last, ok := g.last[ch]
	now := g.now()
	g.mu.Unlock()

	if !ok || cooldown <= 0 {
		return
	}
	if wait := cooldown - now.Sub(last); wait > 0 {
		g.sleep(ctx, wait)
	}
}

// MarkAttempt records a send attempt to ch, success or failure.
func (g *Governor) MarkAttempt(ch string) {
	g.mu.Lock()
	g.last[ch] = g.now()
	g.mu.Unlock()
}

// WaitInterSend suspends the caller for the inter-send delay plus uniform
// jitter before the next destination is attempted.
func (g *Governor) WaitInterSend(ctx context.Context) {
	g.mu.Lock()
	d := g.cfg.InterSendDelay
	if j := g.cfg.Jitter; j > 0 {
		d += time.Duration(g.rnd.Int63n(int64(j)))
	}
	g.mu.Unlock()

	if d > 0 {
		g.sleep(ctx, d)
	}
}

// ctxSleep sleeps for d or until ctx is cancelled.
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
