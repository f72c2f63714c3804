package governor

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

// fakeClock drives the governor deterministically: sleeps advance the clock
// and are recorded instead of blocking.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newFakeClock(g *Governor) *fakeClock {
	fc := &fakeClock{now: time.Unix(1700000000, 0)}
	g.now = func() time.Time { return fc.now }
	g.sleep = func(_ context.Context, d time.Duration) {
		fc.slept = append(fc.slept, d)
		fc.now = fc.now.Add(d)
	}
	return fc
}

func TestWaitCooldownFirstSendIsFree(t *testing.T) {
	t.Parallel()
	g := New(Config{PerChannelCooldown: 10 * time.Second})
	fc := newFakeClock(g)

	g.WaitCooldown(context.Background(), "@a")
	if len(fc.slept) != 0 {
		t.Fatalf("expected no sleep before first attempt, got %v", fc.slept)
	}
}

func TestWaitCooldownEnforcesSpacing(t *testing.T) {
	t.Parallel()
	g := New(Config{PerChannelCooldown: 10 * time.Second})
	fc := newFakeClock(g)

	g.MarkAttempt("@a")
	fc.now = fc.now.Add(3 * time.Second)

	g.WaitCooldown(context.Background(), "@a")
	if len(fc.slept) != 1 || fc.slept[0] != 7*time.Second {
		t.Fatalf("slept %v, want exactly [7s]", fc.slept)
	}

	// Gap satisfied: marked attempt + full cooldown means no wait.
	g.MarkAttempt("@a")
	fc.now = fc.now.Add(10 * time.Second)
	g.WaitCooldown(context.Background(), "@a")
	if len(fc.slept) != 1 {
		t.Fatalf("unexpected extra sleep: %v", fc.slept)
	}
}

func TestWaitCooldownIsPerChannel(t *testing.T) {
	t.Parallel()
	g := New(Config{PerChannelCooldown: 10 * time.Second})
	fc := newFakeClock(g)

	g.MarkAttempt("@a")
	g.WaitCooldown(context.Background(), "@b")
	if len(fc.slept) != 0 {
		t.Fatalf("cooldown for @a must not delay @b, slept %v", fc.slept)
	}
}

func TestWaitInterSendJitterBounds(t *testing.T) {
	t.Parallel()
	g := New(Config{InterSendDelay: 350 * time.Millisecond, Jitter: 150 * time.Millisecond})
	fc := newFakeClock(g)
	g.rnd = rand.New(rand.NewSource(1))

	for i := 0; i < 100; i++ {
		g.WaitInterSend(context.Background())
	}
	for _, d := range fc.slept {
		if d < 350*time.Millisecond || d >= 500*time.Millisecond {
			t.Fatalf("inter-send sleep %v outside [350ms, 500ms)", d)
		}
	}
}

func TestWaitInterSendZeroConfigNoSleep(t *testing.T) {
	t.Parallel()
	g := New(Config{})
	fc := newFakeClock(g)

	g.WaitInterSend(context.Background())
	g.WaitCooldown(context.Background(), "@a")
	if len(fc.slept) != 0 {
		t.Fatalf("zero config must not sleep, got %v", fc.slept)
	}
}

func TestApplySwapsKnobs(t *testing.T) {
	t.Parallel()
	g := New(Config{PerChannelCooldown: time.Minute})
	fc := newFakeClock(g)

	g.MarkAttempt("@a")
	g.Apply(Config{PerChannelCooldown: time.Second})
	fc.now = fc.now.Add(2 * time.Second)

	g.WaitCooldown(context.Background(), "@a")
	if len(fc.slept) != 0 {
		t.Fatalf("new cooldown already satisfied, slept %v", fc.slept)
	}
}
