package dispatcher

import (
	"context"
	"testing"

	"signalbot/internal/governor"
	"signalbot/internal/registry"
	"signalbot/internal/store"
	"signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

// scriptedSender returns canned errors per channel, in order, then succeeds.
type scriptedSender struct {
	script map[string][]error
	calls  map[string]int
}

func newScriptedSender() *scriptedSender {
	return &scriptedSender{script: map[string][]error{}, calls: map[string]int{}}
}

func (s *scriptedSender) next(ch string) error {
	i := s.calls[ch]
	s.calls[ch]++
	if q := s.script[ch]; i < len(q) {
		return q[i]
	}
	return nil
}

func (s *scriptedSender) Copy(_ context.Context, dest string, _ transport.MessageRef) error {
	return s.next(dest)
}

func (s *scriptedSender) SendDirect(_ context.Context, dest string, _ transport.DirectPayload) error {
	return s.next(dest)
}

type fixture struct {
	st     store.Store
	reg    *registry.Registry
	sender *scriptedSender
	disp   *Dispatcher
}

func newFixture(t *testing.T, cfg Config, channels ...string) *fixture {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := registry.New(st, logx.Nop())
	for _, ch := range channels {
		if _, err := reg.Add(context.Background(), ch); err != nil {
			t.Fatalf("Add(%s): %v", ch, err)
		}
	}
	sender := newScriptedSender()
	disp := New(cfg, governor.New(governor.Config{}), reg, st, sender, nil, logx.Nop())
	return &fixture{st: st, reg: reg, sender: sender, disp: disp}
}

var ref = transport.MessageRef{ChatID: 100, MessageID: 5}

func TestBroadcastEmptyRegistry(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	results, err := f.disp.Broadcast(ctx, ref, 42)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %v, want empty", results)
	}

	posts := f.st.Posts(ctx)
	if len(posts) != 1 {
		t.Fatalf("ledger has %d entries, want exactly 1", len(posts))
	}
	if posts[0].Status != store.LedgerNoChannels {
		t.Fatalf("ledger status = %q, want no_channels", posts[0].Status)
	}
	if len(posts[0].Results) != 0 {
		t.Fatalf("ledger results = %v, want empty", posts[0].Results)
	}
}

func TestBroadcastAllOK(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, "@a", "@b")
	ctx := context.Background()

	results, err := f.disp.Broadcast(ctx, ref, 42)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %v, want one per channel", results)
	}
	for _, r := range results {
		if r.Outcome != store.OutcomeOK || r.Attempts != 1 {
			t.Fatalf("result %+v, want ok on first attempt", r)
		}
	}
	if len(f.disp.forbidden) != 0 {
		t.Fatalf("forbidden counters = %v, want empty after success", f.disp.forbidden)
	}

	posts := f.st.Posts(ctx)
	if len(posts) != 1 || len(posts[0].Results) != 2 {
		t.Fatalf("ledger = %+v, want single entry with both channels", posts)
	}
	if posts[0].OriginActor != 42 {
		t.Fatalf("origin = %d, want 42", posts[0].OriginActor)
	}
	if posts[0].Time.IsZero() {
		t.Fatalf("ledger entry has no timestamp: %+v", posts[0])
	}
}

func TestBroadcastForbiddenThresholdRemovesChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{RetryCount: 3, ForbiddenThreshold: 3, RemoveOnForbidden: true}, "@a")
	ctx := context.Background()

	rej := transport.Permanent("bot was kicked")
	f.sender.script["@a"] = []error{rej, rej, rej}

	results, err := f.disp.Broadcast(ctx, ref, 42)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(results) != 1 || results[0].Outcome != store.OutcomeForbidden {
		t.Fatalf("results = %+v, want forbidden (not failed)", results)
	}
	if got := f.reg.List(ctx); len(got) != 0 {
		t.Fatalf("registry = %v, want channel auto-removed", got)
	}
	if _, ok := f.disp.forbidden["@a"]; ok {
		t.Fatal("forbidden counter must be cleared after removal")
	}
}

func TestBroadcastForbiddenBelowThresholdKeepsChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{RetryCount: 2, ForbiddenThreshold: 5, RemoveOnForbidden: true}, "@a")
	ctx := context.Background()

	rej := transport.Permanent("bot was kicked")
	f.sender.script["@a"] = []error{rej, rej}

	results, err := f.disp.Broadcast(ctx, ref, 42)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if results[0].Outcome != store.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed below threshold", results[0].Outcome)
	}
	if got := f.reg.List(ctx); len(got) != 1 {
		t.Fatalf("registry = %v, want channel kept", got)
	}
	if f.disp.forbidden["@a"] != 2 {
		t.Fatalf("forbidden count = %d, want 2 carried across attempts", f.disp.forbidden["@a"])
	}
}

func TestBroadcastTransientRetriesThenOK(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{RetryCount: 3}, "@a")
	ctx := context.Background()

	f.sender.script["@a"] = []error{
		transport.Transient("timeout"),
		transport.Transient("timeout"),
	}

	results, err := f.disp.Broadcast(ctx, ref, 42)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if results[0].Outcome != store.OutcomeOK || results[0].Attempts != 3 {
		t.Fatalf("result = %+v, want ok after 3 attempts", results[0])
	}
}

func TestBroadcastTransientExhaustionFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{RetryCount: 2}, "@a", "@b")
	ctx := context.Background()

	f.sender.script["@a"] = []error{
		transport.Transient("timeout"),
		transport.Transient("timeout"),
	}

	results, err := f.disp.Broadcast(ctx, ref, 42)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if results[0].Outcome != store.OutcomeFailed || results[0].Attempts != 2 {
		t.Fatalf("result = %+v, want failed after exhausting retries", results[0])
	}
	// One channel failing must not stop the rest of the fan-out.
	if results[1].Outcome != store.OutcomeOK {
		t.Fatalf("result = %+v, want @b delivered", results[1])
	}
}

func TestDirectUsesSamePacedLoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, "@a", "@b")
	ctx := context.Background()

	results, err := f.disp.Direct(ctx, transport.DirectPayload{Text: "hello"}, 42)
	if err != nil {
		t.Fatalf("Direct: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %v, want one per channel", results)
	}
	posts := f.st.Posts(ctx)
	if len(posts) != 1 || posts[0].Kind != "direct" {
		t.Fatalf("ledger = %+v, want one direct entry", posts)
	}
}

func TestEveryBroadcastAppendsExactlyOneLedgerEntry(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{}, "@a")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := f.disp.Broadcast(ctx, ref, 42); err != nil {
			t.Fatalf("Broadcast #%d: %v", i, err)
		}
	}
	if posts := f.st.Posts(ctx); len(posts) != 4 {
		t.Fatalf("ledger has %d entries, want 4", len(posts))
	}
}
