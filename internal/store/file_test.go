package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "signalbot/pkg/logx"
)

func newFileStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFileStoreEmptyOnFirstRun(t *testing.T) {
	t.Parallel()
	st := newFileStore(t)
	ctx := context.Background()

	if got := st.Channels(ctx); len(got) != 0 {
		t.Fatalf("Channels = %v, want empty", got)
	}
	if got := st.Posts(ctx); len(got) != 0 {
		t.Fatalf("Posts = %v, want empty", got)
	}
	if got := st.Outbox(ctx); len(got) != 0 {
		t.Fatalf("Outbox = %v, want empty", got)
	}
}

func TestFileStoreCorruptFileDegradesToEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "channels.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	if got := st.Channels(context.Background()); len(got) != 0 {
		t.Fatalf("Channels = %v, want empty on corrupt file", got)
	}
}

func TestFileStoreChannelsRoundTrip(t *testing.T) {
	t.Parallel()
	st := newFileStore(t)
	ctx := context.Background()

	err := st.UpdateChannels(ctx, func(cur []string) ([]string, bool) {
		return append(cur, "@alpha", "-100123"), true
	})
	if err != nil {
		t.Fatalf("UpdateChannels: %v", err)
	}

	got := st.Channels(ctx)
	if len(got) != 2 || got[0] != "@alpha" || got[1] != "-100123" {
		t.Fatalf("Channels = %v, want insertion order preserved", got)
	}
}

func TestFileStoreUpdateNoChangeWritesNothing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	err = st.UpdateChannels(context.Background(), func(cur []string) ([]string, bool) {
		return cur, false
	})
	if err != nil {
		t.Fatalf("UpdateChannels: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "channels.json")); !os.IsNotExist(err) {
		t.Fatalf("expected no channels.json after unchanged update, stat err = %v", err)
	}
}

func TestFileStorePostsAppendOnly(t *testing.T) {
	t.Parallel()
	st := newFileStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := LedgerEntry{
			Kind:        "broadcast",
			Results:     []SendResult{{Channel: "@a", Outcome: OutcomeOK, Attempts: 1}},
			OriginActor: 42,
			Time:        time.Now().UTC(),
		}
		if err := st.AppendPost(ctx, e); err != nil {
			t.Fatalf("AppendPost: %v", err)
		}
	}
	posts := st.Posts(ctx)
	if len(posts) != 3 {
		t.Fatalf("Posts = %d entries, want 3", len(posts))
	}
	if posts[0].Results[0].Outcome != OutcomeOK {
		t.Fatalf("decoded outcome = %q", posts[0].Results[0].Outcome)
	}
}

func TestFileStoreOutboxUpdate(t *testing.T) {
	t.Parallel()
	st := newFileStore(t)
	ctx := context.Background()

	e := OutboxEntry{
		ID:          "e1",
		Kind:        KindCopy,
		FromChatID:  7,
		MessageID:   11,
		SendAt:      time.Now().UTC().Add(-time.Second),
		Status:      OutboxPending,
		OriginActor: 42,
	}
	if err := st.AppendOutbox(ctx, e); err != nil {
		t.Fatalf("AppendOutbox: %v", err)
	}

	err := st.UpdateOutbox(ctx, func(cur []OutboxEntry) ([]OutboxEntry, bool) {
		if len(cur) != 1 || cur[0].ID != "e1" {
			t.Fatalf("unexpected outbox contents: %v", cur)
		}
		cur[0].Status = OutboxSending
		return cur, true
	})
	if err != nil {
		t.Fatalf("UpdateOutbox: %v", err)
	}

	got := st.Outbox(ctx)
	if len(got) != 1 || got[0].Status != OutboxSending {
		t.Fatalf("Outbox = %v, want single sending entry", got)
	}
}
