package router

import (
	"strings"
	"testing"

	"signalbot/internal/analytics"
	"signalbot/internal/store"
)

func TestNormalizeChannel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"@news", "@news", false},
		{"news", "@news", false},
		{" news ", "@news", false},
		{"-1001234567890", "-1001234567890", false},
		{"42", "42", false},
		{"", "", true},
		{"two words", "", true},
		{"@", "", true},
	}
	for _, tt := range tests {
		got, err := normalizeChannel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("normalizeChannel(%q) = %q, want error", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("normalizeChannel(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()
	admins := []int64{42, 99}
	if !isAdmin(admins, 42) || isAdmin(admins, 7) || isAdmin(nil, 42) {
		t.Fatal("admin membership check broken")
	}
}

func TestFirstTokenMasksMessageBodies(t *testing.T) {
	t.Parallel()
	if got := firstToken("/addchannel @news"); got != "/addchannel" {
		t.Fatalf("firstToken = %q", got)
	}
	if got := firstToken("my secret announcement"); got != "<message>" {
		t.Fatalf("firstToken leaked a message body: %q", got)
	}
}

func TestRenderResults(t *testing.T) {
	t.Parallel()
	if got := renderResults(nil); !strings.Contains(got, "no channels") {
		t.Fatalf("empty render = %q", got)
	}

	got := renderResults([]store.SendResult{
		{Channel: "@a", Outcome: store.OutcomeOK},
		{Channel: "@b", Outcome: store.OutcomeForbidden},
		{Channel: "@c", Outcome: store.OutcomeFailed, Error: "timeout"},
	})
	if !strings.Contains(got, "sent to 1/3") {
		t.Fatalf("render = %q, want counts", got)
	}
	if !strings.Contains(got, "@b: removed (forbidden)") || !strings.Contains(got, "@c: timeout") {
		t.Fatalf("render = %q, want per-channel problems", got)
	}
}

func TestRenderSummary(t *testing.T) {
	t.Parallel()
	sum := analytics.Summarize([]store.LedgerEntry{
		{Kind: "broadcast", Results: []store.SendResult{
			{Channel: "@a", Outcome: store.OutcomeOK},
			{Channel: "@b", Outcome: store.OutcomeFailed},
		}},
	}, []string{"@a", "@b"})

	got := renderSummary(sum)
	if !strings.Contains(got, "success rate: 50.0%") {
		t.Fatalf("summary = %q, want success rate", got)
	}
	if !strings.Contains(got, "registered channels: 2") {
		t.Fatalf("summary = %q, want registered count", got)
	}
}
