package wake_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edgard/assistbot/internal/kv"
	"github.com/edgard/assistbot/internal/wake"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newGate(c *clock) (*wake.Gate, *kv.MemoryStore) {
	store := kv.NewMemoryStore(kv.WithClock(c.Now))
	g := wake.NewGate(wake.Config{Name: "Atlas", Username: "atlas_bot"}, store, nil, wake.WithClock(c.Now))
	return g, store
}

func TestIsAddressed(t *testing.T) {
	t.Parallel()

	g, _ := newGate(&clock{now: time.Now()})

	tests := []struct {
		name      string
		text      string
		mentioned bool
		want      bool
	}{
		{name: "platform mention", text: "remind me to stretch", mentioned: true, want: true},
		{name: "wake phrase", text: "hey atlas remind me to stretch", want: true},
		{name: "wake phrase mixed case and punctuation", text: "Hey, ATLAS! remind me", want: true},
		{name: "extra whitespace", text: "  ok    atlas   what's up", want: true},
		{name: "bare name", text: "Atlas", want: true},
		{name: "bare name with question mark", text: "atlas?", want: true},
		{name: "name prefix", text: "atlas, list my reminders", want: true},
		{name: "handle", text: "@atlas_bot remind me", want: true},
		{name: "name later in sentence", text: "I read about atlas yesterday", want: false},
		{name: "similar word", text: "atlases are heavy", want: false},
		{name: "plain chatter", text: "remind me to call John", want: false},
		{name: "empty", text: "   ", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := g.IsAddressed(tt.text, tt.mentioned); got != tt.want {
				t.Errorf("IsAddressed(%q, %v) = %v, want %v", tt.text, tt.mentioned, got, tt.want)
			}
		})
	}
}

func TestStrip(t *testing.T) {
	t.Parallel()

	g, _ := newGate(&clock{now: time.Now()})

	tests := map[string]string{
		"hey atlas, remind me to call John": "remind me to call John",
		"Atlas: list reminders":             "list reminders",
		"@atlas_bot   play trivia":          "play trivia",
		"atlas":                             "",
		"remind me to stretch":              "remind me to stretch",
		"  ok atlas!!  cancel ":             "cancel",
	}
	for in, want := range tests {
		if got := g.Strip(in); got != want {
			t.Errorf("Strip(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAttentiveWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := &clock{now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	g, store := newGate(c)

	if g.IsAttentive(ctx, "u1") {
		t.Fatal("sender without a window must not be attentive")
	}

	g.MarkAttentive(ctx, "u1")
	c.Advance(4 * time.Minute)
	if !g.IsAttentive(ctx, "u1") {
		t.Fatal("sender should be attentive inside the window")
	}
	if g.IsAttentive(ctx, "u2") {
		t.Error("windows must be per sender")
	}

	// Re-arming extends the window from now.
	g.MarkAttentive(ctx, "u1")
	c.Advance(4 * time.Minute)
	if !g.IsAttentive(ctx, "u1") {
		t.Fatal("re-armed window should still be open")
	}

	c.Advance(2 * time.Minute)
	if g.IsAttentive(ctx, "u1") {
		t.Fatal("window should have expired")
	}
	if store.Len() != 0 {
		t.Errorf("expired window should be deleted on check, store has %d keys", store.Len())
	}
}

func TestForget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g, _ := newGate(&clock{now: time.Now()})

	g.MarkAttentive(ctx, "u1")
	g.Forget(ctx, "u1")
	if g.IsAttentive(ctx, "u1") {
		t.Error("Forget() should close the window")
	}
}

func TestGateWithoutNameIgnoresNamePhrases(t *testing.T) {
	t.Parallel()

	g := wake.NewGate(wake.Config{Username: "atlas_bot"}, kv.NewMemoryStore(), nil)
	if g.IsAddressed("hey there", false) {
		t.Error("a phrase whose name placeholder is empty must not match")
	}
	if !g.IsAddressed("@atlas_bot hi", false) {
		t.Error("handle phrase should still match")
	}
}
