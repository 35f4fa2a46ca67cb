// Package wake decides whether an inbound chat message is meant for the
// assistant: either it addresses the assistant explicitly (platform mention,
// wake phrase, bare name) or the sender is inside an attentive window opened
// by a recent explicit address.
package wake

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/edgard/assistbot/internal/kv"
)

// DefaultWindow is how long a sender stays attentive after addressing the bot.
const DefaultWindow = 5 * time.Minute

// DefaultPhrases are the wake phrases used when none are configured.
// "{name}" is replaced by the bot name and "{username}" by its handle.
var DefaultPhrases = []string{
	"hey {name}",
	"hi {name}",
	"hello {name}",
	"ok {name}",
	"okay {name}",
	"yo {name}",
	"{name}",
	"@{username}",
}

// Config configures a Gate.
type Config struct {
	Name     string
	Username string
	Phrases  []string
	Window   time.Duration
}

// Gate implements wake-word and attentive-mode detection.
type Gate struct {
	phrases [][]string
	name    string
	window  time.Duration
	store   kv.Store
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// NewGate creates a gate keeping attentive windows in store.
func NewGate(cfg Config, store kv.Store, logger *slog.Logger, opts ...Option) *Gate {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	phrases := cfg.Phrases
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}

	g := &Gate{
		name:   normalizeToken(cfg.Name),
		window: cfg.Window,
		store:  store,
		now:    time.Now,
		logger: logger.With("component", "wake_gate"),
	}
	for _, p := range phrases {
		if (cfg.Name == "" && strings.Contains(p, "{name}")) ||
			(cfg.Username == "" && strings.Contains(p, "{username}")) {
			continue
		}
		p = strings.ReplaceAll(p, "{name}", cfg.Name)
		p = strings.ReplaceAll(p, "{username}", cfg.Username)
		var tokens []string
		for _, w := range strings.Fields(p) {
			if t := normalizeToken(w); t != "" {
				tokens = append(tokens, t)
			}
		}
		if len(tokens) > 0 {
			g.phrases = append(g.phrases, tokens)
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsAddressed reports whether the message explicitly addresses the bot.
// mentioned carries the transport's own mention/reply-to-bot detection.
func (g *Gate) IsAddressed(text string, mentioned bool) bool {
	if mentioned {
		return true
	}
	_, ok := g.match(text)
	return ok
}

// Strip removes a leading wake phrase and the punctuation after it.
// Text without a wake phrase is returned trimmed but otherwise unchanged.
func (g *Gate) Strip(text string) string {
	end, ok := g.match(text)
	if !ok {
		return strings.TrimSpace(text)
	}
	rest := strings.TrimLeftFunc(text[end:], func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return strings.TrimSpace(rest)
}

// match returns the byte offset where the longest leading wake phrase ends.
func (g *Gate) match(text string) (int, bool) {
	spans := fieldSpans(text)
	if len(spans) == 0 {
		return 0, false
	}

	best := -1
	for _, phrase := range g.phrases {
		if len(phrase) > len(spans) || len(phrase) <= best {
			continue
		}
		matched := true
		for i, want := range phrase {
			if normalizeToken(text[spans[i].start:spans[i].end]) != want {
				matched = false
				break
			}
		}
		if matched {
			best = len(phrase)
		}
	}
	if best < 0 {
		return 0, false
	}
	return spans[best-1].end, true
}

// IsAttentive reports whether sender addressed the bot within the window.
// Expired windows are deleted as part of the check.
func (g *Gate) IsAttentive(ctx context.Context, senderID string) bool {
	key := attentiveKey(senderID)
	raw, found, err := g.store.Get(ctx, key)
	if err != nil {
		g.logger.WarnContext(ctx, "Failed to read attentive window", "sender_id", senderID, "error", err)
		return false
	}
	if !found {
		return false
	}

	nanos, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || g.now().Sub(time.Unix(0, nanos)) >= g.window {
		if delErr := g.store.Delete(ctx, key); delErr != nil {
			g.logger.WarnContext(ctx, "Failed to delete expired attentive window", "sender_id", senderID, "error", delErr)
		}
		return false
	}
	return true
}

// MarkAttentive (re)starts the attentive window for sender.
func (g *Gate) MarkAttentive(ctx context.Context, senderID string) {
	value := strconv.FormatInt(g.now().UnixNano(), 10)
	if err := g.store.Set(ctx, attentiveKey(senderID), []byte(value), g.window); err != nil {
		g.logger.WarnContext(ctx, "Failed to store attentive window", "sender_id", senderID, "error", err)
	}
}

// Forget closes the attentive window for sender.
func (g *Gate) Forget(ctx context.Context, senderID string) {
	if err := g.store.Delete(ctx, attentiveKey(senderID)); err != nil {
		g.logger.WarnContext(ctx, "Failed to delete attentive window", "sender_id", senderID, "error", err)
	}
}

func attentiveKey(senderID string) string {
	return "attentive:" + senderID
}

type span struct{ start, end int }

func fieldSpans(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}

// normalizeToken lower-cases w and trims surrounding punctuation, keeping a
// leading '@' so handles stay distinguishable from names.
func normalizeToken(w string) string {
	w = strings.ToLower(w)
	at := strings.HasPrefix(w, "@")
	w = strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	if at && w != "" {
		return "@" + w
	}
	return w
}
