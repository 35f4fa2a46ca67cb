// Package intent classifies free-form chat text into intents with a
// confidence score, extracted entities and optional canned replies.
//
// Classification runs a single declarative Table; results are cached in a
// kv.Store keyed by normalized text so identical inputs classify the same way
// within the cache TTL.
package intent

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/singleflight"

	"github.com/edgard/assistbot/internal/errs"
	"github.com/edgard/assistbot/internal/kv"
)

const (
	// DefaultMinConfidence is the hard gate below which results are not acted on.
	DefaultMinConfidence = 0.3
	// DefaultCacheTTL bounds how long a classification is reused.
	DefaultCacheTTL = 30 * time.Minute
	// DefaultAttentivePenalty scales confidence of turns admitted only by
	// the attentive window.
	DefaultAttentivePenalty = 0.8
)

// Result is the outcome of classifying one utterance. Matched is set when a
// table pattern matched, not just a synonym or the fallback recognizer.
type Result struct {
	Intent         string            `json:"intent"`
	Confidence     float64           `json:"confidence"`
	Matched        bool              `json:"matched,omitempty"`
	Entities       map[string]string `json:"entities,omitempty"`
	CannedResponse string            `json:"canned_response,omitempty"`
}

// Actionable reports whether the result clears the confidence gate.
func (r Result) Actionable(minConfidence float64) bool {
	return r.Gate(minConfidence) == nil
}

// Gate returns a low-confidence error when the result must not be acted on.
func (r Result) Gate(minConfidence float64) error {
	if r.Intent == "" || r.Intent == Unknown || r.Confidence < minConfidence {
		return errs.NewLowConfidenceError(r.Intent, r.Confidence)
	}
	return nil
}

// Recognizer maps text to an intent. Classifier implements it, as does the
// optional LLM-backed fallback.
type Recognizer interface {
	Recognize(ctx context.Context, text, locale string, attentive bool) (Result, error)
}

// Config tunes a Classifier. Zero values select the defaults.
type Config struct {
	MinConfidence    float64       `mapstructure:"min_confidence" validate:"gte=0,lte=1"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	AttentivePenalty float64       `mapstructure:"attentive_penalty" validate:"gte=0,lte=1"`
}

// Classifier is the cached, table-driven intent classifier.
type Classifier struct {
	table    *Table
	cache    kv.Store
	cfg      Config
	fallback Recognizer
	group    singleflight.Group
	logger   *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithFallback consults r when the table produces no actionable intent.
func WithFallback(r Recognizer) Option {
	return func(c *Classifier) {
		c.fallback = r
	}
}

// NewClassifier creates a classifier over table with results cached in cache.
func NewClassifier(table *Table, cache kv.Store, cfg Config, logger *slog.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if table == nil {
		table = DefaultTable()
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.AttentivePenalty <= 0 {
		cfg.AttentivePenalty = DefaultAttentivePenalty
	}

	c := &Classifier{
		table:  table,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With("component", "intent_classifier"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MinConfidence returns the configured confidence gate.
func (c *Classifier) MinConfidence() float64 {
	return c.cfg.MinConfidence
}

// Table returns the table the classifier runs.
func (c *Classifier) Table() *Table {
	return c.table
}

// Interrupts reports whether intent abandons an open dialogue.
func (c *Classifier) Interrupts(intent string) bool {
	e, ok := c.table.Lookup(intent)
	return ok && e.Interrupts
}

// InterruptsDialogue reports whether res is strong enough to abandon an
// open dialogue: an interrupting intent recognized by one of its patterns.
func (c *Classifier) InterruptsDialogue(res Result) bool {
	return res.Matched && res.Actionable(c.cfg.MinConfidence) && c.Interrupts(res.Intent)
}

// Recognize implements Recognizer.
func (c *Classifier) Recognize(ctx context.Context, text, locale string, attentive bool) (Result, error) {
	return c.Classify(ctx, text, locale, attentive), nil
}

// Classify returns the intent of text. The cached part of the result depends
// on the normalized text only; locale selects the canned reply and attentive
// applies the attentive-mode penalty afterwards.
func (c *Classifier) Classify(ctx context.Context, text, locale string, attentive bool) Result {
	normalized := Normalize(text)
	if normalized == "" {
		return Result{Intent: Unknown}
	}

	base := c.lookup(ctx, normalized)

	res := Result{
		Intent:     base.Intent,
		Confidence: base.Confidence,
		Matched:    base.Matched,
		Entities:   maps.Clone(base.Entities),
	}

	entry, known := c.table.Lookup(res.Intent)
	if attentive {
		if known && entry.AddressOnly {
			c.logger.DebugContext(ctx, "Dropping address-only intent on attentive turn", "intent", res.Intent)
			return Result{Intent: Unknown}
		}
		res.Confidence *= c.cfg.AttentivePenalty
	}

	if known && len(entry.Canned) > 0 {
		if canned, ok := entry.Canned[locale]; ok {
			res.CannedResponse = canned
		} else {
			res.CannedResponse = entry.Canned[DefaultLocale]
		}
	}
	return res
}

func (c *Classifier) lookup(ctx context.Context, normalized string) Result {
	key := cacheKey(normalized)

	var cached Result
	found, err := kv.GetJSON(ctx, c.cache, key, &cached)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to read classification cache", "error", err)
	}
	if found {
		return cached
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		res := c.table.Match(normalized)
		if !res.Actionable(c.cfg.MinConfidence) && c.fallback != nil {
			res = c.consultFallback(ctx, normalized, res)
		}
		if err := kv.SetJSON(ctx, c.cache, key, res, c.cfg.CacheTTL); err != nil {
			c.logger.WarnContext(ctx, "Failed to write classification cache", "error", err)
		}
		c.logger.DebugContext(ctx, "Classified text", "intent", res.Intent, "confidence", res.Confidence)
		return res, nil
	})
	return v.(Result)
}

func (c *Classifier) consultFallback(ctx context.Context, normalized string, tableResult Result) Result {
	res, err := c.fallback.Recognize(ctx, normalized, DefaultLocale, false)
	if err != nil {
		c.logger.WarnContext(ctx, "Fallback recognizer failed, keeping table result", "error", err)
		return tableResult
	}
	if _, known := c.table.Lookup(res.Intent); !known {
		return tableResult
	}
	if res.Confidence > tableResult.Confidence {
		res.CannedResponse = ""
		return res
	}
	return tableResult
}

func cacheKey(normalized string) string {
	return "intent:" + normalized
}

// Normalize lower-cases text, collapses whitespace and trims punctuation at
// both ends.
func Normalize(text string) string {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	return strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}
