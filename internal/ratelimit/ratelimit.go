// Package ratelimit gates commands and costly actions with per-identity
// token buckets. The gate fails open: when the backing store cannot answer,
// the action is allowed and the failure is logged.
package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/edgard/assistbot/internal/errs"
	"github.com/edgard/assistbot/internal/kv"
)

// Config describes one bucket family.
type Config struct {
	// Capacity is the burst size; buckets start full.
	Capacity int `mapstructure:"capacity" validate:"min=1"`
	// Refill tokens are added every Period.
	Refill int           `mapstructure:"refill" validate:"min=1"`
	Period time.Duration `mapstructure:"period" validate:"min=1ms"`
	// Cooldown, when positive, blocks the bucket for this long after the
	// first denied take; the bucket is full again once it ends.
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// Backend stores bucket state. Implementations must be safe for
// concurrent use.
type Backend interface {
	Take(ctx context.Context, key string, cfg Config) (bool, error)
}

// Limiter is one named bucket family (for example "command" or "costly").
type Limiter struct {
	name    string
	cfg     Config
	backend Backend
	notices kv.Store
	logger  *slog.Logger
}

// New creates a limiter. notices may be nil, in which case every denial is
// reported as needing a notice.
func New(name string, cfg Config, backend Backend, notices kv.Store, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Limiter{
		name:    name,
		cfg:     cfg,
		backend: backend,
		notices: notices,
		logger:  logger.With("component", "ratelimit", "family", name),
	}
}

// Key builds the bucket key for a sender in a channel.
func Key(senderID, channelID string) string {
	return senderID + "@" + channelID
}

// Take consumes one token for key and reports whether the action may
// proceed.
func (l *Limiter) Take(ctx context.Context, key string) bool {
	return l.Allow(ctx, key) == nil
}

// Allow consumes one token for key. It returns a rate-limited error when
// the bucket is empty and nil otherwise, including on backend failures.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	allowed, err := l.backend.Take(ctx, l.name+":"+key, l.cfg)
	if err != nil {
		l.logger.WarnContext(ctx, "Rate limit backend failed, allowing action", "key", key, "error", err)
		return nil
	}
	if !allowed {
		l.logger.DebugContext(ctx, "Rate limited", "key", key)
		return errs.NewRateLimitedError(l.name + ":" + key)
	}
	return nil
}

// ShouldNotify reports whether a denied sender should be told about the
// limit. It returns true once per refill period (or cooldown, if longer);
// later denials inside that window are dropped silently.
func (l *Limiter) ShouldNotify(ctx context.Context, key string) bool {
	if l.notices == nil {
		return true
	}

	noticeKey := "ratelimit:notice:" + l.name + ":" + key
	_, found, err := l.notices.Get(ctx, noticeKey)
	if err != nil {
		l.logger.WarnContext(ctx, "Failed to read rate limit notice marker", "key", key, "error", err)
		return true
	}
	if found {
		return false
	}

	window := l.cfg.Period
	if l.cfg.Cooldown > window {
		window = l.cfg.Cooldown
	}
	if err := l.notices.Set(ctx, noticeKey, []byte{1}, window); err != nil {
		l.logger.WarnContext(ctx, "Failed to write rate limit notice marker", "key", key, "error", err)
	}
	return true
}
