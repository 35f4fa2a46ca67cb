package config

import (
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/conversation"
	"github.com/edgard/assistbot/internal/dispatch"
	"github.com/edgard/assistbot/internal/intent"
	"github.com/edgard/assistbot/internal/ratelimit"
)

// LogConfig controls the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the transport settings. BotInfo is filled at runtime
// from getMe.
type TelegramConfig struct {
	Token              string        `mapstructure:"token" validate:"required"`
	PollTimeout        time.Duration `mapstructure:"poll_timeout" validate:"gte=0"`
	DropPendingUpdates bool          `mapstructure:"drop_pending_updates"`
	SendTimeout        time.Duration `mapstructure:"send_timeout" validate:"gte=0"`

	BotInfo *models.User `mapstructure:"-" validate:"-"`
}

// BotConfig describes how the assistant is addressed.
type BotConfig struct {
	Name            string        `mapstructure:"name" validate:"required"`
	Username        string        `mapstructure:"username"`
	WakePhrases     []string      `mapstructure:"wake_phrases"`
	AttentiveWindow time.Duration `mapstructure:"attentive_window" validate:"gte=0"`
	Locale          string        `mapstructure:"locale" validate:"required"`
}

// GeminiConfig enables the LLM intent fallback.
type GeminiConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	intent.GeminiConfig `mapstructure:",squash"`
}

// IntentConfig tunes the classifier.
type IntentConfig struct {
	intent.Config `mapstructure:",squash"`
	Gemini        GeminiConfig `mapstructure:"gemini"`
}

// RateLimitConfig holds the two bucket families.
type RateLimitConfig struct {
	Command ratelimit.Config `mapstructure:"command"`
	Costly  ratelimit.Config `mapstructure:"costly"`
}

// StoreConfig selects the TTL key-value store.
type StoreConfig struct {
	Type          string `mapstructure:"type" validate:"oneof=memory redis"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Type redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	// StaleGameAge finishes games that have been active for longer.
	StaleGameAge time.Duration `mapstructure:"stale_game_age" validate:"gte=0"`
	// CancelledRetention is how long cancelled reminders are kept.
	CancelledRetention time.Duration `mapstructure:"cancelled_retention" validate:"gte=0"`
}

// TaskConfig schedules one task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
	// StaleBucketAge drops in-memory rate limit buckets idle for longer.
	StaleBucketAge time.Duration `mapstructure:"stale_bucket_age" validate:"gte=0"`
}

// MessagesConfig overrides user-visible texts by message ID.
type MessagesConfig struct {
	Conversation map[string]string `mapstructure:"conversation"`
	Replies      map[string]string `mapstructure:"replies"`
	Welcome      string            `mapstructure:"welcome" validate:"required"`
}

// Config is the complete application configuration.
type Config struct {
	Log          LogConfig           `mapstructure:"log"`
	Telegram     TelegramConfig      `mapstructure:"telegram"`
	Bot          BotConfig           `mapstructure:"bot"`
	Conversation conversation.Config `mapstructure:"conversation"`
	Intent       IntentConfig        `mapstructure:"intent"`
	RateLimit    RateLimitConfig     `mapstructure:"ratelimit"`
	Store        StoreConfig         `mapstructure:"store"`
	Database     DatabaseConfig      `mapstructure:"database"`
	Scheduler    SchedulerConfig     `mapstructure:"scheduler"`
	Dispatch     dispatch.Config     `mapstructure:"dispatch"`
	Messages     MessagesConfig      `mapstructure:"messages"`
}
