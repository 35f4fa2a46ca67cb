package config

import (
	"time"

	"github.com/spf13/viper"
)

// Task names known to the scheduler.
const (
	TaskStateSweep     = "state_sweep"
	TaskSQLMaintenance = "sql_maintenance"
)

const defaultWelcome = "Hi! I'm {name}. Address me by name, like \"{name}, remind me to stretch in 1 hour\", or say \"{name}, help\"."

// setDefaults registers every key so that BOT_* variables can override
// keys absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.poll_timeout", 10*time.Second)
	v.SetDefault("telegram.drop_pending_updates", true)
	v.SetDefault("telegram.send_timeout", 10*time.Second)

	v.SetDefault("bot.name", "bot")
	v.SetDefault("bot.username", "")
	v.SetDefault("bot.wake_phrases", []string{})
	v.SetDefault("bot.attentive_window", 5*time.Minute)
	v.SetDefault("bot.locale", "en")

	v.SetDefault("conversation.state_ttl", 5*time.Minute)
	v.SetDefault("conversation.call_timeout", 5*time.Second)

	v.SetDefault("intent.min_confidence", 0.3)
	v.SetDefault("intent.cache_ttl", 30*time.Minute)
	v.SetDefault("intent.attentive_penalty", 0.8)
	v.SetDefault("intent.gemini.enabled", false)
	v.SetDefault("intent.gemini.api_key", "")
	v.SetDefault("intent.gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("intent.gemini.temperature", 0.0)
	v.SetDefault("intent.gemini.max_retries", 2)
	v.SetDefault("intent.gemini.retry_delay_seconds", 1)
	v.SetDefault("intent.gemini.timeout", 10*time.Second)

	v.SetDefault("ratelimit.command.capacity", 5)
	v.SetDefault("ratelimit.command.refill", 5)
	v.SetDefault("ratelimit.command.period", 10*time.Second)
	v.SetDefault("ratelimit.command.cooldown", time.Duration(0))
	v.SetDefault("ratelimit.costly.capacity", 2)
	v.SetDefault("ratelimit.costly.refill", 2)
	v.SetDefault("ratelimit.costly.period", 10*time.Minute)
	v.SetDefault("ratelimit.costly.cooldown", 2*time.Minute)

	v.SetDefault("store.type", "memory")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "assistbot:")

	v.SetDefault("database.path", "storage.db")
	v.SetDefault("database.stale_game_age", 6*time.Hour)
	v.SetDefault("database.cancelled_retention", 30*24*time.Hour)

	v.SetDefault("scheduler.tasks."+TaskStateSweep+".enabled", true)
	v.SetDefault("scheduler.tasks."+TaskStateSweep+".schedule", "0 */5 * * * *")
	v.SetDefault("scheduler.tasks."+TaskSQLMaintenance+".enabled", true)
	v.SetDefault("scheduler.tasks."+TaskSQLMaintenance+".schedule", "0 30 4 * * *")
	v.SetDefault("scheduler.stale_bucket_age", time.Hour)

	v.SetDefault("dispatch.locale", "en")
	v.SetDefault("dispatch.call_timeout", 5*time.Second)
	v.SetDefault("dispatch.list_limit", 10)

	v.SetDefault("messages.welcome", defaultWelcome)
}
