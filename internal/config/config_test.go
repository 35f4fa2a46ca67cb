package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/edgard/assistbot/internal/conversation"
	"github.com/edgard/assistbot/internal/dispatch"
	"github.com/edgard/assistbot/internal/errs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: \"123:abc\"\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("Telegram.Token = %q", cfg.Telegram.Token)
	}
	if cfg.Log.Level != "info" || cfg.Store.Type != "memory" || cfg.Database.Path != "storage.db" {
		t.Errorf("unexpected defaults: log=%q store=%q db=%q", cfg.Log.Level, cfg.Store.Type, cfg.Database.Path)
	}
	if cfg.Conversation.StateTTL != 5*time.Minute || cfg.Bot.AttentiveWindow != 5*time.Minute {
		t.Errorf("state TTL = %v, attentive window = %v, want 5m", cfg.Conversation.StateTTL, cfg.Bot.AttentiveWindow)
	}
	if cfg.Intent.MinConfidence != 0.3 || cfg.Intent.CacheTTL != 30*time.Minute {
		t.Errorf("intent = %+v", cfg.Intent.Config)
	}
	if cfg.RateLimit.Command.Capacity != 5 || cfg.RateLimit.Costly.Cooldown != 2*time.Minute {
		t.Errorf("ratelimit = %+v", cfg.RateLimit)
	}
	want := map[string]TaskConfig{
		TaskStateSweep:     {Enabled: true, Schedule: "0 */5 * * * *"},
		TaskSQLMaintenance: {Enabled: true, Schedule: "0 30 4 * * *"},
	}
	if diff := cmp.Diff(want, cfg.Scheduler.Tasks); diff != "" {
		t.Errorf("scheduler tasks mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "from-file"
bot:
  name: "Ada"
  wake_phrases: ["hey {name}", "{name}"]
store:
  type: redis
  redis_addr: "localhost:6379"
messages:
  conversation:
    cancelled: "Fine, dropped it."
  replies:
    clarify: "Come again?"
`)
	t.Setenv("BOT_TELEGRAM_TOKEN", "from-env")
	t.Setenv("BOT_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Telegram.Token != "from-env" || cfg.Log.Level != "debug" {
		t.Errorf("env overrides not applied: token=%q level=%q", cfg.Telegram.Token, cfg.Log.Level)
	}
	if cfg.Store.Type != "redis" || cfg.Store.RedisAddr != "localhost:6379" {
		t.Errorf("store = %+v", cfg.Store)
	}

	wake := cfg.Wake()
	if wake.Name != "Ada" || len(wake.Phrases) != 2 {
		t.Errorf("Wake() = %+v", wake)
	}
	if got := cfg.ConversationMessages().Render(conversation.MsgCancelled, nil); got != "Fine, dropped it." {
		t.Errorf("conversation override = %q", got)
	}
	if got := cfg.ReplyMessages().Render(dispatch.MsgClarify, nil); got != "Come again?" {
		t.Errorf("reply override = %q", got)
	}
	if got := cfg.ReplyMessages().Render(dispatch.MsgListening, nil); got != dispatch.DefaultMessages[dispatch.MsgListening] {
		t.Errorf("default reply = %q", got)
	}
	if got := cfg.Welcome(); got == "" || got == defaultWelcome {
		t.Errorf("Welcome() = %q, want the name filled in", got)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("BOT_TELEGRAM_TOKEN", "env-only")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Telegram.Token != "env-only" {
		t.Errorf("Telegram.Token = %q", cfg.Telegram.Token)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing token", "log:\n  level: info\n"},
		{"bad log level", "telegram:\n  token: x\nlog:\n  level: loud\n"},
		{"unknown store", "telegram:\n  token: x\nstore:\n  type: etcd\n"},
		{"redis without address", "telegram:\n  token: x\nstore:\n  type: redis\n"},
		{"bad task schedule", "telegram:\n  token: x\nscheduler:\n  tasks:\n    state_sweep:\n      enabled: true\n      schedule: \"every now and then\"\n"},
		{"gemini without key", "telegram:\n  token: x\nintent:\n  gemini:\n    enabled: true\n"},
		{"zero command capacity", "telegram:\n  token: x\nratelimit:\n  command:\n    capacity: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if !errs.Is(err, errs.CodeConfig) {
				t.Errorf("LoadConfig() error = %v, want Config error", err)
			}
		})
	}
}
