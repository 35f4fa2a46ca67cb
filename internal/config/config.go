// Package config loads the assistbot configuration from a YAML file, BOT_*
// environment variables and defaults, and validates it.
package config

import (
	"strings"

	"github.com/edgard/assistbot/internal/conversation"
	"github.com/edgard/assistbot/internal/dispatch"
	"github.com/edgard/assistbot/internal/wake"
)

// ConversationMessages returns the dialogue template overrides.
func (c *Config) ConversationMessages() conversation.Messages {
	out := make(conversation.Messages, len(c.Messages.Conversation))
	for id, text := range c.Messages.Conversation {
		out[conversation.MessageID(id)] = text
	}
	return out
}

// ReplyMessages returns the dispatcher template overrides.
func (c *Config) ReplyMessages() dispatch.Messages {
	out := make(dispatch.Messages, len(c.Messages.Replies))
	for id, text := range c.Messages.Replies {
		out[dispatch.MessageID(id)] = text
	}
	return out
}

// Wake returns the wake gate settings. The username reported by Telegram
// wins over the configured one.
func (c *Config) Wake() wake.Config {
	username := c.Bot.Username
	if c.Telegram.BotInfo != nil && c.Telegram.BotInfo.Username != "" {
		username = c.Telegram.BotInfo.Username
	}
	return wake.Config{
		Name:     c.Bot.Name,
		Username: username,
		Phrases:  c.Bot.WakePhrases,
		Window:   c.Bot.AttentiveWindow,
	}
}

// Welcome renders the /start greeting.
func (c *Config) Welcome() string {
	return strings.ReplaceAll(c.Messages.Welcome, "{name}", c.Bot.Name)
}
