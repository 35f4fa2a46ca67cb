package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler is a handler with the pattern it is registered under.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
	// Description is shown in the Telegram command menu.
	Description string
}

// commandAliases maps slash commands onto the phrases the intent table
// understands.
var commandAliases = []struct {
	command     string
	text        string
	description string
}{
	{"help", "help", "Show what I can do"},
	{"cancel", "cancel", "Drop the reminder we're working on"},
	{"reminders", "list my reminders", "List your pending reminders"},
	{"categories", "show categories", "List reminder categories"},
	{"guilds", "list guilds", "List guilds"},
}

// RegisterAllCommands returns the slash command handlers keyed by command.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["/start"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Description: "Say hello",
	}
	for _, alias := range commandAliases {
		handlers["/"+alias.command] = RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     alias.command,
			Handler:     NewCommandHandler(deps, alias.text),
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Description: alias.description,
		}
	}
	return handlers
}
