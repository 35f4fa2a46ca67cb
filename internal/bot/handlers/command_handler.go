package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewCommandHandler returns a handler that forwards a slash command to the
// dispatcher as text, addressed to the bot.
func NewCommandHandler(deps HandlerDeps, text string) bot.HandlerFunc {
	return commandHandler{deps: deps, text: text}.Handle
}

type commandHandler struct {
	deps HandlerDeps
	text string
}

func (h commandHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "command")

	msg, ok := toMessage(update.Message, h.deps.botInfo())
	if !ok {
		log.WarnContext(ctx, "Command handler received update without message or sender", "update_id", update.ID)
		return
	}
	msg.Text = h.text
	msg.Mentioned = true

	log.DebugContext(ctx, "Forwarding command", "chat_id", msg.ChannelID, "text", h.text)
	h.deps.Dispatcher.Handle(ctx, msg)
}
