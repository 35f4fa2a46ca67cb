package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewMessageHandler returns the default handler, which forwards every
// message with text to the dispatcher. The dispatcher decides whether the
// message is meant for the bot.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return messageHandler{deps}.Handle
}

type messageHandler struct {
	deps HandlerDeps
}

func (h messageHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "message")

	msg, ok := toMessage(update.Message, h.deps.botInfo())
	if !ok {
		log.DebugContext(ctx, "Ignoring update without message, sender or text", "update_id", update.ID)
		return
	}
	h.deps.Dispatcher.Handle(ctx, msg)
}

func (deps HandlerDeps) botInfo() *models.User {
	if deps.Config == nil {
		return nil
	}
	return deps.Config.Telegram.BotInfo
}
