package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/dispatch"
)

// MessageHandler consumes transport-independent messages.
type MessageHandler interface {
	Handle(ctx context.Context, msg dispatch.Message)
}

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger     *slog.Logger
	Config     *config.Config
	Dispatcher MessageHandler
}

// DispatchFunc adapts a function to MessageHandler.
type DispatchFunc func(ctx context.Context, msg dispatch.Message)

// Handle calls f(ctx, msg).
func (f DispatchFunc) Handle(ctx context.Context, msg dispatch.Message) {
	f(ctx, msg)
}
