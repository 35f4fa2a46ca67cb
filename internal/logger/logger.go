// Package logger builds the slog logger and the Telegram update logging
// middleware.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const previewLength = 50

// ParseLevel maps a configured level name to a slog level. Unknown names
// map to info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger writing to w as JSON or text.
func New(w io.Writer, levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewLogger creates a stdout logger and installs it as the slog default.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	logger := New(os.Stdout, levelStr, jsonOutput)
	slog.SetDefault(logger)
	return logger
}

// Middleware logs every update with its chat, sender and handling time.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()
			entry := log.With("update_id", update.ID, "update_type", updateType(update))

			switch {
			case update.Message != nil:
				msg := update.Message
				entry = entry.With("message_id", msg.ID, "chat_id", msg.Chat.ID, "text_preview", preview(msg.Text))
				if msg.From != nil {
					entry = entry.With("user_id", msg.From.ID)
				}
			case update.CallbackQuery != nil:
				cq := update.CallbackQuery
				entry = entry.With("callback_query_id", cq.ID, "user_id", cq.From.ID, "data", cq.Data)
				if cq.Message.Message != nil {
					entry = entry.With("chat_id", cq.Message.Message.Chat.ID)
				}
			}

			entry.DebugContext(ctx, "Processing update")
			next(ctx, b, update)
			entry.InfoContext(ctx, "Finished processing update", "duration", time.Since(start))
		}
	}
}

func updateType(update *models.Update) string {
	switch {
	case update.Message != nil:
		return "message"
	case update.CallbackQuery != nil:
		return "callback_query"
	default:
		return "other"
	}
}

// preview shortens s to previewLength runes.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewLength-3]) + "..."
}
