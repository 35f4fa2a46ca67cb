package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/dispatch"
)

// DefaultSendTimeout bounds a single SendMessage call.
const DefaultSendTimeout = 10 * time.Second

// Sender is the part of *bot.Bot used to deliver replies.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Replier delivers dispatcher replies to Telegram chats. Quick answers are
// shown as a one-time reply keyboard so a button press comes back as an
// ordinary text message.
type Replier struct {
	sender  Sender
	timeout time.Duration
	log     *slog.Logger
}

var _ dispatch.Replier = (*Replier)(nil)

// NewReplier creates a Replier. A non-positive timeout uses DefaultSendTimeout.
func NewReplier(sender Sender, timeout time.Duration, logger *slog.Logger) *Replier {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Replier{sender: sender, timeout: timeout, log: logger.With("component", "replier")}
}

// Reply sends r to the chat identified by channelID.
func (r *Replier) Reply(ctx context.Context, channelID string, reply dispatch.Reply) error {
	params, err := sendParams(channelID, reply)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	sent, err := r.sender.SendMessage(sendCtx, params)
	if err != nil {
		return fmt.Errorf("failed to send message to chat %s: %w", channelID, err)
	}
	if sent != nil {
		r.log.DebugContext(ctx, "Sent reply", "chat_id", channelID, "message_id", sent.ID, "options", len(reply.Options))
	}
	return nil
}

func sendParams(channelID string, reply dispatch.Reply) (*bot.SendMessageParams, error) {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", channelID, err)
	}

	params := &bot.SendMessageParams{ChatID: chatID, Text: reply.Text}
	if reply.ReplyTo != "" {
		if id, err := strconv.Atoi(reply.ReplyTo); err == nil {
			params.ReplyParameters = &models.ReplyParameters{MessageID: id, AllowSendingWithoutReply: true}
		}
	}
	if len(reply.Options) > 0 {
		params.ReplyMarkup = keyboard(reply.Options)
	}
	return params, nil
}

// keyboard lays options out in rows of at most four buttons.
func keyboard(options []string) *models.ReplyKeyboardMarkup {
	const perRow = 4
	rows := make([][]models.KeyboardButton, 0, (len(options)+perRow-1)/perRow)
	for i := 0; i < len(options); i += perRow {
		end := min(i+perRow, len(options))
		row := make([]models.KeyboardButton, 0, end-i)
		for _, o := range options[i:end] {
			row = append(row, models.KeyboardButton{Text: o})
		}
		rows = append(rows, row)
	}
	return &models.ReplyKeyboardMarkup{
		Keyboard:        rows,
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
		Selective:       true,
	}
}
