package handlers

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/assistbot/internal/dispatch"
)

// toMessage converts a Telegram message. ok is false for messages without
// a sender or any text.
func toMessage(msg *models.Message, me *models.User) (dispatch.Message, bool) {
	if msg == nil || msg.From == nil {
		return dispatch.Message{}, false
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.TrimSpace(text) == "" {
		return dispatch.Message{}, false
	}

	out := dispatch.Message{
		ID:           strconv.Itoa(msg.ID),
		SenderID:     strconv.FormatInt(msg.From.ID, 10),
		SenderName:   displayName(msg.From),
		ChannelID:    strconv.FormatInt(msg.Chat.ID, 10),
		ChannelTitle: msg.Chat.Title,
		Text:         text,
		Mentioned:    isMentioned(msg, me),
		Locale:       msg.From.LanguageCode,
	}
	if msg.From.Username != "" {
		out.SenderTag = "@" + msg.From.Username
	} else {
		out.SenderTag = out.SenderName
	}
	return out, true
}

func displayName(u *models.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// isMentioned reports whether msg explicitly addresses the bot: a private
// chat, a reply to one of its messages or an @mention of its username.
func isMentioned(msg *models.Message, me *models.User) bool {
	if msg.Chat.Type == models.ChatTypePrivate {
		return true
	}
	if me == nil {
		return false
	}
	if reply := msg.ReplyToMessage; reply != nil && reply.From != nil && reply.From.ID == me.ID {
		return true
	}
	if me.Username == "" {
		return false
	}

	text, entities := msg.Text, msg.Entities
	if text == "" {
		text, entities = msg.Caption, msg.CaptionEntities
	}
	mention := "@" + strings.ToLower(me.Username)
	for _, e := range entities {
		switch e.Type {
		case models.MessageEntityTypeMention:
			if strings.ToLower(entityText(text, e.Offset, e.Length)) == mention {
				return true
			}
		case models.MessageEntityTypeTextMention:
			if e.User != nil && e.User.ID == me.ID {
				return true
			}
		}
	}
	return false
}

// entityText extracts an entity; Telegram offsets count UTF-16 code units.
func entityText(text string, offset, length int) string {
	units := utf16.Encode([]rune(text))
	if offset < 0 || length <= 0 || offset+length > len(units) {
		return ""
	}
	return string(utf16.Decode(units[offset : offset+length]))
}
