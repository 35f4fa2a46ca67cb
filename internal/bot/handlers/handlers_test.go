package handlers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/google/go-cmp/cmp"

	"github.com/edgard/assistbot/internal/config"
	"github.com/edgard/assistbot/internal/dispatch"
)

type fakeDispatcher struct {
	mu  sync.Mutex
	got []dispatch.Message
}

func (f *fakeDispatcher) Handle(_ context.Context, msg dispatch.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msg)
}

var me = &models.User{ID: 999, IsBot: true, Username: "AssistBot", FirstName: "Assist"}

func newDeps() (HandlerDeps, *fakeDispatcher) {
	cfg := &config.Config{}
	cfg.Telegram.BotInfo = me
	d := &fakeDispatcher{}
	return HandlerDeps{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:     cfg,
		Dispatcher: d,
	}, d
}

func groupMessage(text string) *models.Message {
	return &models.Message{
		ID:   42,
		From: &models.User{ID: 1, FirstName: "Ana", LastName: "Lima", Username: "ana", LanguageCode: "pt-BR"},
		Chat: models.Chat{ID: -100, Type: models.ChatTypeSupergroup, Title: "family"},
		Text: text,
	}
}

func TestToMessage(t *testing.T) {
	t.Parallel()

	got, ok := toMessage(groupMessage("remind me to call mom"), me)
	if !ok {
		t.Fatal("toMessage() ok = false")
	}
	want := dispatch.Message{
		ID:           "42",
		SenderID:     "1",
		SenderTag:    "@ana",
		SenderName:   "Ana Lima",
		ChannelID:    "-100",
		ChannelTitle: "family",
		Text:         "remind me to call mom",
		Locale:       "pt-BR",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("toMessage() mismatch (-want +got):\n%s", diff)
	}

	noHandle := groupMessage("hi")
	noHandle.From.Username = ""
	if got, _ := toMessage(noHandle, me); got.SenderTag != "Ana Lima" {
		t.Errorf("SenderTag without username = %q, want display name", got.SenderTag)
	}

	for name, msg := range map[string]*models.Message{
		"nil":       nil,
		"no sender": {Chat: models.Chat{ID: 1}, Text: "hi"},
		"no text":   groupMessage("   "),
	} {
		if _, ok := toMessage(msg, me); ok {
			t.Errorf("toMessage(%s) ok = true, want false", name)
		}
	}
}

func TestIsMentioned(t *testing.T) {
	t.Parallel()

	mention := groupMessage("hey @assistbot remind me")
	mention.Entities = []models.MessageEntity{{Type: models.MessageEntityTypeMention, Offset: 4, Length: 10}}

	other := groupMessage("hey @someone")
	other.Entities = []models.MessageEntity{{Type: models.MessageEntityTypeMention, Offset: 4, Length: 8}}

	emoji := groupMessage("🎉 @AssistBot")
	emoji.Entities = []models.MessageEntity{{Type: models.MessageEntityTypeMention, Offset: 3, Length: 10}}

	reply := groupMessage("yes")
	reply.ReplyToMessage = &models.Message{From: me}

	caption := groupMessage("")
	caption.Caption = "@assistbot look"
	caption.CaptionEntities = []models.MessageEntity{{Type: models.MessageEntityTypeMention, Offset: 0, Length: 10}}

	private := groupMessage("hello")
	private.Chat.Type = models.ChatTypePrivate

	textMention := groupMessage("Assist do it")
	textMention.Entities = []models.MessageEntity{{Type: models.MessageEntityTypeTextMention, Offset: 0, Length: 6, User: me}}

	tests := []struct {
		name string
		msg  *models.Message
		want bool
	}{
		{"mention", mention, true},
		{"other mention", other, false},
		{"mention after emoji", emoji, true},
		{"reply to bot", reply, true},
		{"caption mention", caption, true},
		{"private chat", private, true},
		{"text mention", textMention, true},
		{"plain group message", groupMessage("hello"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isMentioned(tt.msg, me); got != tt.want {
				t.Errorf("isMentioned() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessageHandlerForwards(t *testing.T) {
	t.Parallel()

	deps, d := newDeps()
	h := NewMessageHandler(deps)

	h(context.Background(), nil, &models.Update{ID: 1, Message: groupMessage("hello")})
	h(context.Background(), nil, &models.Update{ID: 2})

	if len(d.got) != 1 || d.got[0].Text != "hello" || d.got[0].Mentioned {
		t.Errorf("dispatched = %+v, want one unmentioned hello", d.got)
	}
}

func TestCommandHandlerForwardsAlias(t *testing.T) {
	t.Parallel()

	deps, d := newDeps()
	handlers := RegisterAllCommands(deps)

	for _, cmd := range []string{"/start", "/help", "/cancel", "/reminders", "/categories", "/guilds"} {
		if _, ok := handlers[cmd]; !ok {
			t.Errorf("RegisterAllCommands() missing %s", cmd)
		}
	}

	handlers["/reminders"].Handler(context.Background(), nil, &models.Update{Message: groupMessage("/reminders@AssistBot")})
	if len(d.got) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(d.got))
	}
	if got := d.got[0]; got.Text != "list my reminders" || !got.Mentioned || got.ChannelID != "-100" {
		t.Errorf("dispatched = %+v, want addressed alias text", got)
	}
}

func TestIgnoreBots(t *testing.T) {
	t.Parallel()

	deps, d := newDeps()
	h := IgnoreBots(deps)(NewMessageHandler(deps))

	fromBot := groupMessage("beep")
	fromBot.From.IsBot = true
	h(context.Background(), nil, &models.Update{Message: fromBot})
	h(context.Background(), nil, &models.Update{Message: groupMessage("human")})

	if len(d.got) != 1 || d.got[0].Text != "human" {
		t.Errorf("dispatched = %+v, want only the human message", d.got)
	}
}
