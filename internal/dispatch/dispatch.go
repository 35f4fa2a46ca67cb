// Package dispatch is the entry point of the message pipeline. Each inbound
// message passes the wake gate and the command rate limit, then either
// continues the open dialogue of its sender or is classified and routed to
// the feature that serves its intent.
package dispatch

import (
	"context"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/assistbot/internal/conversation"
	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/errs"
	"github.com/edgard/assistbot/internal/intent"
	"github.com/edgard/assistbot/internal/ratelimit"
	"github.com/edgard/assistbot/internal/wake"
)

const (
	// DefaultCallTimeout bounds each collaborator call made by a route.
	DefaultCallTimeout = 5 * time.Second
	// DefaultListLimit caps listed reminders.
	DefaultListLimit = 10
)

// Message is an inbound chat message, independent of the transport.
type Message struct {
	ID           string
	SenderID     string
	SenderTag    string
	SenderName   string
	ChannelID    string
	ChannelTitle string
	Text         string
	// Mentioned is set when the transport saw an explicit mention of the
	// bot or a reply to one of its messages.
	Mentioned bool
	Locale    string
}

// Reply is an outbound message. Options are suggested quick answers the
// transport may render as buttons.
type Reply struct {
	Text    string
	Options []string
	ReplyTo string
}

// Replier delivers replies to a channel.
type Replier interface {
	Reply(ctx context.Context, channelID string, r Reply) error
}

// ReminderBook lists and cancels stored reminders.
type ReminderBook interface {
	ListReminders(ctx context.Context, userID string, limit int) ([]database.Reminder, error)
	CancelReminder(ctx context.Context, userID string, id int64) error
}

// CategoryBook manages categories and subscriptions.
type CategoryBook interface {
	ListCategories(ctx context.Context) ([]database.Category, error)
	GetCategoryByEmoji(ctx context.Context, emoji string) (*database.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*database.Category, error)
	CreateCategory(ctx context.Context, c *database.Category) error
	Subscribe(ctx context.Context, userID string, categoryID int64) error
}

// GameEngine starts games. Starting a game in a channel that already runs
// one fails with a Validation error.
type GameEngine interface {
	CreateGame(ctx context.Context, g *database.Game) error
}

// GuildStore manages guild membership.
type GuildStore interface {
	JoinGuild(ctx context.Context, userID, name string) (*database.Guild, bool, error)
	LeaveGuild(ctx context.Context, userID, name string) (int64, error)
	ListGuilds(ctx context.Context) ([]database.Guild, error)
}

// Observer records who was seen where, feeding the member directory.
type Observer interface {
	UpsertMember(ctx context.Context, m *database.Member) error
	UpsertChannel(ctx context.Context, c *database.Channel) error
}

// Config holds dispatcher settings.
type Config struct {
	Locale      string        `mapstructure:"locale"`
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gte=0"`
	ListLimit   int           `mapstructure:"list_limit" validate:"gte=0,lte=100"`
}

// Deps are the components and collaborators of a Dispatcher. Gate,
// Classifier, Conversations, Parser and Replier are required; a nil
// feature collaborator disables the intents it serves.
type Deps struct {
	Gate          *wake.Gate
	Classifier    *intent.Classifier
	Conversations *conversation.Manager
	Parser        conversation.RequestParser
	Commands      *ratelimit.Limiter
	Costly        *ratelimit.Limiter

	Reminders  ReminderBook
	Categories CategoryBook
	Games      GameEngine
	Guilds     GuildStore
	Directory  Observer

	Replier  Replier
	Messages Messages
	Logger   *slog.Logger
}

// Dispatcher routes messages. Turns of one sender are handled in arrival
// order; different senders proceed in parallel.
type Dispatcher struct {
	cfg    Config
	deps   Deps
	routes map[string]route
	locks  *keyedMutex
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source used to parse requests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(cfg Config, deps Deps, opts ...Option) (*Dispatcher, error) {
	switch {
	case deps.Gate == nil:
		return nil, errs.NewConfigError("dispatcher requires a wake gate", nil)
	case deps.Classifier == nil:
		return nil, errs.NewConfigError("dispatcher requires an intent classifier", nil)
	case deps.Conversations == nil:
		return nil, errs.NewConfigError("dispatcher requires a conversation manager", nil)
	case deps.Parser == nil:
		return nil, errs.NewConfigError("dispatcher requires a request parser", nil)
	case deps.Replier == nil:
		return nil, errs.NewConfigError("dispatcher requires a replier", nil)
	}

	if cfg.Locale == "" {
		cfg.Locale = intent.DefaultLocale
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Dispatcher{
		cfg:    cfg,
		deps:   deps,
		locks:  newKeyedMutex(),
		logger: logger.With("component", "dispatcher"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.routes = d.registerRoutes()
	return d, nil
}

// turn is a message being handled.
type turn struct {
	msg       Message
	text      string
	addressed bool
	attentive bool
	locale    string
	log       *slog.Logger
}

func (t *turn) conversation() conversation.Turn {
	return conversation.Turn{
		SenderID:  t.msg.SenderID,
		SenderTag: t.msg.SenderTag,
		ChannelID: t.msg.ChannelID,
		Text:      t.text,
	}
}

// Handle processes one message. It never panics and reports every failure
// to the sender as a friendly reply or not at all.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) {
	log := d.logger.With("trace_id", uuid.NewString(), "sender_id", msg.SenderID, "channel_id", msg.ChannelID)
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "Recovered from panic while handling message", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	text := strings.TrimSpace(msg.Text)
	if msg.SenderID == "" || msg.ChannelID == "" || text == "" {
		log.DebugContext(ctx, "Ignoring message without sender, channel or text")
		return
	}

	unlock := d.locks.Lock(msg.SenderID)
	defer unlock()

	d.observe(ctx, log, msg)

	t := &turn{msg: msg, text: text, locale: d.locale(msg.Locale), log: log}
	t.addressed = d.deps.Gate.IsAddressed(text, msg.Mentioned)
	if t.addressed {
		t.text = d.deps.Gate.Strip(text)
	} else {
		t.attentive = d.deps.Gate.IsAttentive(ctx, msg.SenderID)
	}

	st, inDialogue := d.deps.Conversations.Active(ctx, msg.SenderID)
	if !t.addressed && !t.attentive && !inDialogue {
		log.DebugContext(ctx, "Message not addressed to the bot")
		return
	}

	// Attentive-only turns are charged once they turn out to be actionable,
	// in classifyAndRoute.
	if t.addressed || inDialogue {
		if ok, notice := d.admit(ctx, t, d.deps.Commands, MsgRateLimited); !ok {
			d.send(ctx, t, notice)
			return
		}
	}

	if t.addressed {
		d.deps.Gate.MarkAttentive(ctx, msg.SenderID)
	}
	if t.text == "" {
		d.send(ctx, t, []string{d.render(MsgListening, nil)})
		return
	}

	var replies []string
	if inDialogue {
		replies = d.continueDialogue(ctx, t, st)
	} else {
		replies = d.classifyAndRoute(ctx, t)
	}
	d.send(ctx, t, replies)
}

// continueDialogue handles a turn of a sender with an open dialogue. Direct
// answers go to the dialogue; otherwise a cancel or a new top-level command
// ends it, and anything else is treated as an answer.
func (d *Dispatcher) continueDialogue(ctx context.Context, t *turn, st conversation.State) []string {
	conv := d.deps.Conversations
	if conv.Claims(st, t.text) {
		return conv.Continue(ctx, t.conversation(), st)
	}

	res := d.classify(ctx, t)
	actionable := res.Actionable(d.deps.Classifier.MinConfidence())
	switch {
	case actionable && res.Intent == intent.ConversationCancel:
		t.log.InfoContext(ctx, "Dialogue cancelled by sender", "step", st.Step)
		return conv.Cancel(ctx, t.conversation(), st)
	case d.deps.Classifier.InterruptsDialogue(res):
		t.log.InfoContext(ctx, "New command replaces open dialogue", "step", st.Step, "intent", res.Intent)
		conv.Drop(ctx, t.msg.SenderID)
		return d.route(ctx, t, res)
	default:
		return conv.Continue(ctx, t.conversation(), st)
	}
}

func (d *Dispatcher) classifyAndRoute(ctx context.Context, t *turn) []string {
	res := d.classify(ctx, t)
	if err := res.Gate(d.deps.Classifier.MinConfidence()); err != nil && res.CannedResponse == "" {
		if !t.addressed {
			t.log.DebugContext(ctx, "Ignoring unclassified follow-up", "error", err)
			return nil
		}
		t.log.InfoContext(ctx, "Asking for clarification", "error", err)
		return []string{d.render(MsgClarify, nil)}
	}
	if !t.addressed {
		if ok, notice := d.admit(ctx, t, d.deps.Commands, MsgRateLimited); !ok {
			return notice
		}
	}
	if res.CannedResponse != "" {
		return []string{res.CannedResponse}
	}
	return d.route(ctx, t, res)
}

func (d *Dispatcher) classify(ctx context.Context, t *turn) intent.Result {
	res := d.deps.Classifier.Classify(ctx, t.text, t.locale, !t.addressed)
	t.log.DebugContext(ctx, "Classified message", "intent", res.Intent, "confidence", res.Confidence, "entities", res.Entities)
	return res
}

func (d *Dispatcher) route(ctx context.Context, t *turn, res intent.Result) []string {
	if res.CannedResponse != "" {
		return []string{res.CannedResponse}
	}
	r, ok := d.routes[res.Intent]
	if !ok {
		t.log.WarnContext(ctx, "No route for intent", "intent", res.Intent)
		return []string{d.render(MsgClarify, nil)}
	}
	t.log.InfoContext(ctx, "Routing intent", "intent", res.Intent, "confidence", res.Confidence)
	return r(ctx, t, res)
}

// admit takes a token from limiter. When denied it returns the notice to
// send, which is empty once the sender has already been told.
func (d *Dispatcher) admit(ctx context.Context, t *turn, limiter *ratelimit.Limiter, notice MessageID) (bool, []string) {
	if limiter == nil {
		return true, nil
	}
	key := ratelimit.Key(t.msg.SenderID, t.msg.ChannelID)
	err := limiter.Allow(ctx, key)
	if err == nil {
		return true, nil
	}
	t.log.InfoContext(ctx, "Rate limited", "error", err)
	if limiter.ShouldNotify(ctx, key) {
		return false, []string{d.render(notice, nil)}
	}
	return false, nil
}

// observe records the sender and channel in the member directory.
func (d *Dispatcher) observe(ctx context.Context, log *slog.Logger, msg Message) {
	if d.deps.Directory == nil {
		return
	}
	callCtx, cancel := d.call(ctx)
	defer cancel()

	if msg.SenderName != "" || msg.SenderTag != "" {
		member := &database.Member{
			UserID:      msg.SenderID,
			ChannelID:   msg.ChannelID,
			DisplayName: msg.SenderName,
			Handle:      strings.TrimPrefix(msg.SenderTag, "@"),
		}
		if err := d.deps.Directory.UpsertMember(callCtx, member); err != nil {
			log.WarnContext(ctx, "Failed to record member", "error", err)
		}
	}
	if msg.ChannelTitle != "" {
		if err := d.deps.Directory.UpsertChannel(callCtx, &database.Channel{ID: msg.ChannelID, Title: msg.ChannelTitle}); err != nil {
			log.WarnContext(ctx, "Failed to record channel", "error", err)
		}
	}
}

// send delivers replies in order. The last one carries the quick answers
// of the dialogue the sender is left in, if any.
func (d *Dispatcher) send(ctx context.Context, t *turn, replies []string) {
	if len(replies) == 0 {
		return
	}
	options := d.options(ctx, t.msg.SenderID)
	for i, text := range replies {
		r := Reply{Text: text, ReplyTo: t.msg.ID}
		if i == len(replies)-1 {
			r.Options = options
		}
		if err := d.deps.Replier.Reply(ctx, t.msg.ChannelID, r); err != nil {
			t.log.ErrorContext(ctx, "Failed to send reply", "error", err)
			return
		}
	}
}

func (d *Dispatcher) options(ctx context.Context, senderID string) []string {
	st, ok := d.deps.Conversations.Active(ctx, senderID)
	if !ok {
		return nil
	}
	switch st.Step {
	case conversation.StepAwaitingTargetConfirmation:
		return []string{"yes", "no"}
	case conversation.StepAwaitingCategory:
		opts := make([]string, 0, len(st.Payload.Choices)+1)
		for _, c := range st.Payload.Choices {
			if c.Emoji != "" {
				opts = append(opts, c.Emoji)
			}
		}
		return append(opts, "none")
	default:
		return nil
	}
}

func (d *Dispatcher) render(id MessageID, args map[string]string) string {
	return d.deps.Messages.Render(id, args)
}

func (d *Dispatcher) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.cfg.CallTimeout)
}

// locale reduces a transport language tag such as "pt-BR" to its base
// language.
func (d *Dispatcher) locale(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	if tag == "" {
		return d.cfg.Locale
	}
	return tag
}
