package conversation

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/errs"
	"github.com/edgard/assistbot/internal/kv"
	"github.com/edgard/assistbot/internal/parser"
	"github.com/edgard/assistbot/internal/recurrence"
	"github.com/edgard/assistbot/internal/target"
)

const (
	// DefaultStateTTL is how long a dialogue survives without activity.
	DefaultStateTTL = 5 * time.Minute
	// DefaultCallTimeout bounds each collaborator call.
	DefaultCallTimeout = 5 * time.Second

	// maxSteps bounds the effect loop of a single turn.
	maxSteps = 16
)

// RequestParser extracts requests and times from free text.
type RequestParser interface {
	ParseRequest(text string, now time.Time) parser.Request
	ParseTime(text string, now time.Time) (time.Time, bool)
}

// ReminderCreator persists reminders. CreateReminder sets the ID of r and
// fails with a NotFound error when the referenced category is gone.
type ReminderCreator interface {
	CreateReminder(ctx context.Context, r *database.Reminder) error
}

// CategoryStore is the category collaborator. GetCategoryByEmoji returns
// nil, nil when no category uses the emoji.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]database.Category, error)
	GetCategoryByEmoji(ctx context.Context, emoji string) (*database.Category, error)
	CreateCategory(ctx context.Context, c *database.Category) error
	Subscribe(ctx context.Context, userID string, categoryID int64) error
}

// TargetResolver resolves who a request is for.
type TargetResolver interface {
	Resolve(ctx context.Context, t *parser.Target, scope target.Scope) (target.Resolution, error)
}

// Config holds dialogue settings.
type Config struct {
	StateTTL    time.Duration `mapstructure:"state_ttl" validate:"gte=0"`
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gte=0"`
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Store      kv.Store
	Parser     RequestParser
	Reminders  ReminderCreator
	Categories CategoryStore
	Targets    TargetResolver
	Messages   Messages
	Logger     *slog.Logger
}

// Turn is one inbound message from a sender.
type Turn struct {
	SenderID  string
	SenderTag string
	ChannelID string
	Text      string
}

// Manager runs dialogues. Callers serialize turns per sender.
type Manager struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a dialogue manager.
func NewManager(cfg Config, deps Deps, opts ...Option) *Manager {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Targets == nil {
		deps.Targets = target.NewResolver(nil, nil, logger)
	}

	m := &Manager{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "conversation"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var createRe = regexp.MustCompile(`(?i)^(?:create|new|add|criar)\s+(?:category\s+|categoria\s+)?(\S+)\s+(.+)$`)

// parseCreate recognizes "create <emoji> <name>".
func parseCreate(text string) *CreateDirective {
	match := createRe.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil || !parser.IsEmoji(match[1]) {
		return nil
	}
	return &CreateDirective{Emoji: match[1], Name: strings.TrimSpace(match[2])}
}

// Active returns the live dialogue of sender. Expired dialogues are
// deleted and reported as absent.
func (m *Manager) Active(ctx context.Context, senderID string) (State, bool) {
	var st State
	found, err := kv.GetJSON(ctx, m.deps.Store, stateKey(senderID), &st)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to load conversation state", "sender_id", senderID, "error", err)
		return State{}, false
	}
	if !found || !st.Step.Active() {
		return State{}, false
	}
	if st.Expired(m.now(), m.cfg.StateTTL) {
		m.logger.DebugContext(ctx, "Discarding expired conversation", "sender_id", senderID, "step", st.Step)
		m.Drop(ctx, senderID)
		return State{}, false
	}
	return st, true
}

// Claims reports whether text answers the question st is waiting on, so it
// must not be classified as a new command.
func (m *Manager) Claims(st State, text string) bool {
	answer := normalizeAnswer(text)
	switch st.Step {
	case StepAwaitingCategory:
		if skipWords[answer] || parseCreate(text) != nil {
			return true
		}
		if _, err := strconv.Atoi(answer); err == nil {
			return true
		}
		for _, c := range st.Payload.Choices {
			if strings.EqualFold(c.Name, answer) {
				return true
			}
		}
		return parser.IsEmoji(strings.TrimSpace(text))
	case StepAwaitingTargetConfirmation:
		return yesWords[answer] || noWords[answer]
	case StepAwaitingTime:
		_, err := m.parseTimeAnswer(text, st, m.now())
		return err == nil
	default:
		return false
	}
}

// Start begins a creation dialogue for req, replacing any existing one.
// kind tags the reminder, e.g. "meeting".
func (m *Manager) Start(ctx context.Context, turn Turn, req parser.Request, kind string) []string {
	now := m.now()
	in := Input{
		Kind:        InputStart,
		Now:         now,
		Text:        turn.Text,
		Request:     req,
		RequestKind: kind,
		ChannelID:   turn.ChannelID,
		SenderTag:   turn.SenderTag,
	}
	if req.Time != nil && strings.TrimSpace(req.Task) != "" {
		in.Categories, in.CategoriesUnavailable = m.listChoices(ctx)
		in.EmojiMatch = m.matchEmoji(ctx, req.Emoji)
	}

	m.logger.InfoContext(ctx, "Starting conversation", "sender_id", turn.SenderID, "has_time", req.Time != nil, "kind", kind)
	return m.run(ctx, turn, State{}, in)
}

// Continue feeds a follow-up message into the live dialogue st.
func (m *Manager) Continue(ctx context.Context, turn Turn, st State) []string {
	now := m.now()
	in := Input{Kind: InputReply, Now: now, Text: turn.Text}
	text := strings.TrimSpace(turn.Text)

	switch st.Step {
	case StepAwaitingTime:
		ans, err := m.parseTimeAnswer(text, st, now)
		if err != nil {
			m.logger.DebugContext(ctx, "Time answer not understood", "sender_id", turn.SenderID, "error", err)
			break
		}
		in.Time, in.Recurrence, in.Schedule = &ans.at, ans.recurrence, ans.schedule
		in.Categories, in.CategoriesUnavailable = m.listChoices(ctx)
		in.EmojiMatch = m.matchEmoji(ctx, st.Payload.Emoji)

	case StepAwaitingCategory:
		in.Categories, in.CategoriesUnavailable = m.listChoices(ctx)
		if in.Create = parseCreate(text); in.Create == nil && parser.IsEmoji(text) {
			in.EmojiMatch = m.matchEmoji(ctx, text)
		}
	}

	m.logger.DebugContext(ctx, "Continuing conversation", "sender_id", turn.SenderID, "step", st.Step)
	return m.run(ctx, turn, st, in)
}

type timeAnswer struct {
	at         time.Time
	recurrence *recurrence.Descriptor
	schedule   string
}

// parseTimeAnswer reads a reply to the "when" question: a recurrence phrase
// first, then a one-off time.
func (m *Manager) parseTimeAnswer(text string, st State, now time.Time) (timeAnswer, error) {
	text = strings.TrimSpace(text)
	if phrase, ok := recurrence.Find(text); ok {
		schedule := recurrence.ToSchedule(phrase.Descriptor, st.CreatedAt)
		next, err := recurrence.NextRun(schedule, now)
		if err != nil {
			return timeAnswer{}, errs.NewParseError("no next run for "+schedule, err)
		}
		d := phrase.Descriptor
		return timeAnswer{at: next, recurrence: &d, schedule: schedule}, nil
	}
	if t, ok := m.deps.Parser.ParseTime(text, now); ok {
		return timeAnswer{at: t}, nil
	}
	return timeAnswer{}, errs.NewParseError("no time in "+strconv.Quote(text), nil)
}

// Cancel abandons the dialogue of the sender with an acknowledgement.
func (m *Manager) Cancel(ctx context.Context, turn Turn, st State) []string {
	return m.run(ctx, turn, st, Input{Kind: InputCancel, Now: m.now()})
}

// Drop discards the dialogue of sender without replying.
func (m *Manager) Drop(ctx context.Context, senderID string) {
	if err := m.deps.Store.Delete(ctx, stateKey(senderID)); err != nil {
		m.logger.WarnContext(ctx, "Failed to delete conversation state", "sender_id", senderID, "error", err)
	}
}

// run applies in and every follow-up input produced by effects, then
// persists the final state.
func (m *Manager) run(ctx context.Context, turn Turn, st State, in Input) []string {
	var replies []string
	queue := []Input{in}

	for steps := 0; len(queue) > 0; steps++ {
		if steps == maxSteps {
			m.logger.ErrorContext(ctx, "Conversation effect loop did not settle", "sender_id", turn.SenderID, "step", st.Step)
			st = idle()
			replies = append(replies, m.deps.Messages.Render(MsgSaveFailed, nil))
			break
		}

		next := queue[0]
		queue = queue[1:]

		var effects []Effect
		st, effects = Transition(st, next)
		for _, e := range effects {
			switch e := e.(type) {
			case Say:
				replies = append(replies, m.render(e))
			case CreateCategory:
				queue = append(queue, m.createCategory(ctx, turn, e))
			case ResolveTarget:
				queue = append(queue, m.resolveTarget(ctx, turn, e))
			case Commit:
				queue = append(queue, m.commit(ctx, turn, st, e))
			}
		}
	}

	m.save(ctx, turn.SenderID, st)
	return replies
}

func (m *Manager) save(ctx context.Context, senderID string, st State) {
	if !st.Step.Active() {
		m.Drop(ctx, senderID)
		return
	}
	if err := kv.SetJSON(ctx, m.deps.Store, stateKey(senderID), st, m.cfg.StateTTL); err != nil {
		m.logger.ErrorContext(ctx, "Failed to save conversation state", "sender_id", senderID, "step", st.Step, "error", err)
	}
}

func (m *Manager) render(s Say) string {
	args := s.Args
	if v, ok := args["choices"]; ok && v == "" {
		args["choices"] = m.deps.Messages.Render(MsgNoCategories, nil)
	}
	return m.deps.Messages.Render(s.ID, args)
}

func (m *Manager) listChoices(ctx context.Context) ([]CategoryChoice, bool) {
	if m.deps.Categories == nil {
		return nil, false
	}
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	categories, err := m.deps.Categories.ListCategories(callCtx)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to list categories", "error", err)
		return nil, true
	}
	choices := make([]CategoryChoice, 0, len(categories))
	for _, c := range categories {
		choices = append(choices, CategoryChoice{ID: c.ID, Name: c.Name, Emoji: c.Emoji})
	}
	return choices, false
}

func (m *Manager) matchEmoji(ctx context.Context, emoji string) *CategoryChoice {
	if emoji == "" || m.deps.Categories == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	c, err := m.deps.Categories.GetCategoryByEmoji(callCtx, parser.CanonicalEmoji(emoji))
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to look up category by emoji", "emoji", emoji, "error", err)
		return nil
	}
	if c == nil {
		return nil
	}
	return &CategoryChoice{ID: c.ID, Name: c.Name, Emoji: c.Emoji}
}

func (m *Manager) createCategory(ctx context.Context, turn Turn, e CreateCategory) Input {
	failed := Input{Kind: InputCategoryFailed, Now: m.now()}
	if m.deps.Categories == nil || strings.TrimSpace(e.Name) == "" {
		return failed
	}
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	emoji := parser.CanonicalEmoji(e.Emoji)
	existing, err := m.deps.Categories.GetCategoryByEmoji(callCtx, emoji)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to look up category before creating it", "emoji", emoji, "error", err)
		return failed
	}

	c := existing
	if c == nil {
		c = &database.Category{Name: strings.TrimSpace(e.Name), Emoji: emoji}
		if err := m.deps.Categories.CreateCategory(callCtx, c); err != nil {
			m.logger.ErrorContext(ctx, "Failed to create category", "emoji", emoji, "name", e.Name, "error", err)
			return failed
		}
		m.logger.InfoContext(ctx, "Category created", "category_id", c.ID, "name", c.Name, "sender_id", turn.SenderID)
	}

	if err := m.deps.Categories.Subscribe(callCtx, turn.SenderID, c.ID); err != nil {
		m.logger.WarnContext(ctx, "Failed to subscribe sender to category", "category_id", c.ID, "sender_id", turn.SenderID, "error", err)
	}
	return Input{Kind: InputCategoryCreated, Now: m.now(), Category: &CategoryChoice{ID: c.ID, Name: c.Name, Emoji: c.Emoji}}
}

func (m *Manager) resolveTarget(ctx context.Context, turn Turn, e ResolveTarget) Input {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	res, err := m.deps.Targets.Resolve(callCtx, e.Target, target.Scope{SenderID: turn.SenderID, ChannelID: turn.ChannelID})
	switch {
	case err == nil:
		return Input{Kind: InputTargetResolved, Now: m.now(), Resolution: &res}
	case errs.Is(err, errs.CodeTargetNotFound):
		name := ""
		if e.Target != nil {
			name = e.Target.Name
		}
		return Input{Kind: InputTargetNotFound, Now: m.now(), TargetName: name}
	default:
		m.logger.ErrorContext(ctx, "Target resolution failed", "sender_id", turn.SenderID, "error", err)
		return Input{Kind: InputTargetFailed, Now: m.now()}
	}
}

func (m *Manager) commit(ctx context.Context, turn Turn, st State, e Commit) Input {
	p := e.Payload
	if m.deps.Reminders == nil || p.DueTime == nil {
		m.logger.ErrorContext(ctx, "Cannot commit reminder", "sender_id", turn.SenderID, "has_due_time", p.DueTime != nil)
		return Input{Kind: InputCommitFailed, Now: m.now()}
	}

	r := &database.Reminder{
		SenderID:  turn.SenderID,
		SenderTag: st.SenderTag,
		ChannelID: st.ChannelID,
		Task:      p.Task,
		DueTime:   p.DueTime.UTC(),
		Priority:  p.Priority,
		Status:    database.ReminderStatusPending,
		Metadata: database.ReminderMetadata{
			Schedule: p.Schedule,
			Kind:     p.Kind,
		},
	}
	if r.SenderTag == "" {
		r.SenderTag = turn.SenderTag
	}
	if r.ChannelID == "" {
		r.ChannelID = turn.ChannelID
	}
	if p.Recurrence != nil && r.Metadata.Schedule == "" {
		r.Metadata.Schedule = recurrence.ToSchedule(*p.Recurrence, st.CreatedAt)
	}
	if p.CategoryID != nil {
		r.CategoryID.Int64, r.CategoryID.Valid = *p.CategoryID, true
	}
	if res := p.ResolvedTarget; res != nil && res.Type != target.TypeSelf {
		r.Metadata.TargetType = string(res.Type)
		r.Metadata.TargetID = res.ID
		r.Metadata.TargetName = res.Name
		r.Metadata.Broadcast = res.Type == target.TypeBroadcast
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	if err := m.deps.Reminders.CreateReminder(callCtx, r); err != nil {
		gone := errs.Is(err, errs.CodeNotFound) && p.CategoryID != nil
		m.logger.ErrorContext(ctx, "Failed to create reminder", "sender_id", turn.SenderID, "category_gone", gone, "error", err)
		return Input{Kind: InputCommitFailed, Now: m.now(), CategoryGone: gone}
	}

	m.logger.InfoContext(ctx, "Reminder created",
		"reminder_id", r.ID,
		"sender_id", turn.SenderID,
		"due_time", r.DueTime,
		"schedule", r.Metadata.Schedule,
		"has_category", p.CategoryID != nil)
	return Input{Kind: InputCommitted, Now: m.now()}
}

func stateKey(senderID string) string {
	return "conversation:" + senderID
}
