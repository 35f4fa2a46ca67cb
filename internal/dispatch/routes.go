package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/errs"
	"github.com/edgard/assistbot/internal/intent"
	"github.com/edgard/assistbot/internal/parser"
)

// Reminder kinds recorded in reminder metadata.
const (
	kindReminder = "reminder"
	kindMeeting  = "meeting"
)

const defaultGame = "trivia"

// route serves one intent and returns the replies to send.
type route func(ctx context.Context, t *turn, res intent.Result) []string

// registerRoutes maps intents to their handlers. Intents whose
// collaborator is not configured are left out.
func (d *Dispatcher) registerRoutes() map[string]route {
	routes := map[string]route{
		intent.ReminderCreate:     d.createReminder,
		intent.MeetingCreate:      d.createMeeting,
		intent.ConversationCancel: d.nothingToCancel,
		intent.Help:               d.help,
		intent.Greeting:           d.greet,
		intent.Thanks:             d.thanks,
	}
	if d.deps.Reminders != nil {
		routes[intent.ReminderList] = d.listReminders
		routes[intent.ReminderCancel] = d.cancelReminder
	}
	if d.deps.Categories != nil {
		routes[intent.CategoryList] = d.listCategories
		routes[intent.CategoryCreate] = d.createCategory
		routes[intent.CategorySubscribe] = d.subscribe
	}
	if d.deps.Games != nil {
		routes[intent.GameStart] = d.startGame
	}
	if d.deps.Guilds != nil {
		routes[intent.GuildJoin] = d.joinGuild
		routes[intent.GuildLeave] = d.leaveGuild
		routes[intent.GuildList] = d.listGuilds
	}
	return routes
}

func (d *Dispatcher) createReminder(ctx context.Context, t *turn, _ intent.Result) []string {
	req := d.deps.Parser.ParseRequest(t.text, d.now())
	return d.deps.Conversations.Start(ctx, t.conversation(), req, kindReminder)
}

// createMeeting runs the reminder dialogue for a meeting. Meetings are
// announced to the channel unless someone else is named.
func (d *Dispatcher) createMeeting(ctx context.Context, t *turn, res intent.Result) []string {
	req := d.deps.Parser.ParseRequest(t.text, d.now())
	if meeting := strings.TrimSpace(res.Entities["meeting_type"]); meeting != "" {
		req.Task = "join the " + meeting
	}
	if req.Target == nil {
		req.Target = &parser.Target{Broadcast: true}
	}
	return d.deps.Conversations.Start(ctx, t.conversation(), req, kindMeeting)
}

func (d *Dispatcher) nothingToCancel(context.Context, *turn, intent.Result) []string {
	return []string{d.render(MsgNothingToCancel, nil)}
}

func (d *Dispatcher) help(context.Context, *turn, intent.Result) []string {
	return []string{d.render(MsgHelp, nil)}
}

func (d *Dispatcher) greet(context.Context, *turn, intent.Result) []string {
	return []string{d.render(MsgListening, nil)}
}

func (d *Dispatcher) thanks(context.Context, *turn, intent.Result) []string {
	return nil
}

func (d *Dispatcher) listReminders(ctx context.Context, t *turn, _ intent.Result) []string {
	callCtx, cancel := d.call(ctx)
	defer cancel()

	reminders, err := d.deps.Reminders.ListReminders(callCtx, t.msg.SenderID, d.cfg.ListLimit)
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to list reminders", "error", err)
		return []string{d.render(MsgFailure, nil)}
	}
	if len(reminders) == 0 {
		return []string{d.render(MsgNoReminders, nil)}
	}

	lines := make([]string, 0, len(reminders))
	for _, r := range reminders {
		lines = append(lines, formatReminder(r, t.msg.SenderID))
	}
	return []string{d.render(MsgReminderList, map[string]string{"reminders": strings.Join(lines, "\n")})}
}

func formatReminder(r database.Reminder, viewer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s, %s", r.ID, r.Task, r.DueTime.Format("Mon Jan 2 at 15:04"))
	if r.Metadata.Schedule != "" {
		b.WriteString(" (repeats)")
	}
	switch {
	case r.SenderID != viewer && r.SenderTag != "":
		fmt.Fprintf(&b, ", from %s", r.SenderTag)
	case r.Metadata.Broadcast:
		b.WriteString(", for everyone")
	case r.Metadata.TargetName != "" && r.Metadata.TargetID != viewer:
		fmt.Fprintf(&b, ", for %s", r.Metadata.TargetName)
	}
	return b.String()
}

func (d *Dispatcher) cancelReminder(ctx context.Context, t *turn, res intent.Result) []string {
	raw := res.Entities["reminder_id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil {
		return []string{d.render(MsgCancelWhich, nil)}
	}

	callCtx, cancel := d.call(ctx)
	defer cancel()

	args := map[string]string{"id": raw}
	if err := d.deps.Reminders.CancelReminder(callCtx, t.msg.SenderID, id); err != nil {
		if errs.Is(err, errs.CodeNotFound) {
			return []string{d.render(MsgReminderNotFound, args)}
		}
		t.log.ErrorContext(ctx, "Failed to cancel reminder", "reminder_id", id, "error", err)
		return []string{d.render(MsgFailure, nil)}
	}
	t.log.InfoContext(ctx, "Reminder cancelled", "reminder_id", id)
	return []string{d.render(MsgReminderCancelled, args)}
}

func (d *Dispatcher) listCategories(ctx context.Context, t *turn, _ intent.Result) []string {
	callCtx, cancel := d.call(ctx)
	defer cancel()

	categories, err := d.deps.Categories.ListCategories(callCtx)
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to list categories", "error", err)
		return []string{d.render(MsgFailure, nil)}
	}
	if len(categories) == 0 {
		return []string{d.render(MsgNoCategoriesYet, nil)}
	}

	lines := make([]string, 0, len(categories))
	for _, c := range categories {
		lines = append(lines, categoryLabel(c))
	}
	return []string{d.render(MsgCategoryList, map[string]string{"categories": strings.Join(lines, "\n")})}
}

func categoryLabel(c database.Category) string {
	return strings.TrimSpace(c.Emoji + " " + c.Name)
}

// createCategory creates a category and subscribes its creator.
func (d *Dispatcher) createCategory(ctx context.Context, t *turn, res intent.Result) []string {
	emoji := strings.TrimSpace(res.Entities["emoji"])
	name := strings.TrimSpace(res.Entities["name"])
	if !parser.IsEmoji(emoji) || name == "" {
		return []string{d.render(MsgCategoryNeedsEmoji, nil)}
	}
	emoji = parser.CanonicalEmoji(emoji)

	callCtx, cancel := d.call(ctx)
	defer cancel()

	existing, err := d.deps.Categories.GetCategoryByEmoji(callCtx, emoji)
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to look up category", "emoji", emoji, "error", err)
		return []string{d.render(MsgFailure, nil)}
	}
	if existing != nil {
		return []string{d.render(MsgCategoryExists, map[string]string{"category": categoryLabel(*existing)})}
	}

	c := &database.Category{Name: name, Emoji: emoji}
	if err := d.deps.Categories.CreateCategory(callCtx, c); err != nil {
		t.log.ErrorContext(ctx, "Failed to create category", "emoji", emoji, "error", err)
		return []string{d.render(MsgFailure, nil)}
	}
	if err := d.deps.Categories.Subscribe(callCtx, t.msg.SenderID, c.ID); err != nil {
		t.log.WarnContext(ctx, "Failed to subscribe category creator", "category_id", c.ID, "error", err)
	}
	return []string{d.render(MsgCategoryCreated, map[string]string{"category": categoryLabel(*c)})}
}

func (d *Dispatcher) subscribe(ctx context.Context, t *turn, res intent.Result) []string {
	query := strings.TrimSpace(res.Entities["category"])
	args := map[string]string{"category": query}
	if query == "" {
		return []string{d.render(MsgCategoryNotFound, args)}
	}

	callCtx, cancel := d.call(ctx)
	defer cancel()

	var (
		c   *database.Category
		err error
	)
	if parser.IsEmoji(query) {
		c, err = d.deps.Categories.GetCategoryByEmoji(callCtx, parser.CanonicalEmoji(query))
	} else {
		c, err = d.deps.Categories.GetCategoryByName(callCtx, query)
	}
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to look up category", "query", query, "error", err)
		return []string{d.render(MsgFailure, nil)}
	}
	if c == nil {
		return []string{d.render(MsgCategoryNotFound, args)}
	}

	args["category"] = categoryLabel(*c)
	if err := d.deps.Categories.Subscribe(callCtx, t.msg.SenderID, c.ID); err != nil {
		if errs.Is(err, errs.CodeNotFound) {
			return []string{d.render(MsgCategoryNotFound, args)}
		}
		t.log.ErrorContext(ctx, "Failed to subscribe", "category_id", c.ID, "error", err)
		return []string{d.render(MsgFailure, nil)}
	}
	return []string{d.render(MsgSubscribed, args)}
}

// startGame is gated by the costly rate limit on top of the command one.
func (d *Dispatcher) startGame(ctx context.Context, t *turn, res intent.Result) []string {
	if ok, notice := d.admit(ctx, t, d.deps.Costly, MsgCostlyLimited); !ok {
		return notice
	}

	game := strings.TrimSpace(res.Entities["game_type"])
	if game == "" {
		game = defaultGame
	}
	game = strings.TrimSuffix(game, "s")

	callCtx, cancel := d.call(ctx)
	defer cancel()

	g := &database.Game{ChannelID: t.msg.ChannelID, StartedBy: t.msg.SenderID, GameType: game}
	if err := d.deps.Games.CreateGame(callCtx, g); err != nil {
		if errs.Is(err, errs.CodeValidation) {
			return []string{d.render(MsgGameRunning, nil)}
		}
		t.log.ErrorContext(ctx, "Failed to start game", "game_type", game, "error", err)
		return []string{d.render(MsgFailure, nil)}
	}
	t.log.InfoContext(ctx, "Game started", "game_id", g.ID, "game_type", game)
	return []string{d.render(MsgGameStarted, map[string]string{"game": game})}
}

func (d *Dispatcher) joinGuild(ctx context.Context, t *turn, res intent.Result) []string {
	name := strings.TrimSpace(res.Entities["guild"])
	if name == "" {
		return []string{d.render(MsgClarify, nil)}
	}

	callCtx, cancel := d.call(ctx)
	defer cancel()

	g, joined, err := d.deps.Guilds.JoinGuild(callCtx, t.msg.SenderID, name)
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to join guild", "guild", name, "error", err)
		return []string{d.render(MsgFailure, nil)}
	}
	args := map[string]string{"guild": g.Name, "count": strconv.Itoa(g.MemberCount)}
	if !joined {
		return []string{d.render(MsgGuildAlreadyMember, args)}
	}
	return []string{d.render(MsgGuildJoined, args)}
}

func (d *Dispatcher) leaveGuild(ctx context.Context, t *turn, res intent.Result) []string {
	name := strings.TrimSpace(res.Entities["guild"])

	callCtx, cancel := d.call(ctx)
	defer cancel()

	n, err := d.deps.Guilds.LeaveGuild(callCtx, t.msg.SenderID, name)
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to leave guild", "guild", name, "error", err)
		return []string{d.render(MsgFailure, nil)}
	}
	args := map[string]string{"guild": name}
	switch {
	case n == 0 && name == "":
		args["guild"] = "any guild"
		return []string{d.render(MsgGuildNotMember, args)}
	case n == 0:
		return []string{d.render(MsgGuildNotMember, args)}
	case name == "":
		return []string{d.render(MsgGuildLeftAll, nil)}
	default:
		return []string{d.render(MsgGuildLeft, args)}
	}
}

func (d *Dispatcher) listGuilds(ctx context.Context, t *turn, _ intent.Result) []string {
	callCtx, cancel := d.call(ctx)
	defer cancel()

	guilds, err := d.deps.Guilds.ListGuilds(callCtx)
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to list guilds", "error", err)
		return []string{d.render(MsgFailure, nil)}
	}
	if len(guilds) == 0 {
		return []string{d.render(MsgNoGuilds, nil)}
	}

	lines := make([]string, 0, len(guilds))
	for _, g := range guilds {
		lines = append(lines, fmt.Sprintf("%s (%d)", g.Name, g.MemberCount))
	}
	return []string{d.render(MsgGuildList, map[string]string{"guilds": strings.Join(lines, "\n")})}
}
