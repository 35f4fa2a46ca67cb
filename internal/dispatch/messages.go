package dispatch

import "strings"

// MessageID names a reply template of the dispatcher.
type MessageID string

const (
	MsgListening          MessageID = "listening"
	MsgClarify            MessageID = "clarify"
	MsgRateLimited        MessageID = "rate_limited"
	MsgCostlyLimited      MessageID = "costly_limited"
	MsgNothingToCancel    MessageID = "nothing_to_cancel"
	MsgFailure            MessageID = "failure"
	MsgHelp               MessageID = "help"
	MsgReminderList       MessageID = "reminder_list"
	MsgNoReminders        MessageID = "no_reminders"
	MsgCancelWhich        MessageID = "cancel_which"
	MsgReminderNotFound   MessageID = "reminder_not_found"
	MsgReminderCancelled  MessageID = "reminder_cancelled"
	MsgCategoryList       MessageID = "category_list"
	MsgNoCategoriesYet    MessageID = "no_categories_yet"
	MsgCategoryNeedsEmoji MessageID = "category_needs_emoji"
	MsgCategoryExists     MessageID = "category_exists"
	MsgCategoryCreated    MessageID = "category_created_subscribed"
	MsgCategoryNotFound   MessageID = "category_not_found"
	MsgSubscribed         MessageID = "subscribed"
	MsgGameStarted        MessageID = "game_started"
	MsgGameRunning        MessageID = "game_running"
	MsgGuildJoined        MessageID = "guild_joined"
	MsgGuildAlreadyMember MessageID = "guild_already_member"
	MsgGuildLeft          MessageID = "guild_left"
	MsgGuildLeftAll       MessageID = "guild_left_all"
	MsgGuildNotMember     MessageID = "guild_not_member"
	MsgGuildList          MessageID = "guild_list"
	MsgNoGuilds           MessageID = "no_guilds"
)

// DefaultMessages are the English reply templates.
var DefaultMessages = map[MessageID]string{
	MsgListening:          "Yes? What can I do for you?",
	MsgClarify:            "Sorry, I didn't get that. Say \"help\" to see what I can do.",
	MsgRateLimited:        "You're going a bit fast. Give me a few seconds.",
	MsgCostlyLimited:      "That needs a short break between runs. Try again in a few minutes.",
	MsgNothingToCancel:    "There's nothing to cancel.",
	MsgFailure:            "Something went wrong on my side. Want to try again?",
	MsgHelp:               "I can set reminders, manage categories, start games and keep track of guilds. Try \"remind me to stretch in 1 hour\".",
	MsgReminderList:       "Your reminders:\n{reminders}",
	MsgNoReminders:        "You have no pending reminders.",
	MsgCancelWhich:        "Which one? Say \"cancel reminder <number>\". \"list my reminders\" shows the numbers.",
	MsgReminderNotFound:   "I couldn't find a pending reminder #{id} of yours.",
	MsgReminderCancelled:  "Cancelled reminder #{id}.",
	MsgCategoryList:       "Categories:\n{categories}",
	MsgNoCategoriesYet:    "There are no categories yet. Create one with \"create category <emoji> <name>\".",
	MsgCategoryNeedsEmoji: "A category needs an emoji, like \"create category 🏋️ gym\".",
	MsgCategoryExists:     "{category} already exists.",
	MsgCategoryCreated:    "Created {category} and subscribed you to it.",
	MsgCategoryNotFound:   "I couldn't find a category called {category}.",
	MsgSubscribed:         "Subscribed you to {category}.",
	MsgGameStarted:        "Starting a game of {game}! 🎲",
	MsgGameRunning:        "A game is already running here.",
	MsgGuildJoined:        "Welcome to {guild}! It has {count} member(s) now.",
	MsgGuildAlreadyMember: "You're already in {guild}.",
	MsgGuildLeft:          "You left {guild}.",
	MsgGuildLeftAll:       "You left all your guilds.",
	MsgGuildNotMember:     "You're not in {guild}.",
	MsgGuildList:          "Guilds:\n{guilds}",
	MsgNoGuilds:           "There are no guilds yet. Start one with \"join guild <name>\".",
}

// Messages resolves reply templates, falling back to DefaultMessages.
type Messages map[MessageID]string

// Render fills the template id with args.
func (m Messages) Render(id MessageID, args map[string]string) string {
	tmpl, ok := m[id]
	if !ok || tmpl == "" {
		tmpl = DefaultMessages[id]
	}
	if len(args) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(args)*2)
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
