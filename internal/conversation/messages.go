package conversation

import (
	"strings"
)

// MessageID names a user-visible message template.
type MessageID string

const (
	MsgAskTask              MessageID = "ask_task"
	MsgAskTime              MessageID = "ask_time"
	MsgTimeNotUnderstood    MessageID = "time_not_understood"
	MsgAskCategory          MessageID = "ask_category"
	MsgUnknownEmoji         MessageID = "unknown_emoji"
	MsgInvalidChoice        MessageID = "invalid_choice"
	MsgCategoryGone         MessageID = "category_gone"
	MsgUnrecognizedCategory MessageID = "unrecognized_category"
	MsgCategoryCreated      MessageID = "category_created"
	MsgCategoryCreateFailed MessageID = "category_create_failed"
	MsgConfirmTarget        MessageID = "confirm_target"
	MsgConfirmRetry         MessageID = "confirm_retry"
	MsgTargetNotFound       MessageID = "target_not_found"
	MsgSaved                MessageID = "saved"
	MsgSavedInCategory      MessageID = "saved_in_category"
	MsgSavedRecurring       MessageID = "saved_recurring"
	MsgSaveFailed           MessageID = "save_failed"
	MsgCancelled            MessageID = "cancelled"
	MsgNoCategories         MessageID = "no_categories"
	MsgTargetLookupFailed   MessageID = "target_lookup_failed"
)

// DefaultMessages are the English templates. Placeholders in braces are
// replaced on rendering; unknown placeholders are left as they are.
var DefaultMessages = map[MessageID]string{
	MsgAskTask:              "What should I remind you about?",
	MsgAskTime:              "When should I remind you to {task}?",
	MsgTimeNotUnderstood:    "Sorry, I couldn't understand that time. When should I remind you to {task}? Try something like \"tomorrow at 3pm\" or \"in 2 hours\".",
	MsgAskCategory:          "Got it: {task}, {time}. Pick a category by number or emoji, reply \"create <emoji> <name>\" to add one, or \"none\" to skip.\n{choices}",
	MsgUnknownEmoji:         "I don't have a category for {emoji}. Pick one by number, reply \"create {emoji} <name>\" to add it, or \"none\" to skip.\n{choices}",
	MsgInvalidChoice:        "There is no category {choice}, so I saved it without one.",
	MsgCategoryGone:         "That category no longer exists, so I saved it without one.",
	MsgUnrecognizedCategory: "I didn't recognize that category, so I saved it without one.",
	MsgCategoryCreated:      "Created category {category}.",
	MsgCategoryCreateFailed: "I couldn't create that category. Pick another one, or reply \"none\" to skip.",
	MsgConfirmTarget:        "Should I remind {who} to {task}, {time}? (yes/no)",
	MsgConfirmRetry:         "Please answer yes or no: remind {who} to {task}?",
	MsgTargetNotFound:       "I couldn't find anyone called {name} here.",
	MsgSaved:                "Okay, I'll remind {who} to {task}, {time}.",
	MsgSavedInCategory:      "Okay, I'll remind {who} to {task}, {time} ({category}).",
	MsgSavedRecurring:       "Okay, I'll remind {who} to {task} {schedule}, starting {time}.",
	MsgSaveFailed:           "I couldn't save that reminder. Want to try again?",
	MsgCancelled:            "Okay, never mind.",
	MsgNoCategories:         "(no categories yet)",
	MsgTargetLookupFailed:   "I couldn't look up who that is right now. Want to try again?",
}

// Messages resolves templates, falling back to DefaultMessages.
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
