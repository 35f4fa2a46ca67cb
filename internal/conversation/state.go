// Package conversation drives the per-sender reminder dialogue:
// time, then category, then target confirmation, then commit.
//
// Transition is a pure function over State and Input. Manager owns
// persistence, gathers the facts each Input needs and executes the
// effects Transition asks for.
package conversation

import (
	"time"

	"github.com/edgard/assistbot/internal/parser"
	"github.com/edgard/assistbot/internal/recurrence"
	"github.com/edgard/assistbot/internal/target"
)

// Step is the position of a dialogue.
type Step string

const (
	StepIdle                       Step = "idle"
	StepAwaitingTime               Step = "awaiting_time"
	StepAwaitingCategory           Step = "awaiting_category"
	StepAwaitingTargetConfirmation Step = "awaiting_target_confirmation"
)

// Active reports whether s is waiting for an answer.
func (s Step) Active() bool {
	return s != "" && s != StepIdle
}

// CategoryChoice is a category as shown to the sender.
type CategoryChoice struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

// Label renders the choice as "<emoji> <name>".
func (c CategoryChoice) Label() string {
	if c.Emoji == "" {
		return c.Name
	}
	return c.Emoji + " " + c.Name
}

// Payload is the partially built reminder request.
type Payload struct {
	Task       string                 `json:"task"`
	Kind       string                 `json:"kind,omitempty"`
	DueTime    *time.Time             `json:"due_time,omitempty"`
	Recurrence *recurrence.Descriptor `json:"recurrence,omitempty"`
	Schedule   string                 `json:"schedule,omitempty"`
	Priority   int                    `json:"priority,omitempty"`
	Emoji      string                 `json:"emoji,omitempty"`
	Target     *parser.Target         `json:"target,omitempty"`

	ResolvedTarget *target.Resolution `json:"resolved_target,omitempty"`
	CategoryID     *int64             `json:"category_id,omitempty"`
	CategoryLabel  string             `json:"category_label,omitempty"`

	// Choices is the category list shown in the last category prompt.
	Choices []CategoryChoice `json:"choices,omitempty"`

	// Warning is reported right before the commit confirmation.
	Warning    MessageID `json:"warning,omitempty"`
	WarningArg string    `json:"warning_arg,omitempty"`
}

// State is the dialogue of one sender. A sender has at most one.
type State struct {
	Step      Step      `json:"step"`
	Payload   Payload   `json:"payload"`
	ChannelID string    `json:"channel_id"`
	SenderTag string    `json:"sender_tag"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether s has been inactive for longer than ttl.
func (s State) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(s.UpdatedAt) > ttl
}

// InputKind identifies what happened.
type InputKind int

const (
	// InputStart is a new creation request.
	InputStart InputKind = iota
	// InputReply is a follow-up message in an active dialogue.
	InputReply
	// InputCancel is an explicit cancellation by the sender.
	InputCancel

	InputCategoryCreated
	InputCategoryFailed
	InputTargetResolved
	InputTargetNotFound
	InputTargetFailed
	InputCommitted
	InputCommitFailed
)

// CreateDirective is a parsed "create <emoji> <name>" reply.
type CreateDirective struct {
	Emoji string
	Name  string
}

// Input is an event plus the facts gathered for it. Transition never
// performs I/O, so everything it needs to decide travels here.
type Input struct {
	Kind InputKind
	Now  time.Time
	Text string

	// InputStart.
	Request     parser.Request
	RequestKind string
	ChannelID   string
	SenderTag   string

	// Time facts for replies in StepAwaitingTime.
	Time       *time.Time
	Recurrence *recurrence.Descriptor
	Schedule   string

	// Category facts, fetched while handling this input.
	Categories            []CategoryChoice
	CategoriesUnavailable bool
	EmojiMatch            *CategoryChoice
	Create                *CreateDirective

	// Effect outcomes.
	Category     *CategoryChoice
	Resolution   *target.Resolution
	TargetName   string
	CategoryGone bool
}

// Effect is a side effect requested by Transition.
type Effect interface {
	effect()
}

// Say sends a templated message to the sender.
type Say struct {
	ID   MessageID
	Args map[string]string
}

// CreateCategory creates a category and subscribes the sender to it.
type CreateCategory struct {
	Emoji string
	Name  string
}

// ResolveTarget looks up the recipient of the request.
type ResolveTarget struct {
	Target *parser.Target
}

// Commit persists the reminder described by Payload.
type Commit struct {
	Payload Payload
}

func (Say) effect()            {}
func (CreateCategory) effect() {}
func (ResolveTarget) effect()  {}
func (Commit) effect()         {}
