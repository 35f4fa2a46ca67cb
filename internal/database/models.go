package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Reminder statuses.
const (
	ReminderStatusPending   = "pending"
	ReminderStatusCancelled = "cancelled"
)

// Game statuses.
const (
	GameStatusActive   = "active"
	GameStatusFinished = "finished"
)

// ReminderMetadata carries the optional parts of a reminder: its recurrence
// schedule and who it is addressed to when that is not the sender.
type ReminderMetadata struct {
	Schedule   string `json:"schedule,omitempty"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	TargetName string `json:"target_name,omitempty"`
	Broadcast  bool   `json:"broadcast,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// Value implements driver.Valuer.
func (m ReminderMetadata) Value() (driver.Value, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (m *ReminderMetadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = ReminderMetadata{}
		return nil
	case string:
		return json.Unmarshal([]byte(v), m)
	case []byte:
		return json.Unmarshal(v, m)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
}

// Reminder is a request to notify someone at DueTime.
type Reminder struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	SenderID   string           `db:"sender_id"`
	SenderTag  string           `db:"sender_tag"`
	ChannelID  string           `db:"channel_id"`
	Task       string           `db:"task"`
	DueTime    time.Time        `db:"due_time"`
	CategoryID sql.NullInt64    `db:"category_id"`
	Priority   int              `db:"priority"`
	Status     string           `db:"status"`
	Metadata   ReminderMetadata `db:"metadata"`
}

// Category groups reminders and can be subscribed to.
type Category struct {
	ID          int64     `db:"id"`
	CreatedAt   time.Time `db:"created_at"`
	Name        string    `db:"name"`
	Emoji       string    `db:"emoji"`
	Description string    `db:"description"`
}

// Member is a chat participant seen by the bot.
type Member struct {
	UserID      string    `db:"user_id"`
	ChannelID   string    `db:"channel_id"`
	DisplayName string    `db:"display_name"`
	Handle      string    `db:"handle"`
	LastSeenAt  time.Time `db:"last_seen_at"`
}

// Channel is a chat the bot has seen traffic in.
type Channel struct {
	ID         string    `db:"id"`
	Title      string    `db:"title"`
	LastSeenAt time.Time `db:"last_seen_at"`
}

// Guild is a named group of members.
type Guild struct {
	ID          int64     `db:"id"`
	CreatedAt   time.Time `db:"created_at"`
	Name        string    `db:"name"`
	MemberCount int       `db:"member_count"`
}

// Game is a started game session.
type Game struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	ChannelID string    `db:"channel_id"`
	StartedBy string    `db:"started_by"`
	GameType  string    `db:"game_type"`
	Status    string    `db:"status"`
}
