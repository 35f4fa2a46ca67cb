package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/assistbot/internal/errs"
)

// Store defines the persistence operations of the assistant.
// Lookups that find nothing return nil, nil.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// CreateReminder inserts r and sets its ID and timestamps. It fails with
	// a NotFound error when r references a category that does not exist.
	CreateReminder(ctx context.Context, r *Reminder) error
	// ListReminders returns the pending reminders created by or addressed to
	// userID, soonest first.
	ListReminders(ctx context.Context, userID string, limit int) ([]Reminder, error)
	// CancelReminder cancels a pending reminder owned by userID.
	CancelReminder(ctx context.Context, userID string, id int64) error

	ListCategories(ctx context.Context) ([]Category, error)
	GetCategoryByEmoji(ctx context.Context, emoji string) (*Category, error)
	GetCategoryByName(ctx context.Context, name string) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	// Subscribe is idempotent.
	Subscribe(ctx context.Context, userID string, categoryID int64) error

	// UpsertMember records a member as seen in a channel.
	UpsertMember(ctx context.Context, m *Member) error
	// UpsertChannel records a channel as seen.
	UpsertChannel(ctx context.Context, c *Channel) error
	// FindMemberByName matches display name or handle, case-insensitively,
	// among members seen in channelID.
	FindMemberByName(ctx context.Context, channelID, name string) (*Member, error)
	// FindChannelByTitle matches a channel title case-insensitively.
	FindChannelByTitle(ctx context.Context, title string) (*Channel, error)

	// JoinGuild adds userID to the guild called name, creating it when
	// missing. joined is false when the user was already a member.
	JoinGuild(ctx context.Context, userID, name string) (g *Guild, joined bool, err error)
	// LeaveGuild removes userID from the named guild, or from every guild
	// when name is empty, and returns how many memberships were removed.
	LeaveGuild(ctx context.Context, userID, name string) (int64, error)
	// ListGuilds returns all guilds with their member counts.
	ListGuilds(ctx context.Context) ([]Guild, error)

	// CreateGame starts a game. It fails with a Validation error when the
	// channel already has an active game.
	CreateGame(ctx context.Context, g *Game) error
	// FinishStaleGames ends active games started before the cutoff.
	FinishStaleGames(ctx context.Context, before time.Time) (int64, error)

	// PurgeCancelledReminders deletes cancelled reminders last updated
	// before the cutoff.
	PurgeCancelledReminders(ctx context.Context, before time.Time) (int64, error)
	// RunSQLMaintenance performs VACUUM and ANALYZE.
	RunSQLMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn in a transaction, committing when fn succeeds.
func (s *sqlxStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "operation", op, "error", err)
		return errs.NewDatabaseError("failed to begin transaction for "+op, err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "operation", op, "error", rollbackErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "operation", op, "error", err)
		return errs.NewDatabaseError("failed to commit "+op, err)
	}
	tx = nil
	return nil
}

func (s *sqlxStore) CreateReminder(ctx context.Context, r *Reminder) error {
	if r == nil {
		return errs.NewValidationError("cannot save nil reminder", nil)
	}
	if r.SenderID == "" || r.ChannelID == "" {
		return errs.NewValidationError("reminder must have a sender and a channel", nil)
	}
	if strings.TrimSpace(r.Task) == "" {
		return errs.NewValidationError("reminder must have a task", nil)
	}
	if r.DueTime.IsZero() {
		return errs.NewValidationError("reminder must have a due time", nil)
	}

	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	r.DueTime = r.DueTime.UTC()
	if r.Status == "" {
		r.Status = ReminderStatusPending
	}

	err := s.withTx(ctx, "create reminder", func(tx *sqlx.Tx) error {
		if r.CategoryID.Valid {
			var exists int
			err := tx.GetContext(ctx, &exists, `SELECT 1 FROM categories WHERE id = ?`, r.CategoryID.Int64)
			if errors.Is(err, sql.ErrNoRows) {
				return errs.NewNotFoundError(fmt.Sprintf("category %d not found", r.CategoryID.Int64))
			}
			if err != nil {
				return errs.NewDatabaseError("failed to check category", err)
			}
		}

		result, err := tx.NamedExecContext(ctx, `
			INSERT INTO reminders (created_at, updated_at, sender_id, sender_tag, channel_id, task,
				due_time, category_id, priority, status, metadata)
			VALUES (:created_at, :updated_at, :sender_id, :sender_tag, :channel_id, :task,
				:due_time, :category_id, :priority, :status, :metadata)`, r)
		if err != nil {
			return errs.NewDatabaseError("failed to insert reminder", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return errs.NewDatabaseError("failed to read reminder id", err)
		}
		r.ID = id
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving reminder", "sender_id", r.SenderID, "error", err)
		return err
	}

	s.logger.DebugContext(ctx, "Reminder saved", "reminder_id", r.ID, "sender_id", r.SenderID, "due_time", r.DueTime)
	return nil
}

func (s *sqlxStore) ListReminders(ctx context.Context, userID string, limit int) ([]Reminder, error) {
	if userID == "" {
		return nil, errs.NewValidationError("user id cannot be empty", nil)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var reminders []Reminder
	err := s.db.SelectContext(ctx, &reminders, `
		SELECT id, created_at, updated_at, sender_id, sender_tag, channel_id, task, due_time,
			category_id, priority, status, metadata
		FROM reminders
		WHERE status = ?
			AND (sender_id = ? OR json_extract(metadata, '$.target_id') = ?)
		ORDER BY due_time ASC, id ASC
		LIMIT ?`, ReminderStatusPending, userID, userID, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing reminders", "user_id", userID, "error", err)
		return nil, errs.NewDatabaseError("failed to list reminders", err)
	}
	return reminders, nil
}

func (s *sqlxStore) CancelReminder(ctx context.Context, userID string, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = ?, updated_at = ?
		WHERE id = ? AND sender_id = ? AND status = ?`,
		ReminderStatusCancelled, s.now(), id, userID, ReminderStatusPending)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error cancelling reminder", "reminder_id", id, "user_id", userID, "error", err)
		return errs.NewDatabaseError("failed to cancel reminder", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errs.NewNotFoundError(fmt.Sprintf("no pending reminder %d", id))
	}
	s.logger.InfoContext(ctx, "Reminder cancelled", "reminder_id", id, "user_id", userID)
	return nil
}

func (s *sqlxStore) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	err := s.db.SelectContext(ctx, &categories,
		`SELECT id, created_at, name, emoji, description FROM categories ORDER BY id ASC`)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing categories", "error", err)
		return nil, errs.NewDatabaseError("failed to list categories", err)
	}
	return categories, nil
}

func (s *sqlxStore) GetCategoryByEmoji(ctx context.Context, emoji string) (*Category, error) {
	return s.getCategory(ctx, `SELECT id, created_at, name, emoji, description FROM categories WHERE emoji = ?`, emoji)
}

func (s *sqlxStore) GetCategoryByName(ctx context.Context, name string) (*Category, error) {
	return s.getCategory(ctx,
		`SELECT id, created_at, name, emoji, description FROM categories WHERE name = ? COLLATE NOCASE ORDER BY id LIMIT 1`,
		strings.TrimSpace(name))
}

func (s *sqlxStore) getCategory(ctx context.Context, query string, arg any) (*Category, error) {
	var c Category
	err := s.db.GetContext(ctx, &c, query, arg)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting category", "key", arg, "error", err)
		return nil, errs.NewDatabaseError("failed to get category", err)
	}
	return &c, nil
}

func (s *sqlxStore) CreateCategory(ctx context.Context, c *Category) error {
	if c == nil || strings.TrimSpace(c.Name) == "" || c.Emoji == "" {
		return errs.NewValidationError("category needs a name and an emoji", nil)
	}
	c.Name = strings.TrimSpace(c.Name)
	c.CreatedAt = s.now()

	result, err := s.db.NamedExecContext(ctx,
		`INSERT INTO categories (created_at, name, emoji, description) VALUES (:created_at, :name, :emoji, :description)`, c)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating category", "name", c.Name, "emoji", c.Emoji, "error", err)
		return errs.NewDatabaseError("failed to create category", err)
	}
	if c.ID, err = result.LastInsertId(); err != nil {
		return errs.NewDatabaseError("failed to read category id", err)
	}
	s.logger.InfoContext(ctx, "Category created", "category_id", c.ID, "name", c.Name)
	return nil
}

func (s *sqlxStore) Subscribe(ctx context.Context, userID string, categoryID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO category_subscriptions (user_id, category_id, created_at) VALUES (?, ?, ?)`,
		userID, categoryID, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error subscribing", "user_id", userID, "category_id", categoryID, "error", err)
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return errs.NewNotFoundError(fmt.Sprintf("category %d not found", categoryID))
		}
		return errs.NewDatabaseError("failed to subscribe", err)
	}
	return nil
}

func (s *sqlxStore) UpsertMember(ctx context.Context, m *Member) error {
	if m == nil || m.UserID == "" || m.ChannelID == "" {
		return errs.NewValidationError("member needs a user and a channel", nil)
	}
	m.LastSeenAt = s.now()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO members (user_id, channel_id, display_name, handle, last_seen_at)
		VALUES (:user_id, :channel_id, :display_name, :handle, :last_seen_at)
		ON CONFLICT (user_id, channel_id) DO UPDATE SET
			display_name = excluded.display_name,
			handle = excluded.handle,
			last_seen_at = excluded.last_seen_at`, m)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error upserting member", "user_id", m.UserID, "channel_id", m.ChannelID, "error", err)
		return errs.NewDatabaseError("failed to upsert member", err)
	}
	return nil
}

func (s *sqlxStore) UpsertChannel(ctx context.Context, c *Channel) error {
	if c == nil || c.ID == "" {
		return errs.NewValidationError("channel needs an id", nil)
	}
	c.LastSeenAt = s.now()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO channels (id, title, last_seen_at) VALUES (:id, :title, :last_seen_at)
		ON CONFLICT (id) DO UPDATE SET title = excluded.title, last_seen_at = excluded.last_seen_at`, c)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error upserting channel", "channel_id", c.ID, "error", err)
		return errs.NewDatabaseError("failed to upsert channel", err)
	}
	return nil
}

func (s *sqlxStore) FindMemberByName(ctx context.Context, channelID, name string) (*Member, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	if name == "" {
		return nil, nil
	}

	var m Member
	err := s.db.GetContext(ctx, &m, `
		SELECT user_id, channel_id, display_name, handle, last_seen_at
		FROM members
		WHERE channel_id = ? AND (handle = ? COLLATE NOCASE OR display_name = ? COLLATE NOCASE)
		ORDER BY (handle = ? COLLATE NOCASE) DESC, last_seen_at DESC
		LIMIT 1`, channelID, name, name, name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error finding member", "channel_id", channelID, "name", name, "error", err)
		return nil, errs.NewDatabaseError("failed to find member", err)
	}
	return &m, nil
}

func (s *sqlxStore) FindChannelByTitle(ctx context.Context, title string) (*Channel, error) {
	title = strings.TrimPrefix(strings.TrimSpace(title), "#")
	if title == "" {
		return nil, nil
	}

	var c Channel
	err := s.db.GetContext(ctx, &c,
		`SELECT id, title, last_seen_at FROM channels WHERE title = ? COLLATE NOCASE ORDER BY last_seen_at DESC LIMIT 1`, title)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error finding channel", "title", title, "error", err)
		return nil, errs.NewDatabaseError("failed to find channel", err)
	}
	return &c, nil
}

func (s *sqlxStore) JoinGuild(ctx context.Context, userID, name string) (*Guild, bool, error) {
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return nil, false, errs.NewValidationError("guild join needs a user and a guild name", nil)
	}

	var (
		g      Guild
		joined bool
	)
	err := s.withTx(ctx, "join guild", func(tx *sqlx.Tx) error {
		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO guilds (created_at, name) VALUES (?, ?)`, now, name); err != nil {
			return errs.NewDatabaseError("failed to create guild", err)
		}
		if err := tx.GetContext(ctx, &g, `SELECT id, created_at, name FROM guilds WHERE name = ?`, name); err != nil {
			return errs.NewDatabaseError("failed to load guild", err)
		}

		result, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO guild_members (guild_id, user_id, joined_at) VALUES (?, ?, ?)`, g.ID, userID, now)
		if err != nil {
			return errs.NewDatabaseError("failed to join guild", err)
		}
		n, _ := result.RowsAffected()
		joined = n > 0

		if err := tx.GetContext(ctx, &g.MemberCount,
			`SELECT COUNT(*) FROM guild_members WHERE guild_id = ?`, g.ID); err != nil {
			return errs.NewDatabaseError("failed to count guild members", err)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error joining guild", "user_id", userID, "guild", name, "error", err)
		return nil, false, err
	}

	s.logger.InfoContext(ctx, "Guild membership updated", "user_id", userID, "guild_id", g.ID, "joined", joined)
	return &g, joined, nil
}

func (s *sqlxStore) LeaveGuild(ctx context.Context, userID, name string) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	name = strings.TrimSpace(name)
	if name == "" {
		result, err = s.db.ExecContext(ctx, `DELETE FROM guild_members WHERE user_id = ?`, userID)
	} else {
		result, err = s.db.ExecContext(ctx, `
			DELETE FROM guild_members
			WHERE user_id = ? AND guild_id IN (SELECT id FROM guilds WHERE name = ?)`, userID, name)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error leaving guild", "user_id", userID, "guild", name, "error", err)
		return 0, errs.NewDatabaseError("failed to leave guild", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (s *sqlxStore) ListGuilds(ctx context.Context) ([]Guild, error) {
	var guilds []Guild
	err := s.db.SelectContext(ctx, &guilds, `
		SELECT g.id, g.created_at, g.name, COUNT(gm.user_id) AS member_count
		FROM guilds g
		LEFT JOIN guild_members gm ON gm.guild_id = g.id
		GROUP BY g.id, g.created_at, g.name
		ORDER BY member_count DESC, g.name ASC`)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing guilds", "error", err)
		return nil, errs.NewDatabaseError("failed to list guilds", err)
	}
	return guilds, nil
}

func (s *sqlxStore) CreateGame(ctx context.Context, g *Game) error {
	if g == nil || g.ChannelID == "" || g.StartedBy == "" || g.GameType == "" {
		return errs.NewValidationError("game needs a channel, a starter and a type", nil)
	}

	return s.withTx(ctx, "create game", func(tx *sqlx.Tx) error {
		var active int
		if err := tx.GetContext(ctx, &active,
			`SELECT COUNT(*) FROM games WHERE channel_id = ? AND status = ?`, g.ChannelID, GameStatusActive); err != nil {
			return errs.NewDatabaseError("failed to check active games", err)
		}
		if active > 0 {
			return errs.NewValidationError("a game is already running in this channel", nil)
		}

		g.CreatedAt = s.now()
		g.Status = GameStatusActive
		result, err := tx.NamedExecContext(ctx, `
			INSERT INTO games (created_at, channel_id, started_by, game_type, status)
			VALUES (:created_at, :channel_id, :started_by, :game_type, :status)`, g)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error creating game", "channel_id", g.ChannelID, "error", err)
			return errs.NewDatabaseError("failed to create game", err)
		}
		if g.ID, err = result.LastInsertId(); err != nil {
			return errs.NewDatabaseError("failed to read game id", err)
		}
		return nil
	})
}

func (s *sqlxStore) FinishStaleGames(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE games SET status = ? WHERE status = ? AND created_at < ?`,
		GameStatusFinished, GameStatusActive, before.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error finishing stale games", "error", err)
		return 0, errs.NewDatabaseError("failed to finish stale games", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (s *sqlxStore) PurgeCancelledReminders(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE status = ? AND updated_at < ?`, ReminderStatusCancelled, before.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error purging cancelled reminders", "error", err)
		return 0, errs.NewDatabaseError("failed to purge cancelled reminders", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// RunSQLMaintenance runs VACUUM, which sqlite refuses inside a transaction,
// followed by ANALYZE.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance")
	for _, stmt := range []string{"VACUUM;", "ANALYZE;"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				s.logger.WarnContext(ctx, "Database maintenance interrupted", "statement", stmt, "error", err)
				return fmt.Errorf("database maintenance interrupted: %w", err)
			}
			s.logger.ErrorContext(ctx, "Database maintenance failed", "statement", stmt, "error", err)
			return errs.NewDatabaseError("failed to run "+strings.TrimSuffix(stmt, ";"), err)
		}
	}
	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}
