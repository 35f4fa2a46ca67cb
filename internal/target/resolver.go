// Package target decides who a request is for: the sender, a named member,
// or a broadcast to a channel.
package target

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/edgard/assistbot/internal/errs"
	"github.com/edgard/assistbot/internal/parser"
)

// Type of a resolved target.
type Type string

const (
	TypeSelf      Type = "self"
	TypeUser      Type = "user"
	TypeBroadcast Type = "broadcast"
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Scope is where the lookup happens.
type Scope struct {
	SenderID  string
	ChannelID string
}

// MemberRef is a member known to the directory.
type MemberRef struct {
	ID          string
	DisplayName string
	Handle      string
}

// ChannelRef is a channel known to the directory.
type ChannelRef struct {
	ID    string
	Title string
}

// MemberDirectory finds members by display name or handle.
// A nil ref with a nil error means no match.
type MemberDirectory interface {
	FindByName(ctx context.Context, name string, scope Scope) (*MemberRef, error)
}

// ChannelDirectory finds channels by title.
// A nil ref with a nil error means no match.
type ChannelDirectory interface {
	FindChannelByName(ctx context.Context, name string, scope Scope) (*ChannelRef, error)
}

// Resolver resolves parsed targets against the directories.
type Resolver struct {
	members  MemberDirectory
	channels ChannelDirectory
	logger   *slog.Logger
}

// NewResolver creates a resolver. channels may be nil, in which case
// broadcasts always go to the current channel.
func NewResolver(members MemberDirectory, channels ChannelDirectory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		members:  members,
		channels: channels,
		logger:   logger.With("component", "target_resolver"),
	}
}

// Resolve maps t to a concrete recipient. Individual lookups are strict and
// fail with a TargetNotFound error; broadcast lookups fall back to the
// current channel.
func (r *Resolver) Resolve(ctx context.Context, t *parser.Target, scope Scope) (Resolution, error) {
	switch {
	case t.IsSelf():
		return Resolution{Type: TypeSelf, ID: scope.SenderID}, nil
	case t.Broadcast:
		return r.resolveBroadcast(ctx, t.Channel, scope), nil
	default:
		return r.resolveMember(ctx, t.Name, scope)
	}
}

func (r *Resolver) resolveMember(ctx context.Context, name string, scope Scope) (Resolution, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	if r.members == nil {
		return Resolution{}, errs.NewTargetNotFoundError(name)
	}

	ref, err := r.members.FindByName(ctx, name, scope)
	if err != nil {
		r.logger.ErrorContext(ctx, "Member lookup failed", "name", name, "error", err)
		return Resolution{}, errs.NewCollaboratorError("member lookup", err)
	}
	if ref == nil {
		r.logger.InfoContext(ctx, "Named target not found", "name", name, "channel_id", scope.ChannelID)
		return Resolution{}, errs.NewTargetNotFoundError(name)
	}
	if ref.ID == scope.SenderID {
		return Resolution{Type: TypeSelf, ID: ref.ID, Name: ref.DisplayName}, nil
	}
	return Resolution{Type: TypeUser, ID: ref.ID, Name: ref.DisplayName}, nil
}

func (r *Resolver) resolveBroadcast(ctx context.Context, channel string, scope Scope) Resolution {
	current := Resolution{Type: TypeBroadcast, ID: scope.ChannelID}
	channel = strings.TrimPrefix(strings.TrimSpace(channel), "#")
	if channel == "" || r.channels == nil {
		return current
	}

	ref, err := r.channels.FindChannelByName(ctx, channel, scope)
	if err != nil {
		r.logger.WarnContext(ctx, "Channel lookup failed, using current channel", "name", channel, "error", err)
		return current
	}
	if ref == nil {
		r.logger.DebugContext(ctx, "Channel not matched, using current channel", "name", channel)
		return current
	}
	return Resolution{Type: TypeBroadcast, ID: ref.ID, Name: ref.Title}
}
