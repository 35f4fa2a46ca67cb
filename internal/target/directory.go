package target

import (
	"context"

	"github.com/edgard/assistbot/internal/database"
)

// DirectoryStore is the persistence behind StoreDirectory. Lookups that
// find nothing return nil, nil.
type DirectoryStore interface {
	FindMemberByName(ctx context.Context, channelID, name string) (*database.Member, error)
	FindChannelByTitle(ctx context.Context, title string) (*database.Channel, error)
}

// StoreDirectory serves MemberDirectory and ChannelDirectory from the
// members and channels recorded by the dispatcher.
type StoreDirectory struct {
	store DirectoryStore
}

// NewStoreDirectory creates a directory over store.
func NewStoreDirectory(store DirectoryStore) *StoreDirectory {
	return &StoreDirectory{store: store}
}

// FindByName looks name up among the members seen in the scope's channel.
func (d *StoreDirectory) FindByName(ctx context.Context, name string, scope Scope) (*MemberRef, error) {
	m, err := d.store.FindMemberByName(ctx, scope.ChannelID, name)
	if err != nil || m == nil {
		return nil, err
	}
	return &MemberRef{ID: m.UserID, DisplayName: m.DisplayName, Handle: m.Handle}, nil
}

// FindChannelByName looks a channel up by title.
func (d *StoreDirectory) FindChannelByName(ctx context.Context, name string, _ Scope) (*ChannelRef, error) {
	c, err := d.store.FindChannelByTitle(ctx, name)
	if err != nil || c == nil {
		return nil, err
	}
	return &ChannelRef{ID: c.ID, Title: c.Title}, nil
}
