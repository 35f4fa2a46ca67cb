package target

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/edgard/assistbot/internal/database"
	"github.com/edgard/assistbot/internal/errs"
	"github.com/edgard/assistbot/internal/parser"
)

type fakeDirectoryStore struct {
	err error
}

func (f fakeDirectoryStore) FindMemberByName(_ context.Context, channelID, name string) (*database.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	if channelID == "-100" && name == "maria" {
		return &database.Member{UserID: "100", ChannelID: channelID, DisplayName: "Maria", Handle: "maria"}, nil
	}
	return nil, nil
}

func (f fakeDirectoryStore) FindChannelByTitle(_ context.Context, title string) (*database.Channel, error) {
	if f.err != nil {
		return nil, f.err
	}
	if title == "ops" {
		return &database.Channel{ID: "-200", Title: "ops"}, nil
	}
	return nil, nil
}

func TestStoreDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := NewStoreDirectory(fakeDirectoryStore{})
	r := NewResolver(dir, dir, nil)
	scope := Scope{SenderID: "1", ChannelID: "-100"}

	got, err := r.Resolve(ctx, &parser.Target{Name: "@maria"}, scope)
	if err != nil {
		t.Fatalf("Resolve(maria) error = %v", err)
	}
	if diff := cmp.Diff(Resolution{Type: TypeUser, ID: "100", Name: "Maria"}, got); diff != "" {
		t.Errorf("Resolve(maria) mismatch (-want +got):\n%s", diff)
	}

	if _, err := r.Resolve(ctx, &parser.Target{Name: "ghost"}, scope); !errs.Is(err, errs.CodeTargetNotFound) {
		t.Errorf("Resolve(ghost) error = %v, want TargetNotFound", err)
	}

	got, err = r.Resolve(ctx, &parser.Target{Broadcast: true, Channel: "ops"}, scope)
	if err != nil || got.ID != "-200" {
		t.Errorf("Resolve(#ops) = %+v, %v; want channel -200", got, err)
	}

	failing := NewStoreDirectory(fakeDirectoryStore{err: errors.New("disk on fire")})
	if _, err := NewResolver(failing, failing, nil).Resolve(ctx, &parser.Target{Name: "maria"}, scope); !errs.Is(err, errs.CodeCollaborator) {
		t.Errorf("Resolve() with failing store error = %v, want Collaborator", err)
	}
}
