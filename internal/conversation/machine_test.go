package conversation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/edgard/assistbot/internal/parser"
	"github.com/edgard/assistbot/internal/recurrence"
	"github.com/edgard/assistbot/internal/target"
)

// Thursday 10:00 UTC.
var base = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

var (
	home = CategoryChoice{ID: 1, Name: "Home", Emoji: "🏠"}
	work = CategoryChoice{ID: 2, Name: "Work", Emoji: "💼"}
)

func ptr[T any](v T) *T {
	return &v
}

func awaitingCategory() State {
	due := base.Add(5 * time.Hour)
	return State{
		Step:      StepAwaitingCategory,
		CreatedAt: base,
		UpdatedAt: base,
		Payload: Payload{
			Task:    "call John",
			DueTime: &due,
			Choices: []CategoryChoice{home, work},
		},
	}
}

func onlyCommit(t *testing.T, effects []Effect) Payload {
	t.Helper()
	if len(effects) != 1 {
		t.Fatalf("effects = %#v, want a single Commit", effects)
	}
	c, ok := effects[0].(Commit)
	if !ok {
		t.Fatalf("effect = %#v, want Commit", effects[0])
	}
	return c.Payload
}

func TestTransitionStartWithoutTime(t *testing.T) {
	t.Parallel()

	st, effects := Transition(State{}, Input{
		Kind:      InputStart,
		Now:       base,
		Request:   parser.Request{Task: "call John", Target: &parser.Target{Self: true}},
		ChannelID: "-100",
		SenderTag: "alice",
	})

	if st.Step != StepAwaitingTime {
		t.Fatalf("Step = %s, want %s", st.Step, StepAwaitingTime)
	}
	if st.Payload.Task != "call John" || st.Payload.DueTime != nil {
		t.Errorf("Payload = %+v, want task only", st.Payload)
	}
	if st.ChannelID != "-100" || st.SenderTag != "alice" || !st.UpdatedAt.Equal(base) {
		t.Errorf("State context = %+v", st)
	}
	want := []Effect{Say{ID: MsgAskTime, Args: map[string]string{"task": "call John"}}}
	if diff := cmp.Diff(want, effects); diff != "" {
		t.Errorf("effects mismatch (-want +got):\n%s", diff)
	}
}

func TestTransitionStartWithoutTask(t *testing.T) {
	t.Parallel()

	st, effects := Transition(State{}, Input{Kind: InputStart, Now: base, Request: parser.Request{Task: "  "}})
	if st.Step.Active() {
		t.Errorf("Step = %s, want no dialogue", st.Step)
	}
	if diff := cmp.Diff([]Effect{Say{ID: MsgAskTask}}, effects); diff != "" {
		t.Errorf("effects mismatch (-want +got):\n%s", diff)
	}
}

func TestTransitionDirectPath(t *testing.T) {
	t.Parallel()

	due := base.Add(time.Hour)

	tests := []struct {
		name       string
		emoji      string
		categories []CategoryChoice
		match      *CategoryChoice
		wantStep   Step
		wantCommit bool
		wantMsg    MessageID
		wantCat    *int64
	}{
		{name: "no categories commits", wantCommit: true},
		{name: "categories prompt", categories: []CategoryChoice{home, work}, wantStep: StepAwaitingCategory, wantMsg: MsgAskCategory},
		{name: "matched emoji commits", emoji: "💼", categories: []CategoryChoice{home, work}, match: &work, wantCommit: true, wantCat: ptr(int64(2))},
		{name: "unmatched emoji prompts", emoji: "🎸", categories: []CategoryChoice{home}, wantStep: StepAwaitingCategory, wantMsg: MsgUnknownEmoji},
		{name: "unmatched emoji without categories prompts", emoji: "🎸", wantStep: StepAwaitingCategory, wantMsg: MsgUnknownEmoji},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st, effects := Transition(State{}, Input{
				Kind:       InputStart,
				Now:        base,
				Request:    parser.Request{Task: "call John", Time: &due, Emoji: tt.emoji},
				Categories: tt.categories,
				EmojiMatch: tt.match,
			})

			if tt.wantCommit {
				p := onlyCommit(t, effects)
				if diff := cmp.Diff(tt.wantCat, p.CategoryID); diff != "" {
					t.Errorf("CategoryID mismatch (-want +got):\n%s", diff)
				}
				return
			}

			if st.Step != tt.wantStep {
				t.Fatalf("Step = %s, want %s", st.Step, tt.wantStep)
			}
			if len(effects) != 1 {
				t.Fatalf("effects = %#v, want one prompt", effects)
			}
			say, ok := effects[0].(Say)
			if !ok || say.ID != tt.wantMsg {
				t.Errorf("effect = %#v, want Say %s", effects[0], tt.wantMsg)
			}
			if diff := cmp.Diff(tt.categories, st.Payload.Choices); diff != "" && len(tt.categories) > 0 {
				t.Errorf("Choices mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransitionAwaitingTime(t *testing.T) {
	t.Parallel()

	st := State{Step: StepAwaitingTime, CreatedAt: base, UpdatedAt: base, Payload: Payload{Task: "call John"}}
	later := base.Add(time.Minute)

	t.Run("unparseable stays", func(t *testing.T) {
		t.Parallel()
		next, effects := Transition(st, Input{Kind: InputReply, Now: later, Text: "soonish"})
		if next.Step != StepAwaitingTime {
			t.Fatalf("Step = %s, want %s", next.Step, StepAwaitingTime)
		}
		if next.Payload.DueTime != nil {
			t.Error("an unparseable answer must not set a due time")
		}
		if !next.UpdatedAt.Equal(later) {
			t.Errorf("UpdatedAt = %s, want %s", next.UpdatedAt, later)
		}
		want := []Effect{Say{ID: MsgTimeNotUnderstood, Args: map[string]string{"task": "call John"}}}
		if diff := cmp.Diff(want, effects); diff != "" {
			t.Errorf("effects mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("time moves to category", func(t *testing.T) {
		t.Parallel()
		due := time.Date(2025, 5, 2, 15, 0, 0, 0, time.UTC)
		next, effects := Transition(st, Input{Kind: InputReply, Now: later, Text: "tomorrow at 3pm", Time: &due})
		if next.Step != StepAwaitingCategory {
			t.Fatalf("Step = %s, want %s", next.Step, StepAwaitingCategory)
		}
		if next.Payload.DueTime == nil || !next.Payload.DueTime.Equal(due) {
			t.Errorf("DueTime = %v, want %s", next.Payload.DueTime, due)
		}
		say, ok := effects[0].(Say)
		if !ok || say.ID != MsgAskCategory || say.Args["time"] != "Fri May 2 at 15:00" {
			t.Errorf("effect = %#v, want category prompt", effects[0])
		}
	})

	t.Run("recurrence answer", func(t *testing.T) {
		t.Parallel()
		due := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
		d := recurrence.Descriptor{Frequency: "weekday", Hour: 9}
		next, _ := Transition(st, Input{Kind: InputReply, Now: later, Time: &due, Recurrence: &d, Schedule: "0 9 * * 1-5"})
		if next.Payload.Schedule != "0 9 * * 1-5" || next.Payload.Recurrence == nil {
			t.Errorf("Payload = %+v, want weekday schedule", next.Payload)
		}
	})
}

func TestTransitionCategoryReplies(t *testing.T) {
	t.Parallel()

	fresh := []CategoryChoice{home, work}

	tests := []struct {
		name        string
		in          Input
		wantCat     *int64
		wantWarning MessageID
		wantArg     string
	}{
		{name: "none skips", in: Input{Text: "none", Categories: fresh}},
		{name: "skip with punctuation", in: Input{Text: "Skip!", Categories: fresh}},
		{name: "zero skips", in: Input{Text: "0", Categories: fresh}},
		{name: "index", in: Input{Text: "2", Categories: fresh}, wantCat: ptr(int64(2))},
		{name: "index out of range", in: Input{Text: "5", Categories: fresh}, wantWarning: MsgInvalidChoice, wantArg: "5"},
		{name: "negative index", in: Input{Text: "-1", Categories: fresh}, wantWarning: MsgInvalidChoice, wantArg: "-1"},
		{name: "index removed since prompt", in: Input{Text: "2", Categories: []CategoryChoice{home}}, wantWarning: MsgCategoryGone},
		{name: "index with store down", in: Input{Text: "1", CategoriesUnavailable: true}, wantCat: ptr(int64(1))},
		{name: "emoji", in: Input{Text: "🏠", Categories: fresh, EmojiMatch: &home}, wantCat: ptr(int64(1))},
		{name: "name", in: Input{Text: "work", Categories: fresh}, wantCat: ptr(int64(2))},
		{name: "unrecognized", in: Input{Text: "the blue one", Categories: fresh}, wantWarning: MsgUnrecognizedCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := tt.in
			in.Kind = InputReply
			in.Now = base.Add(time.Minute)

			_, effects := Transition(awaitingCategory(), in)
			p := onlyCommit(t, effects)
			if diff := cmp.Diff(tt.wantCat, p.CategoryID); diff != "" {
				t.Errorf("CategoryID mismatch (-want +got):\n%s", diff)
			}
			if p.Warning != tt.wantWarning || p.WarningArg != tt.wantArg {
				t.Errorf("Warning = %q %q, want %q %q", p.Warning, p.WarningArg, tt.wantWarning, tt.wantArg)
			}
		})
	}
}

func TestTransitionCreateCategory(t *testing.T) {
	t.Parallel()

	st, effects := Transition(awaitingCategory(), Input{
		Kind:   InputReply,
		Now:    base,
		Text:   "create 🎸 Music",
		Create: &CreateDirective{Emoji: "🎸", Name: "Music"},
	})
	if diff := cmp.Diff([]Effect{CreateCategory{Emoji: "🎸", Name: "Music"}}, effects); diff != "" {
		t.Fatalf("effects mismatch (-want +got):\n%s", diff)
	}

	music := CategoryChoice{ID: 9, Name: "Music", Emoji: "🎸"}
	_, effects = Transition(st, Input{Kind: InputCategoryCreated, Now: base, Category: &music})
	if len(effects) != 2 {
		t.Fatalf("effects = %#v, want announcement and commit", effects)
	}
	if say, ok := effects[0].(Say); !ok || say.ID != MsgCategoryCreated || say.Args["category"] != "🎸 Music" {
		t.Errorf("effects[0] = %#v, want category created", effects[0])
	}
	if c, ok := effects[1].(Commit); !ok || c.Payload.CategoryID == nil || *c.Payload.CategoryID != 9 {
		t.Errorf("effects[1] = %#v, want commit in category 9", effects[1])
	}

	next, effects := Transition(st, Input{Kind: InputCategoryFailed, Now: base})
	if next.Step != StepAwaitingCategory {
		t.Errorf("Step = %s, want to stay in category selection", next.Step)
	}
	if diff := cmp.Diff([]Effect{Say{ID: MsgCategoryCreateFailed}}, effects); diff != "" {
		t.Errorf("effects mismatch (-want +got):\n%s", diff)
	}
}

func TestTransitionTargetConfirmation(t *testing.T) {
	t.Parallel()

	st := awaitingCategory()
	st.Payload.Target = &parser.Target{Name: "maria"}

	st, effects := Transition(st, Input{Kind: InputReply, Now: base, Text: "none"})
	if diff := cmp.Diff([]Effect{ResolveTarget{Target: &parser.Target{Name: "maria"}}}, effects); diff != "" {
		t.Fatalf("effects mismatch (-want +got):\n%s", diff)
	}

	st, effects = Transition(st, Input{Kind: InputTargetResolved, Now: base, Resolution: &target.Resolution{Type: target.TypeUser, ID: "100", Name: "Maria"}})
	if st.Step != StepAwaitingTargetConfirmation {
		t.Fatalf("Step = %s, want %s", st.Step, StepAwaitingTargetConfirmation)
	}
	if say, ok := effects[0].(Say); !ok || say.ID != MsgConfirmTarget || say.Args["who"] != "Maria" {
		t.Errorf("effect = %#v, want confirmation prompt for Maria", effects[0])
	}

	t.Run("yes commits", func(t *testing.T) {
		t.Parallel()
		_, effects := Transition(st, Input{Kind: InputReply, Now: base, Text: "Yes."})
		p := onlyCommit(t, effects)
		if p.ResolvedTarget == nil || p.ResolvedTarget.ID != "100" {
			t.Errorf("ResolvedTarget = %+v, want member 100", p.ResolvedTarget)
		}
	})

	t.Run("no abandons", func(t *testing.T) {
		t.Parallel()
		next, effects := Transition(st, Input{Kind: InputReply, Now: base, Text: "nope"})
		if next.Step.Active() {
			t.Errorf("Step = %s, want idle", next.Step)
		}
		if diff := cmp.Diff([]Effect{Say{ID: MsgCancelled}}, effects); diff != "" {
			t.Errorf("effects mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("other answers re-prompt", func(t *testing.T) {
		t.Parallel()
		next, effects := Transition(st, Input{Kind: InputReply, Now: base, Text: "maybe later"})
		if next.Step != StepAwaitingTargetConfirmation {
			t.Errorf("Step = %s, want to keep waiting", next.Step)
		}
		if say, ok := effects[0].(Say); !ok || say.ID != MsgConfirmRetry {
			t.Errorf("effect = %#v, want retry prompt", effects[0])
		}
	})

	t.Run("self resolution commits", func(t *testing.T) {
		t.Parallel()
		_, effects := Transition(awaitingCategory(), Input{Kind: InputTargetResolved, Now: base, Resolution: &target.Resolution{Type: target.TypeSelf, ID: "1"}})
		onlyCommit(t, effects)
	})

	t.Run("not found ends dialogue", func(t *testing.T) {
		t.Parallel()
		next, effects := Transition(st, Input{Kind: InputTargetNotFound, Now: base, TargetName: "ghost"})
		if next.Step.Active() {
			t.Errorf("Step = %s, want idle", next.Step)
		}
		want := []Effect{Say{ID: MsgTargetNotFound, Args: map[string]string{"name": "ghost"}}}
		if diff := cmp.Diff(want, effects); diff != "" {
			t.Errorf("effects mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestTransitionCommitOutcome(t *testing.T) {
	t.Parallel()

	t.Run("warning precedes confirmation", func(t *testing.T) {
		t.Parallel()
		st := awaitingCategory()
		st.Payload.Warning, st.Payload.WarningArg = MsgInvalidChoice, "5"

		next, effects := Transition(st, Input{Kind: InputCommitted, Now: base})
		if next.Step.Active() {
			t.Errorf("Step = %s, want idle", next.Step)
		}
		want := []Effect{
			Say{ID: MsgInvalidChoice, Args: map[string]string{"choice": "5"}},
			Say{ID: MsgSaved, Args: map[string]string{"task": "call John", "time": "Thu May 1 at 15:00", "who": "you"}},
		}
		if diff := cmp.Diff(want, effects); diff != "" {
			t.Errorf("effects mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("category confirmation", func(t *testing.T) {
		t.Parallel()
		st := awaitingCategory()
		st.Payload.CategoryID, st.Payload.CategoryLabel = ptr(int64(2)), "💼 Work"
		_, effects := Transition(st, Input{Kind: InputCommitted, Now: base})
		if say, ok := effects[0].(Say); !ok || say.ID != MsgSavedInCategory || say.Args["category"] != "💼 Work" {
			t.Errorf("effect = %#v, want saved in category", effects[0])
		}
	})

	t.Run("recurring confirmation", func(t *testing.T) {
		t.Parallel()
		st := awaitingCategory()
		st.Payload.Recurrence = &recurrence.Descriptor{Frequency: "weekday", Hour: 9}
		_, effects := Transition(st, Input{Kind: InputCommitted, Now: base})
		if say, ok := effects[0].(Say); !ok || say.ID != MsgSavedRecurring || say.Args["schedule"] != "every weekday at 09:00" {
			t.Errorf("effect = %#v, want recurring confirmation", effects[0])
		}
	})

	t.Run("vanished category retries once without it", func(t *testing.T) {
		t.Parallel()
		st := awaitingCategory()
		st.Payload.CategoryID, st.Payload.CategoryLabel = ptr(int64(2)), "💼 Work"

		st, effects := Transition(st, Input{Kind: InputCommitFailed, Now: base, CategoryGone: true})
		p := onlyCommit(t, effects)
		if p.CategoryID != nil || p.Warning != MsgCategoryGone {
			t.Fatalf("retry payload = %+v, want no category and a warning", p)
		}

		next, effects := Transition(st, Input{Kind: InputCommitFailed, Now: base, CategoryGone: true})
		if next.Step.Active() {
			t.Errorf("Step = %s, want idle after second failure", next.Step)
		}
		if diff := cmp.Diff([]Effect{Say{ID: MsgSaveFailed}}, effects); diff != "" {
			t.Errorf("effects mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestTransitionCancel(t *testing.T) {
	t.Parallel()

	next, effects := Transition(awaitingCategory(), Input{Kind: InputCancel, Now: base})
	if next.Step.Active() {
		t.Errorf("Step = %s, want idle", next.Step)
	}
	if diff := cmp.Diff([]Effect{Say{ID: MsgCancelled}}, effects); diff != "" {
		t.Errorf("effects mismatch (-want +got):\n%s", diff)
	}

	if _, effects := Transition(State{}, Input{Kind: InputCancel, Now: base}); len(effects) != 0 {
		t.Errorf("cancelling nothing produced %#v", effects)
	}
}

func TestMessagesRender(t *testing.T) {
	t.Parallel()

	m := Messages{MsgAskTime: "Quando devo lembrar você de {task}?"}
	if got := m.Render(MsgAskTime, map[string]string{"task": "ligar"}); got != "Quando devo lembrar você de ligar?" {
		t.Errorf("override = %q", got)
	}
	if got := m.Render(MsgCancelled, nil); got != DefaultMessages[MsgCancelled] {
		t.Errorf("fallback = %q", got)
	}
	if got := Messages(nil).Render(MsgTargetNotFound, map[string]string{"name": "Bob"}); got != "I couldn't find anyone called Bob here." {
		t.Errorf("nil messages = %q", got)
	}
}
