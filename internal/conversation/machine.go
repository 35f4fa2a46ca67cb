package conversation

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/assistbot/internal/recurrence"
	"github.com/edgard/assistbot/internal/target"
)

var skipWords = map[string]bool{
	"none": true, "skip": true, "no": true, "nope": true, "-": true, "0": true,
	"no category": true, "nenhuma": true, "nenhum": true, "pular": true,
}

var yesWords = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "sure": true, "ok": true,
	"okay": true, "confirm": true, "sim": true, "s": true,
}

var noWords = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true, "não": true, "nao": true,
}

// Transition computes the next state and the effects to run for input.
// It performs no I/O. Effects that produce outcomes (CreateCategory,
// ResolveTarget, Commit) are answered with a follow-up Input.
func Transition(s State, in Input) (State, []Effect) {
	switch in.Kind {
	case InputStart:
		return start(in)
	case InputCancel:
		if !s.Step.Active() {
			return idle(), nil
		}
		return idle(), []Effect{Say{ID: MsgCancelled}}

	case InputReply:
		switch s.Step {
		case StepAwaitingTime:
			return replyTime(s, in)
		case StepAwaitingCategory:
			return replyCategory(s, in)
		case StepAwaitingTargetConfirmation:
			return replyConfirmation(s, in)
		}
		return idle(), nil

	case InputCategoryCreated:
		selectCategory(&s.Payload, *in.Category)
		next, effects := proceed(s)
		created := Say{ID: MsgCategoryCreated, Args: map[string]string{"category": in.Category.Label()}}
		return next, append([]Effect{created}, effects...)

	case InputCategoryFailed:
		s.UpdatedAt = in.Now
		return s, []Effect{Say{ID: MsgCategoryCreateFailed}}

	case InputTargetResolved:
		res := *in.Resolution
		s.Payload.ResolvedTarget = &res
		if res.Type == target.TypeSelf {
			return s, []Effect{Commit{Payload: s.Payload}}
		}
		s.Step = StepAwaitingTargetConfirmation
		s.UpdatedAt = in.Now
		return s, []Effect{Say{ID: MsgConfirmTarget, Args: summaryArgs(s)}}

	case InputTargetNotFound:
		return idle(), []Effect{Say{ID: MsgTargetNotFound, Args: map[string]string{"name": in.TargetName}}}

	case InputTargetFailed:
		return idle(), []Effect{Say{ID: MsgTargetLookupFailed}}

	case InputCommitted:
		var effects []Effect
		if s.Payload.Warning != "" {
			effects = append(effects, Say{ID: s.Payload.Warning, Args: map[string]string{"choice": s.Payload.WarningArg}})
		}
		return idle(), append(effects, savedMessage(s))

	case InputCommitFailed:
		if in.CategoryGone && s.Payload.CategoryID != nil {
			s.Payload.CategoryID = nil
			s.Payload.CategoryLabel = ""
			warn(&s.Payload, MsgCategoryGone, "")
			return s, []Effect{Commit{Payload: s.Payload}}
		}
		return idle(), []Effect{Say{ID: MsgSaveFailed}}
	}

	return s, nil
}

func idle() State {
	return State{Step: StepIdle}
}

func start(in Input) (State, []Effect) {
	req := in.Request
	task := strings.TrimSpace(req.Task)
	if task == "" {
		return idle(), []Effect{Say{ID: MsgAskTask}}
	}

	s := State{
		Step:      StepIdle,
		ChannelID: in.ChannelID,
		SenderTag: in.SenderTag,
		CreatedAt: in.Now,
		UpdatedAt: in.Now,
		Payload: Payload{
			Task:       task,
			Kind:       in.RequestKind,
			DueTime:    req.Time,
			Recurrence: req.Recurrence,
			Schedule:   req.Schedule,
			Priority:   req.Priority,
			Emoji:      req.Emoji,
			Target:     req.Target,
		},
	}

	if s.Payload.DueTime == nil {
		s.Step = StepAwaitingTime
		return s, []Effect{Say{ID: MsgAskTime, Args: map[string]string{"task": task}}}
	}
	return categoryStage(s, in, true)
}

// categoryStage runs once the due time is known. On the direct path a
// request without emoji skips the prompt when there is nothing to pick.
func categoryStage(s State, in Input, direct bool) (State, []Effect) {
	if s.Payload.Emoji != "" {
		if in.EmojiMatch != nil {
			selectCategory(&s.Payload, *in.EmojiMatch)
			return proceed(s)
		}
		return promptCategory(s, in, MsgUnknownEmoji)
	}
	if direct && len(in.Categories) == 0 {
		return proceed(s)
	}
	return promptCategory(s, in, MsgAskCategory)
}

func promptCategory(s State, in Input, id MessageID) (State, []Effect) {
	s.Step = StepAwaitingCategory
	s.UpdatedAt = in.Now
	s.Payload.Choices = slices.Clone(in.Categories)

	args := summaryArgs(s)
	args["emoji"] = s.Payload.Emoji
	args["choices"] = formatChoices(s.Payload.Choices)
	return s, []Effect{Say{ID: id, Args: args}}
}

// proceed moves past the category stage: self-addressed requests commit,
// anything else resolves its target first.
func proceed(s State) (State, []Effect) {
	if s.Payload.Target.IsSelf() {
		return s, []Effect{Commit{Payload: s.Payload}}
	}
	return s, []Effect{ResolveTarget{Target: s.Payload.Target}}
}

func replyTime(s State, in Input) (State, []Effect) {
	if in.Time == nil {
		s.UpdatedAt = in.Now
		return s, []Effect{Say{ID: MsgTimeNotUnderstood, Args: map[string]string{"task": s.Payload.Task}}}
	}

	due := *in.Time
	s.Payload.DueTime = &due
	if in.Recurrence != nil {
		d := *in.Recurrence
		s.Payload.Recurrence = &d
		s.Payload.Schedule = in.Schedule
	}
	return categoryStage(s, in, false)
}

func replyCategory(s State, in Input) (State, []Effect) {
	text := normalizeAnswer(in.Text)
	p := &s.Payload

	if skipWords[text] {
		p.CategoryID = nil
		p.CategoryLabel = ""
		return proceed(s)
	}

	if in.Create != nil {
		s.UpdatedAt = in.Now
		return s, []Effect{CreateCategory{Emoji: in.Create.Emoji, Name: in.Create.Name}}
	}

	if n, err := strconv.Atoi(text); err == nil {
		if n < 1 || n > len(p.Choices) {
			warn(p, MsgInvalidChoice, text)
			return proceed(s)
		}
		choice := p.Choices[n-1]
		if !in.CategoriesUnavailable && !containsCategory(in.Categories, choice.ID) {
			warn(p, MsgCategoryGone, "")
			return proceed(s)
		}
		selectCategory(p, choice)
		return proceed(s)
	}

	if in.EmojiMatch != nil {
		selectCategory(p, *in.EmojiMatch)
		return proceed(s)
	}

	for _, c := range in.Categories {
		if strings.EqualFold(c.Name, text) {
			selectCategory(p, c)
			return proceed(s)
		}
	}

	warn(p, MsgUnrecognizedCategory, "")
	return proceed(s)
}

func replyConfirmation(s State, in Input) (State, []Effect) {
	text := normalizeAnswer(in.Text)
	switch {
	case yesWords[text]:
		return s, []Effect{Commit{Payload: s.Payload}}
	case noWords[text]:
		return idle(), []Effect{Say{ID: MsgCancelled}}
	default:
		s.UpdatedAt = in.Now
		return s, []Effect{Say{ID: MsgConfirmRetry, Args: summaryArgs(s)}}
	}
}

func selectCategory(p *Payload, c CategoryChoice) {
	id := c.ID
	p.CategoryID = &id
	p.CategoryLabel = c.Label()
}

func warn(p *Payload, id MessageID, arg string) {
	p.Warning = id
	p.WarningArg = arg
}

func containsCategory(choices []CategoryChoice, id int64) bool {
	return slices.ContainsFunc(choices, func(c CategoryChoice) bool { return c.ID == id })
}

func savedMessage(s State) Effect {
	args := summaryArgs(s)
	p := s.Payload
	switch {
	case p.Recurrence != nil:
		args["schedule"] = recurrence.Describe(*p.Recurrence, s.CreatedAt)
		return Say{ID: MsgSavedRecurring, Args: args}
	case p.CategoryLabel != "":
		args["category"] = p.CategoryLabel
		return Say{ID: MsgSavedInCategory, Args: args}
	default:
		return Say{ID: MsgSaved, Args: args}
	}
}

func summaryArgs(s State) map[string]string {
	return map[string]string{
		"task": s.Payload.Task,
		"time": formatDue(s.Payload.DueTime),
		"who":  describeTarget(s.Payload.ResolvedTarget),
	}
}

func describeTarget(res *target.Resolution) string {
	if res == nil {
		return "you"
	}
	switch res.Type {
	case target.TypeUser:
		if res.Name != "" {
			return res.Name
		}
		return res.ID
	case target.TypeBroadcast:
		if res.Name != "" {
			return "everyone in " + res.Name
		}
		return "everyone here"
	default:
		return "you"
	}
}

func formatDue(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("Mon Jan 2 at 15:04")
}

func formatChoices(choices []CategoryChoice) string {
	var b strings.Builder
	for i, c := range choices {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, c.Label())
	}
	return b.String()
}

func normalizeAnswer(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.TrimRight(text, ".!? ")
	return strings.Join(strings.Fields(text), " ")
}
