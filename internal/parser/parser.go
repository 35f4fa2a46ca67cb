// Package parser extracts structured reminder requests from free text: the
// task, an absolute due time, recurrence, priority, target and emoji.
// Parsing never fails; fields that cannot be found are left empty.
package parser

import (
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/edgard/assistbot/internal/recurrence"
)

// Priority levels.
const (
	PriorityNormal    = 0
	PriorityImportant = 1
	PriorityUrgent    = 2
)

// Target names who a request is for. The zero value means the sender.
type Target struct {
	Self      bool   `json:"self,omitempty"`
	Name      string `json:"name,omitempty"`
	Broadcast bool   `json:"broadcast,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

// IsSelf reports whether the target resolves to the sender.
func (t *Target) IsSelf() bool {
	return t == nil || t.Self || (t.Name == "" && !t.Broadcast)
}

// Request is a parsed reminder request.
type Request struct {
	Task       string                 `json:"task"`
	Time       *time.Time             `json:"time,omitempty"`
	Recurrence *recurrence.Descriptor `json:"recurrence,omitempty"`
	Schedule   string                 `json:"schedule,omitempty"`
	Priority   int                    `json:"priority,omitempty"`
	Target     *Target                `json:"target,omitempty"`
	Emoji      string                 `json:"emoji,omitempty"`
}

// Parser parses requests and times relative to a reference instant.
type Parser struct {
	w      *when.Parser
	logger *slog.Logger
}

// New creates a parser with English and language-neutral time rules.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w, logger: logger.With("component", "parser")}
}

var (
	leadRe = regexp.MustCompile(`(?i)^(?:please\s+)?(?:can\s+you\s+|could\s+you\s+)?` +
		`(?:` +
		`remind\s+(?P<who>me|us|everyone|everybody|all|here|the\s+(?:channel|group|team)|#[\w-]+|@?[\w.]+)` +
		`(?:\s+(?:in|on)\s+#(?P<chan>[\w-]+))?` +
		`|(?:set|create|add|make)\s+(?:up\s+)?(?:a\s+|new\s+)?reminder(?:\s+for\s+(?P<forwho>me|us|everyone|@?[\w.]+))?` +
		`|don'?t\s+let\s+me\s+forget` +
		`|(?:me\s+)?lembr(?:e|a|ar)(?:-me)?` +
		`)\b\s*(?:to\s+|that\s+|about\s+|of\s+|de\s+|que\s+|:\s*)?`)

	channelRe  = regexp.MustCompile(`(?i)\s*\b(?:in|on)\s+#(?P<chan>[\w-]+)`)
	urgentRe   = regexp.MustCompile(`(?i)\b(?:urgent(?:ly)?|asap|urgente)\b|!!+`)
	importRe   = regexp.MustCompile(`(?i)\b(?:important|importante|high\s+priority)\b`)
	danglingRe = regexp.MustCompile(`(?i)(?:\s+(?:at|on|in|by|for|from|every|,|-))+$`)
	leadingRe  = regexp.MustCompile(`(?i)^(?:to|that|about|of|de|que)\s+`)
)

var broadcastWords = map[string]bool{
	"us": true, "everyone": true, "everybody": true, "all": true, "here": true,
	"the channel": true, "the group": true, "the team": true,
}

// ParseRequest parses text relative to now.
func (p *Parser) ParseRequest(text string, now time.Time) Request {
	var req Request
	rest := strings.TrimSpace(text)

	rest, req.Target = extractTarget(rest)
	rest, req.Priority = extractPriority(rest)

	if emoji, start, end, ok := FindEmoji(rest); ok {
		req.Emoji = emoji
		rest = cut(rest, start, end)
	}

	if phrase, ok := recurrence.Find(rest); ok {
		desc := phrase.Descriptor
		req.Recurrence = &desc
		req.Schedule = recurrence.ToSchedule(desc, now)
		if next, err := recurrence.NextRun(req.Schedule, now); err == nil {
			req.Time = &next
		} else {
			p.logger.Warn("Failed to compute next run", "schedule", req.Schedule, "error", err)
		}
		rest = cut(rest, phrase.Start, phrase.End)
		// Drop the clock words; the descriptor already carries the time.
		if r, err := p.w.Parse(rest, now); err == nil && r != nil {
			rest = cut(rest, r.Index, r.Index+len(r.Text))
		}
	} else if r, err := p.w.Parse(rest, now); err == nil && r != nil {
		due := rollForward(r.Time, now)
		req.Time = &due
		rest = cut(rest, r.Index, r.Index+len(r.Text))
	}

	req.Task = cleanTask(rest)
	return req
}

// ParseTime returns the first absolute time found in text.
func (p *Parser) ParseTime(text string, now time.Time) (time.Time, bool) {
	r, err := p.w.Parse(text, now)
	if err != nil {
		p.logger.Debug("Time parse failed", "error", err)
		return time.Time{}, false
	}
	if r == nil {
		return time.Time{}, false
	}
	return rollForward(r.Time, now), true
}

// rollForward moves a bare clock time that already passed today to the
// next day.
func rollForward(t, now time.Time) time.Time {
	if !t.After(now) && now.Sub(t) < 24*time.Hour {
		return t.Add(24 * time.Hour)
	}
	return t
}

func extractTarget(text string) (string, *Target) {
	loc := leadRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, nil
	}

	var who, channel string
	for i, name := range leadRe.SubexpNames() {
		if loc[2*i] < 0 {
			continue
		}
		switch name {
		case "who", "forwho":
			who = text[loc[2*i]:loc[2*i+1]]
		case "chan":
			channel = text[loc[2*i]:loc[2*i+1]]
		}
	}
	rest := text[loc[1]:]

	if channel == "" {
		if m := channelRe.FindStringSubmatchIndex(rest); m != nil {
			channel = rest[m[2]:m[3]]
			rest = cut(rest, m[0], m[1])
		}
	}

	target := resolveWho(strings.ToLower(strings.Join(strings.Fields(who), " ")), who)
	if channel != "" {
		if target == nil || target.Self {
			target = &Target{}
		}
		target.Broadcast = true
		target.Name = ""
		target.Channel = channel
	}
	return rest, target
}

func resolveWho(lower, original string) *Target {
	switch {
	case lower == "" || lower == "me":
		return &Target{Self: true}
	case broadcastWords[lower]:
		return &Target{Broadcast: true}
	case strings.HasPrefix(lower, "#"):
		return &Target{Broadcast: true, Channel: strings.TrimPrefix(original, "#")}
	default:
		return &Target{Name: strings.TrimPrefix(original, "@")}
	}
}

func extractPriority(text string) (string, int) {
	priority := PriorityNormal
	if loc := urgentRe.FindStringIndex(text); loc != nil {
		priority = PriorityUrgent
		text = cut(text, loc[0], loc[1])
	} else if loc := importRe.FindStringIndex(text); loc != nil {
		priority = PriorityImportant
		text = cut(text, loc[0], loc[1])
	}
	return text, priority
}

func cut(text string, start, end int) string {
	if start < 0 || end > len(text) || start > end {
		return text
	}
	return text[:start] + " " + text[end:]
}

func cleanTask(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	for {
		trimmed := leadingRe.ReplaceAllString(text, "")
		trimmed = danglingRe.ReplaceAllString(trimmed, "")
		trimmed = strings.TrimRightFunc(trimmed, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSpace(r)
		})
		trimmed = strings.TrimLeftFunc(trimmed, func(r rune) bool {
			return unicode.IsSpace(r) || r == ',' || r == ':' || r == '-'
		})
		if trimmed == text {
			return text
		}
		text = trimmed
	}
}
