// Package recurrence turns informal repeat descriptions ("every weekday at
// 9am", "weekly", "every night") into five-field cron expressions.
package recurrence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Descriptor is a frequency token plus time of day.
type Descriptor struct {
	Frequency string `json:"frequency"`
	Hour      int    `json:"hour"`
	Minute    int    `json:"minute"`
}

// Default hours for part-of-day frequencies without an explicit time.
var partOfDayHours = map[string]int{
	"morning":   9,
	"afternoon": 15,
	"evening":   19,
	"night":     21,
}

// DefaultHour applies when neither a time nor a part of day is given.
const DefaultHour = 9

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ToSchedule maps d to "minute hour dom month dow". Weekly schedules repeat
// on created's weekday. Unrecognized frequencies run daily. Out-of-range
// hours and minutes are clamped.
func ToSchedule(d Descriptor, created time.Time) string {
	hour := min(max(d.Hour, 0), 23)
	minute := min(max(d.Minute, 0), 59)

	dow := "*"
	freq := strings.ToLower(strings.TrimSpace(d.Frequency))
	switch freq {
	case "day", "daily", "morning", "afternoon", "evening", "night":
	case "week", "weekly":
		dow = strconv.Itoa(int(created.Weekday()))
	case "weekday", "weekdays":
		dow = "1-5"
	case "weekend", "weekends":
		dow = "0,6"
	default:
		if wd, ok := weekdays[strings.TrimSuffix(freq, "s")]; ok {
			dow = strconv.Itoa(int(wd))
		} else if wd, ok := weekdays[freq]; ok {
			dow = strconv.Itoa(int(wd))
		}
	}

	return fmt.Sprintf("%d %d * * %s", minute, hour, dow)
}

// Validate reports whether schedule is a valid five-field expression.
func Validate(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// NextRun returns the first time after the given instant at which schedule
// fires, in after's location.
func NextRun(schedule string, after time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	next := sched.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("schedule %q never fires", schedule)
	}
	return next, nil
}

// Phrase is a recurrence found inside free text.
type Phrase struct {
	Descriptor Descriptor
	// Start and End delimit the frequency words in the source text.
	Start, End int
	// ExplicitTime is set when the text carried a clock time.
	ExplicitTime bool
}

var dayAlternation = "sunday|monday|tuesday|wednesday|thursday|friday|saturday"

var frequencyRe = regexp.MustCompile(`(?i)\b(?:` +
	`every\s+(?:single\s+)?(?P<every>day|morning|afternoon|evening|night|week|weekday|weekend|` + dayAlternation + `)` +
	`|(?P<adverb>daily|nightly|weekly)` +
	`|(?:on\s+)?(?P<plural>weekdays|weekends|` + strings.ReplaceAll(dayAlternation, "|", "s|") + `s)` +
	`|(?:todo\s+dia|todos\s+os\s+dias|diariamente)` +
	`|(?P<ptweek>toda\s+semana|semanalmente)` +
	`)\b`)

var (
	clockRe    = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	meridiemRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	h24Re      = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
)

// Find extracts the first recurrence phrase from text. The time of day is
// taken from a clock time anywhere in the text, else from the part of day,
// else DefaultHour.
func Find(text string) (Phrase, bool) {
	loc := frequencyRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return Phrase{}, false
	}

	freq := "daily"
	for i, name := range frequencyRe.SubexpNames() {
		if name == "" || loc[2*i] < 0 {
			continue
		}
		word := strings.ToLower(text[loc[2*i]:loc[2*i+1]])
		switch name {
		case "every":
			freq = word
		case "adverb":
			if word == "weekly" {
				freq = "weekly"
			} else if word == "nightly" {
				freq = "night"
			}
		case "plural":
			freq = word
		case "ptweek":
			freq = "weekly"
		}
	}

	p := Phrase{Descriptor: Descriptor{Frequency: freq}, Start: loc[0], End: loc[1]}
	if hour, minute, ok := ParseClock(text); ok {
		p.Descriptor.Hour, p.Descriptor.Minute = hour, minute
		p.ExplicitTime = true
	} else if h, ok := partOfDayHours[freq]; ok {
		p.Descriptor.Hour = h
	} else {
		p.Descriptor.Hour = DefaultHour
	}
	return p, true
}

// ParsePhrase returns the descriptor of the recurrence in text, if any.
func ParsePhrase(text string) (Descriptor, bool) {
	p, ok := Find(text)
	return p.Descriptor, ok
}

// ParseClock finds a clock time such as "at 9", "9:30pm" or "21:15".
func ParseClock(text string) (hour, minute int, ok bool) {
	for _, re := range []*regexp.Regexp{meridiemRe, clockRe, h24Re} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		hour, _ = strconv.Atoi(m[1])
		minute = 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if len(m) > 3 {
			switch strings.ToLower(m[3]) {
			case "pm":
				if hour < 12 {
					hour += 12
				}
			case "am":
				if hour == 12 {
					hour = 0
				}
			}
		}
		if hour > 23 || minute > 59 {
			continue
		}
		return hour, minute, true
	}
	return 0, 0, false
}

// Describe renders d for humans, e.g. "every weekday at 09:00".
func Describe(d Descriptor, created time.Time) string {
	at := fmt.Sprintf("%02d:%02d", min(max(d.Hour, 0), 23), min(max(d.Minute, 0), 59))
	freq := strings.ToLower(strings.TrimSpace(d.Frequency))
	switch freq {
	case "week", "weekly":
		return "every " + created.Weekday().String() + " at " + at
	case "weekday", "weekdays":
		return "every weekday at " + at
	case "weekend", "weekends":
		return "every weekend at " + at
	}
	if wd, ok := weekdays[strings.TrimSuffix(freq, "s")]; ok {
		return "every " + wd.String() + " at " + at
	}
	if wd, ok := weekdays[freq]; ok {
		return "every " + wd.String() + " at " + at
	}
	return "every day at " + at
}
