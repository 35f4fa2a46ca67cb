package recurrence

import (
	"testing"
	"time"
)

func TestToSchedule(t *testing.T) {
	t.Parallel()

	// A Wednesday.
	created := time.Date(2025, 4, 30, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		d    Descriptor
		want string
	}{
		{name: "daily", d: Descriptor{Frequency: "daily", Hour: 8, Minute: 15}, want: "15 8 * * *"},
		{name: "day", d: Descriptor{Frequency: "day", Hour: 7}, want: "0 7 * * *"},
		{name: "morning", d: Descriptor{Frequency: "morning", Hour: 9}, want: "0 9 * * *"},
		{name: "night", d: Descriptor{Frequency: "night", Hour: 21, Minute: 30}, want: "30 21 * * *"},
		{name: "weekly binds creation weekday", d: Descriptor{Frequency: "weekly", Hour: 10}, want: "0 10 * * 3"},
		{name: "week", d: Descriptor{Frequency: "week", Hour: 10}, want: "0 10 * * 3"},
		{name: "named weekday", d: Descriptor{Frequency: "monday", Hour: 9}, want: "0 9 * * 1"},
		{name: "plural weekday", d: Descriptor{Frequency: "Fridays", Hour: 17}, want: "0 17 * * 5"},
		{name: "abbreviated weekday", d: Descriptor{Frequency: "sun", Hour: 11}, want: "0 11 * * 0"},
		{name: "weekday", d: Descriptor{Frequency: "weekday", Hour: 9}, want: "0 9 * * 1-5"},
		{name: "weekend", d: Descriptor{Frequency: "weekend", Hour: 10}, want: "0 10 * * 0,6"},
		{name: "unknown falls back to daily", d: Descriptor{Frequency: "fortnightly", Hour: 6}, want: "0 6 * * *"},
		{name: "empty falls back to daily", d: Descriptor{Hour: 6}, want: "0 6 * * *"},
		{name: "out of range clamps", d: Descriptor{Frequency: "daily", Hour: 27, Minute: -3}, want: "0 23 * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ToSchedule(tt.d, created)
			if got != tt.want {
				t.Errorf("ToSchedule(%+v) = %q, want %q", tt.d, got, tt.want)
			}
			if err := Validate(got); err != nil {
				t.Errorf("ToSchedule produced an invalid expression: %v", err)
			}
		})
	}
}

func TestToScheduleWeekdayIgnoresCreationDate(t *testing.T) {
	t.Parallel()

	d := Descriptor{Frequency: "weekday", Hour: 9, Minute: 0}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 14; i++ {
		created := start.AddDate(0, 0, i)
		if got := ToSchedule(d, created); got != "0 9 * * 1-5" {
			t.Fatalf("ToSchedule(weekday, %s) = %q, want Monday-Friday at 09:00", created.Weekday(), got)
		}
	}
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	// Saturday 10:00.
	after := time.Date(2025, 5, 3, 10, 0, 0, 0, time.UTC)

	next, err := NextRun("0 9 * * 1-5", after)
	if err != nil {
		t.Fatalf("NextRun() error = %v", err)
	}
	if want := time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("NextRun() = %s, want %s", next, want)
	}

	if _, err := NextRun("not a schedule", after); err == nil {
		t.Error("NextRun() with invalid expression should fail")
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text     string
		want     Descriptor
		matched  string
		explicit bool
	}{
		{text: "stand up every weekday at 9am", want: Descriptor{Frequency: "weekday", Hour: 9}, matched: "every weekday", explicit: true},
		{text: "water plants every morning", want: Descriptor{Frequency: "morning", Hour: 9}, matched: "every morning"},
		{text: "take pills every night", want: Descriptor{Frequency: "night", Hour: 21}, matched: "every night"},
		{text: "review budget weekly at 4:30pm", want: Descriptor{Frequency: "weekly", Hour: 16, Minute: 30}, matched: "weekly", explicit: true},
		{text: "gym on mondays at 18:00", want: Descriptor{Frequency: "mondays", Hour: 18}, matched: "on mondays", explicit: true},
		{text: "daily standup", want: Descriptor{Frequency: "daily", Hour: 9}, matched: "daily"},
		{text: "call mom every sunday at 11", want: Descriptor{Frequency: "sunday", Hour: 11}, matched: "every sunday", explicit: true},
		{text: "clean the house every weekend", want: Descriptor{Frequency: "weekend", Hour: 9}, matched: "every weekend"},
		{text: "beber água todo dia às 10:00", want: Descriptor{Frequency: "daily", Hour: 10}, matched: "todo dia", explicit: true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			p, ok := Find(tt.text)
			if !ok {
				t.Fatalf("Find(%q) found nothing", tt.text)
			}
			if p.Descriptor != tt.want {
				t.Errorf("Descriptor = %+v, want %+v", p.Descriptor, tt.want)
			}
			if got := tt.text[p.Start:p.End]; got != tt.matched {
				t.Errorf("matched %q, want %q", got, tt.matched)
			}
			if p.ExplicitTime != tt.explicit {
				t.Errorf("ExplicitTime = %v, want %v", p.ExplicitTime, tt.explicit)
			}
		})
	}

	if _, ok := ParsePhrase("call John tomorrow at 3pm"); ok {
		t.Error("one-off reminder must not be recognized as recurring")
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text         string
		hour, minute int
		ok           bool
	}{
		{text: "at 3pm", hour: 15, ok: true},
		{text: "at 12am", hour: 0, ok: true},
		{text: "at 12pm", hour: 12, ok: true},
		{text: "at 7:45", hour: 7, minute: 45, ok: true},
		{text: "around 21:10", hour: 21, minute: 10, ok: true},
		{text: "at 99", ok: false},
		{text: "no time here", ok: false},
	}
	for _, tt := range tests {
		h, m, ok := ParseClock(tt.text)
		if ok != tt.ok || h != tt.hour || m != tt.minute {
			t.Errorf("ParseClock(%q) = (%d, %d, %v), want (%d, %d, %v)", tt.text, h, m, ok, tt.hour, tt.minute, tt.ok)
		}
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 4, 30, 14, 0, 0, 0, time.UTC)
	tests := map[Descriptor]string{
		{Frequency: "weekday", Hour: 9}:              "every weekday at 09:00",
		{Frequency: "weekly", Hour: 18, Minute: 5}:   "every Wednesday at 18:05",
		{Frequency: "mondays", Hour: 7}:              "every Monday at 07:00",
		{Frequency: "night", Hour: 21}:               "every day at 21:00",
		{Frequency: "weekend", Hour: 10, Minute: 30}: "every weekend at 10:30",
		{Frequency: "whenever", Hour: 6}:             "every day at 06:00",
	}
	for d, want := range tests {
		if got := Describe(d, created); got != want {
			t.Errorf("Describe(%+v) = %q, want %q", d, got, want)
		}
	}
}
