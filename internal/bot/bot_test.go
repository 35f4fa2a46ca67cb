package bot

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/edgard/assistbot/internal/bot/tasks"
	"github.com/edgard/assistbot/internal/config"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type blockingListener struct{ started chan struct{} }

func (l blockingListener) Start(ctx context.Context) {
	close(l.started)
	<-ctx.Done()
}

type returningListener struct{}

func (returningListener) Start(context.Context) {}

func noop(context.Context) error { return nil }

func newTestScheduler(t *testing.T, cfg *config.SchedulerConfig) *Scheduler {
	t.Helper()
	s, err := NewScheduler(discard(), cfg, map[string]tasks.ScheduledTaskFunc{
		config.TaskStateSweep:     noop,
		config.TaskSQLMaintenance: noop,
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	return s
}

func TestSchedulerStartsEnabledTasks(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		config.TaskStateSweep:     {Enabled: true, Schedule: "0 */5 * * * *"},
		config.TaskSQLMaintenance: {Enabled: false, Schedule: "0 30 4 * * *"},
		"unknown":                 {Enabled: true, Schedule: "0 0 * * * *"},
		"bad_schedule":            {Enabled: true, Schedule: "not cron"},
	}})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() error = nil, want already running")
	}

	got := s.Jobs()
	sort.Strings(got)
	if diff := cmp.Diff([]string{config.TaskStateSweep}, got); diff != "" {
		t.Errorf("Jobs() mismatch (-want +got):\n%s", diff)
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestSchedulerWithoutConfig(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if n := len(s.Jobs()); n != 0 {
		t.Errorf("Jobs() = %d, want 0", n)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestBotRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	listener := blockingListener{started: make(chan struct{})}
	b := NewBot(discard(), listener, newTestScheduler(t, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	<-listener.started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestBotRunFailsWhenListenerStops(t *testing.T) {
	t.Parallel()

	b := NewBot(discard(), returningListener{}, newTestScheduler(t, nil))
	if err := b.Run(context.Background()); err == nil {
		t.Error("Run() error = nil, want listener failure")
	}
}
