package cron

import (
	"errors"
	"testing"
	"time"

	"github.com/yourusername/report-scheduler/pkg/config"
	"github.com/yourusername/report-scheduler/pkg/model"
)

type fakeScheduleSource struct {
	schedules map[model.TargetKind][]*model.Schedule
	err       error
}

func (f *fakeScheduleSource) ActiveSchedules(kind model.TargetKind) ([]*model.Schedule, error) {
	return f.schedules[kind], f.err
}

type enqueued struct {
	kind       model.TargetKind
	scheduleID int64
	eta        time.Time
}

type fakeEnqueuer struct {
	jobs []enqueued
	err  error
}

func (f *fakeEnqueuer) Enqueue(kind model.TargetKind, scheduleID int64, _, _ string, eta time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, enqueued{kind: kind, scheduleID: scheduleID, eta: eta})
	return nil
}

func driverConfig(enabled bool) *config.Config {
	cfg := &config.Config{Enabled: enabled, CronResolutionMinutes: 15, Timezone: "UTC"}
	cfg.ApplyDefaults()
	return cfg
}

func hourlySchedule(id int64, kind model.TargetKind) *model.Schedule {
	return &model.Schedule{ID: id, TargetKind: kind, CronExpr: "0 * * * *", Active: true}
}

func TestRunWindowEnqueuesPerInstant(t *testing.T) {
	source := &fakeScheduleSource{schedules: map[model.TargetKind][]*model.Schedule{
		model.TargetDashboard: {hourlySchedule(1, model.TargetDashboard)},
	}}
	sink := &fakeEnqueuer{}
	d := NewDriver(source, sink, driverConfig(true))

	startAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := d.RunWindow(model.TargetDashboard, startAt, startAt.Add(3*time.Hour), 0); err != nil {
		t.Fatalf("RunWindow returned error: %v", err)
	}

	if len(sink.jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(sink.jobs))
	}
	for i, job := range sink.jobs {
		want := startAt.Add(time.Duration(i) * time.Hour)
		if !job.eta.Equal(want) {
			t.Errorf("job %d: eta %v, want %v", i, job.eta, want)
		}
		if job.scheduleID != 1 || job.kind != model.TargetDashboard {
			t.Errorf("job %d: wrong payload %+v", i, job)
		}
	}
}

func TestRunWindowUnknownKindIsNoop(t *testing.T) {
	source := &fakeScheduleSource{err: errors.New("store must not be queried")}
	sink := &fakeEnqueuer{}
	d := NewDriver(source, sink, driverConfig(true))

	startAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := d.RunWindow("spreadsheet", startAt, startAt.Add(time.Hour), 0); err != nil {
		t.Errorf("unknown kind must be a no-op, got %v", err)
	}
	if len(sink.jobs) != 0 {
		t.Errorf("unknown kind must enqueue nothing, got %d jobs", len(sink.jobs))
	}
}

// One schedule's bad cron expression must not take down its siblings.
func TestRunWindowSkipsInvalidCron(t *testing.T) {
	bad := hourlySchedule(1, model.TargetDashboard)
	bad.CronExpr = "not a cron"
	source := &fakeScheduleSource{schedules: map[model.TargetKind][]*model.Schedule{
		model.TargetDashboard: {bad, hourlySchedule(2, model.TargetDashboard)},
	}}
	sink := &fakeEnqueuer{}
	d := NewDriver(source, sink, driverConfig(true))

	startAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := d.RunWindow(model.TargetDashboard, startAt, startAt.Add(time.Hour), 0); err != nil {
		t.Fatalf("RunWindow returned error: %v", err)
	}

	if len(sink.jobs) != 1 || sink.jobs[0].scheduleID != 2 {
		t.Errorf("expected only the valid sibling enqueued, got %+v", sink.jobs)
	}
}

func TestRunHourlyDisabled(t *testing.T) {
	source := &fakeScheduleSource{err: errors.New("store must not be queried")}
	sink := &fakeEnqueuer{}
	d := NewDriver(source, sink, driverConfig(false))

	d.RunHourly()
	if len(sink.jobs) != 0 {
		t.Errorf("disabled feature must enqueue nothing, got %d jobs", len(sink.jobs))
	}
}

func TestRunHourlyWindowBounds(t *testing.T) {
	source := &fakeScheduleSource{schedules: map[model.TargetKind][]*model.Schedule{
		model.TargetDashboard: {hourlySchedule(1, model.TargetDashboard)},
		model.TargetChart:     {{ID: 2, TargetKind: model.TargetChart, CronExpr: "30 14 * * *", Active: true}},
	}}
	sink := &fakeEnqueuer{}
	d := NewDriver(source, sink, driverConfig(true))
	d.now = func() time.Time {
		return time.Date(2024, 6, 3, 14, 17, 42, 0, time.UTC)
	}

	d.RunHourly()

	// The hourly dashboard schedule fires at the top of the current hour;
	// the chart schedule fires at 14:30, inside the window.
	if len(sink.jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %+v", sink.jobs)
	}
	if want := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC); !sink.jobs[0].eta.Equal(want) {
		t.Errorf("dashboard job eta %v, want %v", sink.jobs[0].eta, want)
	}
	if want := time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC); !sink.jobs[1].eta.Equal(want) {
		t.Errorf("chart job eta %v, want %v", sink.jobs[1].eta, want)
	}
}

// Re-running the same hour enqueues the same instants; dedup is the
// queue's concern.
func TestRunHourlyDeterministic(t *testing.T) {
	source := &fakeScheduleSource{schedules: map[model.TargetKind][]*model.Schedule{
		model.TargetDashboard: {hourlySchedule(1, model.TargetDashboard)},
	}}
	sink := &fakeEnqueuer{}
	d := NewDriver(source, sink, driverConfig(true))
	d.now = func() time.Time {
		return time.Date(2024, 6, 3, 9, 5, 0, 0, time.UTC)
	}

	d.RunHourly()
	d.RunHourly()

	if len(sink.jobs) != 2 {
		t.Fatalf("expected 2 jobs from 2 runs, got %d", len(sink.jobs))
	}
	if !sink.jobs[0].eta.Equal(sink.jobs[1].eta) {
		t.Errorf("re-run enqueued a different instant: %v vs %v", sink.jobs[0].eta, sink.jobs[1].eta)
	}
}

func TestRunHourlyUsesConfiguredTimezone(t *testing.T) {
	// 23:30 UTC is already the next day in Helsinki; the window must be
	// computed in the configured zone.
	cfg := driverConfig(true)
	cfg.Timezone = "Europe/Helsinki"

	source := &fakeScheduleSource{schedules: map[model.TargetKind][]*model.Schedule{
		model.TargetDashboard: {{ID: 1, TargetKind: model.TargetDashboard, CronExpr: "0 0 * * *", Active: true}},
	}}
	sink := &fakeEnqueuer{}
	d := NewDriver(source, sink, cfg)
	d.now = func() time.Time {
		return time.Date(2024, 1, 15, 22, 10, 0, 0, time.UTC) // 00:10 in Helsinki (UTC+2)
	}

	d.RunHourly()

	if len(sink.jobs) != 1 {
		t.Fatalf("expected the midnight schedule to fire in local time, got %+v", sink.jobs)
	}
	helsinki, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 1, 16, 0, 0, 0, 0, helsinki)
	if !sink.jobs[0].eta.Equal(want) {
		t.Errorf("eta %v, want local midnight %v", sink.jobs[0].eta, want)
	}
}
