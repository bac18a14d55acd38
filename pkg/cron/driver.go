package cron

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yourusername/report-scheduler/pkg/config"
	"github.com/yourusername/report-scheduler/pkg/model"
)

// Enqueuer accepts one delivery job scheduled for a future instant.
type Enqueuer interface {
	Enqueue(kind model.TargetKind, scheduleID int64, recipients, slackChannel string, eta time.Time) error
}

// ScheduleSource lists the active schedules of one target kind.
type ScheduleSource interface {
	ActiveSchedules(kind model.TargetKind) ([]*model.Schedule, error)
}

// Driver expands schedules over hourly windows and enqueues one
// delivery job per fire instant. It runs synchronously once per
// periodic trigger; concurrency lives in the job queue.
type Driver struct {
	store ScheduleSource
	queue Enqueuer
	cfg   *config.Config
	cron  *cron.Cron

	// now is time.Now in production; tests replace it.
	now func() time.Time
}

// NewDriver creates a scheduler driver.
func NewDriver(store ScheduleSource, queue Enqueuer, cfg *config.Config) *Driver {
	return &Driver{
		store: store,
		queue: queue,
		cfg:   cfg,
		cron:  cron.New(cron.WithSeconds()),
		now:   time.Now,
	}
}

// RunWindow enqueues jobs for every fire instant of every active
// schedule of the given kind inside [startAt, stopAt). An unknown kind
// is a forward-compatible no-op. A schedule with an unparsable cron
// expression is skipped; its siblings still run.
func (d *Driver) RunWindow(kind model.TargetKind, startAt, stopAt time.Time, resolution time.Duration) error {
	if !knownKind(kind) {
		log.Printf("[CRON] Ignoring unknown target kind %q", kind)
		return nil
	}

	schedules, err := d.store.ActiveSchedules(kind)
	if err != nil {
		return fmt.Errorf("failed to load active %s schedules: %w", kind, err)
	}

	enqueued := 0
	for _, schedule := range schedules {
		instants, err := NextSchedules(schedule.CronExpr, startAt, stopAt, resolution)
		if err != nil {
			log.Printf("[CRON] Schedule %d has invalid cron expression %q, skipping: %v",
				schedule.ID, schedule.CronExpr, err)
			continue
		}

		for _, eta := range instants {
			if err := d.queue.Enqueue(kind, schedule.ID, "", "", eta); err != nil {
				return fmt.Errorf("failed to enqueue job for schedule %d at %s: %w",
					schedule.ID, eta.Format(time.RFC3339), err)
			}
			enqueued++
		}
	}

	if enqueued > 0 {
		log.Printf("[CRON] Enqueued %d %s job(s) for window [%s, %s)",
			enqueued, kind, startAt.Format(time.RFC3339), stopAt.Format(time.RFC3339))
	}
	return nil
}

// RunHourly is the periodic entry point: it expands the current hour's
// window once per target kind. Invocations are deterministic for a
// given hour; re-runs enqueue the same instants and duplicate
// suppression is left to the at-least-once queue.
func (d *Driver) RunHourly() {
	if !d.cfg.Enabled {
		log.Printf("[CRON] Scheduled reports disabled, skipping hourly run")
		return
	}

	loc := d.cfg.Location()
	now := d.now().In(loc)
	startAt := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, loc)
	stopAt := startAt.Add(time.Hour)
	resolution := d.cfg.Resolution()

	for _, kind := range model.TargetKinds {
		if err := d.RunWindow(kind, startAt, stopAt, resolution); err != nil {
			log.Printf("[CRON] ERROR: Hourly %s run failed: %v", kind, err)
		}
	}
}

// Start schedules RunHourly at the top of every hour.
func (d *Driver) Start() error {
	entryID, err := d.cron.AddFunc("0 0 * * * *", d.RunHourly)
	if err != nil {
		return fmt.Errorf("failed to add hourly cron entry: %w", err)
	}

	d.cron.Start()
	log.Printf("[CRON] Scheduler driver started (entry ID: %d)", entryID)
	return nil
}

// Stop halts the periodic trigger. In-flight jobs keep running in the
// queue.
func (d *Driver) Stop() {
	d.cron.Stop()
	log.Printf("[CRON] Scheduler driver stopped")
}

func knownKind(kind model.TargetKind) bool {
	for _, k := range model.TargetKinds {
		if k == kind {
			return true
		}
	}
	return false
}
