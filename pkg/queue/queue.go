// Package queue runs persisted delivery jobs. Jobs are enqueued with a
// future ETA, claimed when due, and executed on a bounded worker pool
// under a soft time limit. Execution is at-least-once: jobs stranded in
// the running state by a crash are re-queued on startup.
package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/yourusername/report-scheduler/pkg/config"
	"github.com/yourusername/report-scheduler/pkg/model"
)

// Executor runs one delivery job to completion.
type Executor interface {
	Execute(ctx context.Context, kind model.TargetKind, scheduleID int64, recipients, slackChannel string) error
}

// JobStore is the persistence surface the queue needs.
type JobStore interface {
	CreateJob(job *model.Job) error
	UpdateJob(job *model.Job) error
	DueJobs(now time.Time, limit int) ([]*model.Job, error)
	RequeueStaleJobs(olderThan time.Time) (int64, error)
}

// Queue polls for due jobs and dispatches them to workers.
type Queue struct {
	store        JobStore
	executor     Executor
	timeLimit    time.Duration
	pollInterval time.Duration

	// slots bounds concurrent executions; a send acquires a worker.
	slots chan struct{}

	stop chan struct{}
	wg   sync.WaitGroup

	// now is time.Now in production; tests replace it.
	now func() time.Time
}

// NewQueue builds a queue sized from configuration.
func NewQueue(store JobStore, executor Executor, cfg *config.Config) *Queue {
	return &Queue{
		store:        store,
		executor:     executor,
		timeLimit:    cfg.JobTimeLimit,
		pollInterval: cfg.PollInterval,
		slots:        make(chan struct{}, cfg.MaxConcurrentJobs),
		stop:         make(chan struct{}),
		now:          time.Now,
	}
}

// Enqueue persists one job scheduled for eta. The job runs when eta
// passes, not immediately.
func (q *Queue) Enqueue(kind model.TargetKind, scheduleID int64, recipients, slackChannel string, eta time.Time) error {
	return q.store.CreateJob(&model.Job{
		TargetKind:   kind,
		ScheduleID:   scheduleID,
		Recipients:   recipients,
		SlackChannel: slackChannel,
		ETA:          eta,
		Status:       model.JobPending,
	})
}

// Start recovers stale jobs and begins polling.
func (q *Queue) Start() {
	cutoff := q.now().Add(-2 * q.timeLimit)
	if _, err := q.store.RequeueStaleJobs(cutoff); err != nil {
		log.Printf("[QUEUE] Stale job recovery failed: %v", err)
	}

	q.wg.Add(1)
	go q.loop()
	log.Printf("[QUEUE] Started (poll %s, %d workers, %s soft limit)",
		q.pollInterval, cap(q.slots), q.timeLimit)
}

// Stop halts polling and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
	log.Printf("[QUEUE] Stopped")
}

func (q *Queue) loop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.runDue()
		}
	}
}

// runDue claims due jobs up to the free worker capacity and hands them
// to the pool. A job is marked running before its worker starts so a
// second poll cannot claim it again.
func (q *Queue) runDue() {
	free := cap(q.slots) - len(q.slots)
	if free == 0 {
		return
	}

	jobs, err := q.store.DueJobs(q.now(), free)
	if err != nil {
		log.Printf("[QUEUE] Failed to poll for due jobs: %v", err)
		return
	}

	for _, job := range jobs {
		started := q.now()
		job.Status = model.JobRunning
		job.StartedAt = &started
		job.Attempts++
		if err := q.store.UpdateJob(job); err != nil {
			log.Printf("[QUEUE] Failed to claim job %d: %v", job.ID, err)
			continue
		}

		q.slots <- struct{}{}
		q.wg.Add(1)
		go q.execute(job)
	}
}

func (q *Queue) execute(job *model.Job) {
	defer q.wg.Done()
	defer func() { <-q.slots }()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeLimit)
	defer cancel()

	log.Printf("[QUEUE] Executing job %d (%s schedule %d)", job.ID, job.TargetKind, job.ScheduleID)
	err := q.executor.Execute(ctx, job.TargetKind, job.ScheduleID, job.Recipients, job.SlackChannel)

	finished := q.now()
	job.FinishedAt = &finished
	if err != nil {
		job.Status = model.JobFailed
		job.ErrorText = err.Error()
		log.Printf("[QUEUE] Job %d failed: %v", job.ID, err)
	} else {
		job.Status = model.JobDone
		job.ErrorText = ""
	}

	if err := q.store.UpdateJob(job); err != nil {
		log.Printf("[QUEUE] Failed to record job %d result: %v", job.ID, err)
	}
}
