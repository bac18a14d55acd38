package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite" // Register SQLite driver

	"github.com/yourusername/report-scheduler/pkg/model"
)

const sqliteTimeFormat = "2006-01-02 15:04:05"

// parseTimestamp parses a timestamp string from SQLite, handling multiple formats
func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}

	formats := []string{
		sqliteTimeFormat,                // SQLite standard format (UTC assumed)
		"2006-01-02 15:04:05 -0700 MST", // With timezone offset and name
		"2006-01-02 15:04:05 -0700",     // With timezone offset only
		time.RFC3339,                    // ISO 8601
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			t = t.UTC()
			return &t
		}
	}

	log.Printf("[STORE] WARNING: Failed to parse timestamp: %s", s)
	return nil
}

// Store handles database operations. Reads go straight to the
// connection; writes are serialized through a single-writer queue.
type Store struct {
	db         *sql.DB
	writeQueue *writeQueue
}

// NewStore creates a new store instance
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode allows concurrent readers alongside the single writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store.writeQueue = newWriteQueue(store)

	return store, nil
}

// migrate runs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			org_id INTEGER NOT NULL DEFAULT 0,
			target_kind TEXT NOT NULL,
			dashboard_id INTEGER,
			chart_id INTEGER,
			cron_expr TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			delivery_mode TEXT NOT NULL,
			chart_format TEXT,
			recipients TEXT NOT NULL DEFAULT '',
			slack_channel TEXT NOT NULL DEFAULT '',
			deliver_as_group INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_target_kind ON schedules(target_kind)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_active ON schedules(active)`,
		`CREATE TABLE IF NOT EXISTS dashboards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			org_id INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS charts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			org_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target_kind TEXT NOT NULL,
			schedule_id INTEGER NOT NULL,
			recipients TEXT NOT NULL DEFAULT '',
			slack_channel TEXT NOT NULL DEFAULT '',
			eta DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			error_text TEXT,
			started_at DATETIME,
			finished_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (schedule_id) REFERENCES schedules(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status_eta ON jobs(status, eta)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_schedule_id ON jobs(schedule_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// ActiveSchedules retrieves all active schedules of the given target kind.
func (s *Store) ActiveSchedules(kind model.TargetKind) ([]*model.Schedule, error) {
	rows, err := s.db.Query(scheduleColumns+`
		FROM schedules WHERE active = 1 AND target_kind = ? ORDER BY id`,
		string(kind),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := make([]*model.Schedule, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}

	return schedules, rows.Err()
}

// ListSchedules retrieves every schedule regardless of kind or state.
func (s *Store) ListSchedules() ([]*model.Schedule, error) {
	rows, err := s.db.Query(scheduleColumns + ` FROM schedules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := make([]*model.Schedule, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}

	return schedules, rows.Err()
}

// GetSchedule retrieves a schedule by ID. Returns (nil, nil) when the
// schedule does not exist; a deleted schedule is an expected condition
// for the delivery job, not an error.
func (s *Store) GetSchedule(id int64) (*model.Schedule, error) {
	row := s.db.QueryRow(scheduleColumns+` FROM schedules WHERE id = ?`, id)

	schedule, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

const scheduleColumns = `
	SELECT id, org_id, target_kind, dashboard_id, chart_id, cron_expr, active,
	       delivery_mode, chart_format, recipients, slack_channel,
	       deliver_as_group, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*model.Schedule, error) {
	schedule := &model.Schedule{}
	var dashboardID, chartID sql.NullInt64
	var chartFormat sql.NullString

	err := row.Scan(
		&schedule.ID, &schedule.OrgID, &schedule.TargetKind, &dashboardID, &chartID,
		&schedule.CronExpr, &schedule.Active, &schedule.DeliveryMode, &chartFormat,
		&schedule.Recipients, &schedule.SlackChannel, &schedule.DeliverAsGroup,
		&schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dashboardID.Valid {
		schedule.DashboardID = dashboardID.Int64
	}
	if chartID.Valid {
		schedule.ChartID = chartID.Int64
	}
	if chartFormat.Valid {
		schedule.ChartFormat = model.ChartFormat(chartFormat.String)
	}

	return schedule, nil
}

// CreateSchedule creates a new schedule (queued for serialized execution).
// Used by the management surface and tests; the delivery pipeline itself
// only reads schedules.
func (s *Store) CreateSchedule(schedule *model.Schedule) error {
	return s.writeQueue.enqueue(opCreateSchedule, schedule)
}

func (s *Store) createScheduleDirect(schedule *model.Schedule) error {
	now := time.Now().UTC().Truncate(time.Second)
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	result, err := s.db.Exec(`
		INSERT INTO schedules (
			org_id, target_kind, dashboard_id, chart_id, cron_expr, active,
			delivery_mode, chart_format, recipients, slack_channel,
			deliver_as_group, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.OrgID, string(schedule.TargetKind), nullInt(schedule.DashboardID),
		nullInt(schedule.ChartID), schedule.CronExpr, schedule.Active,
		string(schedule.DeliveryMode), nullString(string(schedule.ChartFormat)),
		schedule.Recipients, schedule.SlackChannel, schedule.DeliverAsGroup,
		now, now,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	schedule.ID = id

	return nil
}

// UpdateSchedule updates an existing schedule (queued for serialized execution).
func (s *Store) UpdateSchedule(schedule *model.Schedule) error {
	return s.writeQueue.enqueue(opUpdateSchedule, schedule)
}

func (s *Store) updateScheduleDirect(schedule *model.Schedule) error {
	schedule.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	_, err := s.db.Exec(`
		UPDATE schedules SET
			target_kind = ?, dashboard_id = ?, chart_id = ?, cron_expr = ?,
			active = ?, delivery_mode = ?, chart_format = ?, recipients = ?,
			slack_channel = ?, deliver_as_group = ?, updated_at = ?
		WHERE id = ?`,
		string(schedule.TargetKind), nullInt(schedule.DashboardID),
		nullInt(schedule.ChartID), schedule.CronExpr, schedule.Active,
		string(schedule.DeliveryMode), nullString(string(schedule.ChartFormat)),
		schedule.Recipients, schedule.SlackChannel, schedule.DeliverAsGroup,
		schedule.UpdatedAt, schedule.ID,
	)
	return err
}

// DeleteSchedule deletes a schedule (queued for serialized execution).
func (s *Store) DeleteSchedule(id int64) error {
	return s.writeQueue.enqueue(opDeleteSchedule, id)
}

func (s *Store) deleteScheduleDirect(id int64) error {
	_, err := s.db.Exec("DELETE FROM schedules WHERE id = ?", id)
	return err
}

// GetDashboard retrieves dashboard target metadata.
func (s *Store) GetDashboard(id int64) (*model.Dashboard, error) {
	dashboard := &model.Dashboard{}
	err := s.db.QueryRow(
		`SELECT id, org_id, title FROM dashboards WHERE id = ?`, id,
	).Scan(&dashboard.ID, &dashboard.OrgID, &dashboard.Title)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dashboard %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return dashboard, nil
}

// GetChart retrieves chart target metadata.
func (s *Store) GetChart(id int64) (*model.Chart, error) {
	chart := &model.Chart{}
	err := s.db.QueryRow(
		`SELECT id, org_id, name FROM charts WHERE id = ?`, id,
	).Scan(&chart.ID, &chart.OrgID, &chart.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chart %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return chart, nil
}

// CreateDashboard inserts dashboard metadata (management surface/tests).
func (s *Store) CreateDashboard(dashboard *model.Dashboard) error {
	return s.writeQueue.enqueue(opCreateDashboard, dashboard)
}

func (s *Store) createDashboardDirect(dashboard *model.Dashboard) error {
	result, err := s.db.Exec(
		`INSERT INTO dashboards (org_id, title) VALUES (?, ?)`,
		dashboard.OrgID, dashboard.Title,
	)
	if err != nil {
		return err
	}
	dashboard.ID, err = result.LastInsertId()
	return err
}

// CreateChart inserts chart metadata (management surface/tests).
func (s *Store) CreateChart(chart *model.Chart) error {
	return s.writeQueue.enqueue(opCreateChart, chart)
}

func (s *Store) createChartDirect(chart *model.Chart) error {
	result, err := s.db.Exec(
		`INSERT INTO charts (org_id, name) VALUES (?, ?)`,
		chart.OrgID, chart.Name,
	)
	if err != nil {
		return err
	}
	chart.ID, err = result.LastInsertId()
	return err
}

// CreateJob persists a delivery job (queued for serialized execution).
func (s *Store) CreateJob(job *model.Job) error {
	return s.writeQueue.enqueue(opCreateJob, job)
}

func (s *Store) createJobDirect(job *model.Job) error {
	job.CreatedAt = time.Now().UTC().Truncate(time.Second)
	if job.Status == "" {
		job.Status = model.JobPending
	}

	result, err := s.db.Exec(`
		INSERT INTO jobs (target_kind, schedule_id, recipients, slack_channel, eta, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(job.TargetKind), job.ScheduleID, job.Recipients, job.SlackChannel,
		job.ETA.UTC().Format(sqliteTimeFormat), string(job.Status), job.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	job.ID = id

	return nil
}

// UpdateJob persists job status transitions (queued for serialized execution).
func (s *Store) UpdateJob(job *model.Job) error {
	return s.writeQueue.enqueue(opUpdateJob, job)
}

func (s *Store) updateJobDirect(job *model.Job) error {
	var startedAt, finishedAt interface{}
	if job.StartedAt != nil {
		startedAt = job.StartedAt.UTC().Format(sqliteTimeFormat)
	}
	if job.FinishedAt != nil {
		finishedAt = job.FinishedAt.UTC().Format(sqliteTimeFormat)
	}

	_, err := s.db.Exec(`
		UPDATE jobs SET
			status = ?, attempts = ?, error_text = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		string(job.Status), job.Attempts, job.ErrorText, startedAt, finishedAt, job.ID,
	)
	return err
}

// DueJobs retrieves pending jobs whose ETA has passed, oldest first.
func (s *Store) DueJobs(now time.Time, limit int) ([]*model.Job, error) {
	rows, err := s.db.Query(`
		SELECT id, target_kind, schedule_id, recipients, slack_channel, eta,
		       status, attempts, error_text, started_at, finished_at, created_at
		FROM jobs
		WHERE status = 'pending' AND datetime(eta) <= datetime(?)
		ORDER BY eta ASC LIMIT ?`,
		now.UTC().Format(sqliteTimeFormat), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*model.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// RequeueStaleJobs resets jobs stuck in the running state longer than
// the cutoff. Called on startup so a crashed worker's jobs run again;
// this is where the at-least-once guarantee comes from.
func (s *Store) RequeueStaleJobs(olderThan time.Time) (int64, error) {
	result, err := s.db.Exec(`
		UPDATE jobs SET status = 'pending', started_at = NULL
		WHERE status = 'running' AND datetime(started_at) < datetime(?)`,
		olderThan.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[STORE] Requeued %d stale running job(s)", n)
	}
	return n, nil
}

func scanJob(row rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var etaStr string
	var errorText sql.NullString
	var startedAtStr, finishedAtStr sql.NullString

	err := row.Scan(
		&job.ID, &job.TargetKind, &job.ScheduleID, &job.Recipients,
		&job.SlackChannel, &etaStr, &job.Status, &job.Attempts,
		&errorText, &startedAtStr, &finishedAtStr, &job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if eta := parseTimestamp(etaStr); eta != nil {
		job.ETA = *eta
	}
	if errorText.Valid {
		job.ErrorText = errorText.String
	}
	if startedAtStr.Valid {
		job.StartedAt = parseTimestamp(startedAtStr.String)
	}
	if finishedAtStr.Valid {
		job.FinishedAt = parseTimestamp(finishedAtStr.String)
	}

	return job, nil
}

func nullInt(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// Close closes the database connection and shuts down the write queue
func (s *Store) Close() error {
	if s.writeQueue != nil {
		s.writeQueue.shutdown()
	}
	return s.db.Close()
}
