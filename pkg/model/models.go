package model

import (
	"time"
)

// TargetKind identifies the type of entity a schedule delivers.
type TargetKind string

const (
	TargetDashboard TargetKind = "dashboard"
	TargetChart     TargetKind = "chart"
)

// TargetKinds lists every kind the pipeline knows how to deliver.
// The scheduler driver iterates this set once per hourly window.
var TargetKinds = []TargetKind{TargetDashboard, TargetChart}

// DeliveryMode selects how the rendered artifact travels in the email.
type DeliveryMode string

const (
	DeliveryAttachment DeliveryMode = "attachment"
	DeliveryInline     DeliveryMode = "inline"
)

// ChartFormat selects what a chart schedule delivers: the raw query
// data as CSV, or a screenshot of the rendered visualization.
type ChartFormat string

const (
	FormatData          ChartFormat = "data"
	FormatVisualization ChartFormat = "visualization"
)

// Schedule is a cron-driven delivery configuration for one dashboard
// or chart target. The delivery pipeline reads schedules but never
// mutates them; they are managed by the external API.
type Schedule struct {
	ID          int64      `json:"id"`
	OrgID       int64      `json:"org_id"`
	TargetKind  TargetKind `json:"target_kind"`
	DashboardID int64      `json:"dashboard_id,omitempty"`
	ChartID     int64      `json:"chart_id,omitempty"`
	CronExpr    string     `json:"cron_expr"`
	Active      bool       `json:"active"`

	DeliveryMode DeliveryMode `json:"delivery_mode"`
	ChartFormat  ChartFormat  `json:"chart_format,omitempty"`

	// Recipients is a raw address list ("a@x, b@y; c@z"). Parsing is
	// left to mail.AddressList so the stored value stays opaque.
	Recipients     string `json:"recipients"`
	SlackChannel   string `json:"slack_channel,omitempty"`
	DeliverAsGroup bool   `json:"deliver_as_group"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TargetID returns the identifier of whichever target the schedule points at.
func (s *Schedule) TargetID() int64 {
	if s.TargetKind == TargetChart {
		return s.ChartID
	}
	return s.DashboardID
}

// Dashboard is the target metadata for a dashboard schedule.
type Dashboard struct {
	ID    int64  `json:"id"`
	OrgID int64  `json:"org_id"`
	Title string `json:"title"`
}

// Chart is the target metadata for a single-chart schedule.
type Chart struct {
	ID    int64  `json:"id"`
	OrgID int64  `json:"org_id"`
	Name  string `json:"name"`
}

// JobStatus tracks a delivery job through the queue.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is one asynchronous delivery unit: a schedule reference plus the
// fire instant it was enqueued for. Recipients/SlackChannel override the
// schedule's stored values when non-empty.
type Job struct {
	ID           int64      `json:"id"`
	TargetKind   TargetKind `json:"target_kind"`
	ScheduleID   int64      `json:"schedule_id"`
	Recipients   string     `json:"recipients,omitempty"`
	SlackChannel string     `json:"slack_channel,omitempty"`
	ETA          time.Time  `json:"eta"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	ErrorText    string     `json:"error_text,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
