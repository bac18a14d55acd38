// Package job executes one report delivery end to end: reload the
// schedule, capture or fetch the artifact, build content, dispatch.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/yourusername/report-scheduler/pkg/auth"
	"github.com/yourusername/report-scheduler/pkg/config"
	"github.com/yourusername/report-scheduler/pkg/model"
	"github.com/yourusername/report-scheduler/pkg/report"
	"github.com/yourusername/report-scheduler/pkg/urls"
)

// ErrUnknownTarget marks a target kind or chart format no branch
// handles. It is a configuration error: fatal for the job, never
// retried.
var ErrUnknownTarget = errors.New("unknown target kind or format")

// Store is the read surface the runner needs.
type Store interface {
	GetSchedule(id int64) (*model.Schedule, error)
	GetDashboard(id int64) (*model.Dashboard, error)
	GetChart(id int64) (*model.Chart, error)
}

// Renderer captures a screenshot of the element class on a page.
type Renderer interface {
	Render(ctx context.Context, targetURL string, width, height int, elementClass string) ([]byte, error)
}

// Dispatcher fans built content out to the delivery channels.
type Dispatcher interface {
	DeliverEmail(recipients string, asGroup bool, subject string, c report.Content) error
	DeliverSlack(ctx context.Context, channel, subject string, c report.Content) error
}

// CookieSource provides a session for authenticated data fetches.
type CookieSource interface {
	Acquire(ctx context.Context) ([]auth.Cookie, error)
}

// Runner executes delivery jobs. Each Execute call is independent;
// the runner holds no per-job state.
type Runner struct {
	store      Store
	renderer   Renderer
	dispatcher Dispatcher
	sessions   CookieSource
	urls       *urls.Resolver
	cfg        *config.Config
	httpClient *http.Client
}

// NewRunner wires a runner from its collaborators.
func NewRunner(store Store, renderer Renderer, dispatcher Dispatcher, sessions CookieSource, resolver *urls.Resolver, cfg *config.Config) *Runner {
	return &Runner{
		store:      store,
		renderer:   renderer,
		dispatcher: dispatcher,
		sessions:   sessions,
		urls:       resolver,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Execute runs one delivery. Overrides win over the schedule's stored
// recipients and channel. A missing or inactive schedule is the
// expected outcome of a disable racing an enqueued job: logged, not an
// error.
func (r *Runner) Execute(ctx context.Context, kind model.TargetKind, scheduleID int64, overrideRecipients, overrideChannel string) error {
	schedule, err := r.store.GetSchedule(scheduleID)
	if err != nil {
		return fmt.Errorf("failed to load schedule %d: %w", scheduleID, err)
	}
	if schedule == nil || !schedule.Active {
		log.Printf("[EXECUTE] Schedule %d missing or inactive, skipping delivery", scheduleID)
		return nil
	}

	recipients := schedule.Recipients
	if overrideRecipients != "" {
		recipients = overrideRecipients
	}
	channel := schedule.SlackChannel
	if overrideChannel != "" {
		channel = overrideChannel
	}

	var (
		title   string
		content report.Content
	)
	switch kind {
	case model.TargetDashboard:
		title, content, err = r.buildDashboard(ctx, schedule)
	case model.TargetChart:
		title, content, err = r.buildChart(ctx, schedule)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTarget, kind)
	}
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s %s", r.cfg.SubjectPrefix, title)

	var errs []error
	if recipients != "" {
		if err := r.dispatcher.DeliverEmail(recipients, schedule.DeliverAsGroup, subject, content); err != nil {
			errs = append(errs, fmt.Errorf("email delivery: %w", err))
		}
	}
	if channel != "" {
		if err := r.dispatcher.DeliverSlack(ctx, channel, subject, content); err != nil {
			errs = append(errs, fmt.Errorf("slack delivery: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) buildDashboard(ctx context.Context, schedule *model.Schedule) (string, report.Content, error) {
	dashboard, err := r.store.GetDashboard(schedule.DashboardID)
	if err != nil {
		return "", report.Content{}, fmt.Errorf("failed to load dashboard %d: %w", schedule.DashboardID, err)
	}

	window := r.cfg.WindowFor(string(model.TargetDashboard))
	shot, err := r.renderer.Render(ctx, r.urls.Dashboard(dashboard.ID), window.Width, window.Height, "grid-container")
	if err != nil {
		return "", report.Content{}, err
	}

	content, err := report.BuildVisualization(schedule.DeliveryMode, shot, dashboard.Title,
		r.urls.DashboardPublic(dashboard.ID), r.senderDomain())
	return dashboard.Title, content, err
}

func (r *Runner) buildChart(ctx context.Context, schedule *model.Schedule) (string, report.Content, error) {
	chart, err := r.store.GetChart(schedule.ChartID)
	if err != nil {
		return "", report.Content{}, fmt.Errorf("failed to load chart %d: %w", schedule.ChartID, err)
	}

	switch schedule.ChartFormat {
	case model.FormatVisualization:
		window := r.cfg.WindowFor(string(model.TargetChart))
		shot, err := r.renderer.Render(ctx, r.urls.Chart(chart.ID), window.Width, window.Height, "chart-container")
		if err != nil {
			return "", report.Content{}, err
		}
		content, err := report.BuildVisualization(schedule.DeliveryMode, shot, chart.Name,
			r.urls.ChartPublic(chart.ID), r.senderDomain())
		return chart.Name, content, err

	case model.FormatData:
		csvData, err := r.fetchCSV(ctx, r.urls.ChartData(chart.ID))
		if err != nil {
			return "", report.Content{}, err
		}
		content, err := report.BuildData(schedule.DeliveryMode, csvData, chart.Name, r.urls.ChartPublic(chart.ID))
		return chart.Name, content, err

	default:
		return "", report.Content{}, fmt.Errorf("%w: chart format %q", ErrUnknownTarget, schedule.ChartFormat)
	}
}

// fetchCSV downloads a chart's data export with an authenticated
// session cookie.
func (r *Runner) fetchCSV(ctx context.Context, dataURL string) ([]byte, error) {
	cookies, err := r.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build data request: %w", err)
	}
	for _, cookie := range cookies {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chart data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart data fetch returned %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chart data: %w", err)
	}
	return data, nil
}

func (r *Runner) senderDomain() string {
	from := r.cfg.SMTP.From
	if at := strings.LastIndex(from, "@"); at >= 0 {
		return from[at+1:]
	}
	return "localhost"
}
