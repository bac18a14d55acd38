package job

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yourusername/report-scheduler/pkg/auth"
	"github.com/yourusername/report-scheduler/pkg/config"
	"github.com/yourusername/report-scheduler/pkg/model"
	"github.com/yourusername/report-scheduler/pkg/report"
	"github.com/yourusername/report-scheduler/pkg/urls"
)

type fakeStore struct {
	schedule  *model.Schedule
	dashboard *model.Dashboard
	chart     *model.Chart
}

func (f *fakeStore) GetSchedule(int64) (*model.Schedule, error)   { return f.schedule, nil }
func (f *fakeStore) GetDashboard(int64) (*model.Dashboard, error) { return f.dashboard, nil }
func (f *fakeStore) GetChart(int64) (*model.Chart, error)         { return f.chart, nil }

type fakeRenderer struct {
	calls    int
	lastURL  string
	lastW    int
	lastH    int
	lastElem string
	shot     []byte
	err      error
}

func (f *fakeRenderer) Render(_ context.Context, targetURL string, w, h int, elementClass string) ([]byte, error) {
	f.calls++
	f.lastURL = targetURL
	f.lastW = w
	f.lastH = h
	f.lastElem = elementClass
	return f.shot, f.err
}

type fakeDispatcher struct {
	emailCalls int
	slackCalls int
	recipients string
	asGroup    bool
	channel    string
	subject    string
	content    report.Content
	emailErr   error
	slackErr   error
}

func (f *fakeDispatcher) DeliverEmail(recipients string, asGroup bool, subject string, c report.Content) error {
	f.emailCalls++
	f.recipients = recipients
	f.asGroup = asGroup
	f.subject = subject
	f.content = c
	return f.emailErr
}

func (f *fakeDispatcher) DeliverSlack(_ context.Context, channel, subject string, c report.Content) error {
	f.slackCalls++
	f.channel = channel
	f.subject = subject
	f.content = c
	return f.slackErr
}

type fakeSessions struct {
	cookies []auth.Cookie
	calls   int
}

func (f *fakeSessions) Acquire(context.Context) ([]auth.Cookie, error) {
	f.calls++
	return f.cookies, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{
		SubjectPrefix: "[Report]",
		SMTP:          config.SMTPConfig{From: "reports@example.com"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func newTestRunner(st Store, renderer Renderer, dispatcher Dispatcher, sessions CookieSource, baseURL string) *Runner {
	return NewRunner(st, renderer, dispatcher, sessions, urls.NewResolver(baseURL, "https://public.example.com"), testConfig())
}

func dashboardSchedule() *model.Schedule {
	return &model.Schedule{
		ID:           1,
		TargetKind:   model.TargetDashboard,
		DashboardID:  42,
		Active:       true,
		DeliveryMode: model.DeliveryAttachment,
		Recipients:   "a@example.com",
	}
}

func TestExecuteDashboard(t *testing.T) {
	st := &fakeStore{
		schedule:  dashboardSchedule(),
		dashboard: &model.Dashboard{ID: 42, Title: "Sales"},
	}
	renderer := &fakeRenderer{shot: []byte("png")}
	dispatcher := &fakeDispatcher{}
	r := newTestRunner(st, renderer, dispatcher, &fakeSessions{}, "http://web:8088")

	if err := r.Execute(context.Background(), model.TargetDashboard, 1, "", ""); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if renderer.calls != 1 {
		t.Fatalf("expected 1 render, got %d", renderer.calls)
	}
	if !strings.Contains(renderer.lastURL, "/dashboard/42/") {
		t.Errorf("rendered wrong URL: %q", renderer.lastURL)
	}
	if renderer.lastElem != "grid-container" {
		t.Errorf("expected grid-container element, got %q", renderer.lastElem)
	}
	if renderer.lastW != 1600 || renderer.lastH != 1200 {
		t.Errorf("expected dashboard window 1600x1200, got %dx%d", renderer.lastW, renderer.lastH)
	}

	if dispatcher.emailCalls != 1 || dispatcher.slackCalls != 0 {
		t.Errorf("expected email only, got %d email / %d slack", dispatcher.emailCalls, dispatcher.slackCalls)
	}
	if dispatcher.subject != "[Report] Sales" {
		t.Errorf("unexpected subject %q", dispatcher.subject)
	}
}

// A schedule disabled between enqueue and execution is the expected
// outcome: no downstream calls, no error.
func TestExecuteInactiveScheduleShortCircuits(t *testing.T) {
	schedule := dashboardSchedule()
	schedule.Active = false
	st := &fakeStore{schedule: schedule}
	renderer := &fakeRenderer{}
	dispatcher := &fakeDispatcher{}
	r := newTestRunner(st, renderer, dispatcher, &fakeSessions{}, "http://web:8088")

	if err := r.Execute(context.Background(), model.TargetDashboard, 1, "", ""); err != nil {
		t.Fatalf("inactive schedule must not be an error, got %v", err)
	}
	if renderer.calls != 0 || dispatcher.emailCalls != 0 || dispatcher.slackCalls != 0 {
		t.Errorf("expected zero downstream calls, got render=%d email=%d slack=%d",
			renderer.calls, dispatcher.emailCalls, dispatcher.slackCalls)
	}
}

func TestExecuteMissingScheduleShortCircuits(t *testing.T) {
	r := newTestRunner(&fakeStore{}, &fakeRenderer{}, &fakeDispatcher{}, &fakeSessions{}, "http://web:8088")
	if err := r.Execute(context.Background(), model.TargetDashboard, 99, "", ""); err != nil {
		t.Errorf("missing schedule must not be an error, got %v", err)
	}
}

func TestExecuteOverridesWin(t *testing.T) {
	schedule := dashboardSchedule()
	schedule.Recipients = "stored@example.com"
	schedule.SlackChannel = "#stored"
	st := &fakeStore{schedule: schedule, dashboard: &model.Dashboard{ID: 42, Title: "Sales"}}
	dispatcher := &fakeDispatcher{}
	r := newTestRunner(st, &fakeRenderer{shot: []byte("png")}, dispatcher, &fakeSessions{}, "http://web:8088")

	if err := r.Execute(context.Background(), model.TargetDashboard, 1, "override@example.com", "#override"); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if dispatcher.recipients != "override@example.com" {
		t.Errorf("recipient override lost: %q", dispatcher.recipients)
	}
	if dispatcher.channel != "#override" {
		t.Errorf("channel override lost: %q", dispatcher.channel)
	}
}

func TestExecuteChartVisualization(t *testing.T) {
	st := &fakeStore{
		schedule: &model.Schedule{
			ID:           2,
			TargetKind:   model.TargetChart,
			ChartID:      7,
			Active:       true,
			DeliveryMode: model.DeliveryInline,
			ChartFormat:  model.FormatVisualization,
			SlackChannel: "#reports",
		},
		chart: &model.Chart{ID: 7, Name: "Revenue"},
	}
	renderer := &fakeRenderer{shot: []byte("png")}
	dispatcher := &fakeDispatcher{}
	r := newTestRunner(st, renderer, dispatcher, &fakeSessions{}, "http://web:8088")

	if err := r.Execute(context.Background(), model.TargetChart, 2, "", ""); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if renderer.lastElem != "chart-container" {
		t.Errorf("expected chart-container element, got %q", renderer.lastElem)
	}
	if renderer.lastW != 800 || renderer.lastH != 600 {
		t.Errorf("expected chart window 800x600, got %dx%d", renderer.lastW, renderer.lastH)
	}
	if dispatcher.slackCalls != 1 || dispatcher.emailCalls != 0 {
		t.Errorf("expected slack only, got %d email / %d slack", dispatcher.emailCalls, dispatcher.slackCalls)
	}
}

func TestExecuteChartData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if cookie, err := req.Cookie("session"); err != nil || cookie.Value != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte("region,total\nnorth,10\n"))
	}))
	defer server.Close()

	st := &fakeStore{
		schedule: &model.Schedule{
			ID:           3,
			TargetKind:   model.TargetChart,
			ChartID:      7,
			Active:       true,
			DeliveryMode: model.DeliveryAttachment,
			ChartFormat:  model.FormatData,
			Recipients:   "a@example.com",
		},
		chart: &model.Chart{ID: 7, Name: "Revenue"},
	}
	sessions := &fakeSessions{cookies: []auth.Cookie{{Name: "session", Value: "tok"}}}
	renderer := &fakeRenderer{}
	dispatcher := &fakeDispatcher{}
	r := newTestRunner(st, renderer, dispatcher, sessions, server.URL)

	if err := r.Execute(context.Background(), model.TargetChart, 3, "", ""); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if renderer.calls != 0 {
		t.Errorf("data format must not render, got %d render calls", renderer.calls)
	}
	if sessions.calls != 1 {
		t.Errorf("expected one session acquisition for the data fetch, got %d", sessions.calls)
	}
	if got := string(dispatcher.content.Data["Revenue.csv"]); got != "region,total\nnorth,10\n" {
		t.Errorf("csv attachment lost: %q", got)
	}
}

func TestExecuteUnknownKind(t *testing.T) {
	st := &fakeStore{schedule: dashboardSchedule()}
	r := newTestRunner(st, &fakeRenderer{}, &fakeDispatcher{}, &fakeSessions{}, "http://web:8088")

	err := r.Execute(context.Background(), "spreadsheet", 1, "", "")
	if !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("expected ErrUnknownTarget, got %v", err)
	}
}

func TestExecuteUnknownChartFormat(t *testing.T) {
	st := &fakeStore{
		schedule: &model.Schedule{
			ID:          4,
			TargetKind:  model.TargetChart,
			ChartID:     7,
			Active:      true,
			ChartFormat: "hologram",
			Recipients:  "a@example.com",
		},
		chart: &model.Chart{ID: 7, Name: "Revenue"},
	}
	r := newTestRunner(st, &fakeRenderer{}, &fakeDispatcher{}, &fakeSessions{}, "http://web:8088")

	err := r.Execute(context.Background(), model.TargetChart, 4, "", "")
	if !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("expected ErrUnknownTarget, got %v", err)
	}
}

func TestExecuteBothChannelFailuresAggregate(t *testing.T) {
	schedule := dashboardSchedule()
	schedule.SlackChannel = "#reports"
	st := &fakeStore{schedule: schedule, dashboard: &model.Dashboard{ID: 42, Title: "Sales"}}

	emailErr := errors.New("smtp down")
	slackErr := errors.New("slack down")
	dispatcher := &fakeDispatcher{emailErr: emailErr, slackErr: slackErr}
	r := newTestRunner(st, &fakeRenderer{shot: []byte("png")}, dispatcher, &fakeSessions{}, "http://web:8088")

	err := r.Execute(context.Background(), model.TargetDashboard, 1, "", "")
	if !errors.Is(err, emailErr) || !errors.Is(err, slackErr) {
		t.Errorf("expected both channel failures in aggregate, got %v", err)
	}
	if dispatcher.emailCalls != 1 || dispatcher.slackCalls != 1 {
		t.Errorf("both channels must be attempted, got %d email / %d slack",
			dispatcher.emailCalls, dispatcher.slackCalls)
	}
}
