package urls

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolver builds absolute URLs for the web application's routes.
// baseURL is the address the renderer drives (usually an internal
// address); publicBaseURL is the stable user-facing address embedded in
// delivered reports.
type Resolver struct {
	baseURL       string
	publicBaseURL string
}

// NewResolver creates a resolver from the two configured base URLs.
// publicBaseURL falls back to baseURL when empty.
func NewResolver(baseURL, publicBaseURL string) *Resolver {
	if publicBaseURL == "" {
		publicBaseURL = baseURL
	}
	return &Resolver{
		baseURL:       strings.TrimRight(baseURL, "/"),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Welcome returns the application home URL, used by the renderer to
// detect whether a login is required before visiting the target.
func (r *Resolver) Welcome() string {
	return r.baseURL + "/welcome/"
}

// Dashboard returns the renderable dashboard URL.
func (r *Resolver) Dashboard(id int64) string {
	return fmt.Sprintf("%s/dashboard/%d/?standalone=true", r.baseURL, id)
}

// DashboardPublic returns the user-friendly dashboard URL for report bodies.
func (r *Resolver) DashboardPublic(id int64) string {
	return fmt.Sprintf("%s/dashboard/%d/", r.publicBaseURL, id)
}

// Chart returns the renderable chart URL.
func (r *Resolver) Chart(id int64) string {
	return fmt.Sprintf("%s/chart/%d/?standalone=true", r.baseURL, id)
}

// ChartPublic returns the user-friendly chart URL for report bodies.
func (r *Resolver) ChartPublic(id int64) string {
	return fmt.Sprintf("%s/chart/%d/", r.publicBaseURL, id)
}

// ChartData returns the CSV export URL for a chart's raw data.
func (r *Resolver) ChartData(id int64) string {
	q := url.Values{}
	q.Set("format", "csv")
	return fmt.Sprintf("%s/chart/%d/data/?%s", r.baseURL, id, q.Encode())
}
