package urls

import "testing"

func TestResolver(t *testing.T) {
	r := NewResolver("http://127.0.0.1:8088/", "https://reports.example.com")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"welcome", r.Welcome(), "http://127.0.0.1:8088/welcome/"},
		{"dashboard", r.Dashboard(42), "http://127.0.0.1:8088/dashboard/42/?standalone=true"},
		{"dashboard public", r.DashboardPublic(42), "https://reports.example.com/dashboard/42/"},
		{"chart", r.Chart(7), "http://127.0.0.1:8088/chart/7/?standalone=true"},
		{"chart public", r.ChartPublic(7), "https://reports.example.com/chart/7/"},
		{"chart data", r.ChartData(7), "http://127.0.0.1:8088/chart/7/data/?format=csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestResolverPublicFallback(t *testing.T) {
	r := NewResolver("http://127.0.0.1:8088", "")
	if got := r.DashboardPublic(1); got != "http://127.0.0.1:8088/dashboard/1/" {
		t.Errorf("expected fallback to base URL, got %q", got)
	}
}
