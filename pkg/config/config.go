package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WindowSize is a renderer viewport in pixels.
type WindowSize struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// SMTPConfig holds SMTP transport configuration.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	UseTLS   bool   `yaml:"use_tls"`
}

// SlackConfig holds the chat API credentials.
type SlackConfig struct {
	Token string `yaml:"token"`
	Proxy string `yaml:"proxy,omitempty"`
}

// RendererConfig holds renderer backend configuration.
type RendererConfig struct {
	// Backend selects the rendering backend: "chromium" (go-rod,
	// default) or "playwright" (requires the Node.js driver).
	Backend string `yaml:"backend"`

	// SettleDelay is the fixed wait after navigation before the target
	// element is looked up. There is no content-ready signal from the
	// rendered page, so this stays a configured delay.
	SettleDelay     time.Duration `yaml:"settle_delay"`
	ElementAttempts int           `yaml:"element_attempts"`

	Window map[string]WindowSize `yaml:"window"`

	ChromiumPath  string `yaml:"chromium_path,omitempty"`
	NoSandbox     bool   `yaml:"no_sandbox"`
	SkipTLSVerify bool   `yaml:"skip_tls_verify"`
}

// Config is the full service configuration, constructed once at startup
// and passed into each component. Components never consult ambient
// process state for options.
type Config struct {
	Enabled               bool   `yaml:"enabled"`
	CronResolutionMinutes int    `yaml:"cron_resolution_minutes"`
	Timezone              string `yaml:"timezone"`
	DBPath                string `yaml:"db_path"`

	// BaseURL is the address the renderer drives; PublicBaseURL is the
	// stable address embedded in delivered reports.
	BaseURL       string `yaml:"base_url"`
	PublicBaseURL string `yaml:"public_base_url"`

	// ServiceIdentity is the account the session provider logs in as
	// when the renderer needs an authenticated session; ServiceSecret is
	// its credential.
	ServiceIdentity string `yaml:"service_identity"`
	ServiceSecret   string `yaml:"service_secret,omitempty"`

	SubjectPrefix string `yaml:"subject_prefix"`
	BCCAddress    string `yaml:"bcc_address,omitempty"`
	DryRun        bool   `yaml:"dry_run"`

	// ListenAddr is the management API address.
	ListenAddr string `yaml:"listen_addr"`

	// AllowedDomains whitelists recipient email domains for new
	// schedules; empty allows all. Supports "*.example.com" wildcards.
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`

	JobTimeLimit      time.Duration `yaml:"job_time_limit"`
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"`
	PollInterval      time.Duration `yaml:"poll_interval"`

	SMTP     SMTPConfig     `yaml:"smtp"`
	Slack    SlackConfig    `yaml:"slack"`
	Renderer RendererConfig `yaml:"renderer"`
}

// Load reads the configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero values the way the renderer and queue expect
// them. Safe to call on a hand-built Config in tests.
func (c *Config) ApplyDefaults() {
	if c.CronResolutionMinutes == 0 {
		c.CronResolutionMinutes = 15
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.DBPath == "" {
		c.DBPath = "reports.db"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "[Report]"
	}
	if c.JobTimeLimit == 0 {
		c.JobTimeLimit = 5 * time.Minute
	}
	if c.MaxConcurrentJobs == 0 {
		c.MaxConcurrentJobs = 4
	}
	if c.PollInterval == 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}

	if c.Renderer.Backend == "" {
		c.Renderer.Backend = "chromium"
	}
	if c.Renderer.SettleDelay == 0 {
		c.Renderer.SettleDelay = 10 * time.Second
	}
	if c.Renderer.ElementAttempts == 0 {
		c.Renderer.ElementAttempts = 2
	}
	if c.Renderer.Window == nil {
		c.Renderer.Window = map[string]WindowSize{}
	}
	if _, ok := c.Renderer.Window["dashboard"]; !ok {
		c.Renderer.Window["dashboard"] = WindowSize{Width: 1600, Height: 1200}
	}
	if _, ok := c.Renderer.Window["chart"]; !ok {
		c.Renderer.Window["chart"] = WindowSize{Width: 800, Height: 600}
	}
}

// WindowFor returns the configured viewport for a target kind.
func (c *Config) WindowFor(kind string) WindowSize {
	if w, ok := c.Renderer.Window[kind]; ok {
		return w
	}
	return WindowSize{Width: 1600, Height: 1200}
}

// Resolution converts the configured cron resolution to a duration.
func (c *Config) Resolution() time.Duration {
	return time.Duration(c.CronResolutionMinutes) * time.Minute
}

// Location loads the configured reference timezone, falling back to UTC
// when the name does not resolve.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
