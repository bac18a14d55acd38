package render

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/yourusername/report-scheduler/pkg/auth"
	"github.com/yourusername/report-scheduler/pkg/config"
)

// ChromiumBackend renders through a locally launched Chromium driven by
// go-rod. Every Render call launches its own browser process; instances
// are never shared between jobs.
type ChromiumBackend struct {
	cfg  config.RendererConfig
	flow *captureFlow
}

// NewChromiumBackend creates a new Chromium rendering backend.
func NewChromiumBackend(cfg config.RendererConfig, sessions CookieSource, welcomeURL string) *ChromiumBackend {
	return &ChromiumBackend{
		cfg:  cfg,
		flow: newCaptureFlow(sessions, welcomeURL, cfg.SettleDelay, cfg.ElementAttempts),
	}
}

// Name returns the backend name
func (b *ChromiumBackend) Name() string {
	return "chromium"
}

// Close implements Backend; the chromium backend holds nothing shared
// across renders.
func (b *ChromiumBackend) Close() error {
	return nil
}

// Render captures a screenshot of the element with the given class name.
func (b *ChromiumBackend) Render(ctx context.Context, targetURL string, width, height int, elementClass string) ([]byte, error) {
	c, err := b.launch(ctx, width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: chromium launch: %v", ErrRender, err)
	}
	return b.flow.run(ctx, c, targetURL, elementClass)
}

// generateInstanceID creates a unique identifier for one browser launch
func generateInstanceID() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

// findChromeBinary tries to locate a Chrome binary in common locations
func findChromeBinary() string {
	candidatePaths := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
	}

	for _, path := range candidatePaths {
		if info, err := os.Stat(path); err == nil && info.Mode()&0111 != 0 {
			return path
		}
	}

	return ""
}

func (b *ChromiumBackend) launch(ctx context.Context, width, height int) (*rodClient, error) {
	instanceID := generateInstanceID()
	profileDir := fmt.Sprintf("/tmp/.chromium-profile-%s", instanceID)
	os.MkdirAll(profileDir, 0755)

	l := launcher.New()

	chromePath := b.cfg.ChromiumPath
	if chromePath == "" {
		chromePath = findChromeBinary()
	}
	if chromePath != "" {
		l = l.Bin(chromePath)
	}

	// Flags for server environments.
	if b.cfg.NoSandbox {
		l = l.Set("no-sandbox")
		l = l.Set("disable-setuid-sandbox")
	}
	l = l.Set("disable-dev-shm-usage")
	l = l.Set("disable-gpu")
	l = l.Set("no-first-run")
	l = l.Set("no-default-browser-check")
	l = l.Set("disable-breakpad")

	// Unique profile per launch avoids SingletonLock conflicts between
	// concurrent jobs.
	l = l.Set("user-data-dir", profileDir)
	l = l.Headless(true)

	if b.cfg.SkipTLSVerify {
		l = l.Set("ignore-certificate-errors")
		log.Printf("[RENDER] WARNING: TLS certificate verification disabled")
	}

	launchURL, err := l.Launch()
	if err != nil {
		os.RemoveAll(profileDir)
		if chromePath == "" {
			return nil, fmt.Errorf("failed to launch browser: %w (no Chrome/Chromium binary found; configure renderer.chromium_path)", err)
		}
		return nil, fmt.Errorf("failed to launch browser at '%s': %w", chromePath, err)
	}

	browser := rod.New().ControlURL(launchURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		os.RemoveAll(profileDir)
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		browser.Close()
		l.Kill()
		os.RemoveAll(profileDir)
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); err != nil {
		browser.Close()
		l.Kill()
		os.RemoveAll(profileDir)
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	return &rodClient{
		launcher:   l,
		browser:    browser,
		page:       page,
		instanceID: instanceID,
		profileDir: profileDir,
	}, nil
}

// rodClient is one live Chromium session.
type rodClient struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	instanceID string
	profileDir string
}

func (c *rodClient) Navigate(ctx context.Context, url string) error {
	page := c.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (c *rodClient) HasElement(selector string) bool {
	has, _, err := c.page.Has(selector)
	return err == nil && has
}

func (c *rodClient) SetCookies(cookies []auth.Cookie) error {
	// Cookies are scoped to the current (welcome) page's origin.
	info, err := c.page.Info()
	if err != nil {
		return err
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, cookie := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:  cookie.Name,
			Value: cookie.Value,
			URL:   info.URL,
		})
	}
	return c.page.SetCookies(params)
}

func (c *rodClient) WaitElement(ctx context.Context, selector string) error {
	_, err := c.page.Context(ctx).Timeout(10 * time.Second).Element(selector)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errNoElement, selector, err)
	}
	return nil
}

func (c *rodClient) ElementShot(selector string) ([]byte, error) {
	el, err := c.page.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errNoElement, selector, err)
	}
	return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

func (c *rodClient) PageShot() ([]byte, error) {
	return c.page.Screenshot(true, nil)
}

func (c *rodClient) Close() error {
	return c.browser.Close()
}

func (c *rodClient) Kill() {
	// Kill never fails upward; the launcher reaps the process and the
	// profile dir is disposable.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[RENDER] WARNING: browser kill panicked (instance %s): %v", c.instanceID, r)
		}
	}()

	c.launcher.Kill()
	if c.profileDir != "" {
		os.RemoveAll(c.profileDir)
	}
}
