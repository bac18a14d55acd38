package render

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/yourusername/report-scheduler/pkg/auth"
	"github.com/yourusername/report-scheduler/pkg/config"
)

// PlaywrightBackend renders through Playwright's Chromium. The driver
// process is shared across renders; each Render call still launches its
// own browser so jobs never share a client.
type PlaywrightBackend struct {
	cfg        config.RendererConfig
	flow       *captureFlow
	welcomeURL string

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightBackend creates a new Playwright rendering backend.
func NewPlaywrightBackend(cfg config.RendererConfig, sessions CookieSource, welcomeURL string) *PlaywrightBackend {
	return &PlaywrightBackend{
		cfg:        cfg,
		flow:       newCaptureFlow(sessions, welcomeURL, cfg.SettleDelay, cfg.ElementAttempts),
		welcomeURL: welcomeURL,
	}
}

// Name returns the backend name
func (b *PlaywrightBackend) Name() string {
	return "playwright"
}

// driver initializes the shared Playwright driver on first use.
func (b *PlaywrightBackend) driver() (*playwright.Playwright, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pw != nil {
		return b.pw, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}
	b.pw = pw
	return pw, nil
}

// Render captures a screenshot of the element with the given class name.
func (b *PlaywrightBackend) Render(ctx context.Context, targetURL string, width, height int, elementClass string) ([]byte, error) {
	pw, err := b.driver()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	c, err := b.launch(pw, width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: playwright launch: %v", ErrRender, err)
	}
	return b.flow.run(ctx, c, targetURL, elementClass)
}

func (b *PlaywrightBackend) launch(pw *playwright.Playwright, width, height int) (*playwrightClient, error) {
	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-dev-shm-usage",
			"--disable-gpu",
			"--no-first-run",
			"--no-default-browser-check",
			"--disable-breakpad",
		},
	}
	if b.cfg.NoSandbox {
		launchOptions.Args = append(launchOptions.Args, "--no-sandbox", "--disable-setuid-sandbox")
	}
	if b.cfg.ChromiumPath != "" {
		launchOptions.ExecutablePath = playwright.String(b.cfg.ChromiumPath)
	} else if path := findChromeBinary(); path != "" {
		// Prefer a system Chromium over Playwright's bundled download.
		launchOptions.ExecutablePath = playwright.String(path)
	}
	if b.cfg.SkipTLSVerify {
		launchOptions.Args = append(launchOptions.Args, "--ignore-certificate-errors")
	}

	browser, err := pw.Chromium.Launch(launchOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:          &playwright.Size{Width: width, Height: height},
		IgnoreHttpsErrors: playwright.Bool(b.cfg.SkipTLSVerify),
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := browserContext.NewPage()
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &playwrightClient{
		browser:    browser,
		browserCtx: browserContext,
		page:       page,
		welcomeURL: b.welcomeURL,
	}, nil
}

// Close stops the shared Playwright driver.
func (b *PlaywrightBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pw != nil {
		err := b.pw.Stop()
		b.pw = nil
		return err
	}
	return nil
}

// playwrightClient is one live Playwright browser session.
type playwrightClient struct {
	browser    playwright.Browser
	browserCtx playwright.BrowserContext
	page       playwright.Page
	welcomeURL string
}

func (c *playwrightClient) Navigate(_ context.Context, url string) error {
	_, err := c.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	return err
}

func (c *playwrightClient) HasElement(selector string) bool {
	el, err := c.page.QuerySelector(selector)
	return err == nil && el != nil
}

func (c *playwrightClient) SetCookies(cookies []auth.Cookie) error {
	params := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, cookie := range cookies {
		params = append(params, playwright.OptionalCookie{
			Name:  cookie.Name,
			Value: cookie.Value,
			URL:   playwright.String(c.welcomeURL),
		})
	}
	return c.browserCtx.AddCookies(params)
}

func (c *playwrightClient) WaitElement(_ context.Context, selector string) error {
	_, err := c.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(10 * time.Second / time.Millisecond)),
		State:   playwright.WaitForSelectorStateAttached,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errNoElement, selector, err)
	}
	return nil
}

func (c *playwrightClient) ElementShot(selector string) ([]byte, error) {
	el, err := c.page.QuerySelector(selector)
	if err != nil || el == nil {
		return nil, fmt.Errorf("%w: %s", errNoElement, selector)
	}

	shot, err := el.Screenshot(playwright.ElementHandleScreenshotOptions{})
	if err != nil {
		// Element capture can fail on detached or zero-size elements;
		// let the flow fall back to the full page.
		return nil, fmt.Errorf("%w: %v", errShotNotSupported, err)
	}
	return shot, nil
}

func (c *playwrightClient) PageShot() ([]byte, error) {
	return c.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
}

func (c *playwrightClient) Close() error {
	if err := c.browserCtx.Close(); err != nil {
		return err
	}
	return c.browser.Close()
}

func (c *playwrightClient) Kill() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[RENDER] WARNING: browser kill panicked: %v", r)
		}
	}()

	if err := c.browser.Close(); err != nil {
		log.Printf("[RENDER] WARNING: browser terminate failed: %v", err)
	}
}
