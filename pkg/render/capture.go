package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/report-scheduler/pkg/auth"
)

// loginMarker is the element the login page shows; its presence on the
// welcome page means the client has no session yet.
const loginMarker = "#loginbox"

var (
	errNoElement        = errors.New("element not found")
	errShotNotSupported = errors.New("element screenshot not supported")
)

// client drives one live headless browser session. Implementations
// exist for go-rod and playwright; tests substitute a fake to exercise
// the capture flow.
type client interface {
	Navigate(ctx context.Context, url string) error

	// HasElement reports whether an element matching the CSS selector
	// is currently present. Used only for the login marker check, so
	// lookup errors count as "not present".
	HasElement(selector string) bool

	SetCookies(cookies []auth.Cookie) error

	// WaitElement blocks until an element matching the selector
	// exists, or fails with errNoElement.
	WaitElement(ctx context.Context, selector string) error

	// ElementShot captures the element matching the selector. May fail
	// with errShotNotSupported when the backend cannot capture
	// individual elements.
	ElementShot(selector string) ([]byte, error)

	// PageShot captures the entire page.
	PageShot() ([]byte, error)

	// Close shuts the session down gracefully.
	Close() error

	// Kill terminates the underlying browser process unconditionally.
	// Never returns an error; failures are logged inside.
	Kill()
}

// captureFlow is the backend-independent part of a render: welcome
// navigation, session injection, settle wait, element lookup with
// retry, screenshot with full-page fallback, and unconditional client
// destruction.
type captureFlow struct {
	sessions    CookieSource
	welcomeURL  string
	settleDelay time.Duration
	attempts    int

	// sleep is time.Sleep in production; tests replace it.
	sleep func(time.Duration)
}

func newCaptureFlow(sessions CookieSource, welcomeURL string, settleDelay time.Duration, attempts int) *captureFlow {
	if attempts < 1 {
		attempts = 1
	}
	return &captureFlow{
		sessions:    sessions,
		welcomeURL:  welcomeURL,
		settleDelay: settleDelay,
		attempts:    attempts,
		sleep:       time.Sleep,
	}
}

// run performs the capture. The client is destroyed on every exit path,
// including cancellation; destruction failures never surface.
func (f *captureFlow) run(ctx context.Context, c client, targetURL, elementClass string) ([]byte, error) {
	defer destroyClient(c)

	// Hit the welcome URL first and check if we are asked to login.
	if err := c.Navigate(ctx, f.welcomeURL); err != nil {
		return nil, fmt.Errorf("%w: welcome navigation: %v", ErrRender, err)
	}

	if c.HasElement(loginMarker) {
		cookies, err := f.sessions.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.SetCookies(cookies); err != nil {
			return nil, fmt.Errorf("%w: session cookie injection: %v", ErrRender, err)
		}
	}

	if err := c.Navigate(ctx, targetURL); err != nil {
		return nil, fmt.Errorf("%w: navigation to %s: %v", ErrRender, targetURL, err)
	}

	// The page gives no content-ready signal; wait a fixed settle
	// delay before looking for the target element.
	f.sleep(f.settleDelay)

	selector := "." + elementClass

	var lookupErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			f.sleep(f.settleDelay)
		}
		lookupErr = c.WaitElement(ctx, selector)
		if lookupErr == nil {
			break
		}
		log.Printf("[RENDER] Element '%s' not found (attempt %d/%d)", selector, attempt+1, f.attempts)
	}
	if lookupErr != nil {
		return nil, fmt.Errorf("%w: element '%s' not found after %d attempts: %v",
			ErrRender, selector, f.attempts, lookupErr)
	}

	shot, err := c.ElementShot(selector)
	if errors.Is(err, errShotNotSupported) {
		// Some backends cannot capture individual elements; capture
		// the whole page instead.
		log.Printf("[RENDER] Element screenshot not supported, falling back to full page")
		shot, err = c.PageShot()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot: %v", ErrRender, err)
	}

	return shot, nil
}

// destroyClient tears a client down: graceful close retried once with
// failures swallowed, then an unconditional kill. Nothing here ever
// reaches the caller; the primary result must propagate regardless of
// what destruction does.
func destroyClient(c client) {
	var closeErr error
	for attempt := 0; attempt < 2; attempt++ {
		if closeErr = c.Close(); closeErr == nil {
			break
		}
	}
	if closeErr != nil {
		log.Printf("[RENDER] WARNING: graceful client close failed: %v", closeErr)
	}

	c.Kill()
}
