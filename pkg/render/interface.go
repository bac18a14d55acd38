package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/report-scheduler/pkg/auth"
	"github.com/yourusername/report-scheduler/pkg/config"
)

// ErrRender marks a rendering failure: the browser could not be
// launched, or the target element never appeared. Fatal for the job.
var ErrRender = errors.New("render failed")

// Backend defines the interface for rendering backends.
type Backend interface {
	// Render drives a headless browser to targetURL and returns a PNG
	// screenshot of the element with the given class name, falling
	// back to a full-page screenshot when element capture is not
	// possible. Each call owns one browser client for its lifetime;
	// the client is destroyed on every exit path.
	Render(ctx context.Context, targetURL string, width, height int, elementClass string) ([]byte, error)

	// Close cleans up resources shared across renders
	Close() error

	// Name returns the name of the backend
	Name() string
}

// CookieSource provides the authenticated session injected when the
// welcome page asks for a login.
type CookieSource interface {
	Acquire(ctx context.Context) ([]auth.Cookie, error)
}

// NewBackend creates a rendering backend from the configured selection.
// Supported backends: "chromium" (go-rod) and "playwright".
func NewBackend(cfg config.RendererConfig, sessions CookieSource, welcomeURL string) (Backend, error) {
	switch cfg.Backend {
	case "chromium":
		return NewChromiumBackend(cfg, sessions, welcomeURL), nil
	case "playwright":
		return NewPlaywrightBackend(cfg, sessions, welcomeURL), nil
	default:
		return nil, fmt.Errorf("unknown renderer backend '%s' (supported: chromium, playwright)", cfg.Backend)
	}
}
