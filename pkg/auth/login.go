package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// LoginIssuer obtains a session cookie by posting the service
// credentials to the web application's login form, the same way an
// interactive user signs in.
type LoginIssuer struct {
	loginURL string
	secret   string
	client   *http.Client
}

// NewLoginIssuer creates an issuer against the application at baseURL.
func NewLoginIssuer(baseURL, secret string) *LoginIssuer {
	return &LoginIssuer{
		loginURL: strings.TrimRight(baseURL, "/") + "/login/",
		secret:   secret,
		client: &http.Client{
			Timeout: 30 * time.Second,
			// The login response sets the cookie on a redirect; the
			// cookie must be read before the redirect is followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// IssueSessionCookie logs the identity in and returns the session
// cookie value.
func (i *LoginIssuer) IssueSessionCookie(ctx context.Context, identity string) (string, error) {
	form := url.Values{}
	form.Set("username", identity)
	form.Set("password", i.secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("login returned %s", resp.Status)
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "session" && cookie.Value != "" {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("login response carried no session cookie")
}
