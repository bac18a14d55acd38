package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrAuth marks a failure to obtain an authenticated session for the
// configured service identity. Fatal for the job execution it occurs in.
var ErrAuth = errors.New("authentication failed")

// Cookie is one session cookie usable by the renderer or an HTTP fetch.
type Cookie struct {
	Name  string
	Value string
}

// Issuer is the identity collaborator's cookie-issuing interface. The
// provider is a narrow shim over it and implements no authentication
// logic of its own.
type Issuer interface {
	IssueSessionCookie(ctx context.Context, identity string) (string, error)
}

// Provider obtains short-lived authenticated sessions for the renderer.
type Provider struct {
	issuer   Issuer
	identity string
}

// NewProvider creates a session provider for the given service identity.
func NewProvider(issuer Issuer, identity string) *Provider {
	return &Provider{issuer: issuer, identity: identity}
}

// Acquire logs in the service identity and returns the resulting
// session cookie(s).
func (p *Provider) Acquire(ctx context.Context) ([]Cookie, error) {
	value, err := p.issuer.IssueSessionCookie(ctx, p.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: identity '%s': %v", ErrAuth, p.identity, err)
	}
	if value == "" {
		return nil, fmt.Errorf("%w: identity '%s': empty session cookie", ErrAuth, p.identity)
	}

	return []Cookie{{Name: "session", Value: value}}, nil
}
