// Package chat delivers report files to Slack channels.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"github.com/slack-go/slack"

	"github.com/yourusername/report-scheduler/pkg/config"
)

// errMissingFileHandle marks a successful upload response that carries
// no file handle. That is a contract violation by the API, not a
// transient condition, so it is never retried.
var errMissingFileHandle = errors.New("upload response missing file handle")

// uploader is the slice of the Slack API the client needs; tests
// substitute a fake.
type uploader interface {
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Client uploads report artifacts to Slack, retrying transient API
// failures per its policy.
type Client struct {
	api    uploader
	policy RetryPolicy
}

// NewClient builds a Slack client from configuration. An optional proxy
// URL routes the API calls through an outbound proxy.
func NewClient(cfg config.SlackConfig) (*Client, error) {
	opts := []slack.Option{}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid slack proxy url: %w", err)
		}
		opts = append(opts, slack.OptionHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	return &Client{
		api:    slack.New(cfg.Token, opts...),
		policy: DefaultRetryPolicy(),
	}, nil
}

// UploadReport posts the artifact bytes to the channel as a file with
// the message as its initial comment.
func (c *Client) UploadReport(ctx context.Context, channel, title, message string, filename string, file []byte) error {
	err := c.policy.Do(ctx, isTransient, func() error {
		summary, err := c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
			Channel:        channel,
			Title:          title,
			Filename:       filename,
			FileSize:       len(file),
			Reader:         bytes.NewReader(file),
			InitialComment: message,
		})
		if err != nil {
			log.Printf("[CHAT] Upload to %s failed: %v", channel, err)
			return err
		}
		if summary == nil || summary.ID == "" {
			return errMissingFileHandle
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upload report to %s: %w", channel, err)
	}

	log.Printf("[CHAT] Uploaded %q to %s", title, channel)
	return nil
}

// isTransient reports whether a Slack API error is worth retrying:
// rate limiting and API-level error responses qualify, anything else
// (including a missing file handle) is fatal.
func isTransient(err error) bool {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return true
	}
	var apiErr slack.SlackErrorResponse
	return errors.As(err, &apiErr)
}
