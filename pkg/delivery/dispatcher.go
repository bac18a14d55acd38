// Package delivery fans report content out to the configured channels.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/report-scheduler/pkg/mail"
	"github.com/yourusername/report-scheduler/pkg/report"
)

// ChatUploader posts a report file to a chat channel.
type ChatUploader interface {
	UploadReport(ctx context.Context, channel, title, message, filename string, file []byte) error
}

// Dispatcher routes built report content to email and chat. The two
// channels are independent; a schedule may use neither, either, or
// both.
type Dispatcher struct {
	mailer mail.Sender
	chat   ChatUploader
	bcc    string
}

// NewDispatcher creates a dispatcher. chat may be nil when no chat
// token is configured; DeliverSlack then fails loudly.
func NewDispatcher(mailer mail.Sender, chat ChatUploader, bcc string) *Dispatcher {
	return &Dispatcher{mailer: mailer, chat: chat, bcc: bcc}
}

// DeliverEmail sends the content to the raw recipient list. With
// asGroup one message carries every address; otherwise each address
// gets its own message and every send is attempted regardless of
// earlier failures, with the failures aggregated.
func (d *Dispatcher) DeliverEmail(recipients string, asGroup bool, subject string, c report.Content) error {
	addresses := mail.ParseAddressList(recipients)
	if len(addresses) == 0 {
		return fmt.Errorf("no valid addresses in recipient list %q", recipients)
	}

	if asGroup {
		return d.send(addresses, subject, c)
	}

	var errs []error
	for _, addr := range addresses {
		if err := d.send([]string{addr}, subject, c); err != nil {
			log.Printf("[DELIVER] Email to %s failed: %v", addr, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(to []string, subject string, c report.Content) error {
	return d.mailer.Send(mail.Message{
		To:           to,
		Subject:      subject,
		BodyHTML:     c.Body,
		Attachments:  c.Data,
		InlineImages: c.Images,
		BCC:          d.bcc,
	})
}

// DeliverSlack uploads the content's chat payload to the channel.
func (d *Dispatcher) DeliverSlack(ctx context.Context, channel, subject string, c report.Content) error {
	if d.chat == nil {
		return fmt.Errorf("slack channel %q configured but no slack token set", channel)
	}
	return d.chat.UploadReport(ctx, channel, subject, c.SlackMessage, c.SlackFilename, c.SlackAttachment)
}
