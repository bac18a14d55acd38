// Package mail sends report emails over SMTP.
package mail

import (
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/yourusername/report-scheduler/pkg/config"
)

// Message is one outgoing email. Attachments map filename to bytes;
// InlineImages map content-id to bytes and are referenced from BodyHTML
// via cid: URLs.
type Message struct {
	To           []string
	Subject      string
	BodyHTML     string
	Attachments  map[string][]byte
	InlineImages map[string][]byte
	BCC          string
}

// Sender sends a single email message.
type Sender interface {
	Send(msg Message) error
}

// Mailer sends mail through a configured SMTP server. In dry-run mode
// the dial is suppressed and the message is only logged.
type Mailer struct {
	cfg    config.SMTPConfig
	dryRun bool
}

// NewMailer creates a Mailer from SMTP configuration.
func NewMailer(cfg config.SMTPConfig, dryRun bool) *Mailer {
	return &Mailer{cfg: cfg, dryRun: dryRun}
}

// Send builds and delivers one message.
func (m *Mailer) Send(msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients")
	}

	if m.dryRun {
		log.Printf("[MAIL] Dry run: would send %q to %s (%d attachments, %d inline images)",
			msg.Subject, strings.Join(msg.To, ", "), len(msg.Attachments), len(msg.InlineImages))
		return nil
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.cfg.From)
	gm.SetHeader("To", msg.To...)
	gm.SetHeader("Subject", msg.Subject)
	if msg.BCC != "" {
		gm.SetHeader("Bcc", msg.BCC)
	}
	gm.SetBody("text/html", msg.BodyHTML)

	for name, data := range msg.Attachments {
		gm.Attach(name, gomail.SetCopyFunc(copyBytes(data)))
	}
	// Embedded files are referenced from the body as cid:<name>, so the
	// content-id doubles as the filename.
	for cid, data := range msg.InlineImages {
		gm.Embed(cid, gomail.SetCopyFunc(copyBytes(data)))
	}

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if m.cfg.UseTLS {
		dialer.TLSConfig = &tls.Config{ServerName: m.cfg.Host}
	}

	if err := dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", strings.Join(msg.To, ", "), err)
	}

	log.Printf("[MAIL] Sent %q to %s", msg.Subject, strings.Join(msg.To, ", "))
	return nil
}

func copyBytes(data []byte) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}
}

// ParseAddressList splits a raw recipient string on commas, semicolons,
// and whitespace, preserving order and dropping empty entries.
func ParseAddressList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})

	addresses := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			addresses = append(addresses, f)
		}
	}
	return addresses
}
