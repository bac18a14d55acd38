package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yourusername/report-scheduler/pkg/mail"
	"github.com/yourusername/report-scheduler/pkg/report"
)

type fakeMailer struct {
	sent    []mail.Message
	failFor map[string]error // recipient → error
}

func (f *fakeMailer) Send(msg mail.Message) error {
	f.sent = append(f.sent, msg)
	for _, to := range msg.To {
		if err, ok := f.failFor[to]; ok {
			return err
		}
	}
	return nil
}

type fakeChat struct {
	uploads  int
	channel  string
	filename string
	err      error
}

func (f *fakeChat) UploadReport(_ context.Context, channel, _, _, filename string, _ []byte) error {
	f.uploads++
	f.channel = channel
	f.filename = filename
	return f.err
}

func testContent() report.Content {
	return report.Content{
		Body:            "<p>report</p>",
		Data:            map[string][]byte{"report.csv": []byte("a,b")},
		SlackMessage:    "*report*",
		SlackFilename:   "report.csv",
		SlackAttachment: []byte("a,b"),
	}
}

func TestDeliverEmailIndividual(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(mailer, nil, "audit@example.com")

	err := d.DeliverEmail("a@x.com, b@x.com, c@x.com", false, "Weekly", testContent())
	if err != nil {
		t.Fatalf("DeliverEmail returned error: %v", err)
	}

	if len(mailer.sent) != 3 {
		t.Fatalf("expected 3 independent sends, got %d", len(mailer.sent))
	}
	for i, want := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		msg := mailer.sent[i]
		if len(msg.To) != 1 || msg.To[0] != want {
			t.Errorf("send %d: expected single recipient %s, got %v", i, want, msg.To)
		}
		if msg.BCC != "audit@example.com" {
			t.Errorf("send %d: BCC not applied uniformly, got %q", i, msg.BCC)
		}
	}
}

func TestDeliverEmailGroup(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(mailer, nil, "")

	err := d.DeliverEmail("a@x.com, b@x.com, c@x.com", true, "Weekly", testContent())
	if err != nil {
		t.Fatalf("DeliverEmail returned error: %v", err)
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("expected exactly 1 group send, got %d", len(mailer.sent))
	}
	if got := mailer.sent[0].To; len(got) != 3 {
		t.Errorf("expected all recipients on one message, got %v", got)
	}
}

// One recipient's failure must not stop the remaining sends, and must
// still surface in the aggregated error.
func TestDeliverEmailPartialFailure(t *testing.T) {
	bounce := errors.New("mailbox full")
	mailer := &fakeMailer{failFor: map[string]error{"b@x.com": bounce}}
	d := NewDispatcher(mailer, nil, "")

	err := d.DeliverEmail("a@x.com, b@x.com, c@x.com", false, "Weekly", testContent())
	if !errors.Is(err, bounce) {
		t.Errorf("expected aggregated error containing the bounce, got %v", err)
	}
	if len(mailer.sent) != 3 {
		t.Errorf("expected all 3 sends attempted despite the failure, got %d", len(mailer.sent))
	}
}

func TestDeliverEmailNoAddresses(t *testing.T) {
	d := NewDispatcher(&fakeMailer{}, nil, "")
	if err := d.DeliverEmail(" ,; ", false, "Weekly", testContent()); err == nil {
		t.Error("expected error for empty recipient list")
	}
}

func TestDeliverSlack(t *testing.T) {
	chat := &fakeChat{}
	d := NewDispatcher(&fakeMailer{}, chat, "")

	if err := d.DeliverSlack(context.Background(), "#reports", "Weekly", testContent()); err != nil {
		t.Fatalf("DeliverSlack returned error: %v", err)
	}
	if chat.uploads != 1 || chat.channel != "#reports" {
		t.Errorf("expected one upload to #reports, got %d to %q", chat.uploads, chat.channel)
	}
	if chat.filename != "report.csv" {
		t.Errorf("unexpected upload filename %q", chat.filename)
	}
}

func TestDeliverSlackWithoutClient(t *testing.T) {
	d := NewDispatcher(&fakeMailer{}, nil, "")
	err := d.DeliverSlack(context.Background(), "#reports", "Weekly", testContent())
	if err == nil || !strings.Contains(err.Error(), "no slack token") {
		t.Errorf("expected missing-token error, got %v", err)
	}
}
