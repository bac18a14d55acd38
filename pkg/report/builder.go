// Package report turns a captured artifact into deliverable content
// for the email and chat channels. Building is a pure transform; the
// dispatcher owns all I/O.
package report

import (
	"bytes"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/yourusername/report-scheduler/pkg/model"
)

// Content is everything one report delivery carries. The email side
// populates exactly one of Data, Images, or a table body depending on
// the delivery mode; the chat side is always populated.
type Content struct {
	// Body is the HTML email body.
	Body string

	// Data maps attachment filename to bytes.
	Data map[string][]byte

	// Images maps content-id to inline image bytes.
	Images map[string][]byte

	SlackMessage    string
	SlackFilename   string
	SlackAttachment []byte
}

var linkTemplate = template.Must(template.New("link").Parse(
	`<b><a href="{{.URL}}">{{.Title}}</a></b><p></p>`))

var imageTemplate = template.Must(template.New("image").Parse(
	`<b><a href="{{.URL}}">{{.Title}}</a></b><p></p><img src="cid:{{.CID}}">`))

var tableTemplate = template.Must(template.New("table").Parse(
	`<b><a href="{{.URL}}">{{.Title}}</a></b><p></p>` +
		`<table border="1" cellpadding="4" cellspacing="0">` +
		`<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>` +
		`<tbody>{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody>` +
		`</table>`))

// BuildVisualization builds content around a rendered screenshot.
// Attachment mode names the image "screenshot.png"; inline mode embeds
// it under a content-id derived from the sender domain.
func BuildVisualization(mode model.DeliveryMode, screenshot []byte, title, liveURL, senderDomain string) (Content, error) {
	content := Content{
		SlackMessage:    slackMessage(title, liveURL),
		SlackFilename:   "screenshot.png",
		SlackAttachment: screenshot,
	}

	switch mode {
	case model.DeliveryAttachment:
		body, err := renderBody(linkTemplate, map[string]any{"Title": title, "URL": liveURL})
		if err != nil {
			return Content{}, err
		}
		content.Body = body
		content.Data = map[string][]byte{"screenshot.png": screenshot}

	case model.DeliveryInline:
		cid := contentID(senderDomain)
		body, err := renderBody(imageTemplate, map[string]any{"Title": title, "URL": liveURL, "CID": cid})
		if err != nil {
			return Content{}, err
		}
		content.Body = body
		content.Images = map[string][]byte{cid: screenshot}

	default:
		return Content{}, fmt.Errorf("unknown delivery mode %q", mode)
	}

	return content, nil
}

// BuildData builds content around fetched CSV bytes. Attachment mode
// ships the file as "<title>.csv"; inline mode renders it as an HTML
// table with the first row as headers.
func BuildData(mode model.DeliveryMode, csvData []byte, title, liveURL string) (Content, error) {
	content := Content{
		SlackMessage:    slackMessage(title, liveURL),
		SlackFilename:   attachmentName(title),
		SlackAttachment: csvData,
	}

	switch mode {
	case model.DeliveryAttachment:
		body, err := renderBody(linkTemplate, map[string]any{"Title": title, "URL": liveURL})
		if err != nil {
			return Content{}, err
		}
		content.Body = body
		content.Data = map[string][]byte{attachmentName(title): csvData}

	case model.DeliveryInline:
		headers, rows, err := parseCSV(csvData)
		if err != nil {
			return Content{}, fmt.Errorf("failed to parse report data: %w", err)
		}
		body, err := renderBody(tableTemplate, map[string]any{
			"Title":   title,
			"URL":     liveURL,
			"Headers": headers,
			"Rows":    rows,
		})
		if err != nil {
			return Content{}, err
		}
		content.Body = body

	default:
		return Content{}, fmt.Errorf("unknown delivery mode %q", mode)
	}

	return content, nil
}

func slackMessage(title, liveURL string) string {
	return fmt.Sprintf("*%s*\n\n<%s|Explore in the dashboard>", title, liveURL)
}

// contentID produces a unique Content-ID scoped to the sender domain,
// the way mail user agents form Message-IDs.
func contentID(senderDomain string) string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return fmt.Sprintf("%s@%s", hex.EncodeToString(buf), senderDomain)
}

func attachmentName(title string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		name = "report"
	}
	return name + ".csv"
}

func parseCSV(data []byte) (headers []string, rows [][]string, err error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	headers, err = reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("report data is empty")
	}
	if err != nil {
		return nil, nil, err
	}

	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, nil, readErr
		}
		rows = append(rows, record)
	}
	return headers, rows, nil
}

func renderBody(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email body: %w", err)
	}
	return buf.String(), nil
}
