// Package output renders command results as JSON, YAML or plain text,
// converts HTML mail bodies to Markdown, and exports calendars as ICS.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"gopkg.in/yaml.v3"

	"github.com/exchtools/exch/internal/schedule"
)

// Format selects the wire representation of a command result.
type Format int

const (
	Text Format = iota
	JSON
	YAML
)

// ParseFormat maps a --format flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return Text, nil
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return Text, fmt.Errorf("unknown output format %q", s)
}

// Write encodes v in the selected format. Text falls back to JSON; the
// commands that have a human rendering print it themselves instead of
// calling Write.
func Write(w io.Writer, f Format, v any) error {
	switch f {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// ActionResponse is the result of a mutating command (add, delete, send).
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// HTMLToMarkdown converts an HTML mail body to Markdown, returning the
// input unchanged when conversion fails.
func HTMLToMarkdown(html string) string {
	if html == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return html
	}
	return strings.TrimSpace(md)
}

// BodyContent is a mail body together with its content type.
type BodyContent struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// ConvertBodyToMarkdown converts an HTML body to Markdown. Non-HTML
// bodies pass through unchanged.
func ConvertBodyToMarkdown(body *BodyContent) *BodyContent {
	if body == nil {
		return nil
	}
	if !strings.EqualFold(body.ContentType, "HTML") {
		return body
	}
	return &BodyContent{ContentType: "Markdown", Content: HTMLToMarkdown(body.Content)}
}

// PrintSlots writes free slots as aligned human-readable lines, grouped
// implicitly by their chronological order.
func PrintSlots(w io.Writer, slots []schedule.Slot) {
	if len(slots) == 0 {
		fmt.Fprintln(w, "No free slots found.")
		return
	}
	for _, s := range slots {
		fmt.Fprintf(w, "%s  %s - %s  (%s)\n",
			s.Range.Start.Format("Mon 2006-01-02"),
			s.Range.Start.Format("15:04"),
			s.Range.End.Format("15:04"),
			formatDuration(s.Duration))
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
