package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/exchtools/exch/internal/interval"
	"github.com/exchtools/exch/internal/schedule"
	"github.com/exchtools/exch/libexch"
)

// Remote is the CLI's view of a running companion daemon.
type Remote struct {
	base string
	http *http.Client
}

// NewRemote builds a client for the daemon at base, e.g.
// "http://127.0.0.1:8787".
func NewRemote(base string) *Remote {
	return &Remote{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Reachable reports whether the daemon answers its health check. The
// probe is bounded so a missing daemon costs little.
func (r *Remote) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (r *Remote) get(ctx context.Context, path string, query url.Values, out any) error {
	u := r.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return r.do(req, out)
}

func (r *Remote) send(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return r.do(req, out)
}

func (r *Remote) do(req *http.Request, out any) error {
	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("service request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read service response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var httpErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &httpErr) == nil && httpErr.Message != "" {
			return fmt.Errorf("service: %s", httpErr.Message)
		}
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func windowQuery(window interval.Range) url.Values {
	q := url.Values{}
	q.Set("from", window.Start.Format(time.RFC3339))
	q.Set("to", window.End.Format(time.RFC3339))
	return q
}

// Events lists cached calendar events overlapping the window.
func (r *Remote) Events(ctx context.Context, window interval.Range) ([]libexch.Event, error) {
	var events []libexch.Event
	if err := r.get(ctx, "/calendar", windowQuery(window), &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CreateEvent creates an appointment through the daemon.
func (r *Remote) CreateEvent(ctx context.Context, spec schedule.EventSpec) (string, error) {
	req := CreateEventRequest{
		Subject:   spec.Title,
		Start:     spec.Range.Start,
		End:       spec.Range.End,
		Location:  spec.Location,
		Attendees: spec.Attendees,
	}
	var resp CreateEventResponse
	if err := r.send(ctx, http.MethodPost, "/calendar", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// DeleteEvent deletes an appointment through the daemon.
func (r *Remote) DeleteEvent(ctx context.Context, id string) error {
	return r.send(ctx, http.MethodDelete, "/calendar/"+url.PathEscape(id), nil, nil)
}

// Busy returns busy intervals per mailbox from the daemon's cache.
func (r *Remote) Busy(ctx context.Context, emails []string, window interval.Range) (map[string][]schedule.Busy, error) {
	q := windowQuery(window)
	q.Set("emails", strings.Join(emails, ","))

	busy := map[string][]schedule.Busy{}
	if err := r.get(ctx, "/freebusy", q, &busy); err != nil {
		return nil, err
	}
	return busy, nil
}

// Messages lists cached mail headers.
func (r *Remote) Messages(ctx context.Context, folder string, limit int, unreadOnly bool) ([]libexch.Message, error) {
	q := url.Values{}
	if folder != "" {
		q.Set("folder", folder)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if unreadOnly {
		q.Set("unread", "true")
	}

	var msgs []libexch.Message
	if err := r.get(ctx, "/mail", q, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Send sends a mail through the daemon.
func (r *Remote) Send(ctx context.Context, to, cc []string, subject, body string, html bool) error {
	req := SendMailRequest{To: to, Cc: cc, Subject: subject, Body: body, HTML: html}
	return r.send(ctx, http.MethodPost, "/mail/send", req, nil)
}
