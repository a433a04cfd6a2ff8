package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exchtools/exch/internal/interval"
	"github.com/exchtools/exch/internal/schedule"
	"github.com/exchtools/exch/internal/service/store"
	"github.com/exchtools/exch/libexch"
)

type fakeExchange struct {
	events []libexch.Event
	busy   map[string][]schedule.Busy
	msgs   []libexch.Message
	err    error

	calendarCalls   int
	busyCalls       int
	mailCalls       int
	calendarWindows []interval.Range
	busyWindows     []interval.Range
	created         []schedule.EventSpec
	deleted         []string
	sentTo          []string
}

// The fake answers like Exchange would: only items overlapping the
// requested window come back.
func (f *fakeExchange) FindCalendarItems(ctx context.Context, window interval.Range) ([]libexch.Event, error) {
	f.calendarCalls++
	f.calendarWindows = append(f.calendarWindows, window)
	if f.err != nil {
		return nil, f.err
	}
	var events []libexch.Event
	for _, ev := range f.events {
		if interval.Overlaps(window, interval.Range{Start: ev.Start, End: ev.End}) {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (f *fakeExchange) CreateCalendarItem(ctx context.Context, spec schedule.EventSpec) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, spec)
	return "AAMkNew", nil
}

func (f *fakeExchange) DeleteItem(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeExchange) GetUserAvailability(ctx context.Context, emails []string, window interval.Range) (map[string][]schedule.Busy, error) {
	f.busyCalls++
	f.busyWindows = append(f.busyWindows, window)
	if f.err != nil {
		return nil, f.err
	}
	result := make(map[string][]schedule.Busy, len(f.busy))
	for email, busy := range f.busy {
		var kept []schedule.Busy
		for _, b := range busy {
			if interval.Overlaps(window, b.Range) {
				kept = append(kept, b)
			}
		}
		result[email] = kept
	}
	return result, nil
}

func (f *fakeExchange) FindMessages(ctx context.Context, folder string, limit int, unreadOnly bool) ([]libexch.Message, error) {
	f.mailCalls++
	return f.msgs, f.err
}

func (f *fakeExchange) SendMessage(ctx context.Context, to, cc []string, subject, body string, html bool) error {
	if f.err != nil {
		return f.err
	}
	f.sentTo = append(f.sentTo, to...)
	return nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*Service, *fakeExchange, *echo.Echo, *testClock) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &libexch.Config{
		Account:  "me@example.com",
		Timezone: "UTC",
		Service:  libexch.ServiceConfig{Host: "127.0.0.1", Port: 0, CacheTTL: 300, RefreshSeconds: 600},
	}
	ews := &fakeExchange{}
	svc := New(cfg, ews, st, zerolog.Nop())

	clock := &testClock{now: time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return clock.now }

	e := echo.New()
	svc.Routes(e)
	return svc, ews, e, clock
}

func doRequest(e *echo.Echo, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	svc, _, e, clock := newTestService(t)

	rec := doRequest(e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "me@example.com", resp.Account)
	assert.EqualValues(t, -1, resp.CacheAgeSeconds)

	require.NoError(t, svc.store.ReplaceEvents(context.Background(), nil, svc.refreshWindow(), clock.now))
	clock.advance(90 * time.Second)

	rec = doRequest(e, http.MethodGet, "/health", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 90, resp.CacheAgeSeconds)
}

func TestCalendarCaching(t *testing.T) {
	_, ews, e, clock := newTestService(t)
	ews.events = []libexch.Event{{
		ID:      "ev1",
		Subject: "Standup",
		Start:   time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC),
		End:     time.Date(2026, 1, 21, 9, 15, 0, 0, time.UTC),
	}}

	// First read misses and fetches upstream.
	rec := doRequest(e, http.MethodGet, "/calendar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ews.calendarCalls)

	var events []libexch.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "Standup", events[0].Subject)

	// Within the TTL the cache answers.
	rec = doRequest(e, http.MethodGet, "/calendar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ews.calendarCalls)

	// After the TTL the next read goes upstream again.
	clock.advance(6 * time.Minute)
	rec = doRequest(e, http.MethodGet, "/calendar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ews.calendarCalls)
}

func TestCalendarServesStaleOnUpstreamError(t *testing.T) {
	_, ews, e, clock := newTestService(t)
	ews.events = []libexch.Event{{
		ID:      "ev1",
		Subject: "Standup",
		Start:   time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC),
		End:     time.Date(2026, 1, 21, 9, 15, 0, 0, time.UTC),
	}}

	rec := doRequest(e, http.MethodGet, "/calendar", "")
	require.Equal(t, http.StatusOK, rec.Code)

	clock.advance(10 * time.Minute)
	ews.err = errors.New("ews down")

	rec = doRequest(e, http.MethodGet, "/calendar", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []libexch.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 1)
}

func TestCalendarWindowFilter(t *testing.T) {
	_, ews, e, _ := newTestService(t)
	ews.events = []libexch.Event{
		{
			ID:    "ev1",
			Start: time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:    "ev2",
			Start: time.Date(2026, 1, 23, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 23, 10, 0, 0, 0, time.UTC),
		},
	}

	rec := doRequest(e, http.MethodGet,
		"/calendar?from=2026-01-21T00:00:00Z&to=2026-01-22T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []libexch.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "ev1", events[0].ID)

	rec = doRequest(e, http.MethodGet, "/calendar?from=not-a-time", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarFarWindowGoesUpstream(t *testing.T) {
	_, ews, e, _ := newTestService(t)
	ews.events = []libexch.Event{{
		ID:      "ev-jul",
		Subject: "Offsite",
		Start:   time.Date(2026, 7, 22, 9, 0, 0, 0, time.UTC),
		End:     time.Date(2026, 7, 22, 10, 0, 0, 0, time.UTC),
	}}

	// A near-term read warms the cache with nothing in it.
	rec := doRequest(e, http.MethodGet, "/calendar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ews.calendarCalls)

	// A window beyond the warmed span must go upstream, not answer an
	// empty 200 from a cache that never saw that span.
	july := interval.Range{
		Start: time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC),
	}
	rec = doRequest(e, http.MethodGet,
		"/calendar?from=2026-07-20T00:00:00Z&to=2026-07-27T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, ews.calendarCalls)
	assert.True(t, ews.calendarWindows[1].Covers(july))

	var events []libexch.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "ev-jul", events[0].ID)

	// The widened fetch now covers July; a repeat is a cache hit.
	rec = doRequest(e, http.MethodGet,
		"/calendar?from=2026-07-20T00:00:00Z&to=2026-07-27T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ews.calendarCalls)
}

func TestCreateEvent(t *testing.T) {
	_, ews, e, _ := newTestService(t)

	body := `{"subject":"Workshop","start":"2026-01-23T14:00:00Z","end":"2026-01-23T16:00:00Z","attendees":["anna@example.com"]}`
	rec := doRequest(e, http.MethodPost, "/calendar", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateEventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AAMkNew", resp.ID)
	require.Len(t, ews.created, 1)
	assert.Equal(t, "Workshop", ews.created[0].Title)

	// The create invalidates the calendar cache: the next read fetches.
	doRequest(e, http.MethodGet, "/calendar", "")
	assert.Equal(t, 1, ews.calendarCalls)
}

func TestCreateEventRejectsBadRange(t *testing.T) {
	_, _, e, _ := newTestService(t)

	body := `{"subject":"Workshop","start":"2026-01-23T16:00:00Z","end":"2026-01-23T14:00:00Z"}`
	rec := doRequest(e, http.MethodPost, "/calendar", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = `{"subject":"  ","start":"2026-01-23T14:00:00Z","end":"2026-01-23T16:00:00Z"}`
	rec = doRequest(e, http.MethodPost, "/calendar", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteEvent(t *testing.T) {
	_, ews, e, _ := newTestService(t)

	rec := doRequest(e, http.MethodDelete, "/calendar/AAMkGone", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"AAMkGone"}, ews.deleted)
}

func TestFreeBusyCaching(t *testing.T) {
	_, ews, e, _ := newTestService(t)
	ews.busy = map[string][]schedule.Busy{
		"anna@example.com": {{
			Owner: "anna@example.com",
			Range: interval.Range{
				Start: time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC),
				End:   time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC),
			},
		}},
	}

	target := "/freebusy?emails=anna@example.com&from=2026-01-21T00:00:00Z&to=2026-01-22T00:00:00Z"
	rec := doRequest(e, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ews.busyCalls)

	var busy map[string][]schedule.Busy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &busy))
	require.Len(t, busy["anna@example.com"], 1)

	// Second read is served from cache.
	rec = doRequest(e, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ews.busyCalls)

	// A mailbox the cache has never seen forces a fetch.
	rec = doRequest(e, http.MethodGet,
		"/freebusy?emails=anna@example.com,bob@example.com&from=2026-01-21T00:00:00Z&to=2026-01-22T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ews.busyCalls)

	rec = doRequest(e, http.MethodGet, "/freebusy", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFreeBusyDifferentWindowRefetches(t *testing.T) {
	_, ews, e, _ := newTestService(t)
	ews.busy = map[string][]schedule.Busy{
		"anna@example.com": {{
			Owner: "anna@example.com",
			Range: interval.Range{
				Start: time.Date(2026, 7, 22, 9, 0, 0, 0, time.UTC),
				End:   time.Date(2026, 7, 22, 17, 0, 0, 0, time.UTC),
			},
		}},
	}

	january := "/freebusy?emails=anna@example.com&from=2026-01-19T00:00:00Z&to=2026-01-26T00:00:00Z"
	july := "/freebusy?emails=anna@example.com&from=2026-07-20T00:00:00Z&to=2026-07-27T00:00:00Z"

	rec := doRequest(e, http.MethodGet, january, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ews.busyCalls)

	var busy map[string][]schedule.Busy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &busy))
	assert.Empty(t, busy["anna@example.com"])

	// A query for a different window within the TTL must not be served
	// from the cache warmed for January: anna is booked solid in July.
	rec = doRequest(e, http.MethodGet, july, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, ews.busyCalls)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &busy))
	require.Len(t, busy["anna@example.com"], 1)
	assert.Equal(t, time.Date(2026, 7, 22, 9, 0, 0, 0, time.UTC), busy["anna@example.com"][0].Range.Start)

	// Repeating the July query hits the cache stamped for July.
	rec = doRequest(e, http.MethodGet, july, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ews.busyCalls)
}

func TestMailCaching(t *testing.T) {
	_, ews, e, _ := newTestService(t)
	ews.msgs = []libexch.Message{
		{
			ID:       "m1",
			Subject:  "Read already",
			Received: time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC),
			IsRead:   true,
		},
		{
			ID:       "m2",
			Subject:  "Quarterly numbers",
			Received: time.Date(2026, 1, 20, 16, 30, 0, 0, time.UTC),
		},
	}

	rec := doRequest(e, http.MethodGet, "/mail", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ews.mailCalls)

	var msgs []libexch.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)

	// The unread filter applies on the cached set without a new fetch.
	rec = doRequest(e, http.MethodGet, "/mail?unread=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ews.mailCalls)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "m2", msgs[0].ID)

	rec = doRequest(e, http.MethodGet, "/mail?folder=outbox", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodGet, "/mail?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMail(t *testing.T) {
	_, ews, e, _ := newTestService(t)

	body := `{"to":["anna@example.com"],"subject":"Lunch?","body":"Noon?"}`
	rec := doRequest(e, http.MethodPost, "/mail/send", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"anna@example.com"}, ews.sentTo)

	rec = doRequest(e, http.MethodPost, "/mail/send", `{"subject":"empty"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, e, _ := newTestService(t)

	doRequest(e, http.MethodGet, "/health", "")
	rec := doRequest(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "exch_service_requests_total")
}

func TestRefreshOnce(t *testing.T) {
	svc, ews, _, clock := newTestService(t)
	ews.events = []libexch.Event{{
		ID:    "ev1",
		Start: time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC),
	}}
	ews.msgs = []libexch.Message{{
		ID:       "m1",
		Received: time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC),
	}}

	svc.refreshOnce(context.Background())
	assert.Equal(t, 1, ews.calendarCalls)
	assert.Equal(t, 1, ews.mailCalls)

	age, ok, err := svc.store.Age(context.Background(), store.KeyCalendar, clock.now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), age)
}

func TestRemoteRoundTrip(t *testing.T) {
	_, ews, e, _ := newTestService(t)
	ews.events = []libexch.Event{{
		ID:      "ev1",
		Subject: "Standup",
		Start:   time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC),
		End:     time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC),
	}}
	ews.busy = map[string][]schedule.Busy{"anna@example.com": nil}

	srv := httptest.NewServer(e)
	defer srv.Close()

	remote := NewRemote(srv.URL)
	ctx := context.Background()
	assert.True(t, remote.Reachable(ctx))

	window := interval.Range{
		Start: time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC),
	}
	events, err := remote.Events(ctx, window)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Standup", events[0].Subject)

	id, err := remote.CreateEvent(ctx, schedule.EventSpec{
		Title: "Workshop",
		Range: interval.Range{
			Start: time.Date(2026, 1, 23, 14, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 23, 16, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "AAMkNew", id)

	require.NoError(t, remote.DeleteEvent(ctx, "ev1"))
	assert.Contains(t, ews.deleted, "ev1")

	busy, err := remote.Busy(ctx, []string{"anna@example.com"}, window)
	require.NoError(t, err)
	assert.Contains(t, busy, "anna@example.com")

	require.NoError(t, remote.Send(ctx, []string{"anna@example.com"}, nil, "Hi", "There", false))

	// Errors carry the daemon's message.
	err = remote.DeleteEvent(ctx, "bad")
	require.NoError(t, err) // fake deletes anything

	_, err = remote.Messages(ctx, "outbox", 0, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outbox")
}

func TestRemoteUnreachable(t *testing.T) {
	remote := NewRemote("http://127.0.0.1:1")
	assert.False(t, remote.Reachable(context.Background()))
}
