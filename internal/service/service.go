// Package service is the companion caching daemon behind `exch serve`.
// It fronts Exchange with a local HTTP API, answering from a sqlite
// cache while it is fresh and passing through to EWS when it is not.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/exchtools/exch/internal/interval"
	"github.com/exchtools/exch/internal/schedule"
	"github.com/exchtools/exch/internal/service/store"
	"github.com/exchtools/exch/libexch"
)

// Exchange is the slice of the EWS client the service consumes.
// *libexch.Client satisfies it; tests substitute a fake.
type Exchange interface {
	FindCalendarItems(ctx context.Context, window interval.Range) ([]libexch.Event, error)
	CreateCalendarItem(ctx context.Context, spec schedule.EventSpec) (string, error)
	DeleteItem(ctx context.Context, id string) error
	GetUserAvailability(ctx context.Context, emails []string, window interval.Range) (map[string][]schedule.Busy, error)
	FindMessages(ctx context.Context, folder string, limit int, unreadOnly bool) ([]libexch.Message, error)
	SendMessage(ctx context.Context, to, cc []string, subject, body string, html bool) error
}

// Service wires the cache store, the EWS client and the HTTP surface.
type Service struct {
	cfg     *libexch.Config
	ews     Exchange
	store   *store.Store
	log     zerolog.Logger
	metrics *metrics

	now func() time.Time
}

// New builds a service. The store stays owned by the caller and is not
// closed here.
func New(cfg *libexch.Config, ews Exchange, st *store.Store, log zerolog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		ews:     ews,
		store:   st,
		log:     log,
		metrics: newMetrics(),
		now:     time.Now,
	}
}

func (s *Service) ttl() time.Duration {
	return time.Duration(s.cfg.Service.CacheTTL) * time.Second
}

// Routes registers every endpoint and the shared middleware on e.
func (s *Service) Routes(e *echo.Echo) {
	e.Use(s.logMiddleware)
	e.Use(s.metrics.middleware)

	e.GET("/health", s.getHealth)
	e.GET("/metrics", s.metrics.handler())

	e.GET("/calendar", s.getCalendar)
	e.POST("/calendar", s.postCalendar)
	e.DELETE("/calendar/:id", s.deleteCalendar)

	e.GET("/freebusy", s.getFreeBusy)

	e.GET("/mail", s.getMail)
	e.POST("/mail/send", s.postMailSend)
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s.Routes(e)

	addr := fmt.Sprintf("%s:%d", s.cfg.Service.Host, s.cfg.Service.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()
	s.log.Info().Str("addr", addr).Msg("service listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

func (s *Service) logMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		evt := s.log.Info()
		if err != nil {
			evt = s.log.Warn().Err(err)
		}
		evt.Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", c.Response().Status).
			Dur("took", time.Since(start)).
			Msg("request")
		return err
	}
}

type healthResponse struct {
	Status          string `json:"status"`
	Account         string `json:"account,omitempty"`
	CacheAgeSeconds int64  `json:"cacheAgeSeconds"`
}

func (s *Service) getHealth(c echo.Context) error {
	resp := healthResponse{Status: "ok", Account: s.cfg.Account, CacheAgeSeconds: -1}
	age, ok, err := s.store.Age(c.Request().Context(), store.KeyCalendar, s.now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if ok {
		resp.CacheAgeSeconds = int64(age.Seconds())
	}
	return c.JSON(http.StatusOK, resp)
}

// windowParams reads from/to query parameters, defaulting to the next
// seven days in the configured time zone.
func (s *Service) windowParams(c echo.Context) (interval.Range, error) {
	loc, err := s.cfg.Location()
	if err != nil {
		return interval.Range{}, err
	}

	now := s.now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 7)

	if v := c.QueryParam("from"); v != "" {
		start, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return interval.Range{}, fmt.Errorf("bad 'from': %w", err)
		}
	}
	if v := c.QueryParam("to"); v != "" {
		end, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return interval.Range{}, fmt.Errorf("bad 'to': %w", err)
		}
	}
	return interval.New(start, end)
}

func (s *Service) getCalendar(c echo.Context) error {
	window, err := s.windowParams(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()

	age, span, cached, err := s.store.Coverage(ctx, store.KeyCalendar, s.now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// The cache only answers for windows it was actually fetched for.
	covered := cached && span.Covers(window)
	if covered && age <= s.ttl() {
		s.metrics.hits.WithLabelValues("calendar").Inc()
		events, err := s.store.EventsBetween(ctx, window)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, events)
	}

	s.metrics.misses.WithLabelValues("calendar").Inc()
	fetch := envelope(window, s.refreshWindow())
	events, err := s.ews.FindCalendarItems(ctx, fetch)
	if err != nil {
		// A stale cache beats an error page.
		if covered {
			s.log.Warn().Err(err).Msg("calendar refresh failed, serving stale cache")
			stale, serr := s.store.EventsBetween(ctx, window)
			if serr == nil {
				return c.JSON(http.StatusOK, stale)
			}
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if err := s.store.ReplaceEvents(ctx, events, fetch, s.now()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	fresh, err := s.store.EventsBetween(ctx, window)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, fresh)
}

// envelope is the smallest range containing both a and b.
func envelope(a, b interval.Range) interval.Range {
	if b.Start.Before(a.Start) {
		a.Start = b.Start
	}
	if b.End.After(a.End) {
		a.End = b.End
	}
	return a
}

// refreshWindow is the span the background loop keeps warm: two weeks
// from the start of today. Query windows beyond it widen the fetch.
func (s *Service) refreshWindow() interval.Range {
	loc, err := s.cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	now := s.now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return interval.Range{Start: start, End: start.AddDate(0, 0, 14)}
}

// CreateEventRequest is the POST /calendar body.
type CreateEventRequest struct {
	Subject   string    `json:"subject"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Location  string    `json:"location,omitempty"`
	Attendees []string  `json:"attendees,omitempty"`
}

// CreateEventResponse is the POST /calendar reply.
type CreateEventResponse struct {
	ID string `json:"id"`
}

func (s *Service) postCalendar(c echo.Context) error {
	var req CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rng, err := interval.New(req.Start, req.End)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Subject) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subject is required")
	}
	ctx := c.Request().Context()

	id, err := s.ews.CreateCalendarItem(ctx, schedule.EventSpec{
		Title:     req.Subject,
		Range:     rng,
		Attendees: req.Attendees,
		Location:  req.Location,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	// Force the next read to see the new event.
	if err := s.store.Invalidate(ctx, store.KeyCalendar); err != nil {
		s.log.Warn().Err(err).Msg("invalidate calendar cache")
	}
	return c.JSON(http.StatusCreated, CreateEventResponse{ID: id})
}

func (s *Service) deleteCalendar(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	if err := s.ews.DeleteItem(ctx, id); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("id", id).Msg("drop cached event")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Service) getFreeBusy(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("emails"))
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "emails is required")
	}
	var emails []string
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			emails = append(emails, e)
		}
	}

	window, err := s.windowParams(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()

	// Fresh only when every mailbox was fetched recently for a window
	// that contains the requested one.
	fresh := true
	for _, email := range emails {
		age, span, ok, err := s.store.Coverage(ctx, store.KeyBusy(email), s.now())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if !ok || age > s.ttl() || !span.Covers(window) {
			fresh = false
			break
		}
	}

	if fresh {
		s.metrics.hits.WithLabelValues("freebusy").Inc()
		busy, err := s.store.BusyFor(ctx, emails, window)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, busy)
	}

	s.metrics.misses.WithLabelValues("freebusy").Inc()
	busy, err := s.ews.GetUserAvailability(ctx, emails, window)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if err := s.store.ReplaceBusy(ctx, busy, window, s.now()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, busy)
}

// mailFetchSize is how many headers a refresh pulls per folder; list
// requests are then served from the cache with their own limit.
const mailFetchSize = 50

func (s *Service) getMail(c echo.Context) error {
	folder := c.QueryParam("folder")
	if folder == "" {
		folder = "inbox"
	}
	if _, err := libexch.FolderID(folder); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	limit := 25
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "bad 'limit'")
		}
		limit = n
	}
	unread := c.QueryParam("unread") == "true"
	ctx := c.Request().Context()

	key := store.KeyMail(folder)
	age, cached, err := s.store.Age(ctx, key, s.now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if !cached || age > s.ttl() {
		s.metrics.misses.WithLabelValues("mail").Inc()
		msgs, err := s.ews.FindMessages(ctx, folder, mailFetchSize, false)
		if err != nil {
			if !cached {
				return echo.NewHTTPError(http.StatusBadGateway, err.Error())
			}
			s.log.Warn().Err(err).Str("folder", folder).Msg("mail refresh failed, serving stale cache")
		} else if err := s.store.ReplaceMessages(ctx, folder, msgs, s.now()); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	} else {
		s.metrics.hits.WithLabelValues("mail").Inc()
	}

	msgs, err := s.store.MessagesIn(ctx, folder, limit, unread)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, msgs)
}

// SendMailRequest is the POST /mail/send body.
type SendMailRequest struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	HTML    bool     `json:"html,omitempty"`
}

func (s *Service) postMailSend(c echo.Context) error {
	var req SendMailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.To) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "to is required")
	}

	if err := s.ews.SendMessage(c.Request().Context(), req.To, req.Cc, req.Subject, req.Body, req.HTML); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "sent"})
}
