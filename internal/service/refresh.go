package service

import (
	"context"
	"time"
)

// RefreshLoop re-warms the calendar and inbox caches every
// refresh_seconds until ctx is cancelled. The first refresh runs
// immediately so a freshly started daemon answers from cache.
func (s *Service) RefreshLoop(ctx context.Context) {
	period := time.Duration(s.cfg.Service.RefreshSeconds) * time.Second
	if period <= 0 {
		period = 10 * time.Minute
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	s.refreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshOnce(ctx)
		}
	}
}

func (s *Service) refreshOnce(ctx context.Context) {
	window := s.refreshWindow()
	events, err := s.ews.FindCalendarItems(ctx, window)
	if err != nil {
		s.log.Warn().Err(err).Msg("refresh calendar")
	} else if err := s.store.ReplaceEvents(ctx, events, window, s.now()); err != nil {
		s.log.Warn().Err(err).Msg("store calendar")
	} else {
		s.log.Debug().Int("events", len(events)).Msg("calendar refreshed")
	}

	msgs, err := s.ews.FindMessages(ctx, "inbox", mailFetchSize, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("refresh inbox")
	} else if err := s.store.ReplaceMessages(ctx, "inbox", msgs, s.now()); err != nil {
		s.log.Warn().Err(err).Msg("store inbox")
	} else {
		s.log.Debug().Int("messages", len(msgs)).Msg("inbox refreshed")
	}
}
