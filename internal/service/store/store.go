// Package store is the sqlite cache behind the companion service. It
// holds calendar events, mail headers and busy intervals fetched from
// Exchange, plus per-resource refresh timestamps used for TTL checks.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/exchtools/exch/internal/interval"
	"github.com/exchtools/exch/internal/schedule"
	"github.com/exchtools/exch/libexch"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id        TEXT PRIMARY KEY,
	subject   TEXT NOT NULL,
	start_at  INTEGER NOT NULL,
	end_at    INTEGER NOT NULL,
	location  TEXT NOT NULL DEFAULT '',
	organizer TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_start ON events (start_at);

CREATE TABLE IF NOT EXISTS messages (
	id       TEXT PRIMARY KEY,
	folder   TEXT NOT NULL,
	subject  TEXT NOT NULL,
	sender   TEXT NOT NULL DEFAULT '',
	received INTEGER NOT NULL,
	is_read  INTEGER NOT NULL DEFAULT 0,
	preview  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_folder ON messages (folder, received);

CREATE TABLE IF NOT EXISTS busy (
	id       TEXT PRIMARY KEY,
	email    TEXT NOT NULL,
	start_at INTEGER NOT NULL,
	end_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_busy_email ON busy (email, start_at);

CREATE TABLE IF NOT EXISTS cache_meta (
	key          TEXT PRIMARY KEY,
	refreshed_at INTEGER NOT NULL,
	covers_start INTEGER NOT NULL DEFAULT 0,
	covers_end   INTEGER NOT NULL DEFAULT 0
);
`

// Store wraps the sqlite cache database.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open opens (and if necessary creates) the cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	// sqlite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Store{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceEvents swaps the cached calendar for the given events and
// stamps the calendar as freshly refreshed for the fetched window.
func (s *Store) ReplaceEvents(ctx context.Context, events []libexch.Event, fetched interval.Range, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM events"); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}

	for _, ev := range events {
		query, args, err := s.sb.Insert("events").
			Columns("id", "subject", "start_at", "end_at", "location", "organizer").
			Values(ev.ID, ev.Subject, ev.Start.Unix(), ev.End.Unix(), ev.Location, ev.Organizer).
			ToSql()
		if err != nil {
			return fmt.Errorf("build event insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}

	if err := touchMeta(ctx, tx, KeyCalendar, now, fetched); err != nil {
		return err
	}
	return tx.Commit()
}

// EventsBetween returns cached events overlapping the window, ordered
// by start time.
func (s *Store) EventsBetween(ctx context.Context, window interval.Range) ([]libexch.Event, error) {
	query, args, err := s.sb.Select("id", "subject", "start_at", "end_at", "location", "organizer").
		From("events").
		Where(sq.Lt{"start_at": window.End.Unix()}).
		Where(sq.Gt{"end_at": window.Start.Unix()}).
		OrderBy("start_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build event query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []libexch.Event
	for rows.Next() {
		var ev libexch.Event
		var start, end int64
		if err := rows.Scan(&ev.ID, &ev.Subject, &start, &end, &ev.Location, &ev.Organizer); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Start = time.Unix(start, 0).UTC()
		ev.End = time.Unix(end, 0).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteEvent removes one cached event without touching the refresh
// stamp, mirroring a deletion that already happened upstream.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	query, args, err := s.sb.Delete("events").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build event delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// ReplaceMessages swaps the cached headers of one folder.
func (s *Store) ReplaceMessages(ctx context.Context, folder string, msgs []libexch.Message, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	del, args, err := s.sb.Delete("messages").Where(sq.Eq{"folder": folder}).ToSql()
	if err != nil {
		return fmt.Errorf("build message delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	for _, m := range msgs {
		query, args, err := s.sb.Insert("messages").
			Columns("id", "folder", "subject", "sender", "received", "is_read", "preview").
			Values(m.ID, folder, m.Subject, m.From, m.Received.Unix(), m.IsRead, m.Preview).
			ToSql()
		if err != nil {
			return fmt.Errorf("build message insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}

	if err := touchMeta(ctx, tx, KeyMail(folder), now, interval.Range{}); err != nil {
		return err
	}
	return tx.Commit()
}

// MessagesIn returns cached headers of one folder, newest first.
func (s *Store) MessagesIn(ctx context.Context, folder string, limit int, unreadOnly bool) ([]libexch.Message, error) {
	builder := s.sb.Select("id", "subject", "sender", "received", "is_read", "preview").
		From("messages").
		Where(sq.Eq{"folder": folder}).
		OrderBy("received DESC")
	if unreadOnly {
		builder = builder.Where(sq.Eq{"is_read": false})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build message query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []libexch.Message
	for rows.Next() {
		var m libexch.Message
		var received int64
		if err := rows.Scan(&m.ID, &m.Subject, &m.From, &received, &m.IsRead, &m.Preview); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Received = time.Unix(received, 0).UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ReplaceBusy swaps the cached busy intervals of the given mailboxes
// and stamps each one as refreshed for the fetched window. Mailboxes
// absent from perPerson keep their existing rows.
func (s *Store) ReplaceBusy(ctx context.Context, perPerson map[string][]schedule.Busy, fetched interval.Range, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for email, busy := range perPerson {
		del, args, err := s.sb.Delete("busy").Where(sq.Eq{"email": email}).ToSql()
		if err != nil {
			return fmt.Errorf("build busy delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, del, args...); err != nil {
			return fmt.Errorf("clear busy for %s: %w", email, err)
		}

		for _, b := range busy {
			query, args, err := s.sb.Insert("busy").
				Columns("id", "email", "start_at", "end_at").
				Values(uuid.NewString(), email, b.Range.Start.Unix(), b.Range.End.Unix()).
				ToSql()
			if err != nil {
				return fmt.Errorf("build busy insert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("insert busy for %s: %w", email, err)
			}
		}

		if err := touchMeta(ctx, tx, KeyBusy(email), now, fetched); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// BusyFor returns cached busy intervals per mailbox, clipped to rows
// overlapping the window.
func (s *Store) BusyFor(ctx context.Context, emails []string, window interval.Range) (map[string][]schedule.Busy, error) {
	query, args, err := s.sb.Select("email", "start_at", "end_at").
		From("busy").
		Where(sq.Eq{"email": emails}).
		Where(sq.Lt{"start_at": window.End.Unix()}).
		Where(sq.Gt{"end_at": window.Start.Unix()}).
		OrderBy("email", "start_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build busy query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query busy: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]schedule.Busy, len(emails))
	for _, email := range emails {
		result[email] = nil
	}
	for rows.Next() {
		var email string
		var start, end int64
		if err := rows.Scan(&email, &start, &end); err != nil {
			return nil, fmt.Errorf("scan busy: %w", err)
		}
		result[email] = append(result[email], schedule.Busy{
			Owner: email,
			Range: interval.Range{
				Start: time.Unix(start, 0).UTC(),
				End:   time.Unix(end, 0).UTC(),
			},
		})
	}
	return result, rows.Err()
}

// Cache meta keys.
const KeyCalendar = "calendar"

// KeyMail is the cache meta key for one mail folder.
func KeyMail(folder string) string { return "mail:" + folder }

// KeyBusy is the cache meta key for one mailbox's busy intervals.
func KeyBusy(email string) string { return "busy:" + email }

// Age returns how long ago the keyed resource was refreshed. ok is
// false when it was never refreshed.
func (s *Store) Age(ctx context.Context, key string, now time.Time) (time.Duration, bool, error) {
	query, args, err := s.sb.Select("refreshed_at").
		From("cache_meta").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build meta query: %w", err)
	}

	var refreshed int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&refreshed)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query meta %s: %w", key, err)
	}
	return now.Sub(time.Unix(refreshed, 0)), true, nil
}

// Coverage reports the refresh age and the window the keyed resource was
// fetched for. Resources stamped without a window (mail folders) report
// a zero range; ok is false when the resource was never refreshed.
func (s *Store) Coverage(ctx context.Context, key string, now time.Time) (time.Duration, interval.Range, bool, error) {
	query, args, err := s.sb.Select("refreshed_at", "covers_start", "covers_end").
		From("cache_meta").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return 0, interval.Range{}, false, fmt.Errorf("build meta query: %w", err)
	}

	var refreshed, start, end int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&refreshed, &start, &end)
	if err == sql.ErrNoRows {
		return 0, interval.Range{}, false, nil
	}
	if err != nil {
		return 0, interval.Range{}, false, fmt.Errorf("query meta %s: %w", key, err)
	}

	var span interval.Range
	if start != 0 || end != 0 {
		span = interval.Range{Start: time.Unix(start, 0).UTC(), End: time.Unix(end, 0).UTC()}
	}
	return now.Sub(time.Unix(refreshed, 0)), span, true, nil
}

// Invalidate drops the refresh stamp of a resource, forcing the next
// read to go upstream.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	query, args, err := s.sb.Delete("cache_meta").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("build meta delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}

func touchMeta(ctx context.Context, tx *sql.Tx, key string, now time.Time, fetched interval.Range) error {
	var start, end int64
	if !fetched.IsZero() {
		start, end = fetched.Start.Unix(), fetched.End.Unix()
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO cache_meta (key, refreshed_at, covers_start, covers_end) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET refreshed_at = excluded.refreshed_at, covers_start = excluded.covers_start, covers_end = excluded.covers_end",
		key, now.Unix(), start, end)
	if err != nil {
		return fmt.Errorf("touch meta %s: %w", key, err)
	}
	return nil
}
