package libexch

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/exchtools/exch/internal/interval"
	"github.com/exchtools/exch/internal/schedule"
)

type availabilityRequest struct {
	XMLName   xml.Name `xml:"m:GetUserAvailabilityRequest"`
	TimeZone  requestTimeZone
	Mailboxes mailboxDataArray
	View      freeBusyViewOptions
}

// requestTimeZone is mandatory in the availability request. Busy data
// is requested in UTC; callers convert for display.
type requestTimeZone struct {
	XMLName  xml.Name           `xml:"t:TimeZone"`
	Bias     int                `xml:"t:Bias"`
	Standard timeZoneTransition `xml:"t:StandardTime"`
	Daylight timeZoneTransition `xml:"t:DaylightTime"`
}

type timeZoneTransition struct {
	Bias      int    `xml:"t:Bias"`
	Time      string `xml:"t:Time"`
	DayOrder  int    `xml:"t:DayOrder"`
	Month     int    `xml:"t:Month"`
	DayOfWeek string `xml:"t:DayOfWeek"`
}

type mailboxDataArray struct {
	XMLName   xml.Name      `xml:"m:MailboxDataArray"`
	Mailboxes []mailboxData `xml:"t:MailboxData"`
}

type mailboxData struct {
	Email            mailboxEmail `xml:"t:Email"`
	AttendeeType     string       `xml:"t:AttendeeType"`
	ExcludeConflicts bool         `xml:"t:ExcludeConflicts"`
}

type mailboxEmail struct {
	Address string `xml:"t:Address"`
}

type freeBusyViewOptions struct {
	XMLName        xml.Name `xml:"t:FreeBusyViewOptions"`
	Window         requestTimeWindow
	MergedInterval int    `xml:"t:MergedFreeBusyIntervalInMinutes"`
	ViewType       string `xml:"t:RequestedView"`
}

type requestTimeWindow struct {
	XMLName xml.Name `xml:"t:TimeWindow"`
	Start   string   `xml:"t:StartTime"`
	End     string   `xml:"t:EndTime"`
}

type availabilityResponse struct {
	XMLName   xml.Name `xml:"GetUserAvailabilityResponse"`
	Responses []struct {
		Message struct {
			responseMessage
		} `xml:"ResponseMessage"`
		View struct {
			Events []struct {
				Start    string `xml:"StartTime"`
				End      string `xml:"EndTime"`
				BusyType string `xml:"BusyType"`
			} `xml:"CalendarEventArray>CalendarEvent"`
		} `xml:"FreeBusyView"`
	} `xml:"FreeBusyResponseArray>FreeBusyResponse"`
}

// GetUserAvailability returns busy intervals per mailbox for the given
// window. Entries the server marks Free are dropped; Tentative, Busy
// and OOF all count as busy. The response array preserves request
// order, which is how results are matched back to addresses.
func (c *Client) GetUserAvailability(ctx context.Context, emails []string, window interval.Range) (map[string][]schedule.Busy, error) {
	if len(emails) == 0 {
		return map[string][]schedule.Busy{}, nil
	}

	req := availabilityRequest{
		TimeZone: utcTimeZone(),
		View: freeBusyViewOptions{
			Window: requestTimeWindow{
				Start: window.Start.UTC().Format(ewsLocalTimeLayout),
				End:   window.End.UTC().Format(ewsLocalTimeLayout),
			},
			MergedInterval: 30,
			ViewType:       "Detailed",
		},
	}
	for _, email := range emails {
		req.Mailboxes.Mailboxes = append(req.Mailboxes.Mailboxes, mailboxData{
			Email:        mailboxEmail{Address: email},
			AttendeeType: "Required",
		})
	}

	var resp availabilityResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("get user availability: %w", err)
	}
	if len(resp.Responses) != len(emails) {
		return nil, fmt.Errorf("availability response for %d mailboxes, requested %d", len(resp.Responses), len(emails))
	}

	result := make(map[string][]schedule.Busy, len(emails))
	for i, r := range resp.Responses {
		email := emails[i]
		if err := r.Message.check(); err != nil {
			return nil, fmt.Errorf("availability for %s: %w", email, err)
		}

		var busy []schedule.Busy
		for _, ev := range r.View.Events {
			if ev.BusyType == "Free" {
				continue
			}
			start, err := parseEWSTime(ev.Start)
			if err != nil {
				return nil, fmt.Errorf("availability for %s: %w", email, err)
			}
			end, err := parseEWSTime(ev.End)
			if err != nil {
				return nil, fmt.Errorf("availability for %s: %w", email, err)
			}
			if !start.Before(end) {
				continue
			}
			busy = append(busy, schedule.Busy{
				Owner: email,
				Range: interval.Range{Start: start, End: end},
			})
		}
		result[email] = busy
	}
	return result, nil
}

func utcTimeZone() requestTimeZone {
	transition := timeZoneTransition{
		Time:      "00:00:00",
		DayOrder:  1,
		Month:     1,
		DayOfWeek: "Sunday",
	}
	return requestTimeZone{Bias: 0, Standard: transition, Daylight: transition}
}

// FetchBusy implements schedule.CalendarSource for a single account.
func (c *Client) FetchBusy(ctx context.Context, account string, window interval.Range) ([]schedule.Busy, error) {
	perPerson, err := c.GetUserAvailability(ctx, []string{account}, window)
	if err != nil {
		return nil, err
	}
	return perPerson[account], nil
}

// GatherBusy fetches busy intervals for several accounts concurrently
// from a CalendarSource. The first error cancels the remaining fetches.
func GatherBusy(ctx context.Context, src schedule.CalendarSource, accounts []string, window interval.Range) (map[string][]schedule.Busy, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type fetched struct {
		account string
		busy    []schedule.Busy
		err     error
	}

	ch := make(chan fetched, len(accounts))
	for _, account := range accounts {
		go func(account string) {
			busy, err := src.FetchBusy(ctx, account, window)
			ch <- fetched{account: account, busy: busy, err: err}
		}(account)
	}

	result := make(map[string][]schedule.Busy, len(accounts))
	var firstErr error
	for range accounts {
		f := <-ch
		if f.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch busy for %s: %w", f.account, f.err)
				cancel()
			}
			continue
		}
		result[f.account] = f.busy
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}
