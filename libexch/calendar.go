package libexch

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/exchtools/exch/internal/interval"
	"github.com/exchtools/exch/internal/schedule"
)

// Event is one calendar appointment.
type Event struct {
	ID        string    `json:"id"`
	ChangeKey string    `json:"-"`
	Subject   string    `json:"subject"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Location  string    `json:"location,omitempty"`
	Organizer string    `json:"organizer,omitempty"`
}

type findCalendarRequest struct {
	XMLName   xml.Name `xml:"m:FindItem"`
	Traversal string   `xml:"Traversal,attr"`
	ItemShape itemShape
	View      calendarView
	Folders   parentFolderIDs
}

type calendarView struct {
	XMLName    xml.Name `xml:"m:CalendarView"`
	MaxEntries int      `xml:"MaxEntriesReturned,attr,omitempty"`
	StartDate  string   `xml:"StartDate,attr"`
	EndDate    string   `xml:"EndDate,attr"`
}

type parentFolderIDs struct {
	XMLName xml.Name `xml:"m:ParentFolderIds"`
	Folder  distinguishedFolderID
}

type findItemResponse struct {
	XMLName  xml.Name `xml:"FindItemResponse"`
	Messages []struct {
		responseMessage
		RootFolder struct {
			CalendarItems []calendarItemXML `xml:"Items>CalendarItem"`
			Messages      []messageXML      `xml:"Items>Message"`
			Contacts      []contactXML      `xml:"Items>Contact"`
		} `xml:"RootFolder"`
	} `xml:"ResponseMessages>FindItemResponseMessage"`
}

type calendarItemXML struct {
	ItemID    itemID `xml:"ItemId"`
	Subject   string `xml:"Subject"`
	Start     string `xml:"Start"`
	End       string `xml:"End"`
	Location  string `xml:"Location"`
	Organizer struct {
		Mailbox struct {
			Name    string `xml:"Name"`
			Address string `xml:"EmailAddress"`
		} `xml:"Mailbox"`
	} `xml:"Organizer"`
}

// FindCalendarItems lists appointments overlapping window, expanded
// (recurring series come back as individual occurrences), sorted by
// start time by the server.
func (c *Client) FindCalendarItems(ctx context.Context, window interval.Range) ([]Event, error) {
	req := findCalendarRequest{
		Traversal: "Shallow",
		ItemShape: itemShape{BaseShape: "Default"},
		View: calendarView{
			StartDate: window.Start.UTC().Format(ewsTimeLayout),
			EndDate:   window.End.UTC().Format(ewsTimeLayout),
		},
		Folders: parentFolderIDs{Folder: distinguishedFolderID{ID: "calendar"}},
	}

	var resp findItemResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("find calendar items: %w", err)
	}

	var events []Event
	for _, msg := range resp.Messages {
		if err := msg.check(); err != nil {
			return nil, err
		}
		for _, item := range msg.RootFolder.CalendarItems {
			ev, err := item.toEvent()
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

func (x calendarItemXML) toEvent() (Event, error) {
	start, err := parseEWSTime(x.Start)
	if err != nil {
		return Event{}, fmt.Errorf("calendar item %q: %w", x.Subject, err)
	}
	end, err := parseEWSTime(x.End)
	if err != nil {
		return Event{}, fmt.Errorf("calendar item %q: %w", x.Subject, err)
	}
	return Event{
		ID:        x.ItemID.ID,
		ChangeKey: x.ItemID.ChangeKey,
		Subject:   x.Subject,
		Start:     start,
		End:       end,
		Location:  x.Location,
		Organizer: x.Organizer.Mailbox.Address,
	}, nil
}

func parseEWSTime(s string) (time.Time, error) {
	if t, err := time.Parse(ewsTimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(ewsLocalTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ews time %q: %w", s, err)
	}
	return t, nil
}

type createItemRequest struct {
	XMLName         xml.Name `xml:"m:CreateItem"`
	SendInvitations string   `xml:"SendMeetingInvitations,attr"`
	Items           createItems
}

type createItems struct {
	XMLName xml.Name `xml:"m:Items"`
	Item    calendarItemWrite
}

type calendarItemWrite struct {
	XMLName   xml.Name      `xml:"t:CalendarItem"`
	Subject   string        `xml:"t:Subject"`
	Start     string        `xml:"t:Start"`
	End       string        `xml:"t:End"`
	Location  string        `xml:"t:Location,omitempty"`
	Attendees *attendeeList `xml:"t:RequiredAttendees,omitempty"`
}

type attendeeList struct {
	Attendees []attendeeWrite `xml:"t:Attendee"`
}

type attendeeWrite struct {
	Mailbox mailboxWrite `xml:"t:Mailbox"`
}

type mailboxWrite struct {
	Address string `xml:"t:EmailAddress"`
}

type createItemResponse struct {
	XMLName  xml.Name `xml:"CreateItemResponse"`
	Messages []struct {
		responseMessage
		Items struct {
			CalendarItems []calendarItemXML `xml:"CalendarItem"`
			Messages      []messageXML      `xml:"Message"`
		} `xml:"Items"`
	} `xml:"ResponseMessages>CreateItemResponseMessage"`
}

// CreateCalendarItem creates an appointment from a resolved event spec
// and returns the new item's id. Attendees, when present, receive
// invitations.
func (c *Client) CreateCalendarItem(ctx context.Context, spec schedule.EventSpec) (string, error) {
	item := calendarItemWrite{
		Subject:  spec.Title,
		Start:    spec.Range.Start.UTC().Format(ewsTimeLayout),
		End:      spec.Range.End.UTC().Format(ewsTimeLayout),
		Location: spec.Location,
	}
	if len(spec.Attendees) > 0 {
		list := &attendeeList{}
		for _, a := range spec.Attendees {
			list.Attendees = append(list.Attendees, attendeeWrite{Mailbox: mailboxWrite{Address: a}})
		}
		item.Attendees = list
	}

	req := createItemRequest{
		SendInvitations: "SendToAllAndSaveCopy",
		Items:           createItems{Item: item},
	}

	var resp createItemResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("create calendar item: %w", err)
	}
	for _, msg := range resp.Messages {
		if err := msg.check(); err != nil {
			return "", err
		}
		if len(msg.Items.CalendarItems) > 0 {
			return msg.Items.CalendarItems[0].ItemID.ID, nil
		}
	}
	return "", nil
}

type deleteItemRequest struct {
	XMLName           xml.Name `xml:"m:DeleteItem"`
	DeleteType        string   `xml:"DeleteType,attr"`
	SendCancellations string   `xml:"SendMeetingCancellations,attr"`
	ItemIDs           deleteItemIDs
}

type deleteItemIDs struct {
	XMLName xml.Name `xml:"m:ItemIds"`
	Items   []deleteItemID
}

type deleteItemID struct {
	XMLName xml.Name `xml:"t:ItemId"`
	ID      string   `xml:"Id,attr"`
}

type deleteItemResponse struct {
	XMLName  xml.Name `xml:"DeleteItemResponse"`
	Messages []struct {
		responseMessage
	} `xml:"ResponseMessages>DeleteItemResponseMessage"`
}

// DeleteItem moves an item to deleted items; attendees of a meeting get
// a cancellation.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	req := deleteItemRequest{
		DeleteType:        "MoveToDeletedItems",
		SendCancellations: "SendToAllAndSaveCopy",
		ItemIDs:           deleteItemIDs{Items: []deleteItemID{{ID: id}}},
	}

	var resp deleteItemResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	for _, msg := range resp.Messages {
		if err := msg.check(); err != nil {
			return err
		}
	}
	return nil
}
