package libexch

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"
)

// Message is a mail item. Body is empty in list results; GetMessage
// fills it.
type Message struct {
	ID       string    `json:"id"`
	Subject  string    `json:"subject"`
	From     string    `json:"from"`
	To       []string  `json:"to,omitempty"`
	Received time.Time `json:"received"`
	IsRead   bool      `json:"isRead"`
	Preview  string    `json:"preview,omitempty"`
	Body     string    `json:"body,omitempty"`
	BodyType string    `json:"bodyType,omitempty"`
}

// Mail folders accepted by FindMessages.
var mailFolders = map[string]string{
	"inbox":   "inbox",
	"sent":    "sentitems",
	"drafts":  "drafts",
	"deleted": "deleteditems",
	"junk":    "junkemail",
}

// FolderID maps a user-facing folder name to its EWS distinguished id.
func FolderID(name string) (string, error) {
	id, ok := mailFolders[name]
	if !ok {
		return "", fmt.Errorf("unknown mail folder %q", name)
	}
	return id, nil
}

type findMailRequest struct {
	XMLName     xml.Name `xml:"m:FindItem"`
	Traversal   string   `xml:"Traversal,attr"`
	ItemShape   itemShape
	Paging      indexedPageView
	Restriction *restriction
	Sort        *sortOrder
	Folders     parentFolderIDs
}

type indexedPageView struct {
	XMLName    xml.Name `xml:"m:IndexedPageItemView"`
	MaxEntries int      `xml:"MaxEntriesReturned,attr"`
	Offset     int      `xml:"Offset,attr"`
	BasePoint  string   `xml:"BasePoint,attr"`
}

// restriction filters on unread messages; the only filter we issue.
type restriction struct {
	XMLName xml.Name `xml:"m:Restriction"`
	IsEqual isEqualTo
}

type isEqualTo struct {
	XMLName  xml.Name   `xml:"t:IsEqualTo"`
	Field    fieldURI   `xml:"t:FieldURI"`
	Constant fieldConst `xml:"t:FieldURIOrConstant"`
}

type fieldURI struct {
	URI string `xml:"FieldURI,attr"`
}

type fieldConst struct {
	Constant struct {
		Value string `xml:"Value,attr"`
	} `xml:"t:Constant"`
}

type sortOrder struct {
	XMLName xml.Name `xml:"m:SortOrder"`
	Field   struct {
		Path  fieldURI `xml:"t:FieldURI"`
		Order string   `xml:"Order,attr"`
	} `xml:"t:FieldOrder"`
}

type messageXML struct {
	ItemID  itemID `xml:"ItemId"`
	Subject string `xml:"Subject"`
	From    struct {
		Mailbox struct {
			Address string `xml:"EmailAddress"`
		} `xml:"Mailbox"`
	} `xml:"From"`
	ToRecipients struct {
		Mailboxes []struct {
			Address string `xml:"EmailAddress"`
		} `xml:"Mailbox"`
	} `xml:"ToRecipients"`
	Received string `xml:"DateTimeReceived"`
	IsRead   bool   `xml:"IsRead"`
	Preview  string `xml:"Preview"`
	Body     struct {
		Type    string `xml:"BodyType,attr"`
		Content string `xml:",chardata"`
	} `xml:"Body"`
}

// FindMessages lists message headers from a folder, newest first.
func (c *Client) FindMessages(ctx context.Context, folder string, limit int, unreadOnly bool) ([]Message, error) {
	folderID, err := FolderID(folder)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 25
	}

	req := findMailRequest{
		Traversal: "Shallow",
		ItemShape: itemShape{BaseShape: "Default"},
		Paging:    indexedPageView{MaxEntries: limit, Offset: 0, BasePoint: "Beginning"},
		Folders:   parentFolderIDs{Folder: distinguishedFolderID{ID: folderID}},
	}
	sort := &sortOrder{}
	sort.Field.Path.URI = "item:DateTimeReceived"
	sort.Field.Order = "Descending"
	req.Sort = sort
	if unreadOnly {
		r := &restriction{}
		r.IsEqual.Field.URI = "message:IsRead"
		r.IsEqual.Constant.Constant.Value = "0"
		req.Restriction = r
	}

	var resp findItemResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}

	var messages []Message
	for _, msg := range resp.Messages {
		if err := msg.check(); err != nil {
			return nil, err
		}
		for _, item := range msg.RootFolder.Messages {
			m, err := item.toMessage()
			if err != nil {
				return nil, err
			}
			messages = append(messages, m)
		}
	}
	return messages, nil
}

func (x messageXML) toMessage() (Message, error) {
	var received time.Time
	if x.Received != "" {
		var err error
		received, err = parseEWSTime(x.Received)
		if err != nil {
			return Message{}, fmt.Errorf("message %q: %w", x.Subject, err)
		}
	}

	var to []string
	for _, mb := range x.ToRecipients.Mailboxes {
		to = append(to, mb.Address)
	}

	return Message{
		ID:       x.ItemID.ID,
		Subject:  x.Subject,
		From:     x.From.Mailbox.Address,
		To:       to,
		Received: received,
		IsRead:   x.IsRead,
		Preview:  x.Preview,
		Body:     x.Body.Content,
		BodyType: x.Body.Type,
	}, nil
}

type getItemRequest struct {
	XMLName   xml.Name `xml:"m:GetItem"`
	ItemShape itemShape
	ItemIDs   deleteItemIDs
}

type getItemResponse struct {
	XMLName  xml.Name `xml:"GetItemResponse"`
	Messages []struct {
		responseMessage
		Items struct {
			Messages []messageXML `xml:"Message"`
		} `xml:"Items"`
	} `xml:"ResponseMessages>GetItemResponseMessage"`
}

// GetMessage fetches one message with its full body.
func (c *Client) GetMessage(ctx context.Context, id string) (Message, error) {
	req := getItemRequest{
		ItemShape: itemShape{BaseShape: "AllProperties"},
		ItemIDs:   deleteItemIDs{Items: []deleteItemID{{ID: id}}},
	}

	var resp getItemResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	for _, msg := range resp.Messages {
		if err := msg.check(); err != nil {
			return Message{}, err
		}
		if len(msg.Items.Messages) > 0 {
			return msg.Items.Messages[0].toMessage()
		}
	}
	return Message{}, fmt.Errorf("message %s not found", id)
}

type sendMailRequest struct {
	XMLName     xml.Name `xml:"m:CreateItem"`
	Disposition string   `xml:"MessageDisposition,attr"`
	Items       sendMailItems
}

type sendMailItems struct {
	XMLName xml.Name `xml:"m:Items"`
	Message messageWrite
}

type messageWrite struct {
	XMLName xml.Name       `xml:"t:Message"`
	Subject string         `xml:"t:Subject"`
	Body    bodyWrite      `xml:"t:Body"`
	To      *recipientList `xml:"t:ToRecipients,omitempty"`
	Cc      *recipientList `xml:"t:CcRecipients,omitempty"`
}

type bodyWrite struct {
	Type    string `xml:"BodyType,attr"`
	Content string `xml:",chardata"`
}

type recipientList struct {
	Mailboxes []mailboxWrite `xml:"t:Mailbox"`
}

// SendMessage sends a mail and saves it to sent items. html selects the
// body content type.
func (c *Client) SendMessage(ctx context.Context, to, cc []string, subject, body string, html bool) error {
	bodyType := "Text"
	if html {
		bodyType = "HTML"
	}

	msg := messageWrite{
		Subject: subject,
		Body:    bodyWrite{Type: bodyType, Content: body},
	}
	if len(to) > 0 {
		msg.To = &recipientList{Mailboxes: mailboxes(to)}
	}
	if len(cc) > 0 {
		msg.Cc = &recipientList{Mailboxes: mailboxes(cc)}
	}

	req := sendMailRequest{
		Disposition: "SendAndSaveCopy",
		Items:       sendMailItems{Message: msg},
	}

	var resp createItemResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	for _, m := range resp.Messages {
		if err := m.check(); err != nil {
			return err
		}
	}
	return nil
}

func mailboxes(addrs []string) []mailboxWrite {
	out := make([]mailboxWrite, len(addrs))
	for i, a := range addrs {
		out[i] = mailboxWrite{Address: a}
	}
	return out
}
