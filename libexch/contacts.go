package libexch

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
)

// Contact is one address book entry.
type Contact struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	GivenName   string   `json:"givenName,omitempty"`
	Surname     string   `json:"surname,omitempty"`
	Emails      []string `json:"emails,omitempty"`
	Phones      []string `json:"phones,omitempty"`
	Company     string   `json:"company,omitempty"`
}

type contactXML struct {
	ItemID      itemID `xml:"ItemId"`
	DisplayName string `xml:"DisplayName"`
	GivenName   string `xml:"GivenName"`
	Surname     string `xml:"Surname"`
	Company     string `xml:"CompanyName"`
	Emails      struct {
		Entries []struct {
			Address string `xml:",chardata"`
		} `xml:"Entry"`
	} `xml:"EmailAddresses"`
	Phones struct {
		Entries []struct {
			Number string `xml:",chardata"`
		} `xml:"Entry"`
	} `xml:"PhoneNumbers"`
}

func (x contactXML) toContact() Contact {
	c := Contact{
		ID:          x.ItemID.ID,
		DisplayName: x.DisplayName,
		GivenName:   x.GivenName,
		Surname:     x.Surname,
		Company:     x.Company,
	}
	for _, e := range x.Emails.Entries {
		if e.Address != "" {
			c.Emails = append(c.Emails, e.Address)
		}
	}
	for _, p := range x.Phones.Entries {
		if p.Number != "" {
			c.Phones = append(c.Phones, p.Number)
		}
	}
	return c
}

// matches reports whether the contact mentions the search term in its
// names or addresses. Filtering happens client side; the contacts
// folder is small.
func (c Contact) matches(term string) bool {
	term = strings.ToLower(term)
	for _, field := range append([]string{c.DisplayName, c.GivenName, c.Surname}, c.Emails...) {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// FindContacts lists contacts, optionally filtered by a search term.
func (c *Client) FindContacts(ctx context.Context, search string, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 100
	}

	req := findMailRequest{
		Traversal: "Shallow",
		ItemShape: itemShape{BaseShape: "AllProperties"},
		Paging:    indexedPageView{MaxEntries: limit, Offset: 0, BasePoint: "Beginning"},
		Folders:   parentFolderIDs{Folder: distinguishedFolderID{ID: "contacts"}},
	}

	var resp findItemResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("find contacts: %w", err)
	}

	var contacts []Contact
	for _, msg := range resp.Messages {
		if err := msg.check(); err != nil {
			return nil, err
		}
		for _, item := range msg.RootFolder.Contacts {
			contact := item.toContact()
			if search != "" && !contact.matches(search) {
				continue
			}
			contacts = append(contacts, contact)
		}
	}
	return contacts, nil
}

type createContactRequest struct {
	XMLName xml.Name `xml:"m:CreateItem"`
	Items   createContactItems
}

type createContactItems struct {
	XMLName xml.Name `xml:"m:Items"`
	Contact contactWrite
}

type contactWrite struct {
	XMLName     xml.Name          `xml:"t:Contact"`
	GivenName   string            `xml:"t:GivenName,omitempty"`
	Surname     string            `xml:"t:Surname,omitempty"`
	Company     string            `xml:"t:CompanyName,omitempty"`
	Emails      *indexedEntryList `xml:"t:EmailAddresses,omitempty"`
	Phones      *indexedEntryList `xml:"t:PhoneNumbers,omitempty"`
	DisplayName string            `xml:"t:DisplayName,omitempty"`
}

type indexedEntryList struct {
	Entries []indexedEntry `xml:"t:Entry"`
}

type indexedEntry struct {
	Key   string `xml:"Key,attr"`
	Value string `xml:",chardata"`
}

type createContactResponse struct {
	XMLName  xml.Name `xml:"CreateItemResponse"`
	Messages []struct {
		responseMessage
		Items struct {
			Contacts []contactXML `xml:"Contact"`
		} `xml:"Items"`
	} `xml:"ResponseMessages>CreateItemResponseMessage"`
}

// CreateContact creates an address book entry and returns its id. The
// display name splits into given name and surname on the first space,
// matching how the CLI accepts "Jane Doe".
func (c *Client) CreateContact(ctx context.Context, name, email, phone, company string) (string, error) {
	given, surname := splitName(name)
	contact := contactWrite{
		GivenName:   given,
		Surname:     surname,
		Company:     company,
		DisplayName: name,
	}
	if email != "" {
		contact.Emails = &indexedEntryList{Entries: []indexedEntry{{Key: "EmailAddress1", Value: email}}}
	}
	if phone != "" {
		contact.Phones = &indexedEntryList{Entries: []indexedEntry{{Key: "BusinessPhone", Value: phone}}}
	}

	req := createContactRequest{Items: createContactItems{Contact: contact}}

	var resp createContactResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}
	for _, msg := range resp.Messages {
		if err := msg.check(); err != nil {
			return "", err
		}
		if len(msg.Items.Contacts) > 0 {
			return msg.Items.Contacts[0].ItemID.ID, nil
		}
	}
	return "", nil
}

// DeleteContact removes an address book entry.
func (c *Client) DeleteContact(ctx context.Context, id string) error {
	return c.DeleteItem(ctx, id)
}

func splitName(name string) (given, surname string) {
	parts := strings.SplitN(strings.TrimSpace(name), " ", 2)
	given = parts[0]
	if len(parts) > 1 {
		surname = parts[1]
	}
	return given, surname
}
