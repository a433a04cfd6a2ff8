package libexch

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

const (
	nsSoap     = "http://schemas.xmlsoap.org/soap/envelope/"
	nsMessages = "http://schemas.microsoft.com/exchange/services/2006/messages"
	nsTypes    = "http://schemas.microsoft.com/exchange/services/2006/types"

	// Lowest schema version carrying everything we use.
	serverVersion = "Exchange2013_SP1"

	// EWS timestamp layouts. Responses carry UTC with a Z suffix;
	// request bodies use the zoneless local form.
	ewsTimeLayout      = "2006-01-02T15:04:05Z07:00"
	ewsLocalTimeLayout = "2006-01-02T15:04:05"
)

// envelope is the outgoing SOAP wrapper. Element names carry literal
// prefixes; the three xmlns attributes on the envelope bind them.
type envelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	NSSoap  string   `xml:"xmlns:soap,attr"`
	NSM     string   `xml:"xmlns:m,attr"`
	NST     string   `xml:"xmlns:t,attr"`
	Header  soapHeader
	Body    soapBody
}

type soapHeader struct {
	XMLName xml.Name `xml:"soap:Header"`
	Version requestServerVersion
}

type requestServerVersion struct {
	XMLName xml.Name `xml:"t:RequestServerVersion"`
	Version string   `xml:"Version,attr"`
}

type soapBody struct {
	XMLName xml.Name `xml:"soap:Body"`
	Payload any
}

// marshalEnvelope wraps one operation payload in a SOAP envelope.
func marshalEnvelope(payload any) ([]byte, error) {
	env := envelope{
		NSSoap: nsSoap,
		NSM:    nsMessages,
		NST:    nsTypes,
		Header: soapHeader{Version: requestServerVersion{Version: serverVersion}},
		Body:   soapBody{Payload: payload},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("encode soap envelope: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// responseEnvelope captures the body of a SOAP response without
// committing to an operation; the inner XML is decoded in a second pass.
type responseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault *soapFault `xml:"Fault"`
		Inner []byte     `xml:",innerxml"`
	} `xml:"Body"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	Reason string `xml:"faultstring"`
}

func (f *soapFault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.Reason)
}

// responseMessage is the common header of every EWS response message.
type responseMessage struct {
	ResponseClass string `xml:"ResponseClass,attr"`
	ResponseCode  string `xml:"ResponseCode"`
	MessageText   string `xml:"MessageText"`
}

// check converts an Error-class response message into a Go error.
func (m responseMessage) check() error {
	if m.ResponseClass == "Error" {
		if m.MessageText != "" {
			return fmt.Errorf("ews %s: %s", m.ResponseCode, m.MessageText)
		}
		return fmt.Errorf("ews error: %s", m.ResponseCode)
	}
	return nil
}

// parseResponse unwraps a SOAP response body into out, surfacing faults.
func parseResponse(data []byte, out any) error {
	var env responseEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode soap envelope: %w", err)
	}
	if env.Body.Fault != nil {
		return env.Body.Fault
	}
	if err := xml.Unmarshal(env.Body.Inner, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// itemID is the Id/ChangeKey pair EWS uses to address items.
type itemID struct {
	ID        string `xml:"Id,attr"`
	ChangeKey string `xml:"ChangeKey,attr,omitempty"`
}

type distinguishedFolderID struct {
	XMLName xml.Name `xml:"t:DistinguishedFolderId"`
	ID      string   `xml:"Id,attr"`
}

type itemShape struct {
	XMLName   xml.Name `xml:"m:ItemShape"`
	BaseShape string   `xml:"t:BaseShape"`
}
