package libexch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenSource supplies a bearer token for each request.
type TokenSource func(ctx context.Context) (string, error)

// Client speaks SOAP to one EWS endpoint. It never retries; callers own
// retry policy.
type Client struct {
	endpoint string
	token    TokenSource
	http     *http.Client
}

// NewClient builds an EWS client for endpoint. A nil httpClient gets a
// sane default with a request timeout.
func NewClient(endpoint string, token TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{endpoint: endpoint, token: token, http: httpClient}
}

// call posts one operation payload and decodes the response body into
// out. SOAP faults and Error-class response messages become errors at
// the call sites that know their shape; transport errors surface here.
func (c *Client) call(ctx context.Context, payload, out any) error {
	body, err := marshalEnvelope(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ews request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// EWS reports faults with a 500; parse those before failing on
	// the status code alone.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		return fmt.Errorf("ews returned status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	return parseResponse(data, out)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
