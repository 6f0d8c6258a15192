// Package whatsapp integrates with the WhatsApp HTTP gateway used for bulk
// event notifications, and handles the XLSX recipient/report workbooks that
// travel with a bulk send.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultCountryPrefix is prepended to recipient numbers that do not carry
// it already.
const DefaultCountryPrefix = "57"

// Client posts single messages to the WhatsApp gateway.
type Client struct {
	// BaseURL is the gateway root, e.g. https://apiwhatsapp.example.com.
	BaseURL string
	// CountryPrefix normalizes recipient numbers; empty uses the default.
	CountryPrefix string
	// HTTPClient is the transport; nil uses a client with a sane timeout.
	HTTPClient *http.Client
}

// NewClient constructs a gateway client with the default prefix and timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		CountryPrefix: DefaultCountryPrefix,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// sendPayload is the gateway's wire format.
type sendPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NormalizePhone strips separators and applies the country prefix exactly
// once, so "300123..." and "57300123..." address the same recipient.
func (c *Client) NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	prefix := c.CountryPrefix
	if prefix == "" {
		prefix = DefaultCountryPrefix
	}
	return prefix + strings.TrimPrefix(digits, prefix)
}

// Send posts one message. A non-2xx response is returned as an error
// carrying the gateway's body text, which the report surfaces per row.
func (c *Client) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(sendPayload{
		Phone:   c.NormalizePhone(phone),
		Message: message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
