package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"ring_home/native/internal/domain"

	"github.com/sirupsen/logrus"
)

const (
	DefaultTicketURL  = "https://app.ring.com/api/v1/clap/ticket/request/signalsocket"
	DefaultDevicesURL = "https://api.ring.com/clients_api/ring_devices"

	userAgent = "android:com.ringapp"
)

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client issues authenticated requests against the REST API. The
// underlying http.Client is expected to attach and refresh credentials.
type Client struct {
	http       *http.Client
	ticketURL  string
	devicesURL string
	log        logrus.FieldLogger
}

// Option customizes a Client.
type Option func(*Client)

// WithTicketURL overrides the signalling ticket endpoint.
func WithTicketURL(u string) Option {
	return func(c *Client) { c.ticketURL = u }
}

// WithDevicesURL overrides the device listing endpoint.
func WithDevicesURL(u string) Option {
	return func(c *Client) { c.devicesURL = u }
}

// NewClient creates an API client on top of an authenticated http client.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		http:       httpClient,
		ticketURL:  DefaultTicketURL,
		devicesURL: DefaultDevicesURL,
		log:        logrus.WithField("module", "api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request sends body as JSON (when non-nil) with params as the query
// string, and decodes a JSON response into out (when non-nil).
func (c *Client) Request(ctx context.Context, method, rawURL string, body any, params url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", userAgent)

	c.log.WithFields(logrus.Fields{"method": method, "url": u.Redacted()}).Debug("api request")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, URL: u.Redacted(), StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// FetchTicket requests a signalling socket ticket.
func (c *Client) FetchTicket(ctx context.Context) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := c.Request(ctx, http.MethodPost, c.ticketURL, nil, nil, &ticket); err != nil {
		return nil, fmt.Errorf("request ticket: %w", err)
	}
	if ticket.Ticket == "" {
		return nil, fmt.Errorf("request ticket: empty ticket in response")
	}
	return &ticket, nil
}

type devicesResponse struct {
	Doorbots           []domain.Device `json:"doorbots"`
	AuthorizedDoorbots []domain.Device `json:"authorized_doorbots"`
	StickupCams        []domain.Device `json:"stickup_cams"`
}

// Devices lists the account's video devices.
func (c *Client) Devices(ctx context.Context) ([]domain.Device, error) {
	var resp devicesResponse
	if err := c.Request(ctx, http.MethodGet, c.devicesURL, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var devices []domain.Device
	for _, group := range []struct {
		family string
		list   []domain.Device
	}{
		{"doorbots", resp.Doorbots},
		{"authorized_doorbots", resp.AuthorizedDoorbots},
		{"stickup_cams", resp.StickupCams},
	} {
		for _, d := range group.list {
			d.Family = group.family
			devices = append(devices, d)
		}
	}
	return devices, nil
}
