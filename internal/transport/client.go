package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/canopymon/canopy/internal/event"
)

// Client sends drained batches to the collector over HTTP, one request
// per harvest. It never retries inside a send: retry happens across
// harvest periods via merge-back, so producers are never blocked on
// repeated network I/O.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetHTTPClient swaps the underlying client. Test hook.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

type wireEvent struct {
	Timestamp  int64          `json:"timestamp"`
	Priority   float32        `json:"priority"`
	Attributes map[string]any `json:"attributes"`
}

type wirePayload struct {
	App      string      `json:"app"`
	Capacity int         `json:"reservoir_size"`
	Seen     int64       `json:"events_seen"`
	Events   []wireEvent `json:"events"`
}

func (c *Client) SendLogEvents(ctx context.Context, appName string, capacity int, seen int64, events []*event.Event) error {
	payload := wirePayload{
		App:      appName,
		Capacity: capacity,
		Seen:     seen,
		Events:   make([]wireEvent, 0, len(events)),
	}
	for _, ev := range events {
		payload.Events = append(payload.Events, wireEvent{
			Timestamp:  ev.Timestamp.UnixMilli(),
			Priority:   ev.Priority,
			Attributes: ev.Attributes,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode log events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build collector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Canopy-App", appName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send log events: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &HTTPError{StatusCode: resp.StatusCode}
}

// Discard is the Sender used when no collector endpoint is configured.
// Harvests still run so reservoirs keep turning over, but batches go
// nowhere.
type Discard struct{}

func (Discard) SendLogEvents(context.Context, string, int, int64, []*event.Event) error {
	return nil
}
