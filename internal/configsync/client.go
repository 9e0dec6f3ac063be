package configsync

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
)

// ErrUnavailable marks a relay that is unreachable or returned a
// malformed document. Callers fall through to the next config source.
var ErrUnavailable = errors.New("relay unavailable")

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrUnavailable
}

// Event is one message on the live-invalidation channel.
type Event struct {
	Type   string `json:"type"`
	SaveID string `json:"saveId,omitempty"`
}

const EventConfigUpdated = "config-updated"

// EventStream is a one-way server-to-client message stream. Next
// blocks until an event arrives or the stream fails.
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// RelayClient is the surface of the relay the sync core consumes.
type RelayClient interface {
	Health(ctx context.Context) error
	FetchConfig(ctx context.Context) (DashboardConfig, error)
	PushConfig(ctx context.Context, cfg DashboardConfig, saveID string) error
	Subscribe(ctx context.Context) (EventStream, error)
}

// LiveTransport selects how the live channel connects.
type LiveTransport string

const (
	TransportSSE       LiveTransport = "sse"
	TransportWebSocket LiveTransport = "websocket"
)

type HTTPRelayClient struct {
	baseURL       string
	httpClient    *http.Client
	streamClient  *http.Client
	healthTimeout time.Duration
	transport     LiveTransport
}

type HTTPRelayClientOptions struct {
	HTTPClient    *http.Client
	HealthTimeout time.Duration
	Transport     LiveTransport
}

func NewHTTPRelayClient(baseURL string, opts HTTPRelayClientOptions) *HTTPRelayClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	healthTimeout := opts.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 3 * time.Second
	}
	transport := opts.Transport
	if transport == "" {
		transport = TransportSSE
	}
	// The stream client must not carry an overall timeout or the
	// subscribe connection would be cut mid-stream.
	streamClient := &http.Client{Transport: httpClient.Transport}
	return &HTTPRelayClient{
		baseURL:       NormalizeRelayURL(baseURL),
		httpClient:    httpClient,
		streamClient:  streamClient,
		healthTimeout: healthTimeout,
		transport:     transport,
	}
}

func (c *HTTPRelayClient) BaseURL() string {
	return c.baseURL
}

// NormalizeRelayURL turns a bare host or IP into a full http base URL
// and strips any trailing slash.
func NormalizeRelayURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return raw
}

// Health probes GET /health with a short deadline so widgets can gate
// device-specific calls on relay reachability.
func (c *HTTPRelayClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}

// FetchConfig pulls the relay's current document. A non-200 status or
// a body without a screens array both map to ErrUnavailable.
func (c *HTTPRelayClient) FetchConfig(ctx context.Context) (DashboardConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/config", nil)
	if err != nil {
		return DashboardConfig{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DashboardConfig{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return DashboardConfig{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return DashboardConfig{}, &HTTPError{StatusCode: resp.StatusCode, Message: "config fetch failed"}
	}
	cfg, ok := parseConfigDocument(body)
	if !ok {
		return DashboardConfig{}, fmt.Errorf("%w: malformed config document", ErrUnavailable)
	}
	return cfg, nil
}

// PushConfig mirrors the full document to the relay, tagged with the
// save id the relay echoes back on the live channel.
func (c *HTTPRelayClient) PushConfig(ctx context.Context, cfg DashboardConfig, saveID string) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	if saveID != "" {
		payload["_saveId"] = saveID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/config", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode, Message: "config push failed"}
	}
	return nil
}

func (c *HTTPRelayClient) Subscribe(ctx context.Context) (EventStream, error) {
	if c.transport == TransportWebSocket {
		return c.subscribeWebSocket(ctx)
	}
	return c.subscribeSSE(ctx)
}

func (c *HTTPRelayClient) subscribeSSE(ctx context.Context) (EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/config/subscribe", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: "subscribe failed"}
	}
	return &sseStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

func (c *HTTPRelayClient) subscribeWebSocket(ctx context.Context) (EventStream, error) {
	conn, _, err := websocket.Dial(ctx, c.baseURL+"/config/ws", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &wsStream{ctx: ctx, conn: conn}, nil
}

// sseStream decodes text/event-stream frames. Comment lines (the
// relay's keepalives) and non-JSON payloads are skipped, not surfaced.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

func (s *sseStream) Next() (Event, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		return event, nil
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

type wsStream struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (s *wsStream) Next() (Event, error) {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return Event{}, err
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		return event, nil
	}
}

func (s *wsStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
