package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/muurk/evoconnect/internal/instance"
	"github.com/muurk/evoconnect/internal/logging"
	"github.com/muurk/evoconnect/internal/version"
	"go.uber.org/zap"
)

const (
	// DefaultRelayURL is where the wizard looks for the relay by default
	DefaultRelayURL = "http://localhost:5000"

	// DefaultClientTimeout bounds one relay call
	DefaultClientTimeout = 30 * time.Second

	maxEnvelopeSize = 4 << 20
)

// ClientError is returned when the relay could not be reached or answered
// with something that is not an envelope. Envelopes with success=false are
// not errors.
type ClientError struct {
	Operation  string
	StatusCode int // 0 when no response arrived
	Err        error
}

func (e *ClientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay %s: unexpected HTTP %d response: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("relay %s: %v", e.Operation, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsUnreachable reports whether err means no response came back from the relay
func IsUnreachable(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.StatusCode == 0
}

// Client calls the relay's HTTP API. It satisfies the wizard's backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a relay client for baseURL
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultRelayURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultClientTimeout},
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// CreateInstance calls POST /api/instance/create
func (c *Client) CreateInstance(ctx context.Context, draft instance.Draft) (*instance.Envelope, error) {
	return c.do(ctx, "create", http.MethodPost, "/api/instance/create", draft)
}

// FetchQRCode calls GET /api/instance/{name}/qrcode
func (c *Client) FetchQRCode(ctx context.Context, instanceName string) (*instance.Envelope, error) {
	return c.do(ctx, "qrcode", http.MethodGet, "/api/instance/"+url.PathEscape(instanceName)+"/qrcode", nil)
}

// FetchStatus calls GET /api/instance/{name}/status
func (c *Client) FetchStatus(ctx context.Context, instanceName string) (*instance.Envelope, error) {
	return c.do(ctx, "status", http.MethodGet, "/api/instance/"+url.PathEscape(instanceName)+"/status", nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) (*instance.Envelope, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, &ClientError{Operation: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &ClientError{Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
	if err != nil {
		return nil, &ClientError{Operation: op, StatusCode: resp.StatusCode, Err: err}
	}

	logging.Debug("Relay call",
		zap.String("operation", op),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.Int("length", len(data)),
	)

	var env instance.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ClientError{Operation: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid envelope: %w", err)}
	}
	return &env, nil
}
