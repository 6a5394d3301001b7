package evolution

import (
	"bytes"
	"context"
	"encoding/json"
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
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second

	// APIKeyHeader carries the global Evolution API key
	APIKeyHeader = "apikey"

	// maxBodySize caps how much of a remote body is read (QR images are ~10KB)
	maxBodySize = 4 << 20
)

// Operation names, used in logs, errors and metrics
const (
	OpCreate          = "create"
	OpConnect         = "connect"
	OpConnectionState = "connectionState"
)

// Client talks to an Evolution API server
type Client struct {
	// BaseURL is the server root (e.g., "https://evo.example.com")
	BaseURL string

	// APIKey is sent in the apikey header of every request
	APIKey string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client
}

// Response is a remote answer, successful or not. The relay forwards it
// without interpreting the body.
type Response struct {
	Operation  string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err converts a non-2xx response into an *Error, or returns nil
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	msg := instance.RemoteMessage(r.Body)
	if msg == "" {
		msg = fmt.Sprintf("unexpected status code: %d", r.StatusCode)
	}
	return NewHTTPError(r.Operation, r.StatusCode, msg)
}

// NewClient creates a client for the given base URL and API key
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// Configured reports whether both base URL and API key are present
func (c *Client) Configured() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// CreateInstance calls POST /instance/create
func (c *Client) CreateInstance(ctx context.Context, req instance.CreateRequest) (*Response, error) {
	logging.Info("Creating instance",
		zap.String("instance", req.InstanceName),
		zap.String("integration", req.Integration),
	)
	return c.do(ctx, OpCreate, http.MethodPost, "/instance/create", req)
}

// Connect calls GET /instance/connect/{name}, which returns a fresh QR code
// or pairing code for an unpaired instance
func (c *Client) Connect(ctx context.Context, instanceName string) (*Response, error) {
	return c.do(ctx, OpConnect, http.MethodGet, "/instance/connect/"+url.PathEscape(instanceName), nil)
}

// ConnectionState calls GET /instance/connectionState/{name}
func (c *Client) ConnectionState(ctx context.Context, instanceName string) (*Response, error) {
	return c.do(ctx, OpConnectionState, http.MethodGet, "/instance/connectionState/"+url.PathEscape(instanceName), nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) (*Response, error) {
	if !c.Configured() {
		return nil, NewConfigError("base URL and API key are required")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, NewNetworkError(op, "failed to create request", err)
	}

	req.Header.Set(APIKeyHeader, c.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, NewNetworkError(op, method+" "+path+" failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, NewParseError(op, "failed to read response body", err)
	}

	result := &Response{
		Operation:  op,
		StatusCode: resp.StatusCode,
		Body:       data,
		Duration:   time.Since(start),
	}
	logging.LogRemoteCall(op, endpoint, resp.StatusCode, result.Duration, data)

	return result, nil
}
