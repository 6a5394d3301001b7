package evolution

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/muurk/evoconnect/internal/urls"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates the remote did not answer in time
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates nothing listens on the configured URL
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates the remote hostname could not be resolved
	ErrTypeDNS
	// ErrTypeHTTP indicates a non-2xx answer
	ErrTypeHTTP
	// ErrTypeParse indicates a response body that could not be read
	ErrTypeParse
	// ErrTypeConfig indicates missing base URL or API key
	ErrTypeConfig
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeConfig:
		return "Configuration Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is returned by Client for anything that prevented a usable answer.
type Error struct {
	Type       ErrorType
	Operation  string // create, connect, connectionState
	Message    string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Type.String()
	if e.Operation != "" {
		prefix = fmt.Sprintf("%s (%s)", prefix, e.Operation)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrNotConfigured is wrapped by the error returned when base URL or API key is empty.
var ErrNotConfigured = errors.New("evolution API configuration not found")

// ClassifyNetworkError analyzes a transport error and returns a typed Error.
// The checks walk the wrap chain, so *url.Error from http.Client is handled.
func ClassifyNetworkError(operation string, err error) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return &Error{Type: ErrTypeTimeout, Operation: operation, Message: "request timed out", Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Type: ErrTypeDNS, Operation: operation, Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name), Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return &Error{Type: ErrTypeConnectionRefused, Operation: operation, Message: "remote refused connection", Err: err}
	}

	return &Error{Type: ErrTypeNetwork, Operation: operation, Message: "network error occurred", Err: err}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(operation, message string, err error) *Error {
	classified := ClassifyNetworkError(operation, err)
	classified.Message = message + ": " + classified.Message
	return classified
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(operation string, statusCode int, message string) *Error {
	return &Error{Type: ErrTypeHTTP, Operation: operation, Message: message, StatusCode: statusCode}
}

// NewParseError creates a parsing error
func NewParseError(operation, message string, err error) *Error {
	return &Error{Type: ErrTypeParse, Operation: operation, Message: message, Err: err}
}

// NewConfigError creates a configuration error
func NewConfigError(message string) *Error {
	return &Error{Type: ErrTypeConfig, Message: message, Err: ErrNotConfigured}
}

func typeOf(err error) (ErrorType, bool) {
	var evoErr *Error
	if errors.As(err, &evoErr) {
		return evoErr.Type, true
	}
	return 0, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS)
func IsNetworkError(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS)
}

// IsTimeout checks if an error is a timeout
func IsTimeout(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeTimeout
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeHTTP
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeParse
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeConfig
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var evoErr *Error
	if !errors.As(err, &evoErr) {
		return err.Error()
	}

	switch evoErr.Type {
	case ErrTypeTimeout:
		return "Evolution API not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Evolution API refused connection - is it running?"
	case ErrTypeDNS:
		return "Cannot resolve Evolution API hostname"
	case ErrTypeNetwork:
		return "Network error - check connection to Evolution API"
	case ErrTypeHTTP:
		return fmt.Sprintf("Evolution API error (HTTP %d)", evoErr.StatusCode)
	case ErrTypeParse:
		return "Failed to read Evolution API response"
	case ErrTypeConfig:
		return "Evolution API configuration not found"
	default:
		return evoErr.Message
	}
}

// GetTroubleshootingHint returns operator-facing advice for an error
func GetTroubleshootingHint(err error) string {
	var evoErr *Error
	if !errors.As(err, &evoErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch evoErr.Type {
	case ErrTypeConfig:
		return strings.Join([]string{
			"The relay has no Evolution API credentials.",
			"Troubleshooting:",
			"  • Set EVOLUTION_API_URL to the base URL of your Evolution API",
			"  • Set EVOLUTION_API_TOKEN to the global API key",
			"  • See " + urls.EvolutionInstall,
		}, "\n")

	case ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeDNS, ErrTypeNetwork:
		return strings.Join([]string{
			"The relay could not reach the Evolution API.",
			"Troubleshooting:",
			"  • Check that the Evolution API container is running",
			"  • Verify EVOLUTION_API_URL (scheme, host and port)",
			"  • Try increasing --request-timeout",
		}, "\n")

	case ErrTypeHTTP:
		if evoErr.StatusCode == 401 || evoErr.StatusCode == 403 {
			return "The Evolution API rejected the API key. Check EVOLUTION_API_TOKEN."
		}
		if evoErr.StatusCode == 404 {
			return "The instance does not exist on the Evolution API. Create it first."
		}
		return fmt.Sprintf("The Evolution API returned HTTP %d. See %s", evoErr.StatusCode, urls.EvolutionInstanceAPI)

	case ErrTypeParse:
		return "The Evolution API answered with an unreadable body. Check the API version."

	default:
		return "An error occurred. Please check the error message for details."
	}
}
