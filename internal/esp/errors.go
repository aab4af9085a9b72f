package esp

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Concrete errors below match them with errors.Is.
var (
	ErrNotConfigured      = errors.New("provider not configured")
	ErrBatchLimitExceeded = errors.New("batch limit exceeded")
	ErrProviderTransport  = errors.New("provider temporarily unavailable")

	// ErrStopPaging is returned by a BatchHandler to end a page walk early.
	ErrStopPaging = errors.New("stop paging")
)

// NotConfiguredError is raised before any network call when required
// credentials are absent.
type NotConfiguredError struct {
	Provider string
	Missing  []string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s is not configured: missing %s (set it in the deployment config or stored settings)",
		e.Provider, strings.Join(e.Missing, ", "))
}

func (e *NotConfiguredError) Is(target error) bool { return target == ErrNotConfigured }

// BatchLimitError is raised before any network call when a batch holds more
// recipients than the provider accepts. Callers must split the batch.
type BatchLimitError struct {
	Provider string
	Limit    int
	Count    int
}

func (e *BatchLimitError) Error() string {
	return fmt.Sprintf("%s only supports sending to %d recipients at a time, got %d",
		e.Provider, e.Limit, e.Count)
}

func (e *BatchLimitError) Is(target error) bool { return target == ErrBatchLimitExceeded }

// Transport operations.
const (
	OpSend  = "send"
	OpFetch = "fetch"
)

// TransportError wraps a network or HTTP failure talking to a provider.
type TransportError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	what := "delivery"
	if e.Op == OpFetch {
		what = "analytics"
	}
	return fmt.Sprintf("%s %s temporarily unavailable: %v", e.Provider, what, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrProviderTransport }

// NewTransportError wraps err unless it is already a TransportError.
func NewTransportError(provider, op string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Provider: provider, Op: op, Err: err}
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// WrapHTTPError classifies a failed provider call. Network failures, 429s
// and 5xx responses become TransportErrors; other 4xx responses mean the
// provider refused the request itself and are returned as plain errors.
func WrapHTTPError(provider, op string, err error) error {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != 429 {
		return fmt.Errorf("%s rejected %s request: %w", provider, op, err)
	}
	te := &TransportError{Provider: provider, Op: op, Err: err}
	if se != nil {
		te.StatusCode = se.StatusCode
	}
	return te
}
