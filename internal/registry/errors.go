package registry

import (
	"errors"
	"fmt"
	"time"
)

// ErrProtocol marks a response carrying an application-level error code
var ErrProtocol = errors.New("registry returned an error code")

// TimeoutError is returned when the registry does not answer in time
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("registry request timed out after %s", e.After)
}

// TransportError is returned when no response was received
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("registry request made, but no response received: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamStatusError is returned for a non-2xx registry response
type UpstreamStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("registry request failed with status %d: %s", e.StatusCode, truncate(e.Body, 256))
}

// RequestSetupError is returned when the outbound request could not be built
type RequestSetupError struct {
	Err error
}

func (e *RequestSetupError) Error() string {
	return fmt.Sprintf("registry request setup error: %v", e.Err)
}

func (e *RequestSetupError) Unwrap() error { return e.Err }

// ParseError is returned when the response is not well-formed markup
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("registry response parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Outcome names an error for metrics and logs
func Outcome(err error) string {
	var (
		timeout   *TimeoutError
		transport *TransportError
		status    *UpstreamStatusError
		setup     *RequestSetupError
		parse     *ParseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &transport):
		return "transport"
	case errors.As(err, &status):
		return "status"
	case errors.As(err, &setup):
		return "setup"
	case errors.As(err, &parse):
		return "parse"
	case errors.Is(err, ErrProtocol):
		return "nok"
	default:
		return "error"
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
