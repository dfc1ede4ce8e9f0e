package zenwave

import (
	"errors"
	"fmt"
	"net/http"
)

// Error type identifiers carried by ClientError.Type. Each middleware reports
// its own kinds; they are never collapsed into a generic failure.
const (
	ErrorTypeTransport          = "Transport"
	ErrorTypeTimeout            = "Timeout"
	ErrorTypeRateLimit          = "RateLimit"
	ErrorTypeCacheBody          = "CacheBody"
	ErrorTypeTooManyRedirects   = "TooManyRedirects"
	ErrorTypeMissingLocation    = "MissingLocation"
	ErrorTypeInvalidLocation    = "InvalidLocation"
	ErrorTypeOAuth2Upstream     = "OAuth2Upstream"
	ErrorTypeOAuth2InvalidToken = "OAuth2InvalidTokenResponse"
	ErrorTypeValidation         = "Validation"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrTooManyRedirects is returned when the redirect bound is exceeded.
	ErrTooManyRedirects = errors.New("zenwave: too many redirects")

	// ErrMissingLocation is returned when a redirect response has no Location header.
	ErrMissingLocation = errors.New("zenwave: missing Location header in redirect response")

	// ErrInvalidLocation is returned when a redirect Location cannot be parsed or resolved.
	ErrInvalidLocation = errors.New("zenwave: invalid Location header in redirect response")

	// ErrTimeout is returned when a request exceeds the configured timeout.
	ErrTimeout = errors.New("zenwave: request timed out")

	// ErrRateLimited is returned when a request is denied by the rate limiter.
	ErrRateLimited = errors.New("zenwave: rate limited")
)

// ClientError is the error type produced by zenwave middlewares. Type
// identifies the failing layer; StatusCode carries an upstream status when
// one exists (OAuth2 token endpoint failures).
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	StatusCode int
	Method     string
	URL        string
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.URL != "" {
		msg = fmt.Sprintf("%s [%s %s]", msg, e.Method, e.URL)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrTooManyRedirects:
		return e.Type == ErrorTypeTooManyRedirects
	case ErrMissingLocation:
		return e.Type == ErrorTypeMissingLocation
	case ErrInvalidLocation:
		return e.Type == ErrorTypeInvalidLocation
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrRateLimited:
		return e.Type == ErrorTypeRateLimit
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// HTTPStatus maps the error to a status code suitable for surfacing the
// failure uniformly at an API boundary. OAuth2 upstream failures pass the
// token endpoint's own status through.
func (e *ClientError) HTTPStatus() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Type {
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeMissingLocation, ErrorTypeInvalidLocation:
		return http.StatusBadRequest
	case ErrorTypeTooManyRedirects:
		return http.StatusLoopDetected
	case ErrorTypeCacheBody:
		return http.StatusServiceUnavailable
	case ErrorTypeOAuth2Upstream:
		if e.StatusCode != 0 {
			return e.StatusCode
		}
		return http.StatusBadGateway
	case ErrorTypeOAuth2InvalidToken:
		return http.StatusBadGateway
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsTransient reports whether an error represents a failure that might
// succeed on retry elsewhere: transport failures, timeouts and rate limiting.
// Redirect protocol violations and OAuth2 response errors are terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeTransport, ErrorTypeTimeout, ErrorTypeRateLimit:
			return true
		default:
			return false
		}
	}
	return false
}
