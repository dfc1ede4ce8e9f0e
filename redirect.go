package zenwave

import (
	"net/http"
	"net/url"
)

// DefaultMaxRedirects bounds the redirect loop unless configured otherwise.
const DefaultMaxRedirects = 10

// FollowRedirect is a middleware that follows HTTP redirects, applying the
// RFC 9110 method transition rules and stripping credentials when a hop
// leaves the original host.
//
// The original body is snapshotted into bytes before the first dispatch so
// every hop replays identical content; streaming bodies must be buffered
// before entering this middleware.
type FollowRedirect struct {
	maxRedirects int
	metrics      *MetricsCollector
}

// NewFollowRedirect creates the middleware with the default redirect bound.
func NewFollowRedirect() *FollowRedirect {
	return &FollowRedirect{maxRedirects: DefaultMaxRedirects}
}

// NewFollowRedirectWithLimit creates the middleware with a custom bound.
func NewFollowRedirectWithLimit(maxRedirects int) *FollowRedirect {
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	return &FollowRedirect{maxRedirects: maxRedirects}
}

// Wrap decorates next with redirect following.
func (f *FollowRedirect) Wrap(next Endpoint) Endpoint {
	return EndpointFunc(func(req *http.Request) (*http.Response, error) {
		return f.Handle(req, next)
	})
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Handle implements the Middleware contract.
func (f *FollowRedirect) Handle(req *http.Request, next Endpoint) (*http.Response, error) {
	originalBody, err := snapshotBody(req)
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeTransport,
			Message: "failed to buffer request body for redirects",
			Cause:   err,
			Method:  req.Method,
			URL:     req.URL.String(),
		}
	}
	originalHeaders := req.Header.Clone()
	originalURL := req.URL.String()

	currentMethod := req.Method
	currentURL := req.URL
	// Once a hop leaves the original host, credentials stay stripped for the
	// rest of the loop even if a later hop returns.
	credentialsStripped := false
	redirectCount := 0
	current := req

	for {
		resp, err := next.RoundTrip(current)
		if err != nil {
			return nil, err
		}

		if !isRedirect(resp.StatusCode) {
			return resp, nil
		}

		if redirectCount >= f.maxRedirects {
			return nil, &ClientError{
				Type:    ErrorTypeTooManyRedirects,
				Message: "too many redirects",
				Method:  currentMethod,
				URL:     originalURL,
			}
		}

		location := resp.Header.Get("Location")
		if location == "" {
			return nil, &ClientError{
				Type:    ErrorTypeMissingLocation,
				Message: "missing Location header in redirect response",
				Method:  currentMethod,
				URL:     currentURL.String(),
			}
		}

		locationURL, err := url.Parse(location)
		if err != nil {
			return nil, &ClientError{
				Type:    ErrorTypeInvalidLocation,
				Message: "invalid Location header in redirect response",
				Cause:   err,
				Method:  currentMethod,
				URL:     currentURL.String(),
			}
		}
		redirectURL := currentURL.ResolveReference(locationURL)
		if redirectURL.Scheme == "" || redirectURL.Host == "" {
			return nil, &ClientError{
				Type:    ErrorTypeInvalidLocation,
				Message: "redirect location resolves to an incomplete URL",
				Method:  currentMethod,
				URL:     currentURL.String(),
			}
		}

		if resp.Body != nil {
			_ = resp.Body.Close()
		}

		nextMethod := currentMethod
		switch {
		case resp.StatusCode == http.StatusSeeOther:
			nextMethod = http.MethodGet
		case resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound:
			if currentMethod != http.MethodGet && currentMethod != http.MethodHead {
				nextMethod = http.MethodGet
			}
		}

		headers := originalHeaders.Clone()
		headers.Del("Host")
		headers.Del("Content-Length")

		bodyDropped := nextMethod == http.MethodGet || nextMethod == http.MethodHead
		if bodyDropped {
			headers.Del("Content-Type")
		}

		if redirectURL.Host != currentURL.Host {
			credentialsStripped = true
		}
		if credentialsStripped {
			headers.Del("Authorization")
			headers.Del("Cookie")
		}

		newReq, err := http.NewRequestWithContext(req.Context(), nextMethod, redirectURL.String(), nil)
		if err != nil {
			return nil, &ClientError{
				Type:    ErrorTypeInvalidLocation,
				Message: "failed to build redirect request",
				Cause:   err,
				Method:  nextMethod,
				URL:     redirectURL.String(),
			}
		}
		newReq.Header = headers
		if !bodyDropped {
			restoreBody(newReq, originalBody)
		}

		if f.metrics != nil {
			f.metrics.RecordRedirect(resp.StatusCode)
		}

		current = newReq
		currentURL = redirectURL
		currentMethod = nextMethod
		redirectCount++
	}
}
