package zenwave

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTokenSafetyWindow is subtracted from a token's stated lifetime so
// the token is proactively refreshed before hard expiry.
const DefaultTokenSafetyWindow = 30 * time.Second

// OAuth2ClientCredentials is a middleware implementing the OAuth2 client
// credentials flow. It lazily acquires an access token from the configured
// token endpoint and attaches `Authorization: Bearer <token>` to outgoing
// requests that do not already carry one. Tokens are cached until they expire
// (minus a safety window) and refreshed on demand; the refresh is
// single-flight: the token slot mutex is held across the fetch, so concurrent
// callers block and receive the same freshly fetched token.
type OAuth2ClientCredentials struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	audience     string
	safetyWindow time.Duration

	// transport performs the token endpoint request itself; it is distinct
	// from the wrapped chain so the token fetch never recurses through this
	// middleware.
	transport Endpoint

	mu      sync.Mutex
	token   *tokenInfo
	metrics *MetricsCollector
	now     func() time.Time
}

// tokenInfo is the cached token. It is replaced wholesale on refresh, never
// partially mutated.
type tokenInfo struct {
	accessToken string
	expiresAt   time.Time
}

func (t *tokenInfo) isValid(now time.Time) bool {
	return now.Before(t.expiresAt)
}

type tokenEndpointResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   *int64 `json:"expires_in"`
}

// NewOAuth2ClientCredentials creates the middleware for the given token
// endpoint and client credentials.
func NewOAuth2ClientCredentials(tokenURL, clientID, clientSecret string) *OAuth2ClientCredentials {
	return &OAuth2ClientCredentials{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		safetyWindow: DefaultTokenSafetyWindow,
		transport:    EndpointFunc(http.DefaultClient.Do),
		now:          time.Now,
	}
}

// Scope restricts token requests to specific scopes.
func (o *OAuth2ClientCredentials) Scope(scope string) *OAuth2ClientCredentials {
	o.scope = scope
	return o
}

// Audience sets a custom audience parameter if the provider requires one.
func (o *OAuth2ClientCredentials) Audience(audience string) *OAuth2ClientCredentials {
	o.audience = audience
	return o
}

// SafetyWindow overrides the proactive refresh window.
func (o *OAuth2ClientCredentials) SafetyWindow(d time.Duration) *OAuth2ClientCredentials {
	o.safetyWindow = d
	return o
}

// Transport overrides the endpoint used for the token fetch itself.
func (o *OAuth2ClientCredentials) Transport(transport Endpoint) *OAuth2ClientCredentials {
	o.transport = transport
	return o
}

// Wrap decorates next with bearer token management.
func (o *OAuth2ClientCredentials) Wrap(next Endpoint) Endpoint {
	return EndpointFunc(func(req *http.Request) (*http.Response, error) {
		return o.Handle(req, next)
	})
}

// Handle implements the Middleware contract. Explicit per-request auth always
// wins: a pre-set Authorization header disables token management for that
// request.
func (o *OAuth2ClientCredentials) Handle(req *http.Request, next Endpoint) (*http.Response, error) {
	if req.Header.Get("Authorization") == "" {
		token, err := o.ensureToken(req)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return next.RoundTrip(req)
}

// ensureToken returns a valid access token, fetching one if needed. Classic
// double-checked locking: the fast path releases the lock before any network
// call; the slow path holds it for the duration of the fetch so only one
// caller refreshes under concurrent demand.
func (o *OAuth2ClientCredentials) ensureToken(req *http.Request) (string, error) {
	now := o.now()
	o.mu.Lock()
	if o.token != nil && o.token.isValid(now) {
		token := o.token.accessToken
		o.mu.Unlock()
		return token, nil
	}
	o.mu.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	// Another caller may have refreshed while this one waited for the lock.
	if o.token != nil && o.token.isValid(now) {
		return o.token.accessToken, nil
	}

	fetched, err := o.fetchToken(req)
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordTokenFetchError()
		}
		return "", err
	}
	o.token = fetched
	if o.metrics != nil {
		o.metrics.RecordTokenRefresh()
	}
	return fetched.accessToken, nil
}

// fetchToken performs the token endpoint request. Failures are surfaced
// distinctly and never retried here; compose Retry around the transport if
// retrying the credential flow is desired.
func (o *OAuth2ClientCredentials) fetchToken(origin *http.Request) (*tokenInfo, error) {
	body := o.buildBody()
	req, err := http.NewRequestWithContext(origin.Context(), http.MethodPost, o.tokenURL, strings.NewReader(body))
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeTransport,
			Message: "failed to build token request",
			Cause:   err,
			URL:     o.tokenURL,
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.transport.RoundTrip(req)
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeTransport,
			Message: "token request failed",
			Cause:   err,
			Method:  http.MethodPost,
			URL:     o.tokenURL,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxBufferedBody))
		return nil, &ClientError{
			Type:       ErrorTypeOAuth2Upstream,
			Message:    "token endpoint returned " + resp.Status + ": " + string(text),
			StatusCode: resp.StatusCode,
			Method:     http.MethodPost,
			URL:        o.tokenURL,
		}
	}

	var token tokenEndpointResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil || token.AccessToken == "" {
		return nil, &ClientError{
			Type:    ErrorTypeOAuth2InvalidToken,
			Message: "invalid token response",
			Cause:   err,
			Method:  http.MethodPost,
			URL:     o.tokenURL,
		}
	}

	expiresIn := int64(3600)
	if token.ExpiresIn != nil {
		expiresIn = *token.ExpiresIn
	}
	lifetime := time.Duration(expiresIn) * time.Second
	safety := o.safetyWindow
	if half := lifetime / 2; safety > half {
		safety = half
	}
	expiresAt := o.now().Add(lifetime - safety)

	return &tokenInfo{accessToken: token.AccessToken, expiresAt: expiresAt}, nil
}

func (o *OAuth2ClientCredentials) buildBody() string {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", o.clientID)
	form.Set("client_secret", o.clientSecret)
	if o.scope != "" {
		form.Set("scope", o.scope)
	}
	if o.audience != "" {
		form.Set("audience", o.audience)
	}
	return form.Encode()
}
