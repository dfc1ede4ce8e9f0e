package zenwave

import (
	"encoding/base64"
	"net/http"
)

// BearerAuth returns a middleware adding `Authorization: Bearer <token>` to
// requests that do not already carry an Authorization header.
func BearerAuth(token string) Middleware {
	return func(req *http.Request, next Endpoint) (*http.Response, error) {
		if req.Header.Get("Authorization") == "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return next.RoundTrip(req)
	}
}

// BasicAuth returns a middleware adding `Authorization: Basic <credentials>`
// to requests that do not already carry an Authorization header. An empty
// password encodes as "username:".
func BasicAuth(username, password string) Middleware {
	credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return func(req *http.Request, next Endpoint) (*http.Response, error) {
		if req.Header.Get("Authorization") == "" {
			req.Header.Set("Authorization", "Basic "+credentials)
		}
		return next.RoundTrip(req)
	}
}
