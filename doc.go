// Package zenwave provides an HTTP client framework built from composable
// middlewares implementing real protocol semantics:
//
//   - Response caching honoring Cache-Control / Expires freshness and
//     ETag / Last-Modified revalidation
//   - Redirect following with RFC 9110 method transitions and
//     credential stripping across hosts
//   - Retry of transport failures with capped exponential backoff and
//     body replay
//   - OAuth2 client credentials token management with single-flight refresh
//   - Timeout, rate limiting (token bucket), request de-duplication and
//     static Bearer/Basic auth as sibling middlewares
//
// Every middleware wraps an Endpoint, the minimal request/response
// operation, and itself exposes the Endpoint contract, so stacks compose by
// nesting over any transport:
//
//	endpoint := zenwave.Decorate(
//	    zenwave.EndpointFunc(http.DefaultClient.Do),
//	    zenwave.BearerAuth("token"),
//	)
//	endpoint = zenwave.NewCache().Wrap(zenwave.NewRetry(3).Wrap(endpoint))
//
// The Client facade assembles the common stack from functional options:
//
//	client := zenwave.New(
//	    zenwave.WithTimeout(10*time.Second),
//	    zenwave.WithCache(),
//	    zenwave.WithRetry(3, 100*time.Millisecond, 5*time.Second),
//	    zenwave.WithOAuth2(tokenURL, clientID, clientSecret),
//	)
//	resp, err := client.Get(ctx, "https://api.example.com/data")
//
// Bodies are one-shot streams; middlewares that replay requests (Retry,
// FollowRedirect, Deduplicate) materialize the body into bytes first, so
// unbounded streaming bodies must be buffered before entering them.
//
// The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger, or NewZapLogger for zap users) and enable debug flags
// for insight without noise. Prometheus metrics cover the request lifecycle
// and every middleware layer (WithMetrics / WithMetricsCollector).
package zenwave
