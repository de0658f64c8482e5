// Package httpclient is the HTTP layer shared by the vendor clients.
//
// A Client resolves paths against a base URL, applies default headers and
// auth, paces calls with a golang.org/x/time/rate limiter and wraps every
// call in the optional retry and circuit breaker from the resilience
// package. Non-2xx responses come back as *Error with a retryable flag, and
// AppError converts them for callers that report through the errors
// package.
//
//	c, err := httpclient.New(httpclient.Config{
//		Name:           "walmart",
//		BaseURL:        "https://api.walmartlabs.com",
//		RatePerSecond:  5,
//		Retry:          httpclient.DefaultRetryConfig(),
//		CircuitBreaker: httpclient.DefaultCircuitBreakerConfig("walmart"),
//	})
//	resp, err := httpclient.Get[searchResponse](c, ctx, "/v1/search", httpclient.WithQueryParam("query", q))
package httpclient
