// Package resilience wraps calls to flaky collaborators.
//
//   - CircuitBreaker fails fast once a vendor API keeps erroring. It is
//     backed by github.com/sony/gobreaker.
//   - Retry repeats retryable failures with exponential backoff.
//   - Bulkhead caps concurrent access to a shared resource such as the
//     database pool.
//
// Call quotas are not handled here. They belong to the throttle package,
// which the scheduler consults before every batch.
//
//	err := cb.Execute(func() error {
//		return resilience.RetryFunc(ctx, retryCfg, func() error {
//			return client.Do(req)
//		})
//	})
package resilience
