// Package resilience holds the circuit breaker that guards library CDN
// fallbacks.
//
// A preview mount can request several library builds at once. When the CDN
// is down each of those requests would otherwise wait out its retries, so
// the breaker opens after repeated failures and asset requests fail fast
// until a half-open probe succeeds:
//
//	Closed --[failures]--> Open --[timeout]--> Half-Open --[successes]--> Closed
//	                         ^                     |
//	                         +-----[failure]-------+
//
// Usage:
//
//	breaker := resilience.New("libs-cdn", resilience.Settings{
//		Timeout:   30 * time.Second,
//		IsFailure: func(err error) bool { return err != nil && !isNotFound(err) },
//	})
//	body, err := resilience.Execute(breaker, func() ([]byte, error) {
//		return fetch(ctx, url)
//	})
package resilience
