// Package handlers contains HTTP handler interfaces, implementations, and middleware
// shared by the fee API server.
//
// # Health Checks
//
// The CompositeHealthChecker runs named checks in parallel. Critical checks
// decide readiness; optional ones only degrade health:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("store", handlers.NewPingCheck(conn))
//	checker.AddOptionalCheck("cache", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//	if !status.Ready {
//	    log.Warn("service not ready", logger.String("reason", status.Message))
//	}
//
// # Authentication
//
// APIKeyAuth accepts keys whose bcrypt hash is configured. Generate a hash with
// HashAPIKey and put it in FEES_API_KEY_HASHES.
//
// # Rate Limiting
//
// RateLimiter keeps a token bucket per client and answers 429 with
// Retry-After once a bucket is empty. Run sweeps idle buckets:
//
//	limiter := handlers.NewRateLimiter(handlers.DefaultRateLimitConfig())
//	go limiter.Run(ctx)
package handlers
