// Package resilience executes operations against unreliable providers.
//
// Manager keeps one circuit breaker per provider (closed, open, half_open),
// retries failed calls with exponential backoff and fails over to another
// registered provider while the current one's circuit is open.
//
// The retry budget is global to a call: a failover consumes an attempt that
// would otherwise have gone to the original provider, so at most MaxRetries
// executor invocations happen per ExecuteWithResilience call no matter how
// many providers are visited.
//
// Usage:
//
//	mgr := resilience.New(exec, func(o *resilience.Options) {
//	    o.Providers = []string{"primary", "secondary"}
//	    o.Logger = logger
//	})
//	result, err := mgr.ExecuteWithResilience(ctx, "primary", op)
package resilience
