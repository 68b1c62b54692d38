// Package geocoding turns coordinates into "City, Country" labels.
//
// A [Resolver] owns the two pieces of shared state: a [Cache] of resolved
// locations keyed by quantized coordinate, and a [Limiter] bounding how many
// provider chain walks run at once. Callers either block on
// [Resolver.Resolve] or observe a [Subscription] from [Resolver.Watch], which
// starts in StatusLoading and settles exactly once.
//
// Failures are never cached, so a later request for the same place tries the
// providers again. Concurrent requests for the same place are not coalesced.
package geocoding
