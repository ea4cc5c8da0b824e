// Package clock wraps agilira's go-timecache so the hot paths that
// need a "roughly now" timestamp (per-record session quota accounting,
// keepalive cadence) don't pay a time.Now() syscall on every call.
// Grounded on agilira-lethe's Logger.timeCache field, which caches
// time.Now() at millisecond resolution for its own rotation hot path.
package clock

import (
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

var (
	once  sync.Once
	cache *timecache.TimeCache
)

func get() *timecache.TimeCache {
	once.Do(func() {
		cache = timecache.NewWithResolution(time.Millisecond)
	})
	return cache
}

// Now returns a millisecond-resolution cached timestamp, suitable for
// quota windows and cadence counters where sub-millisecond precision
// doesn't matter but per-call syscall cost does.
func Now() time.Time {
	return get().CachedTime()
}

// Stop releases the background refresh goroutine backing the cache.
// Tests that construct many short-lived clocks don't need to call
// this; it exists for symmetry with agilira-lethe's shutdown path.
func Stop() {
	if cache != nil {
		cache.Stop()
	}
}
