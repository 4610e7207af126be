package repository

import "time"

// queryObserver receives per-query latency samples.
type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// observeQuery reports the elapsed time of a labeled query when an
// observer is configured. Deferred at the top of repository methods.
func observeQuery(metrics queryObserver, label string, start time.Time) {
	if metrics != nil {
		metrics.ObserveDBQuery(label, time.Since(start))
	}
}
