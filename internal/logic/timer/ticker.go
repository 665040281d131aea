// Package timer produces the tick sequence that paces the capture loop.
package timer

import (
	"context"
	"iter"
	"time"
)

// Repository yields one tick per elapsed interval.
type Repository interface {
	// Ticks returns a lazy sequence of tick times. Every range over the
	// sequence starts its own clock; the first tick arrives after one full
	// interval. The sequence ends when ctx is cancelled or the consumer stops.
	Ticks(ctx context.Context, interval time.Duration) iter.Seq[time.Time]
}

// Wall is the wall-clock Repository backed by time.Ticker.
type Wall struct{}

func (Wall) Ticks(ctx context.Context, interval time.Duration) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if interval <= 0 {
			return
		}
		tk := time.NewTicker(interval)
		defer tk.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-tk.C:
				// Both cases may be ready at once; never emit after cancellation.
				if ctx.Err() != nil {
					return
				}
				if !yield(t) {
					return
				}
			}
		}
	}
}
