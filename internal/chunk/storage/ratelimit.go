package storage

import (
	"context"

	"golang.org/x/time/rate"
)

// newLimiter returns a limiter permitting ratePerSecond requests/second
// with a burst of the same size. A non-positive ratePerSecond disables
// limiting (rate.Inf), which is the default for every remote backend
// constructor unless the caller opts in.
func newLimiter(ratePerSecond float64) *rate.Limiter {
	if ratePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

func waitLimiter(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
