package provider

import (
	"context"
	"time"
)

type asOfKey struct{}

// WithAsOf tells History which trading day the caller evaluates. Candles on
// or after that day are dropped. Without it the current day is used, so an
// unfinished session never leaks into intraday callers.
func WithAsOf(ctx context.Context, day time.Time) context.Context {
	return context.WithValue(ctx, asOfKey{}, day)
}

// AsOf returns the day set by WithAsOf, or fallback.
func AsOf(ctx context.Context, fallback time.Time) time.Time {
	if day, ok := ctx.Value(asOfKey{}).(time.Time); ok && !day.IsZero() {
		return day
	}
	return fallback
}
