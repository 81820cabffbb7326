// Package limiter paces outgoing API requests so the client stays inside the
// server's hourly quota instead of collecting 429s.
package limiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates outgoing requests.
type Limiter interface {
	// Wait blocks until a request may be sent or ctx is done.
	Wait(ctx context.Context) error
}

// Token is a token-bucket limiter.
type Token struct {
	lim *rate.Limiter
}

var _ Limiter = (*Token)(nil)

// NewToken constructs a token-bucket limiter refilling at r with the given burst.
func NewToken(r rate.Limit, burst int) *Token {
	return &Token{lim: rate.NewLimiter(r, burst)}
}

// PerHour returns a limiter allowing n requests per hour with a burst of
// n/10 (at least 1). n <= 0 disables pacing.
func PerHour(n int) Limiter {
	if n <= 0 {
		return Unlimited{}
	}
	burst := max(n/10, 1)
	return NewToken(rate.Every(time.Hour/time.Duration(n)), burst)
}

// Wait implements Limiter.
func (t *Token) Wait(ctx context.Context) error { return t.lim.Wait(ctx) }

// Unlimited never blocks.
type Unlimited struct{}

// Wait implements Limiter.
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
