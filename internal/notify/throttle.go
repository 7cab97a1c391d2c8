package notify

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Throttle forwards alerts while its token bucket allows and drops the
// rest, so a poison queue cannot flood the inbox.
type Throttle struct {
	next    Notifier
	limiter *rate.Limiter
}

func NewThrottle(next Notifier, perMinute, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	if perMinute < 1 {
		perMinute = 1
	}
	return &Throttle{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

func (t *Throttle) Deliver(ctx context.Context, subject string, cause error) {
	if !t.limiter.Allow() {
		slog.WarnContext(ctx, "notification dropped by rate limit", "subject", subject, "error", cause)
		return
	}
	deliverSafely(ctx, t.next, subject, cause)
}
