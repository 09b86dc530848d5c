// Package ratelimit enforces a minimum spacing between outbound
// requests so the remote site has no reason to start blocking us.
// Reads and writes are throttled independently, writes more
// conservatively.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type Class int

const (
	Read Class = iota
	Write
)

const (
	DefaultReadDelay  = time.Second
	DefaultWriteDelay = 2 * time.Second
)

// Limiter spaces out requests per class. rate.Limiter runs on a
// monotonic clock internally, so wall clock jumps and DST changes
// cannot shrink or stretch the spacing.
type Limiter struct {
	read  *rate.Limiter
	write *rate.Limiter
}

// New creates a limiter allowing one read per readDelay and one write
// per writeDelay. Non-positive delays fall back to the defaults.
func New(readDelay, writeDelay time.Duration) *Limiter {
	if readDelay <= 0 {
		readDelay = DefaultReadDelay
	}
	if writeDelay <= 0 {
		writeDelay = DefaultWriteDelay
	}
	return &Limiter{
		read:  rate.NewLimiter(rate.Every(readDelay), 1),
		write: rate.NewLimiter(rate.Every(writeDelay), 1),
	}
}

// Wait suspends the caller until the class's delay has elapsed since
// the last request of that class. The first request of each class
// proceeds immediately. The only possible error is the context being
// cancelled.
func (l *Limiter) Wait(ctx context.Context, class Class) error {
	if class == Write {
		return l.write.Wait(ctx)
	}
	return l.read.Wait(ctx)
}
