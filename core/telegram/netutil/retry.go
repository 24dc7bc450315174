// Package netutil decides which Bot API failures are worth another attempt.
package netutil

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v4"
)

// ShouldRetry reports whether a Bot API call that failed with err may be
// repeated: flood control, dial failures, timeouts and reset connections.
// Cancellation and API errors other than flood control are final.
func ShouldRetry(err error) bool {
	var (
		flood  tele.FloodError
		opErr  *net.OpError
		netErr net.Error
	)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.As(err, &flood):
		return true
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return true
	case errors.As(err, &netErr) && netErr.Timeout():
		return true
	case errors.Is(err, syscall.ECONNRESET):
		return true
	}
	return false
}

// RetryAfter returns the wait requested by a flood control error, or zero.
func RetryAfter(err error) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return 0
}
