package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	require.True(t, ShouldRetry(dial))
	require.True(t, ShouldRetry(&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: dial}))
	require.True(t, ShouldRetry(tele.FloodError{RetryAfter: 3}))

	require.False(t, ShouldRetry(nil))
	require.False(t, ShouldRetry(errors.New("bad request")))
	require.False(t, ShouldRetry(context.Canceled))
}

func TestRetryAfter(t *testing.T) {
	require.Equal(t, 3*time.Second, RetryAfter(tele.FloodError{RetryAfter: 3}))
	require.Zero(t, RetryAfter(errors.New("boom")))
}

func TestShouldRetryTransientTransportErrors(t *testing.T) {
	reset := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}}
	require.True(t, ShouldRetry(reset))
	require.True(t, ShouldRetry(&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: context.DeadlineExceeded}))

	require.False(t, ShouldRetry(&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: context.Canceled}))
	require.False(t, ShouldRetry(&net.OpError{Op: "read", Err: errors.New("tls: bad record MAC")}))
}
