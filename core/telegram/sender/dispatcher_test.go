package sender

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	tele "gopkg.in/telebot.v4"
)

func TestEnqueueKeepsPerKeyOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := NewDispatcher(Options{Workers: 3})

	var mu sync.Mutex
	got := map[int64][]int{}
	for i := 0; i < 20; i++ {
		for _, key := range []int64{10, 11, -12} {
			key, i := key, i
			require.NoError(t, d.Enqueue(context.Background(), key, "send.text", "sendMessage", func() error {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
				return nil
			}))
		}
	}
	d.Close()

	for _, key := range []int64{10, 11, -12} {
		require.Len(t, got[key], 20)
		for i, v := range got[key] {
			require.Equal(t, i, v)
		}
	}
}

func TestDoWaitsForEarlierJobs(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := NewDispatcher(Options{Workers: 1})
	defer d.Close()

	var order []string
	require.NoError(t, d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		time.Sleep(20 * time.Millisecond)
		order = append(order, "text")
		return nil
	}))
	err := d.Do(context.Background(), 1, "send.photo", "sendPhoto", func() error {
		order = append(order, "photo")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"text", "photo"}, order)
}

func TestDoReturnsFinalError(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	defer d.Close()

	calls := 0
	dial := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	err := d.Do(context.Background(), 5, "send.photo", "sendPhoto", func() error {
		calls++
		return dial
	})
	require.ErrorIs(t, err, dial)
	require.Equal(t, 3, calls)
	require.EqualValues(t, 1, d.ErrorCount())

	calls = 0
	err = d.Do(context.Background(), 5, "send.text", "sendMessage", func() error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls, "permanent errors are not retried")
}

func TestSubmitAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	d.Close()
	err := d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error { return nil })
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), 1, "a", "", func() error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), 1, "b", "", func() error { return nil }))
	err := d.Enqueue(context.Background(), 1, "c", "", func() error { return nil })
	require.ErrorIs(t, err, ErrQueueFull)
	close(release)
	d.Close()
}

func TestRedactToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123:ABC-def/sendPhoto": timeout`)
	require.NotContains(t, redactToken(err), "ABC-def")
	require.Contains(t, redactToken(err), "bot<redacted>/sendPhoto")
	require.Empty(t, redactToken(nil))
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"timeout":  fmt.Errorf("send: %w", context.DeadlineExceeded),
		"dns":      &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.DNSError{Name: "api.telegram.org"}},
		"dial":     &net.OpError{Op: "dial", Err: errors.New("refused")},
		"flood":    tele.FloodError{RetryAfter: 3},
		"http_4xx": errors.New("telegram: Bad Request: chat not found (400)"),
		"http_5xx": errors.New("telegram: Internal Server Error (502)"),
		"unknown":  errors.New("file is empty"),
	}
	for want, err := range cases {
		require.Equal(t, want, errorKind(err), want)
	}
}

func TestRetryHonoursFloodWait(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, RetryBackoff: time.Millisecond})
	defer d.Close()
	require.Equal(t, 3*time.Second, d.backoff(1, tele.FloodError{RetryAfter: 3}))
	require.Equal(t, 2*time.Millisecond, d.backoff(2, errors.New("x")))
}

func TestNegativeKeysShareShards(t *testing.T) {
	d := NewDispatcher(Options{Workers: 3})
	defer d.Close()
	require.NotPanics(t, func() {
		d.shard(math.MinInt64)
		d.shard(-1001234567890)
	})
}

func TestFailedJobCounted(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	calls := 0
	err := d.Do(context.Background(), 5, "send.text", "sendMessage", func() error {
		calls++
		return errors.New("telegram: Forbidden: bot was blocked by the user (403)")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls, "permanent errors are not retried")
	require.EqualValues(t, 1, d.ErrorCount())
	d.Close()
}
