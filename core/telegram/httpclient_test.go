package telegram

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedTransport struct {
	errs   []error
	bodies []string
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		s.bodies = append(s.bodies, string(data))
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
}

func dialErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func TestRetryTransportReplaysBody(t *testing.T) {
	base := &scriptedTransport{errs: []error{dialErr(), dialErr(), nil}}
	rt := &retryTransport{base: base, retries: 3, backoff: time.Millisecond}

	req, err := http.NewRequest(http.MethodPost, "https://api.telegram.org/bot/sendMessage", strings.NewReader(`{"text":"hi"}`))
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{`{"text":"hi"}`, `{"text":"hi"}`, `{"text":"hi"}`}, base.bodies)
}

func TestRetryTransportGivesUp(t *testing.T) {
	base := &scriptedTransport{errs: []error{dialErr(), dialErr(), dialErr()}}
	rt := &retryTransport{base: base, retries: 2}

	req, err := http.NewRequest(http.MethodGet, "https://api.telegram.org/bot/getMe", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	var opErr *net.OpError
	require.ErrorAs(t, err, &opErr)
	require.Empty(t, base.errs)
}

func TestRetryTransportSendsStreamedBodyOnce(t *testing.T) {
	base := &scriptedTransport{errs: []error{dialErr(), nil}}
	rt := &retryTransport{base: base, retries: 3}

	pr, pw := io.Pipe()
	go func() {
		_, _ = pw.Write([]byte("photo"))
		_ = pw.Close()
	}()
	req, err := http.NewRequest(http.MethodPost, "https://api.telegram.org/bot/sendPhoto", pr)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.Error(t, err)
	require.Len(t, base.bodies, 1)
}

func TestRetryTransportStopsOnCancel(t *testing.T) {
	base := &scriptedTransport{errs: []error{dialErr(), nil}}
	rt := &retryTransport{base: base, retries: 3, backoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.telegram.org/bot/getMe", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildHTTPClientCoversPollTimeout(t *testing.T) {
	client := BuildHTTPClient(50 * time.Second)
	rt, ok := client.Transport.(*retryTransport)
	require.True(t, ok)
	transport, ok := rt.base.(*http.Transport)
	require.True(t, ok)
	require.Greater(t, transport.ResponseHeaderTimeout, 50*time.Second)
	require.Greater(t, client.Timeout, transport.ResponseHeaderTimeout)

	require.Equal(t, BuildHTTPClient(0).Timeout, BuildHTTPClient(defaultLongPollTimeout).Timeout)
}
