package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/receiptbot/core/telegram/netutil"
)

const (
	dialTimeout      = 5 * time.Second
	keepAlive        = 30 * time.Second
	idleConnTimeout  = 30 * time.Second
	tlsHandshake     = 5 * time.Second
	uploadWaitMargin = 35 * time.Second
	clientMargin     = 15 * time.Second
	retryAttempts    = 3
	retryBackoff     = 2 * time.Second
)

// BuildHTTPClient returns the client the bot talks to the Bot API with.
// getUpdates holds the response for up to pollTimeout, and photo uploads wait
// for Telegram to process the file, so the header timeout covers both.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	if pollTimeout <= 0 {
		pollTimeout = defaultLongPollTimeout
	}
	headerTimeout := pollTimeout + uploadWaitMargin
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshake,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   headerTimeout + clientMargin,
		Transport: &retryTransport{base: transport, retries: retryAttempts, backoff: retryBackoff},
	}
}

// retryTransport repeats requests that failed before a response arrived, with
// a linear backoff. Requests whose body cannot be replayed are sent once.
type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	replayable := req.Body == nil || req.GetBody != nil

	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.retries; attempt++ {
		if !replayable || !netutil.ShouldRetry(err) {
			break
		}
		if waitErr := sleepCtx(req, t.backoff*time.Duration(attempt)); waitErr != nil {
			return nil, waitErr
		}
		next, cloneErr := rewind(req)
		if cloneErr != nil {
			return nil, cloneErr
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}

func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		next.Body = body
	}
	return next, nil
}

func sleepCtx(req *http.Request, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}
