package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/receiptbot/core/logger"
	tghelpers "github.com/m3rciful/receiptbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// sweepAt is the table size at which expired users are dropped.
const sweepAt = 4096

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude lists update kinds that are never limited: "message", "callback", "inline_query", "other".
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// userWindow remembers when each user last got through.
type userWindow struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[int64]time.Time
}

// allow reports whether userID may pass at now and, if so, starts a new window.
func (w *userWindow) allow(userID int64, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.last[userID]; ok && now.Sub(last) < w.interval {
		return false
	}
	w.last[userID] = now
	if len(w.last) > sweepAt {
		for id, ts := range w.last {
			if now.Sub(ts) >= w.interval {
				delete(w.last, id)
			}
		}
	}
	return true
}

func limitKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// RateLimitMiddleware drops updates a user sends less than Interval after the
// previous one that passed. OnLimited may tell the user why.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	window := &userWindow{interval: opts.Interval, last: make(map[int64]time.Time)}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := limitKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip || window.allow(user.ID, time.Now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
