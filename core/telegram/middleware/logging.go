package middleware

import (
	"log/slog"
	"sync"

	"github.com/m3rciful/receiptbot/core/logger"
	"github.com/m3rciful/receiptbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/receiptbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// The logger middleware runs both on the bot and on each route, so an update
// passes it twice. seenUpdates remembers the last ids to log each update once.
var seenUpdates = newRecentIDs(512)

type recentIDs struct {
	mu   sync.Mutex
	set  map[int]struct{}
	ring []int
	next int
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{set: make(map[int]struct{}, size), ring: make([]int, 0, size)}
}

// first reports whether id is seen for the first time, evicting the oldest id when full.
func (r *recentIDs) first(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[id]; ok {
		return false
	}
	if len(r.ring) < cap(r.ring) {
		r.ring = append(r.ring, id)
	} else {
		delete(r.set, r.ring[r.next])
		r.ring[r.next] = id
		r.next = (r.next + 1) % len(r.ring)
	}
	r.set[id] = struct{}{}
	return true
}

// LoggerMiddleware builds the update's logging context and logs one sampled
// update.received line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if seenUpdates.first(c.Update().ID) && logger.ShouldSampleDebug() {
			logger.Debug(ctx, logger.CompTG, "update.received", updateAttrs(c)...)
		}
		return next(c)
	}
}

// updateAttrs describes the update; the ids come from the context.
func updateAttrs(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		attrs = append(attrs, slog.String("kind", "callback"), slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil:
		msg := upd.Message
		kind := "text"
		switch {
		case msg.Photo != nil:
			kind = "photo"
		case msg.Document != nil:
			kind = "document"
		}
		attrs = append(attrs, slog.String("kind", kind))
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}
