package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/receiptbot/core/telegram"
	"github.com/m3rciful/receiptbot/core/telegram/callbacks"
	"github.com/m3rciful/receiptbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	// NotFound runs for unknown keys when the registry has no fallback.
	NotFound tele.HandlerFunc
}

// CallbackRoute answers every button press at once and runs the handler the
// registry holds for its key.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	notFound := func(c tele.Context) error {
		fb := reg.CallbackNotFound()
		if fb == nil {
			fb = opts.NotFound
		}
		if fb == nil {
			return nil
		}
		return fb(c)
	}
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		start := time.Now()
		key := callbacks.CallbackKey(c)
		// Handlers reply with new messages, so the press is acknowledged up front.
		_ = c.Respond()

		extras := []slog.Attr{slog.String("cb_key", key)}
		h, ok := reg.GetCallback(key)
		if !ok || h == nil {
			h = notFound
			extras = append(extras, slog.String("cause", "not_found"))
		}
		return handled(c, "callback."+handlerName(key), start, func() error { return h(c) }, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
