package router

import (
	"time"

	tg "github.com/m3rciful/receiptbot/core/telegram"
	"github.com/m3rciful/receiptbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Conversation receives updates that are not commands. handled is false when
// the update means nothing in the user's current state.
type Conversation interface {
	HandleText(c tele.Context) (handled bool, err error)
	HandleMedia(c tele.Context) (handled bool, err error)
}

// TextOptions controls fallback behaviour for text and media updates.
type TextOptions struct {
	UnknownText  tele.HandlerFunc
	UnknownMedia tele.HandlerFunc
}

// TextRoutes builds handlers for text, photo and document updates.
// Text is matched against registered commands first, then offered to conv.
func TextRoutes(conv Conversation, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := handlerName(key)
				return handled(c, name, start, func() error {
					return cmd.Handler(c)
				})
			}
		}

		if conv != nil {
			var taken bool
			err := handled(c, "conversation", start, func() error {
				var err error
				taken, err = conv.HandleText(c)
				return err
			})
			if taken || err != nil {
				return err
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handled(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handled(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}

		skipped(c, "unknown_text", start)
		return nil
	}

	mediaHandler := func(c tele.Context) error {
		start := time.Now()
		if conv != nil {
			var taken bool
			err := handled(c, "conversation_media", start, func() error {
				var err error
				taken, err = conv.HandleMedia(c)
				return err
			})
			if taken || err != nil {
				return err
			}
		}
		if opts.UnknownMedia != nil {
			return handled(c, "unexpected_media", start, func() error {
				return opts.UnknownMedia(c)
			})
		}
		skipped(c, "unexpected_media", start)
		return nil
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(handler)},
		{Endpoint: tele.OnPhoto, Handler: wrap(mediaHandler)},
		{Endpoint: tele.OnDocument, Handler: wrap(mediaHandler)},
	}
}
