package middleware

import (
	"slices"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

const statsKey = "send_stats"

// sendStats counts what one update sent back. Queued sends finish on the
// dispatcher, possibly after the handler returned.
type sendStats struct {
	messages atomic.Int32
	files    atomic.Int32
	keyboard atomic.Bool
}

// SendCounters is a snapshot of sendStats.
type SendCounters struct {
	Messages int
	Files    int
	Keyboard bool
}

// countingContext records every successful outgoing message of the update.
type countingContext struct {
	tele.Context
	stats *sendStats
}

func (c countingContext) record(what any, opts []any, err error) error {
	if err != nil {
		return err
	}
	c.stats.messages.Add(1)
	switch what.(type) {
	case *tele.Photo, *tele.Document:
		c.stats.files.Add(1)
	}
	if hasKeyboard(opts) {
		c.stats.keyboard.Store(true)
	}
	return nil
}

func hasKeyboard(opts []any) bool {
	return slices.ContainsFunc(opts, func(o any) bool {
		switch v := o.(type) {
		case *tele.SendOptions:
			return v != nil && v.ReplyMarkup != nil
		case *tele.ReplyMarkup:
			return v != nil
		}
		return false
	})
}

func (c countingContext) Send(what any, opts ...any) error {
	return c.record(what, opts, c.Context.Send(what, opts...))
}

func (c countingContext) Reply(what any, opts ...any) error {
	return c.record(what, opts, c.Context.Reply(what, opts...))
}

func (c countingContext) Edit(what any, opts ...any) error {
	return c.record(what, opts, c.Context.Edit(what, opts...))
}

func (c countingContext) EditOrSend(what any, opts ...any) error {
	return c.record(what, opts, c.Context.EditOrSend(what, opts...))
}

func (c countingContext) EditOrReply(what any, opts ...any) error {
	return c.record(what, opts, c.Context.EditOrReply(what, opts...))
}

// SendMetrics counts the messages, files and keyboards the handler sends.
// Read them with Counters.
func SendMetrics(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, counted := c.(countingContext); counted {
			return next(c)
		}
		stats := &sendStats{}
		c.Set(statsKey, stats)
		return next(countingContext{Context: c, stats: stats})
	}
}

// Counters returns what has been sent for the update so far.
func Counters(c tele.Context) SendCounters {
	stats, _ := c.Get(statsKey).(*sendStats)
	if stats == nil {
		return SendCounters{}
	}
	return SendCounters{
		Messages: int(stats.messages.Load()),
		Files:    int(stats.files.Load()),
		Keyboard: stats.keyboard.Load(),
	}
}
