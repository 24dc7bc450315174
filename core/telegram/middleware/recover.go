package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/receiptbot/core/logger"
	tghelpers "github.com/m3rciful/receiptbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const maxStackBytes = 8 << 10

// PanicError is returned in place of a handler panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("telegram: handler panic: %v", e.Value) }

// Code names the failure in handler summaries.
func (e *PanicError) Code() string { return "PANIC" }

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// RecoverMiddleware turns a panic in next into a *PanicError and logs the stack.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			if len(stack) > maxStackBytes {
				stack = stack[:maxStackBytes]
			}
			err = &PanicError{Value: r}
			logger.Error(tghelpers.BuildContext(c), logger.CompTG, "tg.panic",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
				slog.String("stack", string(stack)),
			)
		}()
		return next(c)
	}
}
