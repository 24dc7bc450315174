package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/receiptbot/core/logger"
	tghelpers "github.com/m3rciful/receiptbot/core/telegram/helpers"
	"github.com/m3rciful/receiptbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// handled runs fn as handler name and logs one handler.handled line for it.
func handled(c tele.Context, name string, start time.Time, fn func() error, extras ...slog.Attr) error {
	tghelpers.WithHandler(c, name)
	err := fn()
	status := "ok"
	if err != nil {
		status = "fail"
	}
	logSummary(c, name, start, status, err, extras...)
	return err
}

// skipped logs an update nobody handled.
func skipped(c tele.Context, name string, start time.Time) {
	logSummary(c, name, start, "skip", nil)
}

func logSummary(c tele.Context, name string, start time.Time, status string, err error, extras ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, name)
	sent := middleware.Counters(c)
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", sent.Messages),
		slog.Int("files", sent.Files),
		slog.Bool("kb", sent.Keyboard),
		slog.Duration("duration", time.Since(start)),
	}, extras...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.Info(ctx, logger.CompTG, "handler.handled", attrs...)
}

// handlerName turns a command or callback key into a log-friendly name.
func handlerName(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "unknown"
	}
	return strings.ToLower(strings.Join(strings.Fields(key), "_"))
}

// errorCode prefers a Code() anywhere in the chain and falls back to the error's type name.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.Join(strings.Fields(code), "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
