package logger

import (
	"context"
	"log/slog"
)

type contextKey uint8

const (
	ctxLogger contextKey = iota
	ctxRID
	ctxUpdate
	ctxHandler
	ctxRender
)

type updateMeta struct {
	updateID int
	userID   int64
	chatID   int64
}

// renderMeta identifies one renderer invocation across the navigation,
// journal and renderer logs.
type renderMeta struct {
	flowID   string
	renderID string
}

func with(ctx context.Context, key contextKey, v any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func from[T any](ctx context.Context, key contextKey) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithLogger stores log in ctx for handlers further down the chain.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		return with(ctx, ctxLogger, FromContext(ctx))
	}
	return with(ctx, ctxLogger, log)
}

// FromContext returns the logger stored in ctx, or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := from[*slog.Logger](ctx, ctxLogger); ok && l != nil {
		return l
	}
	return L
}

// WithRID attaches the update correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return with(ctx, ctxRID, rid)
}

// RIDFrom returns the correlation id, or "".
func RIDFrom(ctx context.Context) string {
	rid, _ := from[string](ctx, ctxRID)
	return rid
}

// WithUpdateMeta attaches the Telegram update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return with(ctx, ctxUpdate, updateMeta{updateID: updateID, userID: userID, chatID: chatID})
}

// UpdateIDFrom returns the Telegram update id, or 0.
func UpdateIDFrom(ctx context.Context) int {
	m, _ := from[updateMeta](ctx, ctxUpdate)
	return m.updateID
}

// UserIDFrom returns the Telegram user id, or 0. Journal entries are keyed by it.
func UserIDFrom(ctx context.Context) int64 {
	m, _ := from[updateMeta](ctx, ctxUpdate)
	return m.userID
}

// ChatIDFrom returns the chat id, or 0.
func ChatIDFrom(ctx context.Context) int64 {
	m, _ := from[updateMeta](ctx, ctxUpdate)
	return m.chatID
}

// WithHandler names the handler serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return with(ctx, ctxHandler, handler)
}

// HandlerFrom returns the handler name, or "".
func HandlerFrom(ctx context.Context) string {
	h, _ := from[string](ctx, ctxHandler)
	return h
}

// WithRender tags every log line of one render with its flow and render id.
func WithRender(ctx context.Context, flowID, renderID string) context.Context {
	return with(ctx, ctxRender, renderMeta{flowID: flowID, renderID: renderID})
}

// RenderFrom returns the flow and render id set by WithRender.
func RenderFrom(ctx context.Context) (flowID, renderID string) {
	m, _ := from[renderMeta](ctx, ctxRender)
	return m.flowID, m.renderID
}
