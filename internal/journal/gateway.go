package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/receiptbot/core/logger"
	"github.com/m3rciful/receiptbot/internal/flows"
	"github.com/m3rciful/receiptbot/internal/renderer"
)

const recordTimeout = 5 * time.Second

// Gateway records the result of every render of the wrapped gateway.
// A failed write is logged and never changes the render result.
type Gateway struct {
	next renderer.Gateway
	rec  Recorder
	now  func() time.Time
}

// Wrap decorates next with journaling into rec.
func Wrap(next renderer.Gateway, rec Recorder) *Gateway {
	if rec == nil {
		rec = Nop{}
	}
	return &Gateway{next: next, rec: rec, now: time.Now}
}

// Render delegates to the wrapped gateway and records the outcome. The render
// id is put in ctx so the wrapped gateway's logs carry it.
func (g *Gateway) Render(ctx context.Context, payload flows.Payload, flow *flows.Flow) ([]string, error) {
	id := uuid.NewString()
	ctx = logger.WithRender(ctx, flow.ID, id)
	start := g.now()
	paths, err := g.next.Render(ctx, payload, flow)

	e := Entry{
		ID:          id,
		UserID:      logger.UserIDFrom(ctx),
		FlowID:      flow.ID,
		Outcome:     OutcomeOK,
		Artifacts:   len(paths),
		DurationMS:  g.now().Sub(start).Milliseconds(),
		CreatedAtMS: start.UnixMilli(),
	}
	if err != nil {
		e.Outcome = "error"
		if kind, ok := renderer.KindOf(err); ok {
			e.Outcome = string(kind)
		}
		e.Message = logger.SanitizeLimit(err.Error(), 1024)
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if recErr := g.rec.Record(recCtx, e); recErr != nil {
		logger.Warn(ctx, logger.CompJournal, "journal.record",
			slog.String("status", "fail"),
			slog.String("err", recErr.Error()),
		)
	} else {
		logger.Debug(ctx, logger.CompJournal, "journal.record",
			slog.String("status", "ok"),
			slog.String("kind", e.Outcome),
		)
	}
	return paths, err
}
