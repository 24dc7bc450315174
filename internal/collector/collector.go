// Package collector runs a flow's prompts as an explicit state machine: the
// session records the pending prompt index and every inbound answer advances it.
//
// Calls for the same user must be serialised by the caller; the collector
// performs one read-modify-write of the session per call.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/receiptbot/core/logger"
	"github.com/m3rciful/receiptbot/internal/flows"
	"github.com/m3rciful/receiptbot/internal/session"
)

var (
	// ErrNoActiveFlow is returned by Submit when the user is not inside a flow.
	ErrNoActiveFlow = errors.New("collector: no active flow")
	// ErrCorruptSession reports a session that cannot be resumed. The session is cleared.
	ErrCorruptSession = errors.New("collector: corrupt session")
)

// Step is the outcome of one submitted answer.
type Step struct {
	// Next is the prompt to ask when the flow is not finished.
	Next *flows.Prompt
	// Index is the position of Next within the flow.
	Index int

	Done    bool
	Flow    *flows.Flow
	Payload flows.Payload
}

// Collector drives flows over a session store.
type Collector struct {
	store   session.Store
	catalog *flows.Catalog
}

// New returns a collector backed by store and resolving flows from catalog.
func New(store session.Store, catalog *flows.Catalog) *Collector {
	return &Collector{store: store, catalog: catalog}
}

// Start resets the user's session to the first prompt of flow, discarding any
// partial answers of a previous flow, and returns that prompt.
func (c *Collector) Start(ctx context.Context, userID int64, flow *flows.Flow) (flows.Prompt, error) {
	if flow == nil {
		return flows.Prompt{}, errors.New("collector: nil flow")
	}
	if _, err := c.catalog.Lookup(flow.ID); err != nil {
		return flows.Prompt{}, err
	}

	if prev, err := c.store.Get(ctx, userID); err == nil && !prev.Idle() {
		logger.Debug(ctx, logger.CompCollector, "flow.superseded",
			slog.String("flow_id", prev.ActiveFlow),
			slog.Int("cursor", prev.Cursor),
			slog.String("next", flow.ID),
		)
	}

	s := &session.Session{UserID: userID, ActiveFlow: flow.ID}
	if err := c.store.Save(ctx, s); err != nil {
		return flows.Prompt{}, fmt.Errorf("collector: save session: %w", err)
	}
	logger.Debug(ctx, logger.CompCollector, "flow.start",
		slog.String("status", "ok"),
		slog.String("flow_id", flow.ID),
		slog.Int("prompts", len(flow.Prompts)),
	)
	return flow.Prompts[0], nil
}

// Submit records text as the answer to the pending prompt. Empty text is a valid answer.
func (c *Collector) Submit(ctx context.Context, userID int64, text string) (Step, error) {
	s, err := c.store.Get(ctx, userID)
	if errors.Is(err, session.ErrNotFound) {
		return Step{}, ErrNoActiveFlow
	}
	if err != nil {
		return Step{}, c.corrupt(ctx, userID, "", fmt.Errorf("load: %w", err))
	}
	if s.Idle() {
		return Step{}, ErrNoActiveFlow
	}

	flow, err := c.catalog.Lookup(s.ActiveFlow)
	if err != nil {
		return Step{}, c.corrupt(ctx, userID, s.ActiveFlow, err)
	}
	if s.Cursor < 0 || s.Cursor >= len(flow.Prompts) {
		return Step{}, c.corrupt(ctx, userID, flow.ID, fmt.Errorf("cursor %d out of range", s.Cursor))
	}
	if len(s.Answers) != s.Cursor {
		return Step{}, c.corrupt(ctx, userID, flow.ID, fmt.Errorf("%d answers at cursor %d", len(s.Answers), s.Cursor))
	}

	s.Answers = append(s.Answers, flows.Answer{Field: flow.Prompts[s.Cursor].Field, Text: text})
	s.Cursor++

	if s.Cursor == len(flow.Prompts) {
		if err := c.store.Clear(ctx, userID); err != nil {
			return Step{}, fmt.Errorf("collector: clear session: %w", err)
		}
		logger.Debug(ctx, logger.CompCollector, "flow.complete",
			slog.String("status", "ok"),
			slog.String("flow_id", flow.ID),
			slog.Int("prompts", len(flow.Prompts)),
		)
		return Step{Done: true, Flow: flow, Payload: flow.Payload(s.Answers)}, nil
	}

	if err := c.store.Save(ctx, s); err != nil {
		return Step{}, fmt.Errorf("collector: save session: %w", err)
	}
	next := flow.Prompts[s.Cursor]
	return Step{Next: &next, Index: s.Cursor, Flow: flow}, nil
}

// Cancel abandons the user's flow and its partial answers.
func (c *Collector) Cancel(ctx context.Context, userID int64) error {
	if s, err := c.store.Get(ctx, userID); err == nil && !s.Idle() {
		logger.Debug(ctx, logger.CompCollector, "flow.cancel",
			slog.String("flow_id", s.ActiveFlow),
			slog.Int("cursor", s.Cursor),
		)
	}
	if err := c.store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("collector: clear session: %w", err)
	}
	return nil
}

// Active returns the id of the user's active flow, if any.
func (c *Collector) Active(ctx context.Context, userID int64) (string, bool, error) {
	s, err := c.store.Get(ctx, userID)
	if errors.Is(err, session.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("collector: load session: %w", err)
	}
	if s.Idle() {
		return "", false, nil
	}
	return s.ActiveFlow, true, nil
}

func (c *Collector) corrupt(ctx context.Context, userID int64, flowID string, cause error) error {
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("flow_id", flowID),
		slog.String("err", cause.Error()),
	}
	if err := c.store.Clear(ctx, userID); err != nil {
		attrs = append(attrs, slog.String("clear_err", err.Error()))
	}
	logger.Warn(ctx, logger.CompCollector, "flow.corrupt", attrs...)
	return fmt.Errorf("%w: %v", ErrCorruptSession, cause)
}
