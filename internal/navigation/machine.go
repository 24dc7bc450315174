package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/receiptbot/core/logger"
	"github.com/m3rciful/receiptbot/internal/collector"
	"github.com/m3rciful/receiptbot/internal/flows"
	"github.com/m3rciful/receiptbot/internal/renderer"
	"github.com/m3rciful/receiptbot/internal/session"
)

// Replier delivers the machine's output to one chat.
// A nil keyboard leaves the chat's current keyboard in place.
// SendFile must not return before the file has been read.
type Replier interface {
	Send(text string, kb *Keyboard) error
	Edit(text string, kb *Keyboard) error
	SendFile(path string) error
}

// Options wires a Machine.
type Options struct {
	Graph   *Graph
	Catalog *flows.Catalog
	Store   session.Store
	Gateway renderer.Gateway
	// Guard is shared with anything that reports in-flight renders. Optional.
	Guard *renderer.Guard
}

// Machine routes user input through the menu graph and the flows it leads to.
type Machine struct {
	graph     *Graph
	catalog   *flows.Catalog
	collector *collector.Collector
	gateway   renderer.Gateway
	guard     *renderer.Guard
	locks     *userLocks
}

// NewMachine validates the graph against the catalog and returns a ready machine.
func NewMachine(opts Options) (*Machine, error) {
	if opts.Graph == nil || opts.Catalog == nil || opts.Store == nil || opts.Gateway == nil {
		return nil, errors.New("navigation: graph, catalog, store and gateway are required")
	}
	if err := opts.Graph.Validate(opts.Catalog); err != nil {
		return nil, err
	}
	guard := opts.Guard
	if guard == nil {
		guard = renderer.NewGuard()
	}
	return &Machine{
		graph:     opts.Graph,
		catalog:   opts.Catalog,
		collector: collector.New(opts.Store, opts.Catalog),
		gateway:   opts.Gateway,
		guard:     guard,
		locks:     newUserLocks(),
	}, nil
}

// Graph returns the validated menu.
func (m *Machine) Graph() *Graph { return m.graph }

// Guard returns the render guard.
func (m *Machine) Guard() *renderer.Guard { return m.guard }

// Start abandons any flow in progress and shows the root node.
func (m *Machine) Start(ctx context.Context, userID int64, r Replier) error {
	unlock := m.locks.Lock(userID)
	err := m.collector.Cancel(ctx, userID)
	unlock()

	root := m.graph.RootNode()
	m.reply(ctx, "send", r.Send(root.Text, m.graph.KeyboardOf(root)))
	return err
}

// Cancel abandons the user's flow, if any, and returns to root.
func (m *Machine) Cancel(ctx context.Context, userID int64, r Replier) error {
	unlock := m.locks.Lock(userID)
	flowID, active, err := m.collector.Active(ctx, userID)
	if err == nil {
		err = m.collector.Cancel(ctx, userID)
	}
	unlock()

	root := m.graph.RootNode()
	text := root.Text
	if active {
		text = m.graph.Messages.Cancelled
		logger.Info(ctx, logger.CompNav, "flow.cancel",
			slog.String("status", "cancelled"),
			slog.String("flow_id", flowID),
		)
	}
	m.reply(ctx, "send", r.Send(text, m.graph.KeyboardOf(root)))
	return err
}

// HandleText answers the pending prompt of an active flow, or follows the reply
// keyboard selector matching text. handled is false when text selects nothing.
func (m *Machine) HandleText(ctx context.Context, userID int64, text string, r Replier) (bool, error) {
	unlock := m.locks.Lock(userID)
	_, active, err := m.collector.Active(ctx, userID)
	if err != nil {
		_ = m.collector.Cancel(ctx, userID)
		unlock()
		m.toRoot(ctx, r, m.graph.Messages.Failure)
		return true, err
	}
	if !active {
		unlock()
		btn, ok := m.graph.ByLabel(text)
		if !ok {
			return false, nil
		}
		return true, m.follow(ctx, userID, btn, r, false)
	}

	// The guard is taken before the answer is recorded: the final answer
	// clears the session, so a busy user must keep it to resend.
	release, ok := m.guard.Acquire(userID)
	if !ok {
		unlock()
		logger.Info(ctx, logger.CompNav, "flow.submit",
			slog.String("status", "busy"),
		)
		m.reply(ctx, "send", r.Send(m.graph.Messages.Busy, nil))
		return true, nil
	}
	step, err := m.collector.Submit(ctx, userID, text)
	unlock()
	if err != nil || !step.Done {
		release()
	}
	if err != nil {
		if errors.Is(err, collector.ErrNoActiveFlow) {
			return false, nil
		}
		if !errors.Is(err, collector.ErrCorruptSession) {
			_ = m.collector.Cancel(ctx, userID)
		}
		m.toRoot(ctx, r, m.graph.Messages.Failure)
		return true, err
	}
	if !step.Done {
		m.reply(ctx, "send", r.Send(step.Next.Text, nil))
		return true, nil
	}
	m.complete(ctx, step, release, r)
	return true, nil
}

// HandleCallback follows the inline selector id. handled is false for unknown ids.
func (m *Machine) HandleCallback(ctx context.Context, userID int64, id string, r Replier) (bool, error) {
	btn, ok := m.graph.ByCallback(id)
	if !ok {
		return false, nil
	}
	return true, m.follow(ctx, userID, btn, r, true)
}

func (m *Machine) follow(ctx context.Context, userID int64, btn Button, r Replier, inline bool) error {
	if btn.Node != "" {
		node, _ := m.graph.Node(btn.Node)
		logger.Debug(ctx, logger.CompNav, "nav.transition",
			slog.String("node", node.ID),
			slog.Bool("inline", inline),
		)
		if inline {
			m.reply(ctx, "edit", r.Edit(node.Text, m.graph.KeyboardOf(node)))
		} else {
			m.reply(ctx, "send", r.Send(node.Text, m.graph.KeyboardOf(node)))
		}
		return nil
	}
	return m.enter(ctx, userID, btn.Flow, r)
}

func (m *Machine) enter(ctx context.Context, userID int64, flowID string, r Replier) error {
	if m.guard.Busy(userID) {
		logger.Info(ctx, logger.CompNav, "flow.enter",
			slog.String("status", "busy"),
			slog.String("flow_id", flowID),
		)
		m.reply(ctx, "send", r.Send(m.graph.Messages.Busy, nil))
		return nil
	}
	flow, err := m.catalog.Lookup(flowID)
	if err != nil {
		m.toRoot(ctx, r, m.graph.Messages.Failure)
		return err
	}

	unlock := m.locks.Lock(userID)
	prompt, err := m.collector.Start(ctx, userID, flow)
	unlock()
	if err != nil {
		m.toRoot(ctx, r, m.graph.Messages.Failure)
		return fmt.Errorf("navigation: start flow %s: %w", flowID, err)
	}
	logger.Info(ctx, logger.CompNav, "flow.enter",
		slog.String("status", "ok"),
		slog.String("flow_id", flowID),
	)
	m.reply(ctx, "send", r.Send(prompt.Text, nil))
	return nil
}

// complete renders a finished flow. release frees the user's render guard.
func (m *Machine) complete(ctx context.Context, step collector.Step, release func(), r Replier) {
	defer release()
	kb := m.graph.KeyboardOf(m.graph.ReturnNode(step.Flow.ID))

	m.reply(ctx, "send", r.Send(m.graph.Messages.Generating, nil))
	start := time.Now()
	paths, err := m.gateway.Render(ctx, step.Payload, step.Flow)
	if err != nil {
		kind, _ := renderer.KindOf(err)
		logger.Warn(ctx, logger.CompNav, "flow.render",
			slog.String("status", "fail"),
			slog.String("flow_id", step.Flow.ID),
			slog.String("code", string(kind)),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
		m.reply(ctx, "send", r.Send(m.graph.Messages.Failure, kb))
		return
	}
	for _, p := range paths {
		m.reply(ctx, "send_file", r.SendFile(p))
	}
	if err := renderer.Cleanup(paths); err != nil {
		logger.Warn(ctx, logger.CompNav, "render.cleanup",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	logger.Info(ctx, logger.CompNav, "flow.render",
		slog.String("status", "ok"),
		slog.String("flow_id", step.Flow.ID),
		slog.Int("artifacts", len(paths)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	m.reply(ctx, "send", r.Send(m.graph.Messages.Success, kb))
}

func (m *Machine) toRoot(ctx context.Context, r Replier, text string) {
	m.reply(ctx, "send", r.Send(text, m.graph.KeyboardOf(m.graph.RootNode())))
}

// reply logs a failed delivery. Delivery failures never change state.
func (m *Machine) reply(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	logger.Warn(ctx, logger.CompNav, "reply.fail",
		slog.String("status", "fail"),
		slog.String("op", op),
		slog.String("err", err.Error()),
	)
}
