// Package bot assembles the receipt bot: it connects the Telegram transport to
// the navigation machine and the infrastructure selected by configuration.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/m3rciful/receiptbot/core/bootstrap"
	coreconfig "github.com/m3rciful/receiptbot/core/config"
	"github.com/m3rciful/receiptbot/core/logger"
	tg "github.com/m3rciful/receiptbot/core/telegram"
	"github.com/m3rciful/receiptbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/receiptbot/core/telegram/helpers"
	"github.com/m3rciful/receiptbot/core/telegram/router"
	tgsender "github.com/m3rciful/receiptbot/core/telegram/sender"
	"github.com/m3rciful/receiptbot/internal/flows"
	"github.com/m3rciful/receiptbot/internal/journal"
	"github.com/m3rciful/receiptbot/internal/navigation"
	"github.com/m3rciful/receiptbot/internal/renderer"
	"github.com/m3rciful/receiptbot/internal/session"

	tele "gopkg.in/telebot.v4"
)

const recentRenders = 5

// Deps are the collaborators of an App.
type Deps struct {
	Config  *coreconfig.Config
	Catalog *flows.Catalog
	Graph   *navigation.Graph
	Store   session.Store
	// Gateway is the raw renderer; the App records its results in Journal.
	Gateway renderer.Gateway
	// Journal may be nil.
	Journal journal.Recorder
	Closers []io.Closer
}

// App is the assembled bot.
type App struct {
	cfg      *coreconfig.Config
	catalog  *flows.Catalog
	machine  *navigation.Machine
	journal  journal.Recorder
	registry *tg.Registry
	closers  []io.Closer
	disp     atomic.Pointer[tgsender.Dispatcher]
}

// NewApp wires deps into a bot.
func NewApp(d Deps) (*App, error) {
	if d.Config == nil || d.Gateway == nil {
		return nil, errors.New("bot: config and gateway are required")
	}
	rec := d.Journal
	if rec == nil {
		rec = journal.Nop{}
	}
	machine, err := navigation.NewMachine(navigation.Options{
		Graph:   d.Graph,
		Catalog: d.Catalog,
		Store:   d.Store,
		Gateway: journal.Wrap(d.Gateway, rec),
		Guard:   renderer.NewGuard(),
	})
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:      d.Config,
		catalog:  d.Catalog,
		machine:  machine,
		journal:  rec,
		registry: tg.NewRegistry(),
		closers:  d.Closers,
	}
	if err := a.register(); err != nil {
		return nil, err
	}
	return a, nil
}

// Build loads flows, the menu, the renderer and the session store described by
// cfg. boot supplies the journal database when one is configured.
func Build(ctx context.Context, cfg *coreconfig.Config, boot *bootstrap.Result) (*App, error) {
	catalog, err := flows.Load(cfg.Flows.CatalogFile)
	if err != nil {
		return nil, err
	}
	graph, err := navigation.Load(cfg.Flows.MenuFile)
	if err != nil {
		return nil, err
	}
	gw, err := NewRenderer(cfg.Renderer)
	if err != nil {
		return nil, err
	}
	// Flows without a script would only ever fail; their buttons are hidden.
	if missing, err := gw.MissingScripts(catalog); err != nil {
		logger.Warn(ctx, logger.CompRenderer, "scripts.check",
			slog.String("status", "fail"),
			slog.Any("hidden_flows", missing),
			slog.String("err", err.Error()),
		)
		graph.HideFlows(missing...)
	}

	store, closer, err := session.Open(ctx, cfg.Session)
	if err != nil {
		return nil, err
	}
	deps := Deps{
		Config:  cfg,
		Catalog: catalog,
		Graph:   graph,
		Store:   store,
		Gateway: gw,
		Closers: []io.Closer{closer},
	}
	if boot != nil && boot.DB != nil {
		deps.Journal = journal.NewSQL(boot.DB)
		deps.Closers = append(deps.Closers, boot)
	}
	app, err := NewApp(deps)
	if err != nil {
		_ = closeAll(deps.Closers)
		return nil, err
	}
	return app, nil
}

// NewRenderer resolves the configured interpreter and returns the subprocess gateway.
func NewRenderer(cfg coreconfig.RendererConfig) (*renderer.Subprocess, error) {
	command, err := renderer.Resolve(renderer.SplitCandidates(cfg.Command)...)
	if err != nil {
		return nil, err
	}
	stage := cfg.StageDir
	if stage == "" {
		stage = os.TempDir()
	}
	return renderer.NewSubprocess(renderer.Options{
		Command:        command,
		ScriptsDir:     cfg.ScriptsDir,
		Timeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxStderrBytes: cfg.MaxStderrBytes,
		StageDir:       stage,
	})
}

func (a *App) register() error {
	if err := errors.Join(
		a.registry.RegisterCommand("/start", commands.Command{
			Handler:     a.handleStart,
			Description: "Open the main menu",
			Aliases:     []string{"menu"},
		}),
		a.registry.RegisterCommand("/cancel", commands.Command{
			Handler:     a.handleCancel,
			Description: "Cancel the current receipt",
		}),
		a.registry.RegisterCommand("/status", commands.Command{
			Handler:     a.handleStatus,
			Description: "Show renderer status",
			AdminOnly:   true,
		}),
	); err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	for _, id := range a.machine.Graph().CallbackIDs() {
		if err := a.registry.RegisterCallback(id, a.callbackHandler(id)); err != nil {
			return fmt.Errorf("bot: %w", err)
		}
	}
	return nil
}

// TelegramRunOptions describes routes, middlewares and lifecycle hooks for the runtime.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.TextRoutes(conversation{a}, a.registry, router.TextOptions{
		UnknownText: a.handleUnknown,
	})...)
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    a.registry,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		DispatcherOptions: tgsender.Options{
			MaxRetries: 2,
		},
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.disp.Store(rt.Dispatcher)
			logger.Info(ctx, logger.CompApp, "bot.wired",
				slog.String("status", "ok"),
				slog.Int("flows", a.catalog.Len()),
				slog.Int("callbacks", len(a.registry.ListCallbacks())),
			)
			return nil
		},
		OnStop: func(context.Context, tg.Runtime) error {
			return a.Close()
		},
	}, nil
}

// Close releases the session store and the journal database.
func (a *App) Close() error {
	closers := a.closers
	a.closers = nil
	return closeAll(closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if closers[i] == nil {
			continue
		}
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) status(ctx context.Context) statusReport {
	r := statusReport{
		Flows:    a.catalog.IDs(),
		InFlight: a.machine.Guard().InFlight(),
	}
	if d := a.disp.Load(); d != nil {
		r.SendErrors = d.ErrorCount()
	}
	r.Recent, r.JournalErr = a.journal.Recent(ctx, recentRenders)
	return r
}

func userID(c tele.Context) (int64, bool) {
	u := c.Sender()
	if u == nil {
		return 0, false
	}
	return u.ID, true
}

func contextOf(c tele.Context) context.Context {
	return tghelpers.BuildContext(c)
}
