package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/receiptbot/core/logger"
	"github.com/m3rciful/receiptbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// NamedCommand pairs a command with the "/name" it is registered under.
type NamedCommand struct {
	Name string
	commands.Command
}

// Registry holds bot commands and the handlers of inline button callbacks.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry creates an empty Registry whose unknown callbacks are ignored.
func NewRegistry() *Registry {
	return &Registry{
		commands:         make(map[string]commands.Command),
		callbacks:        make(map[string]tele.HandlerFunc),
		callbackNotFound: func(tele.Context) error { return nil },
	}
}

// RegisterCommand adds cmd under name, which must start with a slash.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	var reason string
	switch {
	case cmd.Handler == nil || cmd.Description == "":
		reason = "invalid"
	case !strings.HasPrefix(name, "/"):
		reason = "no_slash_prefix"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[name]; dup && reason == "" {
		reason = "duplicate"
	}
	if reason != "" {
		logger.Warn(context.Background(), logger.CompTGWire, "register.command.skip",
			slog.String("status", "skip"),
			slog.String("command", name),
			slog.String("cause", reason),
		)
		return fmt.Errorf("register command %q: %s", name, reason)
	}
	r.commands[name] = cmd
	return nil
}

// Commands returns the registered commands sorted by name.
func (r *Registry) Commands() []NamedCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]NamedCommand, 0, len(r.commands))
	for name, cmd := range r.commands {
		list = append(list, NamedCommand{Name: name, Command: cmd})
	}
	slices.SortFunc(list, func(a, b NamedCommand) int { return strings.Compare(a.Name, b.Name) })
	return list
}

// ListCommands returns the command menu entries. visibleOnly drops hidden and admin commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for _, c := range r.Commands() {
		if !visibleOnly || c.Public() {
			list = append(list, tele.Command{Text: c.Name, Description: c.Description})
		}
	}
	return list
}

// LookupCommand resolves typed text to a registered command by name or alias.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	name := commands.Normalize(text)
	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()
	if ok {
		return name, cmd, true
	}
	for _, c := range r.Commands() {
		if c.Answers(name) {
			return c.Name, c.Command, true
		}
	}
	return "", commands.Command{}, false
}

// RegisterCallback maps a callback key to its handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return fmt.Errorf("register callback %q: invalid", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		logger.Warn(context.Background(), logger.CompTGWire, "register.callback.skip",
			slog.String("status", "skip"),
			slog.String("cb_key", key),
			slog.String("cause", "duplicate"),
		)
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler registered for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys, sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SetCallbackNotFound replaces the handler of unknown callbacks. nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h != nil {
		r.callbackNotFound = h
	}
}

// CallbackNotFound returns the handler of unknown callbacks.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	return r.callbackNotFound
}

// SetTextFallback sets the handler of text that no command or conversation takes.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.textFallback = h
}

// TextFallback returns the text fallback, possibly nil.
func (r *Registry) TextFallback() tele.HandlerFunc {
	return r.textFallback
}

// InitBotCommands publishes the public commands as the chat's command menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	list := reg.ListCommands(true)
	if len(list) == 0 {
		return
	}
	for i := range list {
		list[i].Text = commands.MenuText(list[i].Text)
	}
	if err := bot.SetCommands(list); err != nil {
		logger.Error(context.Background(), logger.CompTGWire, "register.commands",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
