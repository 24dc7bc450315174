// Package commands describes the slash commands a registry can route.
package commands

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command is one slash command with its handler and menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands run behind the admin check and stay out of the public menu.
	AdminOnly bool
	Hidden    bool
	// Aliases are extra names, with or without the leading slash.
	Aliases []string
}

// Public reports whether the command belongs in the menu Telegram shows every user.
func (c Command) Public() bool {
	return !c.Hidden && !c.AdminOnly
}

// Answers reports whether the normalized name is one of the command's aliases.
func (c Command) Answers(name string) bool {
	for _, alias := range c.Aliases {
		if Normalize(alias) == name {
			return true
		}
	}
	return false
}

// Normalize maps user input to a registry key. Slash commands lose their
// arguments and "@bot" mention ("/start@receipt_bot now" -> "/start"); plain
// text only gains the slash.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, "/") {
		return "/" + name
	}
	if i := strings.IndexAny(name, " \t\n"); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// MenuText is the name setMyCommands expects: the command without its slash.
func MenuText(name string) string {
	return strings.TrimPrefix(name, "/")
}
