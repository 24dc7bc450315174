package telegram

import (
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/receiptbot/core/telegram/commands"
)

func commandsFixture(h tele.HandlerFunc, desc string, admin bool) commands.Command {
	return commands.Command{Handler: h, Description: desc, AdminOnly: admin}
}

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	noop := func(tele.Context) error { return nil }
	require.NoError(t, reg.RegisterCommand("/start", commandsFixture(noop, "Open the menu", false)))
	require.NoError(t, reg.RegisterCommand("/status", commandsFixture(noop, "Show status", true)))
	require.ErrorContains(t, reg.RegisterCommand("cancel", commandsFixture(noop, "Cancel", false)), "no_slash_prefix")
	require.ErrorContains(t, reg.RegisterCommand("/start", commandsFixture(noop, "Duplicate", false)), "duplicate")
	require.ErrorContains(t, reg.RegisterCommand("/empty", commandsFixture(noop, "", false)), "invalid")

	visible := reg.ListCommands(true)
	require.Len(t, visible, 1)
	require.Equal(t, "/start", visible[0].Text)
	require.Len(t, reg.ListCommands(false), 2)

	key, _, ok := reg.LookupCommand("status")
	require.True(t, ok)
	require.Equal(t, "/status", key)
	key, _, ok = reg.LookupCommand("/START@receipt_bot")
	require.True(t, ok)
	require.Equal(t, "/start", key)

	require.NoError(t, reg.RegisterCommand("/help", commands.Command{Handler: noop, Description: "Help", Aliases: []string{"info"}}))
	var names []string
	for _, c := range reg.Commands() {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"/help", "/start", "/status"}, names)
	key, _, ok = reg.LookupCommand("/info")
	require.True(t, ok)
	require.Equal(t, "/help", key)
	_, _, ok = reg.LookupCommand("Мой баланс")
	require.False(t, ok)

	require.NoError(t, reg.RegisterCallback("sber_main", noop))
	require.Error(t, reg.RegisterCallback("sber_main", noop))
	require.Error(t, reg.RegisterCallback("", noop))
	require.Equal(t, []string{"sber_main"}, reg.ListCallbacks())
}
