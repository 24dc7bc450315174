package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"/start":                   "/start",
		"  /Start@Receipt_Bot now ": "/start",
		"/cancel\nplease":          "/cancel",
		"menu":                     "/menu",
		"Мой баланс":               "/Мой баланс",
		"":                         "/",
	}
	for in, want := range cases {
		require.Equal(t, want, Normalize(in), in)
	}
}

func TestCommandMetadata(t *testing.T) {
	start := Command{Description: "Open the menu", Aliases: []string{"menu", "/home"}}
	require.True(t, start.Public())
	require.True(t, start.Answers("/menu"))
	require.True(t, start.Answers("/home"))
	require.False(t, start.Answers("/start"))

	require.False(t, Command{AdminOnly: true}.Public())
	require.False(t, Command{Hidden: true}.Public())
	require.Equal(t, "status", MenuText("/status"))
}
