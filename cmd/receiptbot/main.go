package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/receiptbot/core/buildinfo"
)

const (
	configEnvVar      = "CONFIG_PATH"
	defaultConfigPath = "config.yaml"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "receiptbot",
		Short:         "Telegram bot that collects receipt details and renders receipt images",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBot,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to config.yaml (overrides "+configEnvVar+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the bot until interrupted",
			RunE:  runBot,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check configuration, flows, menu and renderer scripts without connecting to Telegram",
			RunE:  runValidate,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "receiptbot %s (%s) %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
			},
		},
	)
	return root
}
