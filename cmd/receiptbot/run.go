package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/receiptbot/core/bootstrap"
	corecmd "github.com/m3rciful/receiptbot/core/cmd"
	coreconfig "github.com/m3rciful/receiptbot/core/config"
	"github.com/m3rciful/receiptbot/internal/bot"
	"github.com/m3rciful/receiptbot/internal/flows"
	"github.com/m3rciful/receiptbot/internal/journal"
	"github.com/m3rciful/receiptbot/internal/navigation"
)

func runBot(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	return corecmd.Run(corecmd.Options{
		ConfigPath:        path,
		ConfigEnvVar:      configEnvVar,
		DefaultConfigPath: defaultConfigPath,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := coreconfig.Load(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: func(c corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg := c.CoreConfig()
			boot, err := bootstrap.Run(bootstrap.Options{
				Config:     cfg,
				Migrations: journal.Migrations,
			})
			if err != nil {
				return nil, err
			}
			app, err := bot.Build(context.Background(), cfg, boot)
			if err != nil {
				_ = boot.Close()
				return nil, err
			}
			return app, nil
		},
	})
}

func runValidate(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if path, err = corecmd.ConfigPath(path, configEnvVar, defaultConfigPath); err != nil {
		return err
	}

	cfg, err := coreconfig.Load(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	catalog, err := flows.Load(cfg.Flows.CatalogFile)
	if err != nil {
		return err
	}
	graph, err := navigation.Load(cfg.Flows.MenuFile)
	if err != nil {
		return err
	}
	if err := graph.Validate(catalog); err != nil {
		return err
	}
	gw, err := bot.NewRenderer(cfg.Renderer)
	if err != nil {
		return err
	}
	if err := gw.CheckScripts(catalog); err != nil {
		return fmt.Errorf("renderer: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config: %s\n", path)
	fmt.Fprintf(out, "flows: %d, menu callbacks: %d\n", catalog.Len(), len(graph.CallbackIDs()))
	fmt.Fprintf(out, "session backend: %s, journal: %s\n", cfg.Session.Backend, cfg.Journal.Driver)
	fmt.Fprintln(out, "ok")
	return nil
}
