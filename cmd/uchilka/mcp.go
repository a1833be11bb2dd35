package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/config"
	"github.com/uchilka-bot/uchilka/pkg/mcp"
)

func newMCPCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve usage statistics as MCP tools over stdio",
		Long: "Serve usage statistics and cache reports as Model Context Protocol tools over stdin/stdout.\n" +
			"The ask tool is enabled when provider API keys are configured.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var a *app
			switch err := cfg.Validate(); {
			case err == nil:
				a, err = newApp(cfg, log)
				if err != nil {
					return err
				}
			case errors.Is(err, config.ErrNoAPIKeys):
				log.Info("no provider keys, ask tool disabled")
				a, err = newStorage(cfg, log)
				if err != nil {
					return err
				}
			default:
				return err
			}
			defer a.Close()

			srvOpts := []mcp.Option{mcp.WithLogger(log.Named("mcp"))}
			if a.assistant != nil {
				srvOpts = append(srvOpts, mcp.WithAsker(a.assistant))
			}
			var cache mcp.CacheStatter
			if cfg.Cache.Enabled {
				cache = a.cache
			}
			srv := mcp.New(a.tracker, cache, version, srvOpts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("mcp server started", zap.String("db", cfg.DBPath))
			if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
