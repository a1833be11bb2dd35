package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uchilka-bot/uchilka/pkg/bot"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, the health endpoint and cache retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateBot(); err != nil {
				return err
			}
			log, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			api, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
			if err != nil {
				return err
			}
			log.Info("authorized on telegram", zap.String("bot", api.Self.UserName))

			b := bot.New(api, cfg, a.assistant,
				bot.WithStats(a.tracker),
				bot.WithCacheAdmin(a.cache),
				bot.WithProbe(a.probe),
				bot.WithLogger(log.Named("bot")),
			)
			health := bot.NewHealthServer(cfg.Listen, a.db.PingContext, log.Named("health"))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return b.Run(ctx) })
			g.Go(func() error { return health.ListenAndServe(ctx) })
			if cfg.Cache.Enabled {
				g.Go(func() error { return a.cache.RunRetention(ctx, cfg.Cache.Retention) })
			}

			err = g.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("stopped")
			return nil
		},
	}
}
