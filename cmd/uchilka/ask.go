package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/assistant"
)

func newAskCmd(opts *globalOptions) *cobra.Command {
	var (
		subject   string
		photoPath string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question through the full pipeline",
		Example: `  uchilka ask --subject biology "Что такое фотосинтез?"
  uchilka ask --subject math --photo task.jpg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
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

			req := assistant.Request{Subject: subject, Text: strings.Join(args, " ")}
			var reply assistant.Reply
			if photoPath != "" {
				image, err := os.ReadFile(photoPath)
				if err != nil {
					return fmt.Errorf("read photo: %w", err)
				}
				reply = a.assistant.HandlePhoto(cmd.Context(), req, image)
			} else {
				reply = a.assistant.HandleText(cmd.Context(), req)
			}

			log.Debug("answered", zap.String("tier", string(reply.Tier)), zap.Bool("from_cache", reply.FromCache))
			out := cmd.OutOrStdout()
			if reply.Tier != "" {
				fmt.Fprintf(out, "[%s%s]\n", reply.Tier, cachedSuffix(reply.FromCache))
			}
			fmt.Fprintln(out, reply.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", assistant.DefaultSubject, "subject code")
	cmd.Flags().StringVar(&photoPath, "photo", "", "path to a photo of the task")
	return cmd
}

func cachedSuffix(fromCache bool) string {
	if fromCache {
		return ", cached"
	}
	return ""
}
