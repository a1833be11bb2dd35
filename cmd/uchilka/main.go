package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "uchilka",
		Short:         "Uchilka, a homework help assistant for Telegram",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML or TOML config file (default: environment only)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading config")

	root.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newClassifyCmd(),
		newCacheCmd(opts),
		newStatsCmd(opts),
		newMCPCmd(opts),
	)
	return root
}
