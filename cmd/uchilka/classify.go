package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uchilka-bot/uchilka/pkg/classifier"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Show which model tier a question would be routed to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := classifier.Decide(strings.Join(args, " "))
			fmt.Fprintf(cmd.OutOrStdout(), "%s (rule: %s)\n", d.Tier, d.Rule)
			return nil
		},
	}
}
