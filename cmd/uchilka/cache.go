package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the answer cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStorage(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			most := st.MostCachedSubject
			if most == "" {
				most = "-"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entries:      %d\nAverage hits: %.1f\nTop subject:  %s\n",
				st.Entries, st.AvgHits, most)
			return nil
		},
	}

	var limit int
	topCmd := &cobra.Command{
		Use:   "top",
		Short: "List the most reused questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStorage(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			top, err := a.cache.Top(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(top) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cache hits yet.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "HITS\tSUBJECT\tQUESTION")
			for _, q := range top {
				fmt.Fprintf(w, "%d\t%s\t%s\n", q.HitCount, q.Subject, oneLine(q.Question, 60))
			}
			return w.Flush()
		},
	}
	topCmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of questions to show")

	var (
		maxAge  time.Duration
		minHits int64
		all     bool
	)
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove stale cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStorage(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if all {
				n, err := a.cache.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed all %d entries.\n", n)
				return nil
			}

			ret := a.cfg.Cache.Retention
			if cmd.Flags().Changed("max-age") {
				ret.MaxAge = maxAge
			}
			if cmd.Flags().Changed("min-hits") {
				ret.MinHits = minHits
			}
			n, err := a.cache.PurgeStale(cmd.Context(), ret.MaxAge, ret.MinHits)
			if err != nil {
				return err
			}
			a.log.Info("cache purged", zap.Int64("removed", n), zap.Duration("max_age", ret.MaxAge))
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries older than %s with fewer than %d hits.\n",
				n, ret.MaxAge, ret.MinHits)
			return nil
		},
	}
	purgeCmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "remove entries older than this")
	purgeCmd.Flags().Int64Var(&minHits, "min-hits", 1, "keep entries with at least this many hits")
	purgeCmd.Flags().BoolVar(&all, "all", false, "remove every entry")

	cmd.AddCommand(statsCmd, topCmd, purgeCmd)
	return cmd
}

// openStorage opens only the database, without provider credentials.
func openStorage(opts *globalOptions) (*app, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	return newStorage(cfg, log)
}

func oneLine(s string, n int) string {
	r := []rune(s)
	for i, c := range r {
		if c == '\n' || c == '\r' || c == '\t' {
			r[i] = ' '
		}
	}
	if len(r) > n {
		return string(r[:n]) + "..."
	}
	return string(r)
}
