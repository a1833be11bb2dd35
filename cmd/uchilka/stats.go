package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/uchilka-bot/uchilka/pkg/models"
)

func newStatsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStorage(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			o, err := a.tracker.Overview(cmd.Context())
			if err != nil {
				return err
			}
			subjects, err := a.tracker.SubjectStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Users:     %d\nQuestions: %d\nCached:    %d (%.1f%%)\n\n",
				o.TotalUsers, o.TotalQuestions, o.CacheHits, o.CacheHitRate*100)
			return printSubjects(subjects)
		},
	}

	todayCmd := &cobra.Command{
		Use:   "today",
		Short: "Show statistics since the start of the day (UTC)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStorage(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.tracker.Today(cmd.Context())
			if err != nil {
				return err
			}
			printPeriod(p)
			return printSubjects(p.TopSubjects)
		},
	}

	weekCmd := &cobra.Command{
		Use:   "week",
		Short: "Show statistics for the last seven days",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStorage(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.tracker.Week(cmd.Context())
			if err != nil {
				return err
			}
			printPeriod(p)
			fmt.Printf("Per day:      %.1f\n\n", p.AvgDaily())

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tQUESTIONS")
			for _, d := range p.Daily {
				fmt.Fprintf(w, "%s\t%d\n", d.Day.Format("2006-01-02"), d.Count)
			}
			return w.Flush()
		},
	}

	var limit int
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "List the most active users",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openStorage(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := a.tracker.TopUsers(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Println("No questions recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER ID\tUSERNAME\tQUESTIONS")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%d\n", u.UserID, u.Username, u.Questions)
			}
			return w.Flush()
		},
	}
	usersCmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of users to show")

	cmd.AddCommand(todayCmd, weekCmd, usersCmd)
	return cmd
}

func printPeriod(p models.PeriodStats) {
	fmt.Printf("Since:        %s\n", p.Since.Format("2006-01-02 15:04 MST"))
	fmt.Printf("New users:    %d\n", p.NewUsers)
	fmt.Printf("Questions:    %d\n", p.Questions)
	fmt.Printf("Active users: %d\n", p.ActiveUsers)
	fmt.Printf("Cache usage:  %.1f%%\n", p.CacheHitRate*100)
}

func printSubjects(subjects []models.SubjectCount) error {
	if len(subjects) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SUBJECT\tQUESTIONS")
	for _, s := range subjects {
		fmt.Fprintf(w, "%s\t%d\n", s.Subject, s.Count)
	}
	return w.Flush()
}
