package mcp

import (
	"fmt"
	"strings"

	"github.com/uchilka-bot/uchilka/pkg/models"
)

// formatOverview formats all-time totals and per-subject counts as text.
func formatOverview(o models.Overview, subjects []models.SubjectCount) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Users:     %d\n", o.TotalUsers)
	fmt.Fprintf(&b, "Questions: %d\n", o.TotalQuestions)
	fmt.Fprintf(&b, "Cached:    %d (%.1f%%)\n", o.CacheHits, o.CacheHitRate*100)
	if len(subjects) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-14s %10s\n", "Subject", "Questions")
	b.WriteString(strings.Repeat("-", 25) + "\n")
	for _, s := range subjects {
		fmt.Fprintf(&b, "%-14s %10d\n", s.Subject, s.Count)
	}
	return b.String()
}

// formatPeriod formats period statistics as text.
func formatPeriod(p models.PeriodStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Since:        %s\n", p.Since.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "New users:    %d\n", p.NewUsers)
	fmt.Fprintf(&b, "Questions:    %d\n", p.Questions)
	fmt.Fprintf(&b, "Active users: %d\n", p.ActiveUsers)
	fmt.Fprintf(&b, "Cache usage:  %.1f%%\n", p.CacheHitRate*100)
	if len(p.TopSubjects) > 0 {
		b.WriteString("Top subjects: ")
		for i, s := range p.TopSubjects {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s (%d)", s.Subject, s.Count)
		}
		b.WriteString("\n")
	}
	if len(p.Daily) > 0 {
		fmt.Fprintf(&b, "\n%-12s %10s\n", "Day", "Questions")
		b.WriteString(strings.Repeat("-", 23) + "\n")
		for _, d := range p.Daily {
			fmt.Fprintf(&b, "%-12s %10d\n", d.Day.Format("2006-01-02"), d.Count)
		}
		fmt.Fprintf(&b, "Average per day: %.1f\n", p.AvgDaily())
	}
	return b.String()
}

// formatTopUsers formats the most active users as a text table.
func formatTopUsers(users []models.UserActivity) string {
	if len(users) == 0 {
		return "No questions recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%4s  %-14s %-24s %10s\n", "#", "User ID", "Username", "Questions")
	b.WriteString(strings.Repeat("-", 56) + "\n")
	for i, u := range users {
		fmt.Fprintf(&b, "%4d  %-14d %-24s %10d\n", i+1, u.UserID, u.Username, u.Questions)
	}
	return b.String()
}

// formatCacheStats formats cache stats and the most reused questions as text.
func formatCacheStats(st models.CacheStats, top []models.CachedQuestion) string {
	most := st.MostCachedSubject
	if most == "" {
		most = "-"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Cache Statistics\n"+
		"  Entries:      %d\n"+
		"  Average hits: %.1f\n"+
		"  Top subject:  %s\n",
		st.Entries, st.AvgHits, most)
	if len(top) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "\n%6s  %-12s %s\n", "Hits", "Subject", "Question")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, q := range top {
		question := []rune(strings.ReplaceAll(q.Question, "\n", " "))
		if len(question) > 48 {
			question = append(question[:48], []rune("...")...)
		}
		fmt.Fprintf(&b, "%6d  %-12s %s\n", q.HitCount, q.Subject, string(question))
	}
	return b.String()
}
