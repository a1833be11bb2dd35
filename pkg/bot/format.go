package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/uchilka-bot/uchilka/pkg/models"
)

var medals = []string{"🥇", "🥈", "🥉"}

// formatSubjects lists the subjects a chat can switch to.
func formatSubjects(current string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Текущий предмет: %s\n\nВыберите предмет командой /subject <код>:\n", models.SubjectName(current))
	for _, code := range models.SubjectCodes() {
		fmt.Fprintf(&b, "  %-12s %s\n", code, models.SubjectName(code))
	}
	return b.String()
}

// formatOverview formats all-time totals and subject popularity.
func formatOverview(o models.Overview, subjects []models.SubjectCount) string {
	var b strings.Builder
	b.WriteString("Статистика бота Училка\n\n")
	fmt.Fprintf(&b, "Всего пользователей: %d\n", o.TotalUsers)
	fmt.Fprintf(&b, "Всего вопросов: %d\n", o.TotalQuestions)
	fmt.Fprintf(&b, "Из кеша: %d (%.1f%%)\n", o.CacheHits, o.CacheHitRate*100)
	if len(subjects) > 0 {
		b.WriteString("\nПопулярность предметов:\n")
		for _, s := range subjects {
			fmt.Fprintf(&b, "  %s: %d вопросов\n", models.SubjectName(s.Subject), s.Count)
		}
	}
	return b.String()
}

// formatToday formats statistics for the current day.
func formatToday(p models.PeriodStats) string {
	var b strings.Builder
	b.WriteString("Статистика за сегодня\n\n")
	fmt.Fprintf(&b, "Новых пользователей: %d\n", p.NewUsers)
	fmt.Fprintf(&b, "Вопросов: %d\n", p.Questions)
	fmt.Fprintf(&b, "Активных пользователей: %d\n", p.ActiveUsers)
	fmt.Fprintf(&b, "Использование кеша: %.1f%%\n", p.CacheHitRate*100)
	if len(p.TopSubjects) > 0 {
		b.WriteString("\nТоп предметов сегодня:\n")
		for i, s := range p.TopSubjects {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "  %s: %d\n", models.SubjectName(s.Subject), s.Count)
		}
	}
	return b.String()
}

// formatWeek formats statistics for the last seven days.
func formatWeek(p models.PeriodStats) string {
	var b strings.Builder
	b.WriteString("Статистика за неделю\n\n")
	fmt.Fprintf(&b, "Новых пользователей: %d\n", p.NewUsers)
	fmt.Fprintf(&b, "Вопросов: %d\n", p.Questions)
	fmt.Fprintf(&b, "Активных пользователей: %d\n", p.ActiveUsers)
	fmt.Fprintf(&b, "В среднем: %.1f вопросов/день\n", p.AvgDaily())
	if len(p.Daily) > 0 {
		b.WriteString("\nДинамика по дням:\n")
		for _, d := range p.Daily {
			fmt.Fprintf(&b, "  %s: %d вопросов\n", d.Day.Format("02.01"), d.Count)
		}
	}
	return b.String()
}

// formatTopUsers formats the most active users.
func formatTopUsers(users []models.UserActivity) string {
	if len(users) == 0 {
		return "Пока нет вопросов."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Топ-%d активных пользователей\n\n", len(users))
	for i, u := range users {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		name := u.Username
		if name == "" {
			name = fmt.Sprintf("user_%d", u.UserID)
		}
		fmt.Fprintf(&b, "%s @%s: %d вопросов\n", rank, name, u.Questions)
	}
	return b.String()
}

// formatCacheStats formats cache contents and the most reused questions.
func formatCacheStats(st models.CacheStats, top []models.CachedQuestion) string {
	most := st.MostCachedSubject
	if most == "" {
		most = "N/A"
	} else {
		most = models.SubjectName(most)
	}
	total := st.Hits + st.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(st.Hits) / float64(total) * 100
	}

	var b strings.Builder
	b.WriteString("Статистика кеша\n\n")
	fmt.Fprintf(&b, "Записей в кеше: %d\n", st.Entries)
	fmt.Fprintf(&b, "Самый популярный предмет: %s\n", most)
	fmt.Fprintf(&b, "Средние хиты: %.1f\n", st.AvgHits)
	fmt.Fprintf(&b, "С момента запуска: %d попаданий, %d промахов (%.1f%%)\n", st.Hits, st.Misses, hitRate)
	if len(top) > 0 {
		b.WriteString("\nТоп популярных вопросов:\n")
		for i, q := range top {
			fmt.Fprintf(&b, "%d. %s (%d хитов)\n", i+1, ellipsize(q.Question, 50), q.HitCount)
		}
	}
	return b.String()
}

func ellipsize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func days(d time.Duration) int {
	return int(d / (24 * time.Hour))
}
