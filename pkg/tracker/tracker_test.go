package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/uchilka-bot/uchilka/pkg/models"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func newTestTracker(t *testing.T, now time.Time) (*SQLiteTracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: now}
	dbPath := filepath.Join(t.TempDir(), "test.db")
	tr, err := Open(dbPath, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr, clock
}

var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func record(t *testing.T, tr *SQLiteTracker, q models.QuestionLog) {
	t.Helper()
	if err := tr.Record(context.Background(), q); err != nil {
		t.Fatal(err)
	}
}

func TestRecordAndOverview(t *testing.T) {
	tr, _ := newTestTracker(t, noon)
	ctx := context.Background()

	record(t, tr, models.QuestionLog{UserID: 1, Username: "masha", Subject: "math", Question: "2+2", Tier: models.TierFast})
	record(t, tr, models.QuestionLog{UserID: 1, Subject: "math", Question: "2+2", FromCache: true})
	record(t, tr, models.QuestionLog{UserID: 2, Subject: "physics", Question: "F=ma?", Source: models.SourcePhoto})

	o, err := tr.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if o.TotalUsers != 2 {
		t.Errorf("expected 2 users, got %d", o.TotalUsers)
	}
	if o.TotalQuestions != 3 {
		t.Errorf("expected 3 questions, got %d", o.TotalQuestions)
	}
	if o.CacheHits != 1 {
		t.Errorf("expected 1 cache hit, got %d", o.CacheHits)
	}
	if o.CacheHitRate < 0.33 || o.CacheHitRate > 0.34 {
		t.Errorf("expected hit rate ~0.333, got %f", o.CacheHitRate)
	}
}

func TestRecordKeepsUsername(t *testing.T) {
	tr, _ := newTestTracker(t, noon)
	ctx := context.Background()

	record(t, tr, models.QuestionLog{UserID: 7, Username: "petya", Subject: "math", Question: "q"})
	record(t, tr, models.QuestionLog{UserID: 7, Subject: "math", Question: "q2"})

	top, err := tr.TopUsers(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Username != "petya" || top[0].Questions != 2 {
		t.Errorf("unexpected top users: %+v", top)
	}
}

func TestToday(t *testing.T) {
	tr, clock := newTestTracker(t, noon)
	ctx := context.Background()

	record(t, tr, models.QuestionLog{UserID: 1, Subject: "math", Question: "a", CreatedAt: noon.Add(-24 * time.Hour)})
	record(t, tr, models.QuestionLog{UserID: 1, Subject: "math", Question: "b", CreatedAt: noon.Add(-time.Hour)})
	record(t, tr, models.QuestionLog{UserID: 2, Subject: "history", Question: "c", FromCache: true})
	record(t, tr, models.QuestionLog{UserID: 2, Subject: "math", Question: "d"})
	clock.t = noon.Add(time.Minute)

	p, err := tr.Today(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Questions != 3 {
		t.Errorf("expected 3 questions today, got %d", p.Questions)
	}
	if p.ActiveUsers != 2 {
		t.Errorf("expected 2 active users, got %d", p.ActiveUsers)
	}
	if p.NewUsers != 1 {
		t.Errorf("expected 1 new user, got %d", p.NewUsers)
	}
	if p.CacheHits != 1 {
		t.Errorf("expected 1 cache hit, got %d", p.CacheHits)
	}
	if len(p.TopSubjects) != 2 || p.TopSubjects[0].Subject != "math" || p.TopSubjects[0].Count != 2 {
		t.Errorf("unexpected top subjects: %+v", p.TopSubjects)
	}
	if !p.Since.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected start of day, got %v", p.Since)
	}
}

func TestWeekDailyBreakdown(t *testing.T) {
	tr, _ := newTestTracker(t, noon)
	ctx := context.Background()

	record(t, tr, models.QuestionLog{UserID: 1, Subject: "math", Question: "today 1"})
	record(t, tr, models.QuestionLog{UserID: 1, Subject: "math", Question: "today 2"})
	record(t, tr, models.QuestionLog{UserID: 2, Subject: "math", Question: "yesterday", CreatedAt: noon.AddDate(0, 0, -1)})
	record(t, tr, models.QuestionLog{UserID: 3, Subject: "math", Question: "six days", CreatedAt: noon.AddDate(0, 0, -6)})
	record(t, tr, models.QuestionLog{UserID: 4, Subject: "math", Question: "too old", CreatedAt: noon.AddDate(0, 0, -10)})

	p, err := tr.Week(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Questions != 4 {
		t.Errorf("expected 4 questions in the week, got %d", p.Questions)
	}
	if len(p.Daily) != 7 {
		t.Fatalf("expected 7 days, got %d", len(p.Daily))
	}
	want := []int64{1, 0, 0, 0, 0, 1, 2}
	for i, d := range p.Daily {
		if d.Count != want[i] {
			t.Errorf("day %d (%s): expected %d, got %d", i, d.Day.Format("02.01"), want[i], d.Count)
		}
	}
	if !p.Daily[6].Day.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected last bucket to be today, got %v", p.Daily[6].Day)
	}
	if avg := p.AvgDaily(); avg < 0.57 || avg > 0.58 {
		t.Errorf("expected avg ~0.571, got %f", avg)
	}
}

func TestTopUsersOrder(t *testing.T) {
	tr, _ := newTestTracker(t, noon)
	ctx := context.Background()

	for range 3 {
		record(t, tr, models.QuestionLog{UserID: 20, Username: "b", Subject: "math", Question: "q"})
	}
	record(t, tr, models.QuestionLog{UserID: 10, Username: "a", Subject: "math", Question: "q"})

	top, err := tr.TopUsers(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].UserID != 20 {
		t.Errorf("expected user 20 first, got %+v", top)
	}
}

func TestSubjectStats(t *testing.T) {
	tr, _ := newTestTracker(t, noon)
	ctx := context.Background()

	subjects := []string{"math", "math", "math", "english", "english", "biology"}
	for _, s := range subjects {
		record(t, tr, models.QuestionLog{UserID: 1, Subject: s, Question: "q"})
	}

	stats, err := tr.SubjectStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 3 {
		t.Fatalf("expected 3 subjects, got %d", len(stats))
	}
	if stats[0].Subject != "math" || stats[1].Subject != "english" || stats[2].Subject != "biology" {
		t.Errorf("unexpected order: %+v", stats)
	}
}

func TestTouchUser(t *testing.T) {
	tr, _ := newTestTracker(t, noon)
	ctx := context.Background()

	if err := tr.TouchUser(ctx, 5, "vasya"); err != nil {
		t.Fatal(err)
	}
	if err := tr.TouchUser(ctx, 5, ""); err != nil {
		t.Fatal(err)
	}
	o, err := tr.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if o.TotalUsers != 1 || o.TotalQuestions != 0 {
		t.Errorf("unexpected overview: %+v", o)
	}
}

func TestEmptyStats(t *testing.T) {
	tr, _ := newTestTracker(t, noon)
	ctx := context.Background()

	o, err := tr.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if o.CacheHitRate != 0 {
		t.Errorf("expected zero hit rate, got %f", o.CacheHitRate)
	}
	p, err := tr.Week(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Questions != 0 || len(p.Daily) != 7 {
		t.Errorf("unexpected empty week: %+v", p)
	}
}
