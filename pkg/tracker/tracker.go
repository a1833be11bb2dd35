package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/uchilka-bot/uchilka/pkg/models"
	"github.com/uchilka-bot/uchilka/pkg/store"
)

// Tracker records answered questions and reports usage statistics.
type Tracker interface {
	// Record stores a question log entry and marks its user as seen.
	Record(ctx context.Context, q models.QuestionLog) error
	// TouchUser registers a user or refreshes their username.
	TouchUser(ctx context.Context, userID int64, username string) error
	// Overview returns all-time totals.
	Overview(ctx context.Context) (models.Overview, error)
	// Today returns statistics since the start of the current UTC day.
	Today(ctx context.Context) (models.PeriodStats, error)
	// Week returns statistics for the last seven days with a daily breakdown.
	Week(ctx context.Context) (models.PeriodStats, error)
	// TopUsers returns the users who asked the most questions.
	TopUsers(ctx context.Context, limit int) ([]models.UserActivity, error)
	// SubjectStats returns all-time question counts per subject.
	SubjectStats(ctx context.Context) ([]models.SubjectCount, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db    *sql.DB
	owned bool
	now   func() time.Time
}

// timeLayout is fixed-width so stored timestamps order correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const topSubjects = 5

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	last_active TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS questions_log (
	id TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	subject TEXT NOT NULL,
	question TEXT NOT NULL,
	tier TEXT NOT NULL DEFAULT '',
	from_cache INTEGER NOT NULL DEFAULT 0,
	source TEXT NOT NULL DEFAULT 'text',
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_time ON questions_log(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_user ON questions_log(user_id)`,
}

// Option configures a SQLiteTracker.
type Option func(*SQLiteTracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *SQLiteTracker) { t.now = now }
}

// New creates a SQLiteTracker on an existing database handle and runs
// auto-migration. The handle is not closed by Close.
func New(db *sql.DB, opts ...Option) (*SQLiteTracker, error) {
	if err := store.Migrate(db, migrations...); err != nil {
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}
	t := &SQLiteTracker{db: db, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Open creates a SQLiteTracker with its own database at dbPath.
func Open(dbPath string, opts ...Option) (*SQLiteTracker, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}
	t, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	t.owned = true
	return t, nil
}

// Record stores a question log entry. A missing ID or timestamp is filled in.
func (t *SQLiteTracker) Record(ctx context.Context, q models.QuestionLog) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = t.now()
	}
	if q.Source == "" {
		q.Source = models.SourceText
	}

	if err := t.upsertUser(ctx, q.UserID, q.Username, q.CreatedAt); err != nil {
		return err
	}

	_, err := t.db.ExecContext(ctx,
		`INSERT INTO questions_log (id, user_id, subject, question, tier, from_cache, source, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.UserID, q.Subject, q.Question, string(q.Tier), q.FromCache, string(q.Source), q.LatencyMs,
		stamp(q.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record question: %w", err)
	}
	return nil
}

// TouchUser registers a user or refreshes their username and activity time.
func (t *SQLiteTracker) TouchUser(ctx context.Context, userID int64, username string) error {
	return t.upsertUser(ctx, userID, username, t.now())
}

func (t *SQLiteTracker) upsertUser(ctx context.Context, userID int64, username string, at time.Time) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO users (user_id, username, created_at, last_active) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
			last_active = excluded.last_active`,
		userID, username, stamp(at), stamp(at),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// Overview returns all-time totals.
func (t *SQLiteTracker) Overview(ctx context.Context) (models.Overview, error) {
	var o models.Overview
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&o.TotalUsers); err != nil {
		return models.Overview{}, fmt.Errorf("overview: %w", err)
	}
	err := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(from_cache), 0) FROM questions_log`,
	).Scan(&o.TotalQuestions, &o.CacheHits)
	if err != nil {
		return models.Overview{}, fmt.Errorf("overview: %w", err)
	}
	o.CacheHitRate = ratio(o.CacheHits, o.TotalQuestions)
	return o, nil
}

// Today returns statistics since the start of the current UTC day.
func (t *SQLiteTracker) Today(ctx context.Context) (models.PeriodStats, error) {
	since := startOfDay(t.now())
	p, err := t.period(ctx, since)
	if err != nil {
		return models.PeriodStats{}, fmt.Errorf("stats today: %w", err)
	}
	return p, nil
}

// Week returns statistics for the last seven days. Daily holds seven UTC
// days, oldest first, ending today.
func (t *SQLiteTracker) Week(ctx context.Context) (models.PeriodStats, error) {
	now := t.now()
	p, err := t.period(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return models.PeriodStats{}, fmt.Errorf("stats week: %w", err)
	}
	p.Daily, err = t.daily(ctx, startOfDay(now), 7)
	if err != nil {
		return models.PeriodStats{}, fmt.Errorf("stats week: %w", err)
	}
	return p, nil
}

func (t *SQLiteTracker) period(ctx context.Context, since time.Time) (models.PeriodStats, error) {
	p := models.PeriodStats{Since: since.UTC()}
	s := stamp(since)

	if err := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE created_at >= ?`, s,
	).Scan(&p.NewUsers); err != nil {
		return p, err
	}
	if err := t.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT user_id), COALESCE(SUM(from_cache), 0)
		 FROM questions_log WHERE created_at >= ?`, s,
	).Scan(&p.Questions, &p.ActiveUsers, &p.CacheHits); err != nil {
		return p, err
	}
	p.CacheHitRate = ratio(p.CacheHits, p.Questions)

	subjects, err := t.subjects(ctx, s, topSubjects)
	if err != nil {
		return p, err
	}
	p.TopSubjects = subjects
	return p, nil
}

// daily counts questions per UTC day for the n days ending on today.
func (t *SQLiteTracker) daily(ctx context.Context, today time.Time, n int) ([]models.DailyCount, error) {
	first := today.AddDate(0, 0, -(n - 1))
	rows, err := t.db.QueryContext(ctx,
		`SELECT created_at FROM questions_log WHERE created_at >= ?`, stamp(first))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make([]models.DailyCount, n)
	for i := range buckets {
		buckets[i].Day = first.AddDate(0, 0, i)
	}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		at, err := time.Parse(timeLayout, raw)
		if err != nil {
			continue
		}
		i := int(startOfDay(at).Sub(first) / (24 * time.Hour))
		if i >= 0 && i < n {
			buckets[i].Count++
		}
	}
	return buckets, rows.Err()
}

// TopUsers returns the users who asked the most questions.
func (t *SQLiteTracker) TopUsers(ctx context.Context, limit int) ([]models.UserActivity, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT q.user_id, COALESCE(u.username, ''), COUNT(*) AS n
		 FROM questions_log q LEFT JOIN users u ON u.user_id = q.user_id
		 GROUP BY q.user_id
		 ORDER BY n DESC, q.user_id
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	defer rows.Close()

	var out []models.UserActivity
	for rows.Next() {
		var u models.UserActivity
		if err := rows.Scan(&u.UserID, &u.Username, &u.Questions); err != nil {
			return nil, fmt.Errorf("scan top users: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SubjectStats returns all-time question counts per subject, most asked first.
func (t *SQLiteTracker) SubjectStats(ctx context.Context) ([]models.SubjectCount, error) {
	out, err := t.subjects(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("subject stats: %w", err)
	}
	return out, nil
}

func (t *SQLiteTracker) subjects(ctx context.Context, since string, limit int) ([]models.SubjectCount, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT subject, COUNT(*) FROM questions_log
		 WHERE created_at >= ? AND subject != ''
		 GROUP BY subject`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SubjectCount
	for rows.Next() {
		var s models.SubjectCount
		if err := rows.Scan(&s.Subject, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Subject < out[j].Subject
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close releases the database if the tracker opened it.
func (t *SQLiteTracker) Close() error {
	if t.owned {
		return t.db.Close()
	}
	return nil
}

func stamp(at time.Time) string {
	return at.UTC().Format(timeLayout)
}

func startOfDay(at time.Time) time.Time {
	at = at.UTC()
	return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
}

func ratio(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
