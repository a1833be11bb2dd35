package sqlite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/models"
	"github.com/uchilka-bot/uchilka/pkg/store"
)

// DefaultMaxQuestionLen is the number of runes of the question kept for display.
const DefaultMaxQuestionLen = 500

// timeLayout is fixed-width so stored timestamps order correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Cache is an exact-match answer cache keyed by subject and normalized question.
// Storage failures never surface to callers: Get behaves as a miss and Set as
// a no-op, each with a warning.
type Cache struct {
	db     *sql.DB
	owned  bool
	log    *zap.Logger
	now    func() time.Time
	maxLen int
	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for storage warnings.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMaxQuestionLen sets how many runes of the question are stored.
func WithMaxQuestionLen(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxLen = n
		}
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	subject TEXT NOT NULL,
	question TEXT NOT NULL,
	response TEXT NOT NULL,
	hit_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_created ON cache(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_subject ON cache(subject)`,
}

// New creates a Cache on an existing database handle. The handle is not
// closed by Close.
func New(db *sql.DB, opts ...Option) (*Cache, error) {
	if err := store.Migrate(db, migrations...); err != nil {
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	c := &Cache{
		db:     db,
		log:    zap.NewNop(),
		now:    time.Now,
		maxLen: DefaultMaxQuestionLen,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Open creates a Cache with its own database at dbPath.
func Open(dbPath string, opts ...Option) (*Cache, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	c, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.owned = true
	return c, nil
}

// Normalize lowercases and trims a question before fingerprinting.
func Normalize(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// Fingerprint derives the cache key for a subject and question. Questions
// that differ only in letter case or surrounding whitespace share a key.
func Fingerprint(subject, question string) string {
	sum := xxh3.HashString128(subject + ":" + Normalize(question)).Bytes()
	return hex.EncodeToString(sum[:])
}

// Get returns the cached answer and counts the hit.
func (c *Cache) Get(ctx context.Context, subject, question string) (string, bool) {
	var response string
	err := c.db.QueryRowContext(ctx,
		`UPDATE cache SET hit_count = hit_count + 1 WHERE key = ? RETURNING response`,
		Fingerprint(subject, question),
	).Scan(&response)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn("cache lookup failed, treating as miss",
				zap.String("subject", subject), zap.Error(err))
		}
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return response, true
}

// Set stores an answer. An existing entry gets the new response and a zero
// hit count but keeps its created_at.
func (c *Cache) Set(ctx context.Context, subject, question, response string) {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO cache (key, subject, question, response, hit_count, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   subject = excluded.subject,
		   question = excluded.question,
		   response = excluded.response,
		   hit_count = 0`,
		Fingerprint(subject, question), subject, truncate(question, c.maxLen), response,
		c.stamp(c.now()),
	)
	if err != nil {
		c.log.Warn("cache write failed, dropping entry",
			zap.String("subject", subject), zap.Error(err))
	}
}

// Lookup returns the stored entry without counting a hit.
func (c *Cache) Lookup(ctx context.Context, subject, question string) (models.CacheEntry, bool, error) {
	var e models.CacheEntry
	var created string
	err := c.db.QueryRowContext(ctx,
		`SELECT key, subject, question, response, hit_count, created_at FROM cache WHERE key = ?`,
		Fingerprint(subject, question),
	).Scan(&e.Fingerprint, &e.Subject, &e.Question, &e.Response, &e.HitCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CacheEntry{}, false, nil
	}
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("cache lookup: %w", err)
	}
	e.CreatedAt, err = time.Parse(timeLayout, created)
	if err != nil {
		return models.CacheEntry{}, false, fmt.Errorf("cache lookup: parse created_at: %w", err)
	}
	return e, true, nil
}

// PurgeStale removes entries older than maxAge whose hit count is below
// minHits, returning the number removed. Entries at or above minHits are kept
// regardless of age.
func (c *Cache) PurgeStale(ctx context.Context, maxAge time.Duration, minHits int64) (int64, error) {
	cutoff := c.stamp(c.now().Add(-maxAge))
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM cache WHERE created_at < ? AND hit_count < ?`, cutoff, minHits)
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache`)
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns cache contents and in-process hit/miss counters.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var st models.CacheStats
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(hit_count), 0) FROM cache`,
	).Scan(&st.Entries, &st.AvgHits)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}

	err = c.db.QueryRowContext(ctx,
		`SELECT subject FROM cache GROUP BY subject ORDER BY COUNT(*) DESC, subject LIMIT 1`,
	).Scan(&st.MostCachedSubject)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}

	st.Hits = c.hits.Load()
	st.Misses = c.misses.Load()
	return st, nil
}

// Top returns the most reused entries, highest hit count first.
func (c *Cache) Top(ctx context.Context, limit int) ([]models.CachedQuestion, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT subject, question, hit_count FROM cache
		 WHERE hit_count > 0
		 ORDER BY hit_count DESC, created_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("cache top: %w", err)
	}
	defer rows.Close()

	var out []models.CachedQuestion
	for rows.Next() {
		var q models.CachedQuestion
		if err := rows.Scan(&q.Subject, &q.Question, &q.HitCount); err != nil {
			return nil, fmt.Errorf("cache top: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Close releases the database if the cache opened it.
func (c *Cache) Close() error {
	if c.owned {
		return c.db.Close()
	}
	return nil
}

func (c *Cache) stamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
