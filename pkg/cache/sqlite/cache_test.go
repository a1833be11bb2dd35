package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/uchilka-bot/uchilka/pkg/config"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := Open(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("math", "  Сколько будет 2+2? ")
	b := Fingerprint("math", "сколько будет 2+2?")
	c := Fingerprint("physics", "сколько будет 2+2?")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "subject is part of the key")
	assert.Len(t, a, 32)
}

func TestFingerprintNormalizationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		subject := rapid.SampledFrom([]string{"general", "math", "physics"}).Draw(t, "subject")
		q := rapid.StringMatching(`[a-zA-Zа-яА-Я0-9 ?]{1,40}`).Draw(t, "q")
		pad := rapid.StringMatching(`[ \t\n]{0,3}`).Draw(t, "pad")

		variant := pad + strings.ToUpper(q) + pad
		if Fingerprint(subject, variant) != Fingerprint(subject, strings.ToLower(q)) {
			t.Fatalf("fingerprints differ for %q and %q", variant, q)
		}
	})
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	_, ok := c.Get(ctx, "biology", "Что такое фотосинтез?")
	assert.False(t, ok)

	c.Set(ctx, "biology", "Что такое фотосинтез?", "Процесс образования органических веществ")

	got, ok := c.Get(ctx, "biology", "  что такое ФОТОСИНТЕЗ?")
	require.True(t, ok)
	assert.Equal(t, "Процесс образования органических веществ", got)

	e, found, err := c.Lookup(ctx, "biology", "Что такое фотосинтез?")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), e.HitCount)
	assert.Equal(t, "Что такое фотосинтез?", e.Question)

	_, ok = c.Get(ctx, "chemistry", "Что такое фотосинтез?")
	assert.False(t, ok, "different subject misses")
}

func TestGetIncrementsHitCount(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	c.Set(ctx, "math", "2+2", "4")

	for range 5 {
		_, ok := c.Get(ctx, "math", "2+2")
		require.True(t, ok)
	}

	e, _, err := c.Lookup(ctx, "math", "2+2")
	require.NoError(t, err)
	assert.Equal(t, int64(5), e.HitCount)
}

func TestSetResetsHitCount(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	c.Set(ctx, "math", "2+2", "4")
	c.Get(ctx, "math", "2+2")
	c.Set(ctx, "math", "2+2", "четыре")

	e, _, err := c.Lookup(ctx, "math", "2+2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), e.HitCount)
	assert.Equal(t, "четыре", e.Response)
}

func TestSetKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(t, WithClock(clock.Now))

	c.Set(ctx, "math", "2+2", "4")
	first, _, err := c.Lookup(ctx, "math", "2+2")
	require.NoError(t, err)

	clock.Advance(31 * 24 * time.Hour)
	c.Set(ctx, "math", "2+2", "четыре")

	e, _, err := c.Lookup(ctx, "math", "2+2")
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(e.CreatedAt), "re-set keeps the original created_at")
	assert.Equal(t, "четыре", e.Response)

	removed, err := c.PurgeStale(ctx, 30*24*time.Hour, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed, "re-set does not restart the retention clock")
}

func TestSetTruncatesQuestion(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	long := strings.Repeat("я", 800)
	c.Set(ctx, "general", long, "ok")

	e, found, err := c.Lookup(ctx, "general", long)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, DefaultMaxQuestionLen, utf8.RuneCountInString(e.Question))

	_, ok := c.Get(ctx, "general", long)
	assert.True(t, ok, "the key uses the full question")
}

func TestPurgeStale(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(t, WithClock(clock.Now))

	c.Set(ctx, "math", "old unused", "a")
	c.Set(ctx, "math", "old used", "b")
	c.Get(ctx, "math", "old used")

	clock.Advance(31 * 24 * time.Hour)
	c.Set(ctx, "math", "fresh", "c")

	removed, err := c.PurgeStale(ctx, 30*24*time.Hour, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, found, _ := c.Lookup(ctx, "math", "old unused")
	assert.False(t, found)
	_, found, _ = c.Lookup(ctx, "math", "old used")
	assert.True(t, found, "entries with hits survive regardless of age")
	_, found, _ = c.Lookup(ctx, "math", "fresh")
	assert.True(t, found)

	removed, err = c.PurgeStale(ctx, 30*24*time.Hour, 1)
	require.NoError(t, err)
	assert.Zero(t, removed, "purge is idempotent")
}

func TestPurgeMinHits(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache(t, WithClock(clock.Now))

	c.Set(ctx, "math", "q", "a")
	c.Get(ctx, "math", "q")
	clock.Advance(48 * time.Hour)

	removed, err := c.PurgeStale(ctx, time.Hour, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestStorageErrorsDegrade(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	c.Set(ctx, "math", "q", "a")
	require.NoError(t, c.Close())

	_, ok := c.Get(ctx, "math", "q")
	assert.False(t, ok, "closed db behaves as a miss")
	assert.NotPanics(t, func() { c.Set(ctx, "math", "q2", "a") })
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Entries)
	assert.Empty(t, st.MostCachedSubject)

	c.Set(ctx, "math", "a", "1")
	c.Set(ctx, "math", "b", "2")
	c.Set(ctx, "physics", "c", "3")
	c.Get(ctx, "math", "a")
	c.Get(ctx, "math", "a")
	c.Get(ctx, "math", "zzz")

	st, err = c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Entries)
	assert.InDelta(t, 2.0/3.0, st.AvgHits, 1e-9)
	assert.Equal(t, "math", st.MostCachedSubject)
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
}

func TestTop(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	c.Set(ctx, "math", "a", "1")
	c.Set(ctx, "math", "b", "2")
	c.Set(ctx, "math", "never", "3")
	for range 3 {
		c.Get(ctx, "math", "b")
	}
	c.Get(ctx, "math", "a")

	top, err := c.Top(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].Question)
	assert.Equal(t, int64(3), top[0].HitCount)
	assert.Equal(t, "a", top[1].Question)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	c.Set(ctx, "math", "a", "1")
	c.Set(ctx, "math", "b", "2")

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Entries)
}

func TestRunRetention(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache(t, WithClock(clock.Now))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Set(ctx, "math", "stale", "a")
	clock.Advance(40 * 24 * time.Hour)

	done := make(chan error, 1)
	go func() {
		done <- c.RunRetention(ctx, config.RetentionConfig{
			MaxAge:   30 * 24 * time.Hour,
			Interval: time.Hour,
			MinHits:  1,
		})
	}()

	assert.Eventually(t, func() bool {
		_, found, err := c.Lookup(context.Background(), "math", "stale")
		return err == nil && !found
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("retention loop did not stop")
	}
}
