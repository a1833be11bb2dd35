package vision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uchilka-bot/uchilka/pkg/config"
	"github.com/uchilka-bot/uchilka/pkg/keypool"
	"github.com/uchilka-bot/uchilka/pkg/models"
	"github.com/uchilka-bot/uchilka/pkg/provider"
)

type fakeDescriber struct {
	mu    sync.Mutex
	reply string
	err   error
	delay time.Duration
	calls int
	keys  []string
	reqs  []provider.ImageRequest
}

func (f *fakeDescriber) Describe(ctx context.Context, key string, req provider.ImageRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.keys = append(f.keys, key)
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.reply, f.err
}

func (f *fakeDescriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testVisionConfig() config.VisionConfig {
	cfg := config.Default().Vision
	cfg.MaxImageBytes = 1024
	cfg.GateTimeout = 50 * time.Millisecond
	cfg.OCRTimeout = 50 * time.Millisecond
	return cfg
}

func testPool(t *testing.T) *keypool.Pool {
	t.Helper()
	p, err := keypool.New([]string{"k1", "k2"})
	require.NoError(t, err)
	return p
}

var photo = []byte("\xff\xd8\xff fake jpeg")

func TestGateOversizedMakesNoCall(t *testing.T) {
	d := &fakeDescriber{reply: `{"is_educational": true}`}
	g := NewGate(testVisionConfig(), testPool(t), d)

	ok, msg := g.Check(context.Background(), make([]byte, 1025))
	assert.False(t, ok)
	assert.Equal(t, MsgTooLarge, msg)
	assert.Zero(t, d.Calls())
}

func TestGateAtLimitIsChecked(t *testing.T) {
	d := &fakeDescriber{reply: `{"is_educational": true, "content_type": "homework"}`}
	g := NewGate(testVisionConfig(), testPool(t), d)

	ok, msg := g.Check(context.Background(), make([]byte, 1024))
	assert.True(t, ok)
	assert.Empty(t, msg)
	assert.Equal(t, 1, d.Calls())
}

func TestGateRequest(t *testing.T) {
	d := &fakeDescriber{reply: `{"is_educational": true}`}
	g := NewGate(testVisionConfig(), testPool(t), d)
	g.Check(context.Background(), photo)

	require.Len(t, d.reqs, 1)
	req := d.reqs[0]
	assert.Equal(t, "llama-3.2-90b-vision-preview", req.Model)
	assert.Equal(t, 0.2, req.Temperature)
	assert.Equal(t, 150, req.MaxTokens)
	assert.Equal(t, photo, req.Image)
	assert.Contains(t, req.Prompt, "is_educational")
}

func TestGateRejections(t *testing.T) {
	tests := []struct {
		reply string
		want  string
	}{
		{`{"is_educational": false, "content_type": "inappropriate"}`, MsgInappropriate},
		{`{"is_educational": false, "content_type": "unclear"}`, MsgUnclear},
		{`{"is_educational": false, "content_type": "other"}`, MsgOther},
		{`{"is_educational": false, "content_type": "selfie"}`, MsgGeneric},
		{`{"is_educational": false, "content_type": "homework"}`, MsgGeneric},
		{`{"is_educational": false}`, MsgUnclear},
		{`{"content_type": "other"}`, MsgOther},
		{"```json\n{\"is_educational\": false, \"content_type\": \"Other\"}\n```", MsgOther},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			g := NewGate(testVisionConfig(), testPool(t), &fakeDescriber{reply: tt.reply})
			ok, msg := g.Check(context.Background(), photo)
			assert.False(t, ok)
			assert.Equal(t, tt.want, msg)
		})
	}
}

func TestGateBenefitOfTheDoubt(t *testing.T) {
	tests := []struct {
		name string
		d    *fakeDescriber
	}{
		{"error", &fakeDescriber{err: &provider.Error{Op: "describe", Status: 500, Err: provider.ErrUnavailable}}},
		{"rate limited", &fakeDescriber{err: &provider.Error{Op: "describe", Status: 429, Err: provider.ErrRateLimited}}},
		{"unparseable", &fakeDescriber{reply: "I think this is a textbook page."}},
		{"broken json", &fakeDescriber{reply: `{"is_educational": fal`}},
		{"timeout", &fakeDescriber{reply: `{"is_educational": false, "content_type": "other"}`, delay: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(testVisionConfig(), testPool(t), tt.d)
			start := time.Now()
			ok, msg := g.Check(context.Background(), photo)
			assert.True(t, ok)
			assert.Empty(t, msg)
			assert.Less(t, time.Since(start), 500*time.Millisecond)
		})
	}
}

func TestGateRotatesKeys(t *testing.T) {
	d := &fakeDescriber{reply: `{"is_educational": true}`}
	g := NewGate(testVisionConfig(), testPool(t), d)
	g.Check(context.Background(), photo)
	g.Check(context.Background(), photo)
	assert.Equal(t, []string{"k1", "k2"}, d.keys)
}

func TestParseVerdict(t *testing.T) {
	v, ok := ParseVerdict(`Sure! {"is_educational": true, "content_type": "notes"} Hope this helps.`)
	require.True(t, ok)
	assert.True(t, v.IsEducational)
	assert.Equal(t, models.ContentNotes, v.ContentType)

	_, ok = ParseVerdict("no json here")
	assert.False(t, ok)

	_, ok = ParseVerdict("} backwards {")
	assert.False(t, ok)
}

func TestExtractSuccess(t *testing.T) {
	d := &fakeDescriber{reply: "1. Решите уравнение x^2 = 4"}
	x := NewExtractor(testVisionConfig(), testPool(t), d)

	res := x.Extract(context.Background(), photo)
	require.True(t, res.OK())
	assert.Equal(t, Success, res.Status)
	assert.Equal(t, "1. Решите уравнение x^2 = 4", res.Text)
	assert.Empty(t, res.Message())

	req := d.reqs[0]
	assert.Equal(t, 0.1, req.Temperature)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.Contains(t, req.Prompt, "Распознай")
}

func TestExtractTimeout(t *testing.T) {
	d := &fakeDescriber{reply: "late text", delay: time.Second}
	x := NewExtractor(testVisionConfig(), testPool(t), d)

	start := time.Now()
	res := x.Extract(context.Background(), photo)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, res.OK())
	assert.Equal(t, Timeout, res.Status)
	assert.Empty(t, res.Text)
	assert.Equal(t, MsgExtractTimeout, res.Message())
}

func TestExtractFailureHidesProviderText(t *testing.T) {
	secret := errors.New(`{"error":{"message":"Invalid API key gsk_abc123"}}`)
	d := &fakeDescriber{err: &provider.Error{Op: "describe", Status: 401, Err: secret}}
	x := NewExtractor(testVisionConfig(), testPool(t), d)

	res := x.Extract(context.Background(), photo)
	assert.Equal(t, Failure, res.Status)
	msg := res.Message()
	assert.True(t, strings.HasPrefix(msg, "Не удалось распознать текст"))
	assert.Contains(t, msg, provider.Diagnose(res.Err))
	assert.NotContains(t, msg, "gsk_abc123")
	assert.ErrorIs(t, res.Err, secret)
}

func TestExtractEmptyText(t *testing.T) {
	d := &fakeDescriber{err: &provider.Error{Op: "describe", Err: provider.ErrEmptyResponse}}
	x := NewExtractor(testVisionConfig(), testPool(t), d)

	res := x.Extract(context.Background(), photo)
	assert.Equal(t, Failure, res.Status)
	assert.Contains(t, res.Message(), "текст не найден")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "timeout", Timeout.String())
	assert.Equal(t, "failure", Failure.String())
}
