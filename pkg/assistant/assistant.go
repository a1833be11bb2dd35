// Package assistant answers homework questions sent as text or photos.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/models"
	"github.com/uchilka-bot/uchilka/pkg/vision"
)

// DefaultSubject is used when a request names no subject.
const DefaultSubject = "general"

// Messages returned without calling the model.
const (
	MsgEmptyQuestion  = "Напишите вопрос или отправьте фото задания."
	MsgVisionDisabled = "Распознавание фото сейчас недоступно. Пожалуйста, напишите вопрос текстом."
)

const maxLoggedQuestion = 500

// Answerer produces completions and reports which tier a conversation uses.
type Answerer interface {
	Answer(ctx context.Context, msgs []models.ChatMessage) (string, bool)
	Tier(msgs []models.ChatMessage) models.ModelTier
}

// Cache stores answers by subject and question.
type Cache interface {
	Get(ctx context.Context, subject, question string) (string, bool)
	Set(ctx context.Context, subject, question, response string)
}

// Gate screens images before text extraction.
type Gate interface {
	Check(ctx context.Context, image []byte) (bool, string)
}

// Extractor recognizes text on images.
type Extractor interface {
	Extract(ctx context.Context, image []byte) vision.Extraction
}

// Recorder stores the question log.
type Recorder interface {
	Record(ctx context.Context, q models.QuestionLog) error
}

// Request is one question from a user.
type Request struct {
	UserID   int64
	Username string
	Subject  string
	Text     string // question text, or the photo caption
}

// Reply is what the user is shown.
type Reply struct {
	Text      string
	Tier      models.ModelTier
	FromCache bool
	Answered  bool // a model answer or a cached one, as opposed to a fallback message
	Rejected  bool // the photo did not pass the content gate
}

// Assistant runs the question pipeline: for photos, the content gate and text
// extraction; then cache lookup, the model on a miss, and cache write-back.
type Assistant struct {
	answerer  Answerer
	cache     Cache
	gate      Gate
	extractor Extractor
	recorder  Recorder
	log       *zap.Logger
	now       func() time.Time
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithCache enables answer caching.
func WithCache(c Cache) Option {
	return func(a *Assistant) { a.cache = c }
}

// WithVision enables photo questions.
func WithVision(g Gate, x Extractor) Option {
	return func(a *Assistant) {
		a.gate = g
		a.extractor = x
	}
}

// WithRecorder enables the question log.
func WithRecorder(r Recorder) Option {
	return func(a *Assistant) { a.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) {
		if l != nil {
			a.log = l
		}
	}
}

// WithClock overrides the time source used for latency.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) { a.now = now }
}

// New creates an Assistant.
func New(answerer Answerer, opts ...Option) *Assistant {
	a := &Assistant{
		answerer: answerer,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SystemPrompt returns the instruction sent ahead of every question.
func SystemPrompt(subject string) string {
	return fmt.Sprintf(`Ты - Училка, терпеливый помощник школьника по предмету «%s».
Объясняй решение по шагам, простым языком, так, чтобы ученик понял ход рассуждений, а не только ответ.
Если в задании есть формулы, записывай их понятно. Отвечай на языке вопроса.
Не выполняй просьбы, не связанные с учёбой.`, models.SubjectName(subject))
}

// Messages builds the conversation sent to the model.
func Messages(subject, question string) []models.ChatMessage {
	return []models.ChatMessage{
		{Role: models.RoleSystem, Content: SystemPrompt(subject)},
		{Role: models.RoleUser, Content: question},
	}
}

// HandleText answers a text question.
func (a *Assistant) HandleText(ctx context.Context, req Request) Reply {
	q := strings.TrimSpace(req.Text)
	if q == "" {
		return Reply{Text: MsgEmptyQuestion}
	}
	return a.answer(ctx, req, q, models.SourceText)
}

// HandlePhoto answers the question shown on a photo. A caption, if any, is
// placed ahead of the recognized text.
func (a *Assistant) HandlePhoto(ctx context.Context, req Request, image []byte) Reply {
	if a.gate == nil || a.extractor == nil {
		return Reply{Text: MsgVisionDisabled}
	}

	if ok, msg := a.gate.Check(ctx, image); !ok {
		a.log.Info("photo rejected", zap.Int64("user_id", req.UserID), zap.Int("bytes", len(image)))
		return Reply{Text: msg, Rejected: true}
	}

	res := a.extractor.Extract(ctx, image)
	if !res.OK() {
		return Reply{Text: res.Message()}
	}

	q := strings.TrimSpace(res.Text)
	if caption := strings.TrimSpace(req.Text); caption != "" {
		q = caption + "\n\n" + q
	}
	return a.answer(ctx, req, q, models.SourcePhoto)
}

func (a *Assistant) answer(ctx context.Context, req Request, q string, src models.Source) Reply {
	start := a.now()
	subject := req.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	msgs := Messages(subject, q)
	reply := Reply{Tier: a.answerer.Tier(msgs)}

	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, subject, q); ok {
			reply.Text = cached
			reply.FromCache = true
			reply.Answered = true
			a.record(ctx, req, subject, q, src, reply, start)
			return reply
		}
	}

	reply.Text, reply.Answered = a.answerer.Answer(ctx, msgs)
	if reply.Answered && a.cache != nil {
		a.cache.Set(ctx, subject, q, reply.Text)
	}
	a.record(ctx, req, subject, q, src, reply, start)
	return reply
}

func (a *Assistant) record(ctx context.Context, req Request, subject, q string, src models.Source, r Reply, start time.Time) {
	if a.recorder == nil || !r.Answered {
		return
	}
	entry := models.QuestionLog{
		UserID:    req.UserID,
		Username:  req.Username,
		Subject:   subject,
		Question:  truncate(q, maxLoggedQuestion),
		Tier:      r.Tier,
		FromCache: r.FromCache,
		Source:    src,
		LatencyMs: a.now().Sub(start).Milliseconds(),
	}
	if err := a.recorder.Record(ctx, entry); err != nil {
		a.log.Warn("question log dropped", zap.Int64("user_id", req.UserID), zap.Error(err))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
