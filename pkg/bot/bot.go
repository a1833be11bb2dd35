// Package bot connects the assistant to Telegram.
package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/assistant"
	"github.com/uchilka-bot/uchilka/pkg/config"
	"github.com/uchilka-bot/uchilka/pkg/models"
)

// maxMessageLen is Telegram's limit on the text of one message.
const maxMessageLen = 4096

// API is the subset of the Telegram client the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Assistant answers questions.
type Assistant interface {
	HandleText(ctx context.Context, req assistant.Request) assistant.Reply
	HandlePhoto(ctx context.Context, req assistant.Request, image []byte) assistant.Reply
}

// Stats reports usage for admin commands.
type Stats interface {
	TouchUser(ctx context.Context, userID int64, username string) error
	Overview(ctx context.Context) (models.Overview, error)
	Today(ctx context.Context) (models.PeriodStats, error)
	Week(ctx context.Context) (models.PeriodStats, error)
	TopUsers(ctx context.Context, limit int) ([]models.UserActivity, error)
	SubjectStats(ctx context.Context) ([]models.SubjectCount, error)
}

// CacheAdmin exposes cache maintenance to admin commands.
type CacheAdmin interface {
	Stats(ctx context.Context) (models.CacheStats, error)
	Top(ctx context.Context, limit int) ([]models.CachedQuestion, error)
	PurgeStale(ctx context.Context, maxAge time.Duration, minHits int64) (int64, error)
}

// Bot receives updates, dispatches commands and forwards questions to the
// assistant. Each update is handled on its own goroutine.
type Bot struct {
	api       API
	cfg       *config.Config
	assistant Assistant
	stats     Stats
	cache     CacheAdmin
	probe     func(ctx context.Context) error
	http      *http.Client
	log       *zap.Logger

	mu       sync.RWMutex
	subjects map[int64]string

	wg sync.WaitGroup
}

// Option configures a Bot.
type Option func(*Bot)

// WithStats enables usage tracking and the statistics commands.
func WithStats(s Stats) Option {
	return func(b *Bot) { b.stats = s }
}

// WithCacheAdmin enables the cache commands.
func WithCacheAdmin(c CacheAdmin) Option {
	return func(b *Bot) { b.cache = c }
}

// WithProbe sets the completion service check used by /health.
func WithProbe(p func(ctx context.Context) error) Option {
	return func(b *Bot) { b.probe = p }
}

// WithHTTPClient sets the client used to download photos.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bot) { b.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.log = l
		}
	}
}

// New creates a Bot.
func New(api API, cfg *config.Config, a Assistant, opts ...Option) *Bot {
	b := &Bot{
		api:       api,
		cfg:       cfg,
		assistant: a,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       zap.NewNop(),
		subjects:  make(map[int64]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run polls for updates until ctx is cancelled, then waits for in-flight
// updates to finish.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.Bot.PollTimeout
	updates := b.api.GetUpdatesChan(u)
	b.log.Info("bot polling started")

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info("bot polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handle(ctx, upd)
			}()
		}
	}
}

func (b *Bot) handle(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panicked", zap.Int("update_id", upd.UpdateID), zap.Any("panic", r))
		}
	}()

	m := upd.Message
	if m == nil || m.Chat == nil || m.From == nil {
		return
	}

	switch {
	case m.IsCommand():
		b.command(ctx, m)
	case len(m.Photo) > 0:
		b.photo(ctx, m)
	case m.Text != "":
		b.text(ctx, m)
	}
}

func (b *Bot) text(ctx context.Context, m *tgbotapi.Message) {
	b.typing(m.Chat.ID)
	reply := b.assistant.HandleText(ctx, b.request(m, m.Text))
	b.log.Debug("answered text question",
		zap.Int64("user_id", m.From.ID),
		zap.String("tier", string(reply.Tier)),
		zap.Bool("from_cache", reply.FromCache))
	b.reply(m, reply.Text)
}

func (b *Bot) photo(ctx context.Context, m *tgbotapi.Message) {
	b.typing(m.Chat.ID)
	largest := m.Photo[len(m.Photo)-1]
	image, err := b.download(ctx, largest.FileID)
	if err != nil {
		b.log.Warn("photo download failed", zap.Int64("user_id", m.From.ID), zap.Error(err))
		b.reply(m, msgDownloadFailed)
		return
	}
	reply := b.assistant.HandlePhoto(ctx, b.request(m, m.Caption), image)
	b.reply(m, reply.Text)
}

func (b *Bot) request(m *tgbotapi.Message, text string) assistant.Request {
	return assistant.Request{
		UserID:   m.From.ID,
		Username: m.From.UserName,
		Subject:  b.subject(m.Chat.ID),
		Text:     text,
	}
}

// download fetches a file, reading at most one byte past the image ceiling
// so that oversized photos still reach the content gate.
func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	limit := int64(b.cfg.Vision.MaxImageBytes)
	if limit <= 0 {
		return io.ReadAll(resp.Body)
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit+1))
}

func (b *Bot) subject(chatID int64) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.subjects[chatID]; ok {
		return s
	}
	if b.cfg.Bot.DefaultSubject != "" {
		return b.cfg.Bot.DefaultSubject
	}
	return assistant.DefaultSubject
}

func (b *Bot) setSubject(chatID int64, subject string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects[chatID] = subject
}

func (b *Bot) typing(chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.log.Debug("chat action failed", zap.Error(err))
	}
}

// reply sends text as a reply to m, split into as many messages as needed.
func (b *Bot) reply(m *tgbotapi.Message, text string) {
	for i, part := range splitMessage(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(m.Chat.ID, part)
		if i == 0 {
			msg.ReplyToMessageID = m.MessageID
		}
		if _, err := b.api.Send(msg); err != nil {
			b.log.Warn("send failed", zap.Int64("chat_id", m.Chat.ID), zap.Error(err))
			return
		}
	}
}

// splitMessage breaks text into chunks of at most n runes, preferring to cut
// at line breaks.
func splitMessage(text string, n int) []string {
	r := []rune(text)
	if len(r) <= n {
		return []string{text}
	}
	var parts []string
	for len(r) > n {
		cut := n
		for i := n - 1; i > n/2; i-- {
			if r[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		parts = append(parts, string(r))
	}
	return parts
}
