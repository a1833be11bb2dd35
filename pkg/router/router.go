package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uchilka-bot/uchilka/pkg/classifier"
	"github.com/uchilka-bot/uchilka/pkg/config"
	"github.com/uchilka-bot/uchilka/pkg/keypool"
	"github.com/uchilka-bot/uchilka/pkg/models"
	"github.com/uchilka-bot/uchilka/pkg/provider"
)

// OverloadedMessage is shown to users when every attempt failed.
const OverloadedMessage = "Извините, сервис временно перегружен. Попробуйте через минуту."

// ExhaustedRetriesError is returned by Complete when every attempt failed.
type ExhaustedRetriesError struct {
	Attempts int
	Tier     models.ModelTier
	Model    string
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("all %d attempts failed (tier %s, model %s): %v", e.Attempts, e.Tier, e.Model, e.Last)
}

// Unwrap returns the last underlying failure.
func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}

// Route is a resolved model for a tier.
type Route struct {
	Tier  models.ModelTier
	Model string
}

// Router classifies a conversation, picks a model and calls the completion
// service, rotating credentials between attempts.
type Router struct {
	cfg       config.RouterConfig
	keys      *keypool.Pool
	completer provider.Completer
	limiter   *rate.Limiter
	log       *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger for attempt diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRateLimit throttles outbound calls to rps requests per second.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(r *Router) {
		if rps <= 0 {
			r.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a Router from the given configuration.
func New(cfg config.RouterConfig, keys *keypool.Pool, c provider.Completer, opts ...Option) *Router {
	r := &Router{
		cfg:       cfg,
		keys:      keys,
		completer: c,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the configured model for a tier.
func (r *Router) Resolve(tier models.ModelTier) (Route, error) {
	var model string
	switch tier {
	case models.TierFast:
		model = r.cfg.Tiers.Fast
	case models.TierCapable:
		model = r.cfg.Tiers.Capable
	default:
		return Route{}, fmt.Errorf("unknown tier %q", tier)
	}
	if model == "" {
		return Route{}, fmt.Errorf("no model configured for tier %q", tier)
	}
	return Route{Tier: tier, Model: model}, nil
}

// Tier classifies the final user message of msgs.
func (r *Router) Tier(msgs []models.ChatMessage) models.ModelTier {
	return classifier.Classify(models.LastUserContent(msgs))
}

// Complete returns a completion for msgs. The conversation is classified
// once; each attempt draws the next credential from the pool. Every failure,
// rate-limited or not, is retried until maxAttempts is spent, after which an
// *ExhaustedRetriesError carrying the last cause is returned. A non-positive
// maxAttempts uses the configured default.
func (r *Router) Complete(ctx context.Context, msgs []models.ChatMessage, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = r.cfg.MaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	route, err := r.Resolve(r.Tier(msgs))
	if err != nil {
		return "", err
	}

	req := provider.CompletionRequest{
		Model:       route.Model,
		Messages:    msgs,
		Temperature: r.cfg.Temperature,
		TopP:        r.cfg.TopP,
		MaxTokens:   r.cfg.MaxTokens,
	}

	var last error
	attempts := 0
	for attempts < maxAttempts {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				last = err
				break
			}
		}

		attempts++
		key := r.keys.Next()
		text, err := r.completer.Complete(ctx, key, req)
		if err == nil {
			return text, nil
		}
		last = err

		r.log.Warn("completion attempt failed",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", maxAttempts),
			zap.String("model", route.Model),
			zap.String("key", keypool.Mask(key)),
			zap.Bool("rate_limited", provider.IsRateLimited(err)),
			zap.Error(err),
		)

		if ctx.Err() != nil {
			break
		}
	}

	return "", &ExhaustedRetriesError{
		Attempts: attempts,
		Tier:     route.Tier,
		Model:    route.Model,
		Last:     last,
	}
}

// Answer is the user-facing wrapper around Complete. It never fails: when
// Complete does, the error is logged and OverloadedMessage is returned with
// ok set to false.
func (r *Router) Answer(ctx context.Context, msgs []models.ChatMessage) (text string, ok bool) {
	text, err := r.Complete(ctx, msgs, 0)
	if err != nil {
		r.log.Error("completion failed, degrading to overload message", zap.Error(err))
		return OverloadedMessage, false
	}
	return text, true
}
