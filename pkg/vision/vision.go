// Package vision screens photos for study material and extracts their text.
package vision

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/config"
	"github.com/uchilka-bot/uchilka/pkg/keypool"
	"github.com/uchilka-bot/uchilka/pkg/provider"
)

// base holds what the gate and the extractor share.
type base struct {
	cfg  config.VisionConfig
	keys *keypool.Pool
	desc provider.Describer
	log  *zap.Logger
}

// Option configures a Gate or an Extractor.
type Option func(*base)

// WithLogger sets the logger for fallbacks and failures.
func WithLogger(l *zap.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.log = l
		}
	}
}

func newBase(cfg config.VisionConfig, keys *keypool.Pool, d provider.Describer, opts []Option) base {
	b := base{cfg: cfg, keys: keys, desc: d, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

type describeResult struct {
	text string
	err  error
}

// describe calls the vision model with a fresh credential and gives up after
// timeout. The call itself is abandoned, not awaited, once the deadline passes.
func (b base) describe(ctx context.Context, timeout time.Duration, req provider.ImageRequest) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req.Model = b.cfg.Model

	ch := make(chan describeResult, 1)
	go func() {
		text, err := b.desc.Describe(ctx, b.keys.Next(), req)
		ch <- describeResult{text: text, err: err}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &provider.Error{Op: "describe", Err: provider.ErrTimeout}
		}
		return "", ctx.Err()
	}
}
