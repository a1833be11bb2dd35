package vision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/config"
	"github.com/uchilka-bot/uchilka/pkg/keypool"
	"github.com/uchilka-bot/uchilka/pkg/provider"
)

// MsgExtractTimeout is shown when text recognition runs out of time.
const MsgExtractTimeout = "Распознавание заняло слишком много времени. Попробуйте сфотографировать задание ближе и чётче или разделите его на несколько фото."

const ocrPrompt = `Распознай и перепиши ВЕСЬ текст с этого изображения.
Сохрани:
- Нумерацию заданий
- Математические формулы и выражения
- Структуру текста
- Условия задач

Если текст на иностранном языке - сохрани его как есть.`

// Status is the outcome of an extraction.
type Status int

const (
	Success Status = iota
	Timeout
	Failure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	default:
		return "failure"
	}
}

// Extraction is the result of recognizing the text on an image.
type Extraction struct {
	Status Status
	Text   string // recognized text, set only on Success
	Err    error  // underlying cause, for logs only
}

// OK reports whether text was recognized.
func (e Extraction) OK() bool {
	return e.Status == Success
}

// Message returns the user-facing explanation for a failed extraction.
// Provider error text is never included.
func (e Extraction) Message() string {
	switch e.Status {
	case Success:
		return ""
	case Timeout:
		return MsgExtractTimeout
	default:
		return fmt.Sprintf("Не удалось распознать текст (%s). Попробуйте сфотографировать чётче.", provider.Diagnose(e.Err))
	}
}

// Extractor recognizes the text on photos of study material.
type Extractor struct {
	base
}

// NewExtractor creates an Extractor.
func NewExtractor(cfg config.VisionConfig, keys *keypool.Pool, d provider.Describer, opts ...Option) *Extractor {
	return &Extractor{base: newBase(cfg, keys, d, opts)}
}

// Extract returns the text on the image.
func (x *Extractor) Extract(ctx context.Context, image []byte) Extraction {
	text, err := x.describe(ctx, x.cfg.OCRTimeout, provider.ImageRequest{
		Prompt:      ocrPrompt,
		Image:       image,
		Temperature: 0.1,
		MaxTokens:   2048,
	})
	switch {
	case err == nil:
		return Extraction{Status: Success, Text: text}
	case provider.IsTimeout(err):
		x.log.Warn("text extraction timed out", zap.Duration("timeout", x.cfg.OCRTimeout))
		return Extraction{Status: Timeout, Err: err}
	default:
		x.log.Warn("text extraction failed", zap.Error(err))
		return Extraction{Status: Failure, Err: err}
	}
}
