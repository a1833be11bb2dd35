package vision

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/config"
	"github.com/uchilka-bot/uchilka/pkg/keypool"
	"github.com/uchilka-bot/uchilka/pkg/models"
	"github.com/uchilka-bot/uchilka/pkg/provider"
)

// Messages shown when an image is rejected.
const (
	MsgTooLarge      = "Изображение слишком большое. Попробуйте сфотографировать ближе."
	MsgInappropriate = "Пожалуйста, отправляйте только учебные материалы. Я помогаю с домашними заданиями."
	MsgUnclear       = "Изображение нечёткое. Попробуйте сфотографировать ещё раз при хорошем освещении."
	MsgOther         = "Я вижу это изображение, но не могу найти здесь учебное задание. Отправьте фото страницы учебника или тетради."
	MsgGeneric       = "Отправьте, пожалуйста, фото с учебным заданием."
)

const gatePrompt = `Analyze this image. Respond ONLY with JSON:
{
  "is_educational": true/false,
  "content_type": "homework/textbook/notes/diagram/inappropriate/unclear/other"
}

Educational content includes:
- Textbook pages, homework assignments
- Math problems, exercises, diagrams
- Handwritten notes, formulas
- Educational charts, tables

Non-educational (but respond politely):
- Random photos, memes
- Screenshots of unrelated content
- Blurry/unclear images
- Inappropriate content (handle with care)`

var rejections = map[models.ContentType]string{
	models.ContentInappropriate: MsgInappropriate,
	models.ContentUnclear:       MsgUnclear,
	models.ContentOther:         MsgOther,
}

// Gate decides whether a photo looks like study material before any text is
// extracted from it.
type Gate struct {
	base
}

// NewGate creates a Gate.
func NewGate(cfg config.VisionConfig, keys *keypool.Pool, d provider.Describer, opts ...Option) *Gate {
	return &Gate{base: newBase(cfg, keys, d, opts)}
}

// Check reports whether the image is accepted and, when it is not, the
// message to show. Oversized images are rejected without a model call. Any
// failure of the model call, including a timeout or an unreadable verdict,
// accepts the image.
func (g *Gate) Check(ctx context.Context, image []byte) (bool, string) {
	if g.cfg.MaxImageBytes > 0 && len(image) > g.cfg.MaxImageBytes {
		return false, MsgTooLarge
	}

	text, err := g.describe(ctx, g.cfg.GateTimeout, provider.ImageRequest{
		Prompt:      gatePrompt,
		Image:       image,
		Temperature: 0.2,
		MaxTokens:   150,
	})
	if err != nil {
		g.log.Warn("vision gate unavailable, accepting image",
			zap.Bool("timeout", provider.IsTimeout(err)), zap.Error(err))
		return true, ""
	}

	verdict, ok := ParseVerdict(text)
	if !ok {
		g.log.Warn("vision gate returned unreadable verdict, accepting image",
			zap.String("raw", clip(text, 200)))
		return true, ""
	}
	if verdict.IsEducational {
		return true, ""
	}
	if msg, ok := rejections[verdict.ContentType]; ok {
		return false, msg
	}
	return false, MsgGeneric
}

// ParseVerdict reads the gate verdict from model output, which may wrap the
// JSON object in prose or code fences. A missing is_educational is false and a
// missing content_type is unclear.
func ParseVerdict(text string) (models.VisionVerdict, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return models.VisionVerdict{}, false
	}
	raw := text[start : end+1]
	if !gjson.Valid(raw) {
		return models.VisionVerdict{}, false
	}

	res := gjson.Parse(raw)
	v := models.VisionVerdict{
		IsEducational: res.Get("is_educational").Bool(),
		ContentType:   models.ContentUnclear,
	}
	if ct := res.Get("content_type"); ct.Exists() {
		v.ContentType = models.ContentType(strings.ToLower(strings.TrimSpace(ct.String())))
	}
	return v, true
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
