package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrNoAPIKeys is returned by Validate when no provider credentials are configured.
var ErrNoAPIKeys = errors.New("no provider API keys configured")

// ErrNoBotToken is returned by ValidateBot when the chat transport has no token.
var ErrNoBotToken = errors.New("bot token is not configured")

// Config holds all uchilka configuration.
type Config struct {
	Listen   string         `yaml:"listen" toml:"listen"`
	DBPath   string         `yaml:"db_path" toml:"db_path"`
	Bot      BotConfig      `yaml:"bot" toml:"bot"`
	Provider ProviderConfig `yaml:"provider" toml:"provider"`
	Router   RouterConfig   `yaml:"router" toml:"router"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
	Vision   VisionConfig   `yaml:"vision" toml:"vision"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

// BotConfig configures the chat transport.
type BotConfig struct {
	Token          string  `yaml:"token" toml:"token"`
	AdminIDs       []int64 `yaml:"admin_ids" toml:"admin_ids"`
	DefaultSubject string  `yaml:"default_subject" toml:"default_subject"`
	PollTimeout    int     `yaml:"poll_timeout" toml:"poll_timeout"` // seconds
}

// IsAdmin reports whether the chat user id is on the admin allow-list.
func (b BotConfig) IsAdmin(userID int64) bool {
	for _, id := range b.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ProviderConfig defines the upstream OpenAI-compatible completion service.
// Every key in APIKeys is used in rotation.
type ProviderConfig struct {
	BaseURL           string   `yaml:"base_url" toml:"base_url"`
	APIKeys           []string `yaml:"api_keys" toml:"api_keys"`
	RequestsPerSecond float64  `yaml:"requests_per_second" toml:"requests_per_second"` // 0 disables limiting
	Burst             int      `yaml:"burst" toml:"burst"`
}

// RouterConfig controls model selection and retry behaviour.
type RouterConfig struct {
	Tiers       TierModels `yaml:"tiers" toml:"tiers"`
	MaxAttempts int        `yaml:"max_attempts" toml:"max_attempts"`
	Temperature float64    `yaml:"temperature" toml:"temperature"`
	TopP        float64    `yaml:"top_p" toml:"top_p"`
	MaxTokens   int        `yaml:"max_tokens" toml:"max_tokens"`
}

// TierModels maps each model tier to an upstream model name.
type TierModels struct {
	Fast    string `yaml:"fast" toml:"fast"`
	Capable string `yaml:"capable" toml:"capable"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled        bool            `yaml:"enabled" toml:"enabled"`
	MaxQuestionLen int             `yaml:"max_question_len" toml:"max_question_len"`
	Retention      RetentionConfig `yaml:"retention" toml:"retention"`
}

// RetentionConfig controls the periodic stale-entry sweep.
type RetentionConfig struct {
	MaxAge   time.Duration `yaml:"max_age" toml:"max_age"`
	Interval time.Duration `yaml:"interval" toml:"interval"`
	MinHits  int64         `yaml:"min_hits" toml:"min_hits"`
}

// VisionConfig controls the image content gate and OCR.
type VisionConfig struct {
	Model         string        `yaml:"model" toml:"model"`
	MaxImageBytes int           `yaml:"max_image_bytes" toml:"max_image_bytes"`
	GateTimeout   time.Duration `yaml:"gate_timeout" toml:"gate_timeout"`
	OCRTimeout    time.Duration `yaml:"ocr_timeout" toml:"ocr_timeout"`
}

// LogConfig controls the zap logger built by the CLI.
type LogConfig struct {
	Level       string `yaml:"level" toml:"level"`
	Development bool   `yaml:"development" toml:"development"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8000",
		DBPath: "uchilka.db",
		Bot: BotConfig{
			DefaultSubject: "general",
			PollTimeout:    60,
		},
		Provider: ProviderConfig{
			BaseURL: "https://api.groq.com/openai/v1/",
			Burst:   1,
		},
		Router: RouterConfig{
			Tiers: TierModels{
				Fast:    "llama-3.1-8b-instant",
				Capable: "llama-3.3-70b-versatile",
			},
			MaxAttempts: 3,
			Temperature: 0.7,
			TopP:        0.9,
			MaxTokens:   1024,
		},
		Cache: CacheConfig{
			Enabled:        true,
			MaxQuestionLen: 500,
			Retention: RetentionConfig{
				MaxAge:   30 * 24 * time.Hour,
				Interval: 24 * time.Hour,
				MinHits:  1,
			},
		},
		Vision: VisionConfig{
			Model:         "llama-3.2-90b-vision-preview",
			MaxImageBytes: 10 * 1024 * 1024,
			GateTimeout:   20 * time.Second,
			OCRTimeout:    45 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadEnv loads .env files into the process environment. Missing files are
// ignored and variables that are already set are left untouched.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a YAML or TOML config file and expands environment variables.
// An empty path yields the defaults overlaid with the environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(expanded, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		default:
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(cfg)
	cfg.Provider.APIKeys = SplitList(cfg.Provider.APIKeys...)
	return cfg, nil
}

// applyEnv fills values the file left empty from the well-known variables.
func applyEnv(cfg *Config) {
	if cfg.Bot.Token == "" {
		cfg.Bot.Token = os.Getenv("BOT_TOKEN")
	}
	if len(cfg.Provider.APIKeys) == 0 {
		cfg.Provider.APIKeys = SplitList(os.Getenv("GROQ_API_KEYS"))
	}
	if len(cfg.Bot.AdminIDs) == 0 {
		cfg.Bot.AdminIDs = ParseIDs(os.Getenv("ADMIN_IDS"))
	}
}

// SplitList splits comma-separated values, trimming blanks and dropping empties.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// ParseIDs parses a comma-separated list of numeric ids. Non-numeric entries are skipped.
func ParseIDs(s string) []int64 {
	var ids []int64
	for _, part := range SplitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Validate checks settings every command depends on.
func (c *Config) Validate() error {
	if len(c.Provider.APIKeys) == 0 {
		return ErrNoAPIKeys
	}
	if c.Router.MaxAttempts < 1 {
		return fmt.Errorf("router.max_attempts must be at least 1, got %d", c.Router.MaxAttempts)
	}
	if c.Router.Tiers.Fast == "" || c.Router.Tiers.Capable == "" {
		return errors.New("router.tiers must name both fast and capable models")
	}
	return nil
}

// ValidateBot checks the settings needed to run the chat transport.
func (c *Config) ValidateBot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Bot.Token == "" {
		return ErrNoBotToken
	}
	return nil
}
