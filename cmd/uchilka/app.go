package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/uchilka-bot/uchilka/pkg/assistant"
	cachepkg "github.com/uchilka-bot/uchilka/pkg/cache/sqlite"
	"github.com/uchilka-bot/uchilka/pkg/config"
	"github.com/uchilka-bot/uchilka/pkg/keypool"
	"github.com/uchilka-bot/uchilka/pkg/models"
	"github.com/uchilka-bot/uchilka/pkg/provider"
	"github.com/uchilka-bot/uchilka/pkg/router"
	"github.com/uchilka-bot/uchilka/pkg/store"
	"github.com/uchilka-bot/uchilka/pkg/tracker"
	"github.com/uchilka-bot/uchilka/pkg/vision"
)

type globalOptions struct {
	configPath string
	envFiles   []string
}

// load reads .env files and the config file.
func (o *globalOptions) load() (*config.Config, error) {
	if err := config.LoadEnv(o.envFiles...); err != nil {
		return nil, err
	}
	return config.Load(o.configPath)
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// app holds the components shared by the commands.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *sql.DB
	keys      *keypool.Pool
	router    *router.Router
	cache     *cachepkg.Cache
	tracker   *tracker.SQLiteTracker
	assistant *assistant.Assistant
}

// newStorage opens the database with the cache and the question log.
func newStorage(cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	c, err := cachepkg.New(db,
		cachepkg.WithLogger(log.Named("cache")),
		cachepkg.WithMaxQuestionLen(cfg.Cache.MaxQuestionLen),
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	tr, err := tracker.New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: db, cache: c, tracker: tr}, nil
}

// newApp wires the full pipeline. Configuration errors are fatal here.
func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := newStorage(cfg, log)
	if err != nil {
		return nil, err
	}

	a.keys, err = keypool.New(cfg.Provider.APIKeys)
	if err != nil {
		a.Close()
		return nil, err
	}
	client := provider.NewClient(cfg.Provider)

	a.router = router.New(cfg.Router, a.keys, client,
		router.WithLogger(log.Named("router")),
		router.WithRateLimit(cfg.Provider.RequestsPerSecond, cfg.Provider.Burst),
	)

	gate := vision.NewGate(cfg.Vision, a.keys, client, vision.WithLogger(log.Named("vision")))
	extractor := vision.NewExtractor(cfg.Vision, a.keys, client, vision.WithLogger(log.Named("vision")))

	opts := []assistant.Option{
		assistant.WithVision(gate, extractor),
		assistant.WithRecorder(a.tracker),
		assistant.WithLogger(log.Named("assistant")),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, assistant.WithCache(a.cache))
	}
	a.assistant = assistant.New(a.router, opts...)

	log.Info("assistant ready",
		zap.Int("api_keys", a.keys.Size()),
		zap.String("fast_model", cfg.Router.Tiers.Fast),
		zap.String("capable_model", cfg.Router.Tiers.Capable),
		zap.Bool("cache", cfg.Cache.Enabled),
	)
	return a, nil
}

// probe makes a one-attempt completion to check the upstream service.
func (a *app) probe(ctx context.Context) error {
	_, err := a.router.Complete(ctx, []models.ChatMessage{
		{Role: models.RoleUser, Content: "Привет, это тест. Ответь одним словом: OK"},
	}, 1)
	return err
}

func (a *app) Close() error {
	return a.db.Close()
}
