package paidquiz

import (
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/shopspring/decimal"
)

// Engine holds the process-scoped components, built once at startup
type Engine struct {
	Config   *Config
	DB       *DB
	Fast     *BadgerTier
	Maker    *QuestionMaker
	Cache    *QuestionCache
	Settler  *Settler
	Sessions *SessionManager
	Wallet   *Wallet
	Sweeper  *Sweeper
	EntryFee decimal.Decimal

	logger log.Logger
}

// NewEngine opens the stores and wires every component. gateway may be nil
// when no deposits are taken by this process.
func NewEngine(cfg *Config, logger log.Logger, gateway PaymentGateway) (*Engine, error) {
	logger = orNop(logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := cfg.RewardPolicy()
	if err != nil {
		return nil, err
	}
	fee, err := cfg.EntryFee()
	if err != nil {
		return nil, err
	}

	db, err := OpenDB(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.ConnectAttempts, log.With(logger, "component", "db"))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	fast, err := OpenBadgerTier(cfg.Cache.BadgerDir, cfg.Cache.InMemory, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	var transcript *TranscriptRecorder
	if cfg.OpenAI.TranscriptDir != "" {
		transcript, err = NewTranscriptRecorder(cfg.OpenAI.TranscriptDir)
		if err != nil {
			fast.Close()
			db.Close()
			return nil, err
		}
	}

	maker := NewQuestionMaker(cfg.OpenAI, transcript, log.With(logger, "component", "generator"))
	cache := NewQuestionCache(db, fast, maker,
		WithCacheTTLs(cfg.Cache.FastTTL, cfg.Cache.DurableTTL),
		WithCacheLogger(log.With(logger, "component", "cache")),
	)
	settler := NewSettler(db, policy, log.With(logger, "component", "settlement"))
	sessions := NewSessionManager(db, cache, settler, SessionManagerConfig{
		QuestionCount: cfg.Session.QuestionCount,
		MaxAge:        cfg.Session.MaxAge,
		Logger:        log.With(logger, "component", "sessions"),
	})
	wallet := NewWallet(db, gateway, nil, log.With(logger, "component", "wallet"))
	sweeper := NewSweeper(cache, sessions, cfg.Sweep.Interval, log.With(logger, "component", "sweeper"))

	level.Debug(logger).Log("msg", "engine ready", "driver", cfg.Database.Driver, "model", maker.model)

	return &Engine{
		Config:   cfg,
		DB:       db,
		Fast:     fast,
		Maker:    maker,
		Cache:    cache,
		Settler:  settler,
		Sessions: sessions,
		Wallet:   wallet,
		Sweeper:  sweeper,
		EntryFee: fee,
		logger:   logger,
	}, nil
}

// Close releases the fast tier and the database
func (e *Engine) Close() error {
	var errs []error
	if err := e.Fast.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close fast tier: %w", err))
	}
	if err := e.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return errors.Join(errs...)
}
