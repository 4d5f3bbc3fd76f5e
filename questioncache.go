package paidquiz

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/shopspring/decimal"
)

// QuestionStore is the durable tier of the question cache
type QuestionStore interface {
	// LatestActiveQuestionSet returns nil, nil when no active unexpired set exists
	LatestActiveQuestionSet(ctx context.Context, category string, difficulty Difficulty, now time.Time) (*QuestionSet, error)
	SaveQuestionSet(ctx context.Context, set *QuestionSet) error
	TouchQuestionSet(ctx context.Context, id uint, now time.Time) error
	DeactivateQuestionSets(ctx context.Context, category string, difficulty Difficulty) (int64, error)
	ExpireQuestionSets(ctx context.Context, now time.Time) (int64, error)
	QuestionCostSummary(ctx context.Context, since time.Time) (*CostSummary, error)
}

// CostSummary totals generation spend over a period
type CostSummary struct {
	Generations int64           `json:"generations"`
	TokensUsed  int64           `json:"tokens_used"`
	Cost        decimal.Decimal `json:"cost"`
}

const (
	defaultFastTTL    = time.Hour
	defaultDurableTTL = 24 * time.Hour
)

// QuestionCache resolves question requests through the durable tier, the
// fast tier and finally the generator. Two concurrent misses may both
// generate; both results are valid entries.
type QuestionCache struct {
	store      QuestionStore
	fast       FastTier
	generator  Generator
	fastTTL    time.Duration
	durableTTL time.Duration
	now        func() time.Time
	logger     log.Logger
}

// QuestionCacheOption configures a QuestionCache
type QuestionCacheOption func(*QuestionCache)

// WithCacheTTLs sets the fast and durable tier lifetimes
func WithCacheTTLs(fast, durable time.Duration) QuestionCacheOption {
	return func(qc *QuestionCache) {
		qc.fastTTL = fast
		qc.durableTTL = durable
	}
}

// WithCacheClock replaces the wall clock
func WithCacheClock(now func() time.Time) QuestionCacheOption {
	return func(qc *QuestionCache) { qc.now = now }
}

// WithCacheLogger sets the logger
func WithCacheLogger(logger log.Logger) QuestionCacheOption {
	return func(qc *QuestionCache) { qc.logger = logger }
}

// NewQuestionCache creates a new question cache. fast may be nil, in which
// case only the durable tier is consulted.
func NewQuestionCache(store QuestionStore, fast FastTier, generator Generator, opts ...QuestionCacheOption) *QuestionCache {
	qc := &QuestionCache{
		store:      store,
		fast:       fast,
		generator:  generator,
		fastTTL:    defaultFastTTL,
		durableTTL: defaultDurableTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(qc)
	}
	qc.logger = orNop(qc.logger)
	return qc
}

// GetQuestions returns count questions for the category and difficulty.
// Cache tier failures are logged and treated as misses; only a failed
// generation is surfaced.
func (qc *QuestionCache) GetQuestions(ctx context.Context, category string, difficulty Difficulty, count int) ([]Question, error) {
	category = normalizeCategory(category)
	if err := validateQuestionRequest(category, difficulty, count); err != nil {
		return nil, err
	}
	now := qc.now().UTC()
	logger := log.With(qc.logger, "category", category, "difficulty", difficulty)

	set, err := qc.store.LatestActiveQuestionSet(ctx, category, difficulty, now)
	if err != nil {
		level.Warn(logger).Log("msg", "durable tier lookup failed", "err", err)
	} else if set != nil && len(set.Questions) >= count {
		if err := qc.store.TouchQuestionSet(ctx, set.ID, now); err != nil {
			level.Warn(logger).Log("msg", "failed to record usage", "cache_key", set.CacheKey, "err", err)
		}
		level.Debug(logger).Log("msg", "durable tier hit", "cache_key", set.CacheKey)
		return copyQuestions(set.Questions[:count]), nil
	}

	fastKey := FastCacheKey(category, difficulty, count)
	if questions, ok := qc.readFast(ctx, logger, fastKey); ok && len(questions) >= count {
		level.Debug(logger).Log("msg", "fast tier hit", "cache_key", fastKey)
		return questions[:count], nil
	}

	return qc.generate(ctx, logger, category, difficulty, count, now)
}

func (qc *QuestionCache) generate(ctx context.Context, logger log.Logger, category string, difficulty Difficulty, count int, now time.Time) ([]Question, error) {
	req := GenerationRequest{
		Category:   category,
		Difficulty: difficulty,
		Count:      count,
		Prompt:     buildPrompt(category, difficulty, count),
	}

	gen, err := qc.generator.Generate(ctx, req)
	if err != nil {
		if KindOf(err) == KindGenerationFailed {
			return nil, err
		}
		return nil, generationFailed(err, "generator error")
	}

	questions, err := parseQuestions(gen.Text)
	if err != nil {
		return nil, generationFailed(err, "malformed generation output")
	}
	if err := ValidateQuestions(questions); err != nil {
		return nil, generationFailed(err, "generated set rejected")
	}
	if len(questions) < count {
		return nil, generationFailed(nil, "generated %d questions, need %d", len(questions), count)
	}

	set := NewQuestionSet(category, difficulty, questions, gen, now, qc.durableTTL)
	if err := qc.store.SaveQuestionSet(ctx, set); err != nil {
		level.Warn(logger).Log("msg", "failed to persist question set", "cache_key", set.CacheKey, "err", err)
	} else {
		level.Info(logger).Log("msg", "cached generated set", "cache_key", set.CacheKey, "questions", len(questions), "tokens", set.TokensUsed, "cost", set.Cost.String())
	}

	qc.writeFast(ctx, logger, FastCacheKey(category, difficulty, count), questions)
	return copyQuestions(questions[:count]), nil
}

func (qc *QuestionCache) readFast(ctx context.Context, logger log.Logger, key string) ([]Question, bool) {
	if qc.fast == nil {
		return nil, false
	}
	raw, err := qc.fast.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrFastTierMiss) {
			level.Warn(logger).Log("msg", "fast tier lookup failed", "cache_key", key, "err", err)
		}
		return nil, false
	}

	var questions []Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		level.Warn(logger).Log("msg", "discarding undecodable fast tier entry", "cache_key", key, "err", err)
		return nil, false
	}
	if ValidateQuestions(questions) != nil {
		return nil, false
	}
	return questions, true
}

func (qc *QuestionCache) writeFast(ctx context.Context, logger log.Logger, key string, questions []Question) {
	if qc.fast == nil {
		return
	}
	raw, err := json.Marshal(questions)
	if err != nil {
		level.Warn(logger).Log("msg", "failed to encode fast tier entry", "cache_key", key, "err", err)
		return
	}
	if err := qc.fast.Set(ctx, key, raw, qc.fastTTL); err != nil {
		level.Warn(logger).Log("msg", "fast tier write failed", "cache_key", key, "err", err)
	}
}

// Invalidate deactivates durable sets for the category, and for one
// difficulty when given, and drops the matching fast tier entries. Rows are
// kept for cost accounting.
func (qc *QuestionCache) Invalidate(ctx context.Context, category string, difficulty Difficulty) (int64, error) {
	category = normalizeCategory(category)
	if category == "" {
		return 0, newError(ErrInvalidRequest, "category is required", nil)
	}
	if strings.Contains(category, keySeparator) {
		return 0, newError(ErrInvalidRequest, "category cannot contain "+keySeparator, nil)
	}
	if difficulty != "" && !difficulty.Valid() {
		return 0, newError(ErrInvalidRequest, "unknown difficulty "+string(difficulty), nil)
	}

	n, err := qc.store.DeactivateQuestionSets(ctx, category, difficulty)
	if err != nil {
		return 0, err
	}

	if qc.fast != nil {
		prefix := fastKeyPrefix + ":" + fastKeyScope(category, difficulty)
		dropped, err := qc.fast.DeletePrefix(ctx, prefix)
		if err != nil {
			level.Warn(qc.logger).Log("msg", "fast tier invalidation failed", "category", category, "err", err)
		} else {
			level.Debug(qc.logger).Log("msg", "dropped fast tier entries", "category", category, "entries", dropped)
		}
	}

	level.Info(qc.logger).Log("msg", "invalidated question sets", "category", category, "difficulty", difficulty, "sets", n)
	return n, nil
}

// SweepExpired deactivates every set whose expiry has passed. Running it
// repeatedly or alongside reads is safe.
func (qc *QuestionCache) SweepExpired(ctx context.Context) (int64, error) {
	return qc.store.ExpireQuestionSets(ctx, qc.now().UTC())
}

// CostSummary reports generation spend since the given time
func (qc *QuestionCache) CostSummary(ctx context.Context, since time.Time) (*CostSummary, error) {
	return qc.store.QuestionCostSummary(ctx, since.UTC())
}

func validateQuestionRequest(category string, difficulty Difficulty, count int) error {
	switch {
	case category == "":
		return newError(ErrInvalidRequest, "category is required", nil)
	case strings.Contains(category, keySeparator):
		return newError(ErrInvalidRequest, "category cannot contain "+keySeparator, nil)
	case !difficulty.Valid():
		return newError(ErrInvalidRequest, "unknown difficulty "+string(difficulty), nil)
	case count < 1 || count > MaxQuestionsPerSet:
		return newError(ErrInvalidRequest, "question count must be between 1 and 20", nil)
	}
	return nil
}

func copyQuestions(questions []Question) []Question {
	out := make([]Question, len(questions))
	for i, q := range questions {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}
