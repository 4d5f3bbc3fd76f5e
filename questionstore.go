package paidquiz

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LatestActiveQuestionSet returns the newest active, unexpired set for the
// category and difficulty, or nil when there is none
func (db *DB) LatestActiveQuestionSet(ctx context.Context, category string, difficulty Difficulty, now time.Time) (*QuestionSet, error) {
	var set QuestionSet
	err := db.conn(ctx).
		Where("category = ? AND difficulty = ? AND is_active = ? AND expires_at > ?", category, difficulty, true, now.UTC()).
		Order("created_at DESC").Order("id DESC").
		First(&set).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, storageError(err, "failed to load question set")
	}
	return &set, nil
}

// SaveQuestionSet persists a newly generated set
func (db *DB) SaveQuestionSet(ctx context.Context, set *QuestionSet) error {
	if err := db.conn(ctx).Create(set).Error; err != nil {
		return storageError(err, "failed to save question set %s", set.CacheKey)
	}
	return nil
}

// TouchQuestionSet records one read hit
func (db *DB) TouchQuestionSet(ctx context.Context, id uint, now time.Time) error {
	err := db.conn(ctx).Model(&QuestionSet{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"usage_count": gorm.Expr("usage_count + ?", 1),
			"last_used":   now.UTC(),
		}).Error
	if err != nil {
		return storageError(err, "failed to record usage of question set %d", id)
	}
	return nil
}

// DeactivateQuestionSets flips active sets for the category, and for one
// difficulty when given, to inactive
func (db *DB) DeactivateQuestionSets(ctx context.Context, category string, difficulty Difficulty) (int64, error) {
	q := db.conn(ctx).Model(&QuestionSet{}).Where("category = ? AND is_active = ?", category, true)
	if difficulty != "" {
		q = q.Where("difficulty = ?", difficulty)
	}
	result := q.Update("is_active", false)
	if result.Error != nil {
		return 0, storageError(result.Error, "failed to invalidate question sets for %s", category)
	}
	return result.RowsAffected, nil
}

// ExpireQuestionSets deactivates active sets whose expiry is at or before now
func (db *DB) ExpireQuestionSets(ctx context.Context, now time.Time) (int64, error) {
	result := db.conn(ctx).Model(&QuestionSet{}).
		Where("is_active = ? AND expires_at <= ?", true, now.UTC()).
		Update("is_active", false)
	if result.Error != nil {
		return 0, storageError(result.Error, "failed to expire question sets")
	}
	return result.RowsAffected, nil
}

// QuestionCostSummary totals sets created since the given time, active or not
func (db *DB) QuestionCostSummary(ctx context.Context, since time.Time) (*CostSummary, error) {
	var sets []QuestionSet
	err := db.conn(ctx).
		Select("tokens_used", "cost").
		Where("created_at >= ?", since.UTC()).
		Find(&sets).Error
	if err != nil {
		return nil, storageError(err, "failed to load generation costs")
	}

	summary := &CostSummary{Cost: decimal.Zero}
	for _, set := range sets {
		summary.Generations++
		summary.TokensUsed += int64(set.TokensUsed)
		summary.Cost = summary.Cost.Add(set.Cost)
	}
	return summary, nil
}
