package paidquiz

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	durableKeyPrefix = "ai_questions"
	fastKeyPrefix    = "quiz:fast"

	// keySeparator joins key segments and is not allowed in categories
	keySeparator = ":"
)

// HourBucket truncates t to the hour as floor(unix seconds / 3600)
func HourBucket(t time.Time) int64 {
	return t.Unix() / 3600
}

// DurableCacheKey is the durable-tier key shared by every set generated for
// the same category and difficulty within one hour, on any instance.
func DurableCacheKey(category string, difficulty Difficulty, t time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", durableKeyPrefix, category, difficulty, HourBucket(t))
}

// FastCacheKey is the fast-tier key for a (category, difficulty, count)
// request. The readable prefix lets invalidation drop a whole category.
func FastCacheKey(category string, difficulty Difficulty, count int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", category, difficulty, count)))
	return fastKeyPrefix + ":" + fastKeyScope(category, difficulty) + hex.EncodeToString(sum[:])[:16]
}

// fastKeyScope is the prefix covering a category, or a category and
// difficulty when difficulty is set.
func fastKeyScope(category string, difficulty Difficulty) string {
	if difficulty == "" {
		return category + ":"
	}
	return category + ":" + string(difficulty) + ":"
}
