package paidquiz

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHourBucket(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	assert.Equal(t, start.Unix()/3600, HourBucket(start))
	assert.Equal(t, HourBucket(start), HourBucket(start.Add(59*time.Minute+59*time.Second)))
	assert.Equal(t, HourBucket(start)+1, HourBucket(start.Add(time.Hour)))
	// zone does not matter
	assert.Equal(t, HourBucket(start), HourBucket(start.In(time.FixedZone("x", 5*3600+1800))))
}

func TestDurableCacheKey(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	key := DurableCacheKey("science", DifficultyEasy, at)

	assert.Equal(t, "ai_questions:science:easy:"+strconv.FormatInt(HourBucket(at), 10), key)
	assert.Equal(t, key, DurableCacheKey("science", DifficultyEasy, at.Add(20*time.Minute)))
	assert.NotEqual(t, key, DurableCacheKey("science", DifficultyEasy, at.Add(time.Hour)))
	assert.NotEqual(t, key, DurableCacheKey("science", DifficultyHard, at))
}

func TestFastCacheKey(t *testing.T) {
	key := FastCacheKey("science", DifficultyEasy, 10)

	assert.Equal(t, key, FastCacheKey("science", DifficultyEasy, 10))
	assert.NotEqual(t, key, FastCacheKey("science", DifficultyEasy, 5))
	assert.NotEqual(t, key, FastCacheKey("history", DifficultyEasy, 10))
	assert.True(t, strings.HasPrefix(key, "quiz:fast:science:easy:"))
	assert.Len(t, strings.TrimPrefix(key, "quiz:fast:science:easy:"), 16)

	categoryScope := fastKeyPrefix + ":" + fastKeyScope("science", "")
	assert.True(t, strings.HasPrefix(key, categoryScope))
	assert.False(t, strings.HasPrefix(FastCacheKey("sciences", DifficultyEasy, 10), categoryScope))
}
