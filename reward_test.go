package paidquiz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRewardScenario(t *testing.T) {
	reward := DefaultRewardPolicy().Compute(RewardInput{
		TotalQuestions: 10,
		CorrectCount:   7,
		TimeSpent:      150 * time.Second,
	})

	assertDecimal(t, "14.00", reward.Base)
	assertDecimal(t, "1.25", reward.TimeBonus)
	assertDecimal(t, "0", reward.StreakBonus)
	assertDecimal(t, "15.25", reward.Total)
}

func TestRewardParts(t *testing.T) {
	policy := DefaultRewardPolicy()

	cases := []struct {
		name  string
		in    RewardInput
		total string
	}{
		{"slow perfect run", RewardInput{TotalQuestions: 10, CorrectCount: 10, TimeSpent: time.Hour}, "20.00"},
		{"nothing right", RewardInput{TotalQuestions: 10, CorrectCount: 0, TimeSpent: time.Hour}, "0"},
		{"streak only", RewardInput{TotalQuestions: 10, CorrectCount: 0, TimeSpent: time.Hour, PriorWins: 3}, "1.50"},
		{"third of three", RewardInput{TotalQuestions: 3, CorrectCount: 1, TimeSpent: 90 * time.Second}, "2.00"},
		{"fractional seconds", RewardInput{TotalQuestions: 1, CorrectCount: 1, TimeSpent: 29*time.Second + 500*time.Millisecond}, "2.00"},
		{"fast partial", RewardInput{TotalQuestions: 5, CorrectCount: 2, TimeSpent: 30 * time.Second}, "5.00"},
		{"no questions", RewardInput{TotalQuestions: 0, CorrectCount: 0}, "0"},
		{"negative wins ignored", RewardInput{TotalQuestions: 10, CorrectCount: 5, TimeSpent: time.Hour, PriorWins: -2}, "10.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assertDecimal(t, tc.total, policy.Compute(tc.in).Total)
		})
	}
}

func TestRewardNeverNegativeAndMonotonicInAccuracy(t *testing.T) {
	policy := DefaultRewardPolicy()

	for _, spent := range []time.Duration{0, 90 * time.Second, 5 * time.Minute, 3 * time.Hour} {
		for _, wins := range []int{0, 2} {
			previous := policy.Compute(RewardInput{TotalQuestions: 10, CorrectCount: 0, TimeSpent: spent, PriorWins: wins}).Total
			assert.False(t, previous.IsNegative())
			for correct := 1; correct <= 10; correct++ {
				total := policy.Compute(RewardInput{TotalQuestions: 10, CorrectCount: correct, TimeSpent: spent, PriorWins: wins}).Total
				assert.False(t, total.IsNegative())
				assert.True(t, total.GreaterThanOrEqual(previous), "correct=%d spent=%s wins=%d", correct, spent, wins)
				previous = total
			}
		}
	}
}

func TestRewardTotalIsRoundedToCents(t *testing.T) {
	reward := DefaultRewardPolicy().Compute(RewardInput{TotalQuestions: 1, CorrectCount: 0, TimeSpent: 10 * time.Second})

	// (30 - 10) / 60 × 0.50
	assert.Equal(t, "0.17", reward.Total.StringFixed(2))
	assert.True(t, reward.Total.Equal(reward.Total.Round(2)))
}

func TestIsWin(t *testing.T) {
	policy := DefaultRewardPolicy()

	assert.True(t, policy.IsWin(7, 10))
	assert.True(t, policy.IsWin(10, 10))
	assert.False(t, policy.IsWin(6, 10))
	assert.False(t, policy.IsWin(2, 3))
	assert.False(t, policy.IsWin(0, 0))
}
