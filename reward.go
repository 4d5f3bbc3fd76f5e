package paidquiz

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred          = decimal.NewFromInt(100)
	secondsPerMinute = decimal.NewFromInt(60)
)

// RewardPolicy holds the reward formula parameters
type RewardPolicy struct {
	UnitValue             decimal.Decimal
	AvgSecondsPerQuestion int
	PerMinuteRate         decimal.Decimal
	PerWinBonus           decimal.Decimal
	WinAccuracy           decimal.Decimal
	StreakWindow          time.Duration
}

// DefaultRewardPolicy returns the standard parameters
func DefaultRewardPolicy() RewardPolicy {
	return RewardPolicy{
		UnitValue:             decimal.NewFromInt(2),
		AvgSecondsPerQuestion: 30,
		PerMinuteRate:         decimal.RequireFromString("0.50"),
		PerWinBonus:           decimal.RequireFromString("0.50"),
		WinAccuracy:           decimal.RequireFromString("0.70"),
		StreakWindow:          24 * time.Hour,
	}
}

// RewardInput is everything the reward depends on
type RewardInput struct {
	TotalQuestions int
	CorrectCount   int
	TimeSpent      time.Duration
	PriorWins      int
}

// Reward is the computed payout and its parts
type Reward struct {
	Base        decimal.Decimal `json:"base"`
	TimeBonus   decimal.Decimal `json:"time_bonus"`
	StreakBonus decimal.Decimal `json:"streak_bonus"`
	Total       decimal.Decimal `json:"total"`
}

// Compute applies the formula
//
//	base        = floor(total × unit × accuracy × 100) / 100
//	timeBonus   = max(0, (total × avgSeconds − spent) / 60 × perMinute)
//	streakBonus = priorWins × perWin
//
// and rounds the sum to cents. The result is never negative.
func (p RewardPolicy) Compute(in RewardInput) Reward {
	if in.TotalQuestions <= 0 {
		return Reward{Base: decimal.Zero, TimeBonus: decimal.Zero, StreakBonus: decimal.Zero, Total: decimal.Zero}
	}
	correct := in.CorrectCount
	if correct < 0 {
		correct = 0
	}
	if correct > in.TotalQuestions {
		correct = in.TotalQuestions
	}

	total := decimal.NewFromInt(int64(in.TotalQuestions))
	// total × unit × (correct / total), dividing last so the floor sees an
	// exact product
	base := total.Mul(p.UnitValue).Mul(decimal.NewFromInt(int64(correct))).Div(total)
	base = base.Mul(hundred).Floor().Div(hundred)
	base = nonNegative(base)

	expected := decimal.NewFromInt(int64(in.TotalQuestions * p.AvgSecondsPerQuestion))
	spent := decimal.NewFromFloat(in.TimeSpent.Seconds())
	timeBonus := nonNegative(expected.Sub(spent).Div(secondsPerMinute).Mul(p.PerMinuteRate))

	wins := in.PriorWins
	if wins < 0 {
		wins = 0
	}
	streakBonus := nonNegative(decimal.NewFromInt(int64(wins)).Mul(p.PerWinBonus))

	return Reward{
		Base:        base,
		TimeBonus:   timeBonus,
		StreakBonus: streakBonus,
		Total:       nonNegative(base.Add(timeBonus).Add(streakBonus).Round(2)),
	}
}

// IsWin reports whether a completed session's accuracy reaches the win
// threshold
func (p RewardPolicy) IsWin(score, total int) bool {
	if total <= 0 {
		return false
	}
	accuracy := decimal.NewFromInt(int64(score)).Div(decimal.NewFromInt(int64(total)))
	return accuracy.GreaterThanOrEqual(p.WinAccuracy)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
