package paidquiz

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Per-token USD prices by model tier. Longest matching prefix wins.
var modelTokenPrices = map[string]decimal.Decimal{
	"gpt-4o-mini":   decimal.RequireFromString("0.0000006"),
	"gpt-4o":        decimal.RequireFromString("0.00001"),
	"gpt-4-turbo":   decimal.RequireFromString("0.00003"),
	"gpt-4":         decimal.RequireFromString("0.00006"),
	"gpt-3.5-turbo": decimal.RequireFromString("0.000002"),
	"deepseek-chat": decimal.RequireFromString("0.0000011"),
}

var defaultTokenPrice = decimal.RequireFromString("0.000002")

// TokenPrice returns the per-token price for model
func TokenPrice(model string) decimal.Decimal {
	model = strings.ToLower(model)

	prefixes := make([]string, 0, len(modelTokenPrices))
	for prefix := range modelTokenPrices {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	for _, prefix := range prefixes {
		if strings.HasPrefix(model, prefix) {
			return modelTokenPrices[prefix]
		}
	}
	return defaultTokenPrice
}

// EstimateCost is the monetary cost of a generation call. It is recorded on
// the stored set for accounting only.
func EstimateCost(model string, tokens int) decimal.Decimal {
	if tokens <= 0 {
		return decimal.Zero
	}
	return TokenPrice(model).Mul(decimal.NewFromInt(int64(tokens))).Round(6)
}
