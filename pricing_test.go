package paidquiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenPrice(t *testing.T) {
	assert.Equal(t, "0.0000006", TokenPrice("gpt-4o-mini-2024-07-18").String())
	assert.Equal(t, "0.00001", TokenPrice("gpt-4o").String())
	assert.Equal(t, "0.00006", TokenPrice("GPT-4").String())
	assert.Equal(t, "0.00003", TokenPrice("gpt-4-turbo-preview").String())
	assert.Equal(t, defaultTokenPrice.String(), TokenPrice("some-local-model").String())
}

func TestEstimateCost(t *testing.T) {
	assertDecimal(t, "0.0006", EstimateCost("gpt-4o-mini", 1000))
	assertDecimal(t, "0.002", EstimateCost("unknown", 1000))
	assertDecimal(t, "0", EstimateCost("gpt-4o", 0))
	assertDecimal(t, "0", EstimateCost("gpt-4o", -5))
}
