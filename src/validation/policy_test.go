package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pyramidtracker/src/model"
)

func testRule() *model.SymbolRule {
	return &model.SymbolRule{
		Exchange:    "binance",
		Base:        "BTC",
		Quote:       "USDT",
		MinQty:      0.001,
		MinNotional: 10,
		TickSize:    0.01,
		RefreshedAt: time.Now().UTC(),
	}
}

func TestValidateAccepts(t *testing.T) {
	result, err := Validate(50000.00, 0.01, testRule(), ModeStrict)
	assert.NoError(t, err)
	assert.True(t, result.OK)
	assert.Empty(t, result.Warnings)
}

func TestValidateStrictRejectsSmallSize(t *testing.T) {
	_, err := Validate(50000, 0.0001, testRule(), ModeStrict)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestValidateStrictRejectsSmallNotional(t *testing.T) {
	// size passes min qty but 0.002 * 100 = 0.2 < 10 notional
	rule := testRule()
	rule.MinQty = 0.001
	_, err := Validate(100, 0.002, rule, ModeStrict)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestValidateStrictRejectsOffTickPrice(t *testing.T) {
	_, err := Validate(50000.005, 1, testRule(), ModeStrict)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestValidateLenientWarnsButPasses(t *testing.T) {
	result, err := Validate(100, 0.002, testRule(), ModeLenient)
	assert.NoError(t, err)
	assert.True(t, result.OK)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateZeroMinNotionalSkipsCheck(t *testing.T) {
	rule := testRule()
	rule.MinNotional = 0
	result, err := Validate(1, 0.01, rule, ModeStrict)
	assert.NoError(t, err)
	assert.True(t, result.OK)
}

func TestRoundToTick(t *testing.T) {
	assert.InDelta(t, 50000.01, RoundToTick(50000.012, 0.01), 1e-9)
	assert.InDelta(t, 50000.02, RoundToTick(50000.017, 0.01), 1e-9)
	assert.InDelta(t, 1.5, RoundToTick(1.5, 0), 1e-9)
}

func TestRepresentableAtTick(t *testing.T) {
	assert.True(t, representableAtTick(50000.01, 0.01))
	assert.False(t, representableAtTick(50000.015, 0.01))
	// 0.1+0.2-style float drift must not fail representable prices
	assert.True(t, representableAtTick(0.3, 0.1))
}
