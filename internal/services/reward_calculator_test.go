package services

import (
	"testing"

	"presale-referral/internal/config"
	"presale-referral/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultRewardsConfig() config.RewardsConfig {
	return config.RewardsConfig{
		TierPercents:   []decimal.Decimal{decimal.NewFromInt(10), decimal.NewFromInt(5), decimal.NewFromInt(2)},
		RewardType:     "tokens",
		RoundingPlaces: 6,
	}
}

func purchaseFor(buyer uint, referrer *uint, usd string) *models.Purchase {
	return &models.Purchase{
		UserID:     buyer,
		ReferrerID: referrer,
		AmountUSD:  decimal.RequireFromString(usd),
	}
}

func uintPtr(v uint) *uint { return &v }

func TestCalculateDirectReferrer(t *testing.T) {
	calc := NewRewardCalculator(defaultRewardsConfig())

	rewards := calc.Calculate(purchaseFor(2, uintPtr(1), "1000"), []UplineMember{{UserID: 1, Level: 1}})
	require.Len(t, rewards, 1)

	assert.Equal(t, uint(1), rewards[0].BeneficiaryID)
	assert.Equal(t, 1, rewards[0].Level)
	assert.True(t, rewards[0].Amount.Equal(decimal.NewFromInt(100)), "got %s", rewards[0].Amount)
	assert.Equal(t, models.RewardTypeTokens, rewards[0].RewardType)
}

func TestCalculateMultiLevel(t *testing.T) {
	calc := NewRewardCalculator(defaultRewardsConfig())

	upline := []UplineMember{{10, 1}, {11, 2}, {12, 3}, {13, 4}}
	rewards := calc.Calculate(purchaseFor(9, uintPtr(10), "250"), upline)
	require.Len(t, rewards, 3)

	assert.Equal(t, "25", rewards[0].Amount.String())
	assert.Equal(t, "12.5", rewards[1].Amount.String())
	assert.Equal(t, "5", rewards[2].Amount.String())
	assert.Equal(t, uint(12), rewards[2].BeneficiaryID)
}

func TestCalculateFloorsToConfiguredPlaces(t *testing.T) {
	cfg := defaultRewardsConfig()
	cfg.RoundingPlaces = 2
	calc := NewRewardCalculator(cfg)

	rewards := calc.Calculate(purchaseFor(2, uintPtr(1), "33.339"), []UplineMember{{1, 1}, {3, 2}})
	require.Len(t, rewards, 2)

	// 3.3339 and 1.66695 floored
	assert.Equal(t, "3.33", rewards[0].Amount.String())
	assert.Equal(t, "1.66", rewards[1].Amount.String())
}

func TestCalculateSkipsZeroAmounts(t *testing.T) {
	cfg := defaultRewardsConfig()
	cfg.RoundingPlaces = 0
	calc := NewRewardCalculator(cfg)

	rewards := calc.Calculate(purchaseFor(2, uintPtr(1), "15"), []UplineMember{{1, 1}, {3, 2}, {4, 3}})
	require.Len(t, rewards, 1)
	assert.Equal(t, "1", rewards[0].Amount.String())
}

func TestCalculateStopsOnCycleOrBuyer(t *testing.T) {
	calc := NewRewardCalculator(defaultRewardsConfig())

	rewards := calc.Calculate(purchaseFor(2, uintPtr(1), "100"), []UplineMember{{1, 1}, {2, 2}, {5, 3}})
	assert.Len(t, rewards, 1)

	rewards = calc.Calculate(purchaseFor(2, uintPtr(1), "100"), []UplineMember{{1, 1}, {3, 2}, {1, 3}})
	assert.Len(t, rewards, 2)
}

func TestCalculateWithoutReferrer(t *testing.T) {
	calc := NewRewardCalculator(defaultRewardsConfig())

	assert.Empty(t, calc.Calculate(purchaseFor(2, nil, "100"), []UplineMember{{1, 1}}))
	assert.Empty(t, calc.Calculate(purchaseFor(2, uintPtr(1), "100"), []UplineMember{{7, 1}}))
	assert.Empty(t, calc.Calculate(nil, nil))
}

func TestCalculateIsDeterministic(t *testing.T) {
	calc := NewRewardCalculator(defaultRewardsConfig())
	p := purchaseFor(2, uintPtr(1), "987.654321")
	upline := []UplineMember{{1, 1}, {3, 2}, {4, 3}}

	first := calc.Calculate(p, upline)
	for i := 0; i < 10; i++ {
		again := calc.Calculate(p, upline)
		require.Len(t, again, len(first))
		for j := range first {
			assert.True(t, first[j].Amount.Equal(again[j].Amount))
		}
	}
}
