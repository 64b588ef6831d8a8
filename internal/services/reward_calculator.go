package services

import (
	"presale-referral/internal/config"
	"presale-referral/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// UplineMember is one ancestor of a buyer. Level 1 is the direct referrer.
type UplineMember struct {
	UserID uint
	Level  int
}

// ComputedReward is a reward the ledger should credit
type ComputedReward struct {
	BeneficiaryID uint
	Level         int
	Percentage    decimal.Decimal
	Amount        decimal.Decimal
	RewardType    models.RewardType
}

// RewardCalculator turns a confirmed purchase and its upline into tiered rewards.
// Amounts are amount_usd * tier / 100, floored to RoundingPlaces.
type RewardCalculator struct {
	tiers      []decimal.Decimal
	rewardType models.RewardType
	places     int32
}

func NewRewardCalculator(cfg config.RewardsConfig) *RewardCalculator {
	tiers := cfg.TierPercents
	if len(tiers) > config.MaxRewardLevels {
		tiers = tiers[:config.MaxRewardLevels]
	}
	return &RewardCalculator{
		tiers:      tiers,
		rewardType: models.RewardType(cfg.RewardType),
		places:     cfg.RoundingPlaces,
	}
}

// MaxLevels is the number of levels that can earn from one purchase
func (c *RewardCalculator) MaxLevels() int {
	return len(c.tiers)
}

// Calculate is pure. The upline must be ordered by level starting at 1; a gap,
// the buyer, or a repeated beneficiary ends the walk.
func (c *RewardCalculator) Calculate(purchase *models.Purchase, upline []UplineMember) []ComputedReward {
	if purchase == nil || purchase.ReferrerID == nil || !purchase.AmountUSD.IsPositive() {
		return nil
	}

	seen := map[uint]bool{purchase.UserID: true}
	rewards := make([]ComputedReward, 0, len(c.tiers))

	for i, member := range upline {
		level := i + 1
		if level > len(c.tiers) || member.Level != level {
			break
		}
		if level == 1 && member.UserID != *purchase.ReferrerID {
			break
		}
		if seen[member.UserID] {
			break
		}
		seen[member.UserID] = true

		pct := c.tiers[i]
		amount := purchase.AmountUSD.Mul(pct).Div(hundred).RoundFloor(c.places)
		if !amount.IsPositive() {
			continue
		}

		rewards = append(rewards, ComputedReward{
			BeneficiaryID: member.UserID,
			Level:         level,
			Percentage:    pct,
			Amount:        amount,
			RewardType:    c.rewardType,
		})
	}

	return rewards
}
