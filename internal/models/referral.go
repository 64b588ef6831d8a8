package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Referral is the referrer -> referred edge. There is exactly one row per referred user.
type Referral struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ReferrerID   uint      `gorm:"not null;index" json:"referrer_id"`
	ReferredID   uint      `gorm:"not null;uniqueIndex" json:"referred_id"`
	ReferralCode string    `gorm:"size:20;not null" json:"referral_code"`
	RegisteredAt time.Time `gorm:"not null;index" json:"registered_at"`
}

func (Referral) TableName() string {
	return "referrals"
}

// ReferralListItem is a referee with purchase totals derived from confirmed purchases
type ReferralListItem struct {
	ReferredID           uint            `json:"referred_id"`
	WalletAddress        string          `json:"wallet_address"`
	RegisteredAt         time.Time       `json:"registered_at"`
	FirstPurchaseAt      *time.Time      `json:"first_purchase_at,omitempty"`
	TotalPurchasesCount  int64           `json:"total_purchases_count"`
	TotalPurchasesAmount decimal.Decimal `json:"total_purchases_amount"`
	TotalRewardsEarned   decimal.Decimal `json:"total_rewards_earned"`
}

// ReferralSummary is returned by GET referral/code
type ReferralSummary struct {
	ReferralCode   string          `json:"referralCode"`
	TotalReferrals int64           `json:"totalReferrals"`
	TotalEarnings  decimal.Decimal `json:"totalEarnings"`
}

// ReferralStats holds aggregated referral statistics for a user
type ReferralStats struct {
	ReferralCode     string          `json:"referral_code"`
	TotalReferrals   int64           `json:"total_referrals"`
	ActiveReferrals  int64           `json:"active_referrals"`
	TotalSalesVolume decimal.Decimal `json:"total_sales_volume"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	PendingRewards   decimal.Decimal `json:"pending_rewards"`
	ClaimedRewards   decimal.Decimal `json:"claimed_rewards"`
}

// ChainMember is one referred user found while walking the referral graph
type ChainMember struct {
	UserID        uint    `json:"referred_id"`
	ReferrerID    uint    `json:"referrer_id"`
	WalletAddress string  `json:"wallet_address"`
	ReferralCode  *string `json:"referral_code,omitempty"`
	Level         int     `json:"level"`
}

// RegisterReferralRequest is the body of POST /api/referral/register
type RegisterReferralRequest struct {
	ReferrerCode string `json:"referrerCode"`
}
