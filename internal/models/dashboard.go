package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PendingSummary is the pending-reward block of the dashboard overview
type PendingSummary struct {
	Total   decimal.Decimal `json:"total"`
	Count   int             `json:"count"`
	Rewards []PendingReward `json:"rewards"`
}

// RecentPurchase is a confirmed purchase made by one of the user's referees
type RecentPurchase struct {
	PurchaseID    uuid.UUID       `json:"purchase_id"`
	UserID        uint            `json:"user_id"`
	WalletAddress string          `json:"wallet_address"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	AmountTokens  decimal.Decimal `json:"amount_tokens"`
	ConfirmedAt   *time.Time      `json:"confirmed_at"`
}

// DashboardOverview is returned by GET /api/dashboard/overview
type DashboardOverview struct {
	Stats           *ReferralStats   `json:"stats"`
	PendingRewards  PendingSummary   `json:"pendingRewards"`
	RecentPurchases []RecentPurchase `json:"recentPurchases"`
}

// EarningsByType totals rewards of one reward type
type EarningsByType struct {
	RewardType RewardType      `json:"reward_type"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	Pending    decimal.Decimal `json:"pending"`
	Claimed    decimal.Decimal `json:"claimed"`
}

// DailyAmount is one day bucket of a timeline
type DailyAmount struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// EarningsReport is returned by GET /api/dashboard/earnings
type EarningsReport struct {
	ByType     []EarningsByType `json:"byType"`
	Timeline   []DailyAmount    `json:"timeline"`
	TopRewards []ReferralReward `json:"topRewards"`
}

// ReferralFunnel tracks referees from sign-up to repeat purchase
type ReferralFunnel struct {
	TotalReferrals int64           `json:"total_referrals"`
	Converted      int64           `json:"converted"`
	RepeatBuyers   int64           `json:"repeat_buyers"`
	TotalVolume    decimal.Decimal `json:"total_volume"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
}

// ReferralAnalytics is returned by GET /api/dashboard/referrals
type ReferralAnalytics struct {
	Funnel       ReferralFunnel     `json:"funnel"`
	Timeline     []DailyAmount      `json:"timeline"`
	TopReferrals []ReferralListItem `json:"topReferrals"`
}

// ActivityType names an event in the activity feed
type ActivityType string

const (
	ActivityReferralRegistered ActivityType = "referral_registered"
	ActivityPurchaseConfirmed  ActivityType = "purchase_confirmed"
	ActivityRewardEarned       ActivityType = "reward_earned"
)

// ActivityEvent is one entry of the recent activity feed
type ActivityEvent struct {
	Type          ActivityType     `json:"type"`
	Timestamp     time.Time        `json:"timestamp"`
	UserID        uint             `json:"user_id"`
	WalletAddress string           `json:"wallet_address"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	ReferenceID   string           `json:"reference_id"`
}
