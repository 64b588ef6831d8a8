package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RewardType is the asset a referral reward is paid in
type RewardType string

const (
	RewardTypeTokens RewardType = "tokens"
	RewardTypeUSDT   RewardType = "usdt"
)

// Valid reports whether t is a supported reward type
func (t RewardType) Valid() bool {
	return t == RewardTypeTokens || t == RewardTypeUSDT
}

// RewardStatus is the reward lifecycle. Claimed is terminal.
type RewardStatus string

const (
	RewardStatusPending RewardStatus = "pending"
	RewardStatusClaimed RewardStatus = "claimed"
)

// ReferralReward is one credited reward unit minted when a referred purchase is confirmed
type ReferralReward struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_reward_purchase_referrer_type,priority:1" json:"purchase_id"`
	ReferrerID  uint            `gorm:"not null;uniqueIndex:idx_reward_purchase_referrer_type,priority:2;index:idx_reward_referrer_status,priority:1" json:"referrer_id"`
	ReferredID  uint            `gorm:"not null;index" json:"referred_id"`
	Level       int             `gorm:"not null;default:1" json:"level"`
	Percentage  decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"percentage"`
	RewardType  RewardType      `gorm:"size:10;not null;uniqueIndex:idx_reward_purchase_referrer_type,priority:3" json:"reward_type"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Status      RewardStatus    `gorm:"size:20;not null;default:pending;index:idx_reward_referrer_status,priority:2" json:"status"`
	EarnedAt    time.Time       `gorm:"not null;index" json:"earned_at"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
	ClaimID     *uuid.UUID      `gorm:"type:uuid;index" json:"claim_id,omitempty"`
	ClaimTxHash *string         `gorm:"size:128" json:"claim_tx_hash,omitempty"`
}

func (ReferralReward) TableName() string {
	return "referral_rewards"
}

// BeforeCreate assigns the reward id
func (r *ReferralReward) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ClaimStatus tracks the payout behind a claim
type ClaimStatus string

const (
	ClaimStatusSubmitted ClaimStatus = "submitted"
	ClaimStatusConfirmed ClaimStatus = "confirmed"
	ClaimStatusFailed    ClaimStatus = "failed"
)

// CanTransitionTo reports whether a claim may move from s to next
func (s ClaimStatus) CanTransitionTo(next ClaimStatus) bool {
	return s == ClaimStatusSubmitted && (next == ClaimStatusConfirmed || next == ClaimStatusFailed)
}

// RewardClaim records one payout request covering a batch of claimed rewards.
// TxHash is the claim's own payout reference. PayoutTxHash is the chain
// transaction that actually paid it, attached by an operator.
type RewardClaim struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uint            `gorm:"not null;index" json:"user_id"`
	RewardType        RewardType      `gorm:"size:10;not null" json:"reward_type"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"total_amount"`
	RewardCount       int             `gorm:"not null" json:"reward_count"`
	TxHash            string          `gorm:"uniqueIndex;size:128;not null" json:"tx_hash"`
	PayoutTxHash      *string         `gorm:"uniqueIndex;size:128" json:"payout_tx_hash,omitempty"`
	PayoutSubmittedAt *time.Time      `json:"payout_submitted_at,omitempty"`
	Status            ClaimStatus     `gorm:"size:20;not null;default:submitted;index" json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	SettledAt         *time.Time      `json:"settled_at,omitempty"`
	CheckedAt         *time.Time      `json:"-"`
}

// ExpiryBase is the time a claim's payout deadline counts from
func (c *RewardClaim) ExpiryBase() time.Time {
	if c.PayoutSubmittedAt != nil {
		return *c.PayoutSubmittedAt
	}
	return c.CreatedAt
}

func (RewardClaim) TableName() string {
	return "reward_claims"
}

// BeforeCreate assigns the claim id
func (c *RewardClaim) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// PendingReward is a pending reward joined with the purchase that produced it
type PendingReward struct {
	ID             uuid.UUID       `json:"id"`
	PurchaseID     uuid.UUID       `json:"purchase_id"`
	ReferredID     uint            `json:"referred_id"`
	ReferredWallet string          `json:"referred_wallet"`
	Level          int             `json:"level"`
	RewardType     RewardType      `json:"reward_type"`
	Amount         decimal.Decimal `json:"amount"`
	PurchaseAmount decimal.Decimal `json:"purchase_amount"`
	EarnedAt       time.Time       `json:"earned_at"`
}

// LeaderboardEntry is a derived ranking row, never stored
type LeaderboardEntry struct {
	Ranking        int             `json:"ranking"`
	UserID         uint            `json:"user_id"`
	WalletAddress  string          `json:"wallet_address"`
	ReferralCode   string          `json:"referral_code"`
	TotalReferrals int64           `json:"total_referrals"`
	TotalEarnings  decimal.Decimal `json:"total_earnings"`
}

// ClaimRewardsRequest is the body of POST /api/referral/claim
type ClaimRewardsRequest struct {
	RewardType string   `json:"rewardType" binding:"required"`
	RewardIDs  []string `json:"rewardIds" binding:"required"`
}

// AttachPayoutRequest is the body of POST /api/referral/claims/:claimId/payout
type AttachPayoutRequest struct {
	TxHash string `json:"txHash" binding:"required"`
}

// SettleClaimRequest is the body of POST /api/referral/claims/:claimId/settle
type SettleClaimRequest struct {
	Status ClaimStatus `json:"status" binding:"required"`
}

// ClaimResult summarises a successful claim
type ClaimResult struct {
	ClaimID     uuid.UUID       `json:"claimId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	RewardCount int             `json:"rewardCount"`
	TxHash      string          `json:"txHash"`
	RewardType  RewardType      `json:"rewardType"`
}
