package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseStatus represents the lifecycle of a token purchase
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusConfirmed PurchaseStatus = "confirmed"
)

// Purchase is a token-sale buy event keyed by its on-chain transaction hash.
// Status only moves pending -> confirmed.
type Purchase struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uint            `gorm:"not null;index" json:"user_id"`
	TxHash       string          `gorm:"uniqueIndex;size:128;not null" json:"tx_hash"`
	AmountUSD    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount_usd"`
	AmountTokens decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"amount_tokens"`
	TokenPrice   decimal.Decimal `gorm:"type:decimal(20,10);not null" json:"token_price"`
	Status       PurchaseStatus  `gorm:"size:20;not null;default:pending;index" json:"status"`
	ReferrerID   *uint           `gorm:"index" json:"referrer_id,omitempty"`
	BlockNumber  *int64          `json:"block_number,omitempty"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
	ConfirmedAt  *time.Time      `gorm:"index" json:"confirmed_at,omitempty"`
	CheckedAt    *time.Time      `json:"-"`
}

func (Purchase) TableName() string {
	return "purchases"
}

// BeforeCreate assigns the purchase id
func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IsConfirmed reports whether the purchase reached its terminal state
func (p *Purchase) IsConfirmed() bool {
	return p.Status == PurchaseStatusConfirmed
}

// RecordPurchaseRequest is the body of POST /api/purchase/record
type RecordPurchaseRequest struct {
	TxHash       string          `json:"txHash" binding:"required"`
	AmountUSD    decimal.Decimal `json:"amountUsd"`
	AmountTokens decimal.Decimal `json:"amountTokens"`
	TokenPrice   decimal.Decimal `json:"tokenPrice"`
	ReferrerCode string          `json:"referrerCode"`
}

// RecordPurchaseResponse is returned after a purchase is recorded
type RecordPurchaseResponse struct {
	PurchaseID   uuid.UUID       `json:"purchaseId"`
	TxHash       string          `json:"txHash"`
	AmountUSD    decimal.Decimal `json:"amountUsd"`
	AmountTokens decimal.Decimal `json:"amountTokens"`
	HasReferrer  bool            `json:"hasReferrer"`
}

// ConfirmPurchaseRequest is the body of POST /api/purchase/confirm/:purchaseId
type ConfirmPurchaseRequest struct {
	BlockNumber int64 `json:"blockNumber"`
}
