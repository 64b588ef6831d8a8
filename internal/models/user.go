package models

import (
	"time"
)

// User represents a participant identity. ReferralCode is immutable once set and
// ReferrerID is written at most once.
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	WalletAddress string     `gorm:"uniqueIndex;size:64;not null" json:"wallet_address"`
	ReferralCode  *string    `gorm:"uniqueIndex;size:20" json:"referral_code,omitempty"`
	ReferrerID    *uint      `gorm:"index" json:"referrer_id,omitempty"`
	IsActive      bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// Code returns the referral code or an empty string when none was generated yet
func (u *User) Code() string {
	if u.ReferralCode == nil {
		return ""
	}
	return *u.ReferralCode
}

// AuthNonce is the login challenge issued to a wallet. A wallet holds at most one
// and it is deleted when a signature over it is accepted.
type AuthNonce struct {
	WalletAddress string    `gorm:"primaryKey;size:64" json:"wallet_address"`
	Nonce         string    `gorm:"size:64;not null" json:"nonce"`
	ExpiresAt     time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (AuthNonce) TableName() string {
	return "auth_nonces"
}

// WalletNonceRequest is the body of POST /auth/wallet/nonce
type WalletNonceRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
}

// WalletNonce is the challenge returned to the client. Message is the exact text to sign.
type WalletNonce struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// WalletLoginRequest is the body of POST /auth/wallet. Signature is the ed25519
// signature (base58 or hex) of the message returned with the wallet's current nonce.
type WalletLoginRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	Signature     string `json:"signature" binding:"required"`
	ReferrerCode  string `json:"referrerCode"`
}
