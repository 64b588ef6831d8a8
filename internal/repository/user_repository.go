package repository

import (
	"context"
	"time"

	"presale-referral/internal/models"

	"gorm.io/gorm/clause"
)

// CreateUser creates a new user
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetUserByID retrieves a user by ID
func (r *Repository) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByWallet retrieves a user by wallet address
func (r *Repository) GetUserByWallet(ctx context.Context, wallet string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetActiveUserByCode resolves a referral code to its active owner
func (r *Repository) GetActiveUserByCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("referral_code = ? AND is_active = ?", code, true).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs loads users keyed by id
func (r *Repository) GetUsersByIDs(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	out := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// CodeExists reports whether any user already holds code
func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("referral_code = ?", code).
		Count(&count).Error
	return count > 0, err
}

// SetReferralCode writes the code only if the user has none yet
func (r *Repository) SetReferralCode(ctx context.Context, userID uint, code string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND referral_code IS NULL", userID).
		Update("referral_code", code)
	return result.RowsAffected, result.Error
}

// BindReferrer sets referrer_id only if it is still unset
func (r *Repository) BindReferrer(ctx context.Context, userID, referrerID uint) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND referrer_id IS NULL", userID).
		Update("referrer_id", referrerID)
	return result.RowsAffected, result.Error
}

// TouchLogin records the last login time
func (r *Repository) TouchLogin(ctx context.Context, userID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at).Error
}

// UpsertNonce stores the wallet's login nonce, replacing any earlier one
func (r *Repository) UpsertNonce(ctx context.Context, nonce *models.AuthNonce) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wallet_address"}},
			DoUpdates: clause.AssignmentColumns([]string{"nonce", "expires_at", "created_at"}),
		}).
		Create(nonce).Error
}

// GetNonce returns the wallet's current login nonce
func (r *Repository) GetNonce(ctx context.Context, wallet string) (*models.AuthNonce, error) {
	var nonce models.AuthNonce
	err := r.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&nonce).Error
	if err != nil {
		return nil, err
	}
	return &nonce, nil
}

// ConsumeNonce deletes the nonce if it is still the wallet's current one
func (r *Repository) ConsumeNonce(ctx context.Context, wallet, nonce string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("wallet_address = ? AND nonce = ?", wallet, nonce).
		Delete(&models.AuthNonce{})
	return result.RowsAffected, result.Error
}

// DeleteExpiredNonces removes nonces that expired before at
func (r *Repository) DeleteExpiredNonces(ctx context.Context, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", at).
		Delete(&models.AuthNonce{})
	return result.RowsAffected, result.Error
}

// CreateReferral inserts a referral edge
func (r *Repository) CreateReferral(ctx context.Context, referral *models.Referral) error {
	return r.db.WithContext(ctx).Create(referral).Error
}

// GetReferralByReferred returns the edge pointing at referredID
func (r *Repository) GetReferralByReferred(ctx context.Context, referredID uint) (*models.Referral, error) {
	var referral models.Referral
	err := r.db.WithContext(ctx).Where("referred_id = ?", referredID).First(&referral).Error
	if err != nil {
		return nil, err
	}
	return &referral, nil
}

// CountReferrals counts direct referrals of a referrer
func (r *Repository) CountReferrals(ctx context.Context, referrerID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Referral{}).
		Where("referrer_id = ?", referrerID).
		Count(&count).Error
	return count, err
}

// ListReferrals returns direct referrals newest first
func (r *Repository) ListReferrals(ctx context.Context, referrerID uint, limit, offset int) ([]models.Referral, error) {
	var referrals []models.Referral
	q := r.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("registered_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	err := q.Find(&referrals).Error
	return referrals, err
}

// ListReferralsByReferrers returns every edge whose referrer is in referrerIDs
func (r *Repository) ListReferralsByReferrers(ctx context.Context, referrerIDs []uint) ([]models.Referral, error) {
	var referrals []models.Referral
	if len(referrerIDs) == 0 {
		return referrals, nil
	}
	err := r.db.WithContext(ctx).
		Where("referrer_id IN ?", referrerIDs).
		Order("referred_id ASC").
		Find(&referrals).Error
	return referrals, err
}

// ReferralCounts returns direct referral counts per referrer
func (r *Repository) ReferralCounts(ctx context.Context) (map[uint]int64, error) {
	type row struct {
		ReferrerID uint
		Total      int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Referral{}).
		Select("referrer_id, COUNT(*) AS total").
		Group("referrer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, row := range rows {
		out[row.ReferrerID] = row.Total
	}
	return out, nil
}
