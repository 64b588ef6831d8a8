package repository

import (
	"context"
	"time"

	"presale-referral/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// CreateRewards inserts reward rows in one statement
func (r *Repository) CreateRewards(ctx context.Context, rewards []models.ReferralReward) error {
	if len(rewards) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rewards).Error
}

// ListRewardsByPurchase returns the rewards minted for one purchase
func (r *Repository) ListRewardsByPurchase(ctx context.Context, purchaseID uuid.UUID) ([]models.ReferralReward, error) {
	var rewards []models.ReferralReward
	err := r.db.WithContext(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("level ASC").
		Find(&rewards).Error
	return rewards, err
}

// ListRewardsByReferrer returns a referrer's rewards, optionally filtered by status
func (r *Repository) ListRewardsByReferrer(ctx context.Context, referrerID uint, status models.RewardStatus) ([]models.ReferralReward, error) {
	var rewards []models.ReferralReward
	q := r.db.WithContext(ctx).Where("referrer_id = ?", referrerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("earned_at DESC").Find(&rewards).Error
	return rewards, err
}

// ListAllRewards returns every reward row. Used by the leaderboard rollup.
func (r *Repository) ListAllRewards(ctx context.Context) ([]models.ReferralReward, error) {
	var rewards []models.ReferralReward
	err := r.db.WithContext(ctx).Find(&rewards).Error
	return rewards, err
}

// LockRewards loads the given reward rows with a row lock (no-op on sqlite)
func (r *Repository) LockRewards(ctx context.Context, ids []uuid.UUID) ([]models.ReferralReward, error) {
	var rewards []models.ReferralReward
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Find(&rewards).Error
	return rewards, err
}

// MarkRewardsClaimed flips pending rows owned by userID to claimed
func (r *Repository) MarkRewardsClaimed(ctx context.Context, userID uint, ids []uuid.UUID, claimID uuid.UUID, txHash string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.ReferralReward{}).
		Where("id IN ? AND referrer_id = ? AND status = ?", ids, userID, models.RewardStatusPending).
		Updates(map[string]interface{}{
			"status":        models.RewardStatusClaimed,
			"claimed_at":    at,
			"claim_id":      claimID,
			"claim_tx_hash": txHash,
		})
	return result.RowsAffected, result.Error
}

// CreateClaim inserts a payout claim
func (r *Repository) CreateClaim(ctx context.Context, claim *models.RewardClaim) error {
	return r.db.WithContext(ctx).Create(claim).Error
}

// GetClaimByID retrieves a claim by ID
func (r *Repository) GetClaimByID(ctx context.Context, id uuid.UUID) (*models.RewardClaim, error) {
	var claim models.RewardClaim
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&claim).Error
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// ListClaimsByUser returns a user's claims newest first
func (r *Repository) ListClaimsByUser(ctx context.Context, userID uint) ([]models.RewardClaim, error) {
	var claims []models.RewardClaim
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&claims).Error
	return claims, err
}

// ListClaimsToReconcile returns submitted claims, never-checked first, then the
// least recently checked
func (r *Repository) ListClaimsToReconcile(ctx context.Context, limit int) ([]models.RewardClaim, error) {
	var claims []models.RewardClaim
	err := r.db.WithContext(ctx).
		Where("status = ?", models.ClaimStatusSubmitted).
		Order("checked_at IS NOT NULL, checked_at ASC, created_at ASC").
		Limit(limit).
		Find(&claims).Error
	return claims, err
}

// MarkClaimChecked records a reconciler visit
func (r *Repository) MarkClaimChecked(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.RewardClaim{}).
		Where("id = ? AND status = ?", id, models.ClaimStatusSubmitted).
		Update("checked_at", at).Error
}

// AttachPayoutTx sets the payout transaction on a submitted claim that has none
func (r *Repository) AttachPayoutTx(ctx context.Context, id uuid.UUID, txHash string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.RewardClaim{}).
		Where("id = ? AND status = ? AND payout_tx_hash IS NULL", id, models.ClaimStatusSubmitted).
		Updates(map[string]interface{}{
			"payout_tx_hash":      txHash,
			"payout_submitted_at": at,
			"checked_at":          nil,
		})
	return result.RowsAffected, result.Error
}

// UpdateClaimStatus moves a claim from one status to another
func (r *Repository) UpdateClaimStatus(ctx context.Context, id uuid.UUID, from, to models.ClaimStatus, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.RewardClaim{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"settled_at": at,
		})
	return result.RowsAffected, result.Error
}

// SumRewards totals a referrer's reward amounts, optionally filtered by status.
// Amounts are added as decimals: sqlite stores NUMERIC columns as floats and SUM drifts.
func (r *Repository) SumRewards(ctx context.Context, referrerID uint, status models.RewardStatus) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	q := r.db.WithContext(ctx).Model(&models.ReferralReward{}).
		Where("referrer_id = ?", referrerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Pluck("amount", &amounts).Error; err != nil {
		return decimal.Zero, err
	}
	return sumDecimals(amounts), nil
}

// EarningsByReferrer totals every referrer's rewards
func (r *Repository) EarningsByReferrer(ctx context.Context) (map[uint]decimal.Decimal, error) {
	type row struct {
		ReferrerID uint
		Amount     decimal.Decimal
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.ReferralReward{}).
		Select("referrer_id, amount").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]decimal.Decimal)
	for _, row := range rows {
		out[row.ReferrerID] = out[row.ReferrerID].Add(row.Amount)
	}
	return out, nil
}

func sumDecimals(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
