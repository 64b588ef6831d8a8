package repository

import (
	"context"
	"time"

	"presale-referral/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// CreatePurchase inserts a pending purchase
func (r *Repository) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

// GetPurchaseByID retrieves a purchase by ID
func (r *Repository) GetPurchaseByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// LockPurchase retrieves a purchase with a row lock (no-op on sqlite)
func (r *Repository) LockPurchase(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// GetPurchaseByTxHash retrieves a purchase by transaction hash
func (r *Repository) GetPurchaseByTxHash(ctx context.Context, txHash string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// MarkPurchaseConfirmed moves a pending purchase to confirmed. The affected row
// count is 1 for exactly one caller per purchase.
func (r *Repository) MarkPurchaseConfirmed(ctx context.Context, id uuid.UUID, blockNumber int64, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, models.PurchaseStatusPending).
		Updates(map[string]interface{}{
			"status":       models.PurchaseStatusConfirmed,
			"block_number": blockNumber,
			"confirmed_at": at,
		})
	return result.RowsAffected, result.Error
}

// ListPurchasesByUser returns a user's purchases newest first
func (r *Repository) ListPurchasesByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&purchases).Error
	return purchases, err
}

// CountPurchasesByUser counts a user's purchases
func (r *Repository) CountPurchasesByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// ListConfirmedPurchasesByUsers returns confirmed purchases made by any of userIDs
func (r *Repository) ListConfirmedPurchasesByUsers(ctx context.Context, userIDs []uint) ([]models.Purchase, error) {
	var purchases []models.Purchase
	if len(userIDs) == 0 {
		return purchases, nil
	}
	err := r.db.WithContext(ctx).
		Where("user_id IN ? AND status = ?", userIDs, models.PurchaseStatusConfirmed).
		Order("confirmed_at DESC").
		Find(&purchases).Error
	return purchases, err
}

// ListPendingPurchases returns pending purchases created before olderThan. Rows never
// checked come first, then the least recently checked.
func (r *Repository) ListPendingPurchases(ctx context.Context, olderThan time.Time, limit int) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PurchaseStatusPending, olderThan).
		Order("checked_at IS NOT NULL, checked_at ASC, created_at ASC").
		Limit(limit).
		Find(&purchases).Error
	return purchases, err
}

// MarkPurchaseChecked records a poller visit so the next batch starts elsewhere
func (r *Repository) MarkPurchaseChecked(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("id = ? AND status = ?", id, models.PurchaseStatusPending).
		Update("checked_at", at).Error
}

// SumConfirmedVolumeByReferrer totals confirmed purchases attributed to referrerID
func (r *Repository) SumConfirmedVolumeByReferrer(ctx context.Context, referrerID uint) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("referrer_id = ? AND status = ?", referrerID, models.PurchaseStatusConfirmed).
		Pluck("amount_usd", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}
	return sumDecimals(amounts), nil
}

// GetPurchasesByIDs loads purchases keyed by id
func (r *Repository) GetPurchasesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Purchase, error) {
	out := make(map[uuid.UUID]models.Purchase, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var purchases []models.Purchase
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&purchases).Error; err != nil {
		return nil, err
	}
	for _, p := range purchases {
		out[p.ID] = p
	}
	return out, nil
}
