package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"presale-referral/internal/apperrors"
	"presale-referral/internal/blockchain"
	"presale-referral/internal/database"
	"presale-referral/internal/metrics"
	"presale-referral/internal/models"
	"presale-referral/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LedgerService owns reward rows and payout claims
type LedgerService struct {
	db       *gorm.DB
	repo     *repository.Repository
	verifier blockchain.Verifier
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewLedgerService(db *gorm.DB, verifier blockchain.Verifier, log *zap.Logger, m *metrics.Metrics) *LedgerService {
	return &LedgerService{
		db:       db,
		repo:     repository.NewRepository(db),
		verifier: verifier,
		log:      log,
		metrics:  m,
	}
}

// CreditRewards inserts one pending row per computed reward on the caller's transaction
func (s *LedgerService) CreditRewards(ctx context.Context, tx *gorm.DB, purchase *models.Purchase, rewards []ComputedReward) ([]models.ReferralReward, error) {
	if len(rewards) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	rows := make([]models.ReferralReward, 0, len(rewards))
	for _, r := range rewards {
		rows = append(rows, models.ReferralReward{
			ID:         uuid.New(),
			PurchaseID: purchase.ID,
			ReferrerID: r.BeneficiaryID,
			ReferredID: purchase.UserID,
			Level:      r.Level,
			Percentage: r.Percentage,
			RewardType: r.RewardType,
			Amount:     r.Amount,
			Status:     models.RewardStatusPending,
			EarnedAt:   now,
		})
	}

	if err := s.repo.WithTx(tx).CreateRewards(ctx, rows); err != nil {
		return nil, err
	}

	for _, r := range rows {
		s.metrics.RewardCredited(r.Level)
	}
	return rows, nil
}

// GetPendingRewards returns the user's unclaimed rewards and their total
func (s *LedgerService) GetPendingRewards(ctx context.Context, userID uint) ([]models.PendingReward, decimal.Decimal, error) {
	rewards, err := s.repo.ListRewardsByReferrer(ctx, userID, models.RewardStatusPending)
	if err != nil {
		return nil, decimal.Zero, apperrors.Store(err)
	}

	purchaseIDs := make([]uuid.UUID, 0, len(rewards))
	userIDs := make([]uint, 0, len(rewards))
	for _, r := range rewards {
		purchaseIDs = append(purchaseIDs, r.PurchaseID)
		userIDs = append(userIDs, r.ReferredID)
	}

	purchases, err := s.repo.GetPurchasesByIDs(ctx, purchaseIDs)
	if err != nil {
		return nil, decimal.Zero, apperrors.Store(err)
	}
	users, err := s.repo.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, decimal.Zero, apperrors.Store(err)
	}

	total := decimal.Zero
	out := make([]models.PendingReward, 0, len(rewards))
	for _, r := range rewards {
		total = total.Add(r.Amount)
		out = append(out, models.PendingReward{
			ID:             r.ID,
			PurchaseID:     r.PurchaseID,
			ReferredID:     r.ReferredID,
			ReferredWallet: users[r.ReferredID].WalletAddress,
			Level:          r.Level,
			RewardType:     r.RewardType,
			Amount:         r.Amount,
			PurchaseAmount: purchases[r.PurchaseID].AmountUSD,
			EarnedAt:       r.EarnedAt,
		})
	}

	return out, total, nil
}

// ClaimRewards marks every named reward claimed or none of them
func (s *LedgerService) ClaimRewards(ctx context.Context, userID uint, rewardType string, rewardIDs []string) (*models.ClaimResult, error) {
	rt := models.RewardType(strings.ToLower(strings.TrimSpace(rewardType)))
	if !rt.Valid() {
		return nil, apperrors.ErrInvalidRewardType
	}

	ids, err := parseRewardIDs(rewardIDs)
	if err != nil {
		return nil, err
	}

	payoutRef, err := blockchain.NewPayoutReference()
	if err != nil {
		return nil, apperrors.Store(err)
	}

	var claim *models.RewardClaim
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		rows, err := repo.LockRewards(ctx, ids)
		if err != nil {
			return err
		}
		if len(rows) != len(ids) {
			return apperrors.ErrInvalidClaim
		}

		total := decimal.Zero
		for _, r := range rows {
			if r.ReferrerID != userID || r.Status != models.RewardStatusPending || r.RewardType != rt {
				return apperrors.ErrInvalidClaim
			}
			total = total.Add(r.Amount)
		}

		now := time.Now().UTC()
		claim = &models.RewardClaim{
			ID:          uuid.New(),
			UserID:      userID,
			RewardType:  rt,
			TotalAmount: total,
			RewardCount: len(rows),
			TxHash:      payoutRef,
			Status:      models.ClaimStatusSubmitted,
			CreatedAt:   now,
		}
		if err := repo.CreateClaim(ctx, claim); err != nil {
			return err
		}

		updated, err := repo.MarkRewardsClaimed(ctx, userID, ids, claim.ID, payoutRef, now)
		if err != nil {
			return err
		}
		if updated != int64(len(ids)) {
			return apperrors.ErrInvalidClaim
		}
		return nil
	})
	if err != nil {
		if apperrors.IsClientError(err) {
			s.log.Warn("claim rejected", zap.Uint("user_id", userID), zap.Int("reward_count", len(ids)), zap.Error(err))
		}
		return nil, apperrors.From(err)
	}

	s.metrics.RewardsClaimed(string(rt), claim.RewardCount)
	s.log.Info("rewards claimed",
		zap.Uint("user_id", userID),
		zap.String("claim_id", claim.ID.String()),
		zap.String("total_amount", claim.TotalAmount.String()),
		zap.Int("reward_count", claim.RewardCount),
		zap.String("tx_hash", payoutRef),
	)

	return &models.ClaimResult{
		ClaimID:     claim.ID,
		TotalAmount: claim.TotalAmount,
		RewardCount: claim.RewardCount,
		TxHash:      claim.TxHash,
		RewardType:  claim.RewardType,
	}, nil
}

func parseRewardIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidClaim, "rewardIds must be a non-empty array")
	}

	seen := make(map[uuid.UUID]bool, len(raw))
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(strings.TrimSpace(r))
		if err != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidClaim, fmt.Sprintf("invalid reward id %q", r))
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// ListClaims returns the user's payout claims newest first
func (s *LedgerService) ListClaims(ctx context.Context, userID uint) ([]models.RewardClaim, error) {
	claims, err := s.repo.ListClaimsByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return claims, nil
}

// SettleClaim moves a submitted claim to confirmed or failed
func (s *LedgerService) SettleClaim(ctx context.Context, claimID uuid.UUID, status models.ClaimStatus) (*models.RewardClaim, error) {
	claim, err := s.repo.GetClaimByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrClaimNotFound
		}
		return nil, apperrors.Store(err)
	}

	if !claim.Status.CanTransitionTo(status) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTransition,
			fmt.Sprintf("claim cannot move from %s to %s", claim.Status, status))
	}

	now := time.Now().UTC()
	rows, err := s.repo.UpdateClaimStatus(ctx, claimID, claim.Status, status, now)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	if rows == 0 {
		return nil, apperrors.ErrInvalidTransition
	}

	claim.Status = status
	claim.SettledAt = &now

	s.log.Info("claim settled", zap.String("claim_id", claimID.String()), zap.String("status", string(status)))
	return claim, nil
}

// AttachPayoutTx records the chain transaction that paid a submitted claim.
// A claim takes one payout transaction and a transaction pays at most one claim.
func (s *LedgerService) AttachPayoutTx(ctx context.Context, claimID uuid.UUID, txHash string) (*models.RewardClaim, error) {
	txHash = strings.TrimSpace(txHash)
	if !blockchain.ValidateTxHash(txHash) {
		return nil, apperrors.ErrInvalidTxHash
	}

	claim, err := s.repo.GetClaimByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrClaimNotFound
		}
		return nil, apperrors.Store(err)
	}
	if claim.Status != models.ClaimStatusSubmitted {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTransition,
			fmt.Sprintf("claim is already %s", claim.Status))
	}
	if claim.PayoutTxHash != nil {
		return nil, apperrors.ErrPayoutAttached
	}

	now := time.Now().UTC()
	rows, err := s.repo.AttachPayoutTx(ctx, claimID, txHash, now)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.WithMessage(apperrors.ErrDuplicateTransaction, "payout transaction already attached to another claim")
		}
		return nil, apperrors.Store(err)
	}
	if rows == 0 {
		return nil, apperrors.ErrPayoutAttached
	}

	claim.PayoutTxHash = &txHash
	claim.PayoutSubmittedAt = &now
	claim.CheckedAt = nil

	s.log.Info("payout attached", zap.String("claim_id", claimID.String()), zap.String("payout_tx_hash", txHash))
	return claim, nil
}

// ReconcileClaims settles submitted claims from the chain. A claim whose payout
// transaction succeeded is confirmed and one whose transaction reverted is failed.
// A claim with no payout transaction, or one the chain cannot confirm, is failed
// once expireAfter has passed since the payout was attached (or since the claim
// was created when none was). Claims left open rotate to the back of the queue.
func (s *LedgerService) ReconcileClaims(ctx context.Context, limit int, expireAfter time.Duration) (int, error) {
	if s.verifier == nil {
		return 0, nil
	}

	claims, err := s.repo.ListClaimsToReconcile(ctx, limit)
	if err != nil {
		return 0, apperrors.Store(err)
	}

	settled := 0
	for _, claim := range claims {
		if err := ctx.Err(); err != nil {
			return settled, err
		}

		next := s.claimOutcome(ctx, &claim, expireAfter)
		if next == "" {
			if err := s.repo.MarkClaimChecked(ctx, claim.ID, time.Now().UTC()); err != nil {
				return settled, apperrors.Store(err)
			}
			continue
		}

		if _, err := s.SettleClaim(ctx, claim.ID, next); err != nil {
			if errors.Is(err, apperrors.ErrInvalidTransition) {
				continue
			}
			return settled, err
		}
		settled++
	}

	return settled, nil
}

// claimOutcome returns the status a claim should settle to, or "" to leave it open
func (s *LedgerService) claimOutcome(ctx context.Context, claim *models.RewardClaim, expireAfter time.Duration) models.ClaimStatus {
	expired := expireAfter > 0 && time.Since(claim.ExpiryBase()) > expireAfter

	if claim.PayoutTxHash != nil {
		v, err := s.verifier.VerifyTransaction(ctx, *claim.PayoutTxHash)
		switch {
		case err != nil:
			s.log.Warn("claim verification failed", zap.String("claim_id", claim.ID.String()), zap.Error(err))
		case v.Found && v.Success:
			return models.ClaimStatusConfirmed
		case v.Found:
			return models.ClaimStatusFailed
		}
	}

	if expired {
		return models.ClaimStatusFailed
	}
	return ""
}

// ExportRewards renders the user's rewards and claims as an xlsx workbook
func (s *LedgerService) ExportRewards(ctx context.Context, userID uint) (*bytes.Buffer, string, error) {
	rewards, err := s.repo.ListRewardsByReferrer(ctx, userID, "")
	if err != nil {
		return nil, "", apperrors.Store(err)
	}
	claims, err := s.repo.ListClaimsByUser(ctx, userID)
	if err != nil {
		return nil, "", apperrors.Store(err)
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create header style: %w", err)
	}

	const rewardsSheet = "Rewards"
	if err := f.SetSheetName("Sheet1", rewardsSheet); err != nil {
		return nil, "", err
	}

	rewardHeader := []interface{}{"Reward ID", "Purchase ID", "Referred User", "Level", "Percentage", "Type", "Amount", "Status", "Earned At", "Claimed At", "Claim Tx"}
	if err := writeSheet(f, rewardsSheet, rewardHeader, headerStyle, len(rewards), func(i int) []interface{} {
		r := rewards[i]
		return []interface{}{
			r.ID.String(), r.PurchaseID.String(), r.ReferredID, r.Level, r.Percentage.String(),
			string(r.RewardType), r.Amount.String(), string(r.Status),
			r.EarnedAt.Format(time.RFC3339), formatTimePtr(r.ClaimedAt), stringPtr(r.ClaimTxHash),
		}
	}); err != nil {
		return nil, "", err
	}

	const claimsSheet = "Claims"
	if _, err := f.NewSheet(claimsSheet); err != nil {
		return nil, "", err
	}

	claimHeader := []interface{}{"Claim ID", "Type", "Total Amount", "Rewards", "Reference", "Payout Tx", "Status", "Created At", "Settled At"}
	if err := writeSheet(f, claimsSheet, claimHeader, headerStyle, len(claims), func(i int) []interface{} {
		c := claims[i]
		return []interface{}{
			c.ID.String(), string(c.RewardType), c.TotalAmount.String(), c.RewardCount, c.TxHash,
			stringPtr(c.PayoutTxHash), string(c.Status), c.CreatedAt.Format(time.RFC3339), formatTimePtr(c.SettledAt),
		}
	}); err != nil {
		return nil, "", err
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, "", fmt.Errorf("failed to write workbook: %w", err)
	}

	filename := fmt.Sprintf("referral_rewards_%d_%s.xlsx", userID, time.Now().UTC().Format("20060102"))
	return buf, filename, nil
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, style, rows int, row func(int) []interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetCellStyle(sheet, "A1", last+"1", style); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 20); err != nil {
		return err
	}

	for i := 0; i < rows; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := row(i)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func stringPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
