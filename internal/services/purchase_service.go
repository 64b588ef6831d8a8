package services

import (
	"context"
	"errors"
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
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecordPurchaseInput is a validated purchase submission
type RecordPurchaseInput struct {
	UserID       uint
	TxHash       string
	AmountUSD    decimal.Decimal
	AmountTokens decimal.Decimal
	TokenPrice   decimal.Decimal
	ReferrerCode string
}

// PurchaseService records purchases and confirms them. Confirmation and reward
// minting share one transaction.
type PurchaseService struct {
	db         *gorm.DB
	repo       *repository.Repository
	referrals  *ReferralService
	chain      *ChainService
	calculator *RewardCalculator
	ledger     *LedgerService
	verifier   blockchain.Verifier
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewPurchaseService(
	db *gorm.DB,
	referrals *ReferralService,
	chain *ChainService,
	calculator *RewardCalculator,
	ledger *LedgerService,
	verifier blockchain.Verifier,
	log *zap.Logger,
	m *metrics.Metrics,
) *PurchaseService {
	return &PurchaseService{
		db:         db,
		repo:       repository.NewRepository(db),
		referrals:  referrals,
		chain:      chain,
		calculator: calculator,
		ledger:     ledger,
		verifier:   verifier,
		log:        log,
		metrics:    m,
	}
}

func (in *RecordPurchaseInput) validate() error {
	in.TxHash = strings.TrimSpace(in.TxHash)
	if !blockchain.ValidateTxHash(in.TxHash) {
		return apperrors.ErrInvalidTxHash
	}
	if !in.AmountUSD.IsPositive() {
		return apperrors.WithMessage(apperrors.ErrInvalidAmount, "amountUsd must be positive")
	}
	if !in.AmountTokens.IsPositive() {
		return apperrors.WithMessage(apperrors.ErrInvalidAmount, "amountTokens must be positive")
	}
	if !in.TokenPrice.IsPositive() {
		return apperrors.WithMessage(apperrors.ErrInvalidAmount, "tokenPrice must be positive")
	}
	return nil
}

// RecordPurchase stores a pending purchase keyed by its tx hash. A referrer code is
// bound first when the buyer has no referrer yet.
func (s *PurchaseService) RecordPurchase(ctx context.Context, in RecordPurchaseInput) (*models.RecordPurchaseResponse, error) {
	if err := in.validate(); err != nil {
		s.metrics.PurchaseRecorded("invalid")
		return nil, err
	}

	existing, err := s.repo.GetPurchaseByTxHash(ctx, in.TxHash)
	if err == nil && existing != nil {
		s.metrics.PurchaseRecorded("duplicate")
		return nil, apperrors.ErrDuplicateTransaction
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Store(err)
	}

	var purchase *models.Purchase
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		user, err := repo.GetUserByID(ctx, in.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrUserNotFound
			}
			return err
		}

		referrerID := user.ReferrerID
		code := NormalizeCode(in.ReferrerCode)
		if referrerID == nil && code != "" {
			var referral *models.Referral
			// Savepoint so a rejected code leaves the purchase insert usable
			bindErr := tx.Transaction(func(sp *gorm.DB) error {
				var err error
				referral, err = s.referrals.registerReferralTx(ctx, sp, user.ID, code)
				return err
			})
			switch {
			case bindErr == nil:
				referrerID = &referral.ReferrerID
				s.metrics.ReferralRegistered("bound")
			case apperrors.IsClientError(bindErr):
				s.log.Warn("referrer code ignored for purchase",
					zap.Uint("user_id", user.ID),
					zap.String("code", code),
					zap.Error(bindErr),
				)
			default:
				return bindErr
			}
		}

		purchase = &models.Purchase{
			ID:           uuid.New(),
			UserID:       user.ID,
			TxHash:       in.TxHash,
			AmountUSD:    in.AmountUSD,
			AmountTokens: in.AmountTokens,
			TokenPrice:   in.TokenPrice,
			Status:       models.PurchaseStatusPending,
			ReferrerID:   referrerID,
			CreatedAt:    time.Now().UTC(),
		}
		return repo.CreatePurchase(ctx, purchase)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			// Re-check once: a concurrent submission of the same hash won
			if _, lookupErr := s.repo.GetPurchaseByTxHash(ctx, in.TxHash); lookupErr == nil {
				s.metrics.PurchaseRecorded("duplicate")
				return nil, apperrors.ErrDuplicateTransaction
			}
		}
		s.metrics.PurchaseRecorded("error")
		return nil, apperrors.From(err)
	}

	s.metrics.PurchaseRecorded("recorded")
	s.log.Info("purchase recorded",
		zap.String("purchase_id", purchase.ID.String()),
		zap.Uint("user_id", purchase.UserID),
		zap.String("tx_hash", purchase.TxHash),
		zap.String("amount_usd", purchase.AmountUSD.String()),
		zap.Bool("has_referrer", purchase.ReferrerID != nil),
	)

	return &models.RecordPurchaseResponse{
		PurchaseID:   purchase.ID,
		TxHash:       purchase.TxHash,
		AmountUSD:    purchase.AmountUSD,
		AmountTokens: purchase.AmountTokens,
		HasReferrer:  purchase.ReferrerID != nil,
	}, nil
}

// Confirmer identifies who asks for a manual confirmation
type Confirmer struct {
	UserID   uint
	Operator bool
}

// ConfirmPurchaseAs confirms on behalf of a caller. Operators may confirm any
// purchase. Buyers may confirm their own purchase only when the block is checked
// against the chain; without a verifier the block number is trusted, so only
// operators may supply it.
func (s *PurchaseService) ConfirmPurchaseAs(ctx context.Context, by Confirmer, purchaseID uuid.UUID, blockNumber int64) (*models.Purchase, error) {
	if blockNumber <= 0 {
		return nil, apperrors.ErrInvalidBlockNumber
	}

	if !by.Operator {
		if s.verifier == nil {
			return nil, apperrors.WithMessage(apperrors.ErrForbidden, "only operators can confirm purchases without chain verification")
		}
		purchase, err := s.GetPurchase(ctx, purchaseID)
		if err != nil {
			return nil, err
		}
		if purchase.UserID != by.UserID {
			return nil, apperrors.WithMessage(apperrors.ErrForbidden, "purchase belongs to another user")
		}
	}

	return s.ConfirmPurchase(ctx, purchaseID, blockNumber)
}

// ConfirmPurchase moves a purchase to confirmed and mints its rewards atomically.
// Exactly one caller per purchase wins the conditional update.
func (s *PurchaseService) ConfirmPurchase(ctx context.Context, purchaseID uuid.UUID, blockNumber int64) (*models.Purchase, error) {
	if blockNumber <= 0 {
		return nil, apperrors.ErrInvalidBlockNumber
	}

	if s.verifier != nil {
		if err := s.verifyForConfirm(ctx, purchaseID, blockNumber); err != nil {
			s.metrics.PurchaseConfirmed(confirmResult(err))
			return nil, err
		}
	}

	var confirmed *models.Purchase
	var minted []models.ReferralReward
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		purchase, err := repo.LockPurchase(ctx, purchaseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrPurchaseNotFound
			}
			return err
		}
		if purchase.IsConfirmed() {
			return apperrors.ErrAlreadyConfirmed
		}

		now := time.Now().UTC()
		rows, err := repo.MarkPurchaseConfirmed(ctx, purchaseID, blockNumber, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperrors.ErrAlreadyConfirmed
		}

		purchase.Status = models.PurchaseStatusConfirmed
		purchase.BlockNumber = &blockNumber
		purchase.ConfirmedAt = &now

		if purchase.ReferrerID != nil {
			upline, err := s.buildUpline(ctx, tx, purchase)
			if err != nil {
				return err
			}
			minted, err = s.ledger.CreditRewards(ctx, tx, purchase, s.calculator.Calculate(purchase, upline))
			if err != nil {
				return err
			}
		}

		confirmed = purchase
		return nil
	})
	if err != nil {
		if !apperrors.IsClientError(err) {
			// Re-check once: a concurrent confirmation may have committed first
			if p, lookupErr := s.repo.GetPurchaseByID(ctx, purchaseID); lookupErr == nil && p.IsConfirmed() {
				err = apperrors.ErrAlreadyConfirmed
			}
		}
		s.metrics.PurchaseConfirmed(confirmResult(err))
		return nil, apperrors.From(err)
	}

	s.metrics.PurchaseConfirmed("confirmed")
	s.log.Info("purchase confirmed",
		zap.String("purchase_id", purchaseID.String()),
		zap.Int64("block_number", blockNumber),
		zap.Int("rewards_minted", len(minted)),
	)
	return confirmed, nil
}

// buildUpline returns the direct referrer captured on the purchase followed by its ancestors
func (s *PurchaseService) buildUpline(ctx context.Context, tx *gorm.DB, purchase *models.Purchase) ([]UplineMember, error) {
	levels := s.calculator.MaxLevels()
	if levels == 0 {
		return nil, nil
	}

	upline := []UplineMember{{UserID: *purchase.ReferrerID, Level: 1}}
	if levels == 1 {
		return upline, nil
	}

	ancestors, err := s.chain.GetUpline(ctx, tx, *purchase.ReferrerID, levels-1)
	if err != nil {
		return nil, err
	}
	for _, a := range ancestors {
		upline = append(upline, UplineMember{UserID: a.UserID, Level: a.Level + 1})
	}
	return upline, nil
}

func (s *PurchaseService) verifyForConfirm(ctx context.Context, purchaseID uuid.UUID, blockNumber int64) error {
	purchase, err := s.repo.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrPurchaseNotFound
		}
		return apperrors.Store(err)
	}
	if purchase.IsConfirmed() {
		return apperrors.ErrAlreadyConfirmed
	}

	v, err := s.verifier.VerifyTransaction(ctx, purchase.TxHash)
	if err != nil {
		s.log.Warn("chain verification unavailable", zap.String("tx_hash", purchase.TxHash), zap.Error(err))
		return apperrors.Wrap(apperrors.ErrTxNotVerified, err)
	}
	if !v.Found || !v.Success {
		return apperrors.ErrTxNotVerified
	}
	if v.BlockNumber != blockNumber {
		return apperrors.WithMessage(apperrors.ErrTxNotVerified, "block number does not match the chain")
	}
	return nil
}

func confirmResult(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrAlreadyConfirmed):
		return "already_confirmed"
	case errors.Is(err, apperrors.ErrTxNotVerified):
		return "not_verified"
	case apperrors.IsClientError(err):
		return "rejected"
	default:
		return "error"
	}
}

// GetPurchase returns a purchase by id
func (s *PurchaseService) GetPurchase(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	p, err := s.repo.GetPurchaseByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPurchaseNotFound
		}
		return nil, apperrors.Store(err)
	}
	return p, nil
}

// GetPurchaseByTxHash returns a purchase by its transaction hash
func (s *PurchaseService) GetPurchaseByTxHash(ctx context.Context, txHash string) (*models.Purchase, error) {
	txHash = strings.TrimSpace(txHash)
	if !blockchain.ValidateTxHash(txHash) {
		return nil, apperrors.ErrInvalidTxHash
	}

	p, err := s.repo.GetPurchaseByTxHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPurchaseNotFound
		}
		return nil, apperrors.Store(err)
	}
	return p, nil
}

// GetPurchaseHistory returns a page of the user's purchases and the total count
func (s *PurchaseService) GetPurchaseHistory(ctx context.Context, userID uint, limit, offset int) ([]models.Purchase, int64, error) {
	total, err := s.repo.CountPurchasesByUser(ctx, userID)
	if err != nil {
		return nil, 0, apperrors.Store(err)
	}
	purchases, err := s.repo.ListPurchasesByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Store(err)
	}
	return purchases, total, nil
}

// VerifyTransaction asks the chain about txHash
func (s *PurchaseService) VerifyTransaction(ctx context.Context, txHash string) (*blockchain.TxVerification, error) {
	txHash = strings.TrimSpace(txHash)
	if !blockchain.ValidateTxHash(txHash) {
		return nil, apperrors.ErrInvalidTxHash
	}
	if s.verifier == nil {
		return nil, apperrors.WithMessage(apperrors.ErrTxNotVerified, "on-chain verification is not configured")
	}

	v, err := s.verifier.VerifyTransaction(ctx, txHash)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTxNotVerified, err)
	}
	if !v.Found {
		return nil, apperrors.ErrTxNotFound
	}
	return v, nil
}

// ConfirmPendingPurchases confirms pending purchases older than olderThan whose
// transactions the chain reports as successful. Purchases it cannot confirm are
// stamped as checked and rotate to the back of the queue.
func (s *PurchaseService) ConfirmPendingPurchases(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	if s.verifier == nil {
		return 0, nil
	}

	pending, err := s.repo.ListPendingPurchases(ctx, olderThan, limit)
	if err != nil {
		return 0, apperrors.Store(err)
	}

	confirmed := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}

		ok, err := s.confirmFromChain(ctx, &p)
		if err != nil {
			return confirmed, err
		}
		if ok {
			confirmed++
			continue
		}
		if err := s.repo.MarkPurchaseChecked(ctx, p.ID, time.Now().UTC()); err != nil {
			return confirmed, apperrors.Store(err)
		}
	}

	return confirmed, nil
}

func (s *PurchaseService) confirmFromChain(ctx context.Context, p *models.Purchase) (bool, error) {
	v, err := s.verifier.VerifyTransaction(ctx, p.TxHash)
	if err != nil {
		s.log.Warn("pending purchase verification failed", zap.String("tx_hash", p.TxHash), zap.Error(err))
		return false, nil
	}
	if !v.Found || !v.Success || v.BlockNumber <= 0 {
		return false, nil
	}

	if _, err := s.ConfirmPurchase(ctx, p.ID, v.BlockNumber); err != nil {
		if apperrors.IsClientError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
