package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"presale-referral/internal/apperrors"
	"presale-referral/internal/database"
	"presale-referral/internal/metrics"
	"presale-referral/internal/models"
	"presale-referral/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	referralCodeLength   = 8
	referralCodeAttempts = 10
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ReferralService owns users' referral codes and the referrer binding
type ReferralService struct {
	db      *gorm.DB
	repo    *repository.Repository
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewReferralService(db *gorm.DB, log *zap.Logger, m *metrics.Metrics) *ReferralService {
	return &ReferralService{
		db:      db,
		repo:    repository.NewRepository(db),
		log:     log,
		metrics: m,
	}
}

// NormalizeCode trims and upper-cases a user-supplied referral code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GetOrCreateCode returns the user's code, generating and persisting one on first use
func (s *ReferralService) GetOrCreateCode(ctx context.Context, userID uint) (string, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrUserNotFound
		}
		return "", apperrors.Store(err)
	}

	if user.ReferralCode != nil {
		return *user.ReferralCode, nil
	}

	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := generateReferralCode()
		if err != nil {
			return "", apperrors.Store(err)
		}

		exists, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return "", apperrors.Store(err)
		}
		if exists {
			continue
		}

		rows, err := s.repo.SetReferralCode(ctx, userID, code)
		if err != nil {
			if database.IsUniqueViolation(err) {
				continue
			}
			return "", apperrors.Store(err)
		}

		if rows == 0 {
			// Someone else set the code first
			user, err = s.repo.GetUserByID(ctx, userID)
			if err != nil {
				return "", apperrors.Store(err)
			}
			return user.Code(), nil
		}

		s.log.Info("generated referral code", zap.Uint("user_id", userID), zap.String("code", code))
		return code, nil
	}

	return "", apperrors.Store(fmt.Errorf("could not generate a unique referral code after %d attempts", referralCodeAttempts))
}

func generateReferralCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(referralCodeAlphabet)))
	b := make([]byte, referralCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		b[i] = referralCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// RegisterReferral binds userID to the owner of referrerCode. The user update and
// the edge insert commit together or not at all.
func (s *ReferralService) RegisterReferral(ctx context.Context, userID uint, referrerCode string) (*models.Referral, error) {
	code := NormalizeCode(referrerCode)
	if code == "" {
		return nil, apperrors.ErrMissingReferrerCode
	}

	var referral *models.Referral
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		referral, err = s.registerReferralTx(ctx, tx, userID, code)
		return err
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			// Lost a race with a concurrent registration for the same user
			if _, lookupErr := s.repo.GetReferralByReferred(ctx, userID); lookupErr == nil {
				err = apperrors.ErrAlreadyReferred
			}
		}
		s.metrics.ReferralRegistered(registrationResult(err))
		return nil, apperrors.From(err)
	}

	s.metrics.ReferralRegistered("bound")
	s.log.Info("referral registered",
		zap.Uint("user_id", userID),
		zap.Uint("referrer_id", referral.ReferrerID),
		zap.String("code", code),
	)
	return referral, nil
}

// registerReferralTx runs the binding on tx. code must already be normalized.
func (s *ReferralService) registerReferralTx(ctx context.Context, tx *gorm.DB, userID uint, code string) (*models.Referral, error) {
	repo := s.repo.WithTx(tx)

	user, err := repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}

	if user.ReferrerID != nil {
		return nil, apperrors.ErrAlreadyReferred
	}
	if user.ReferralCode != nil && *user.ReferralCode == code {
		return nil, apperrors.ErrSelfReferral
	}

	referrer, err := repo.GetActiveUserByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCode
		}
		return nil, err
	}
	if referrer.ID == user.ID {
		return nil, apperrors.ErrSelfReferral
	}

	cyclic, err := s.isAncestor(ctx, repo, user.ID, referrer)
	if err != nil {
		return nil, err
	}
	if cyclic {
		return nil, apperrors.WithMessage(apperrors.ErrSelfReferral, "referral would create a cycle")
	}

	rows, err := repo.BindReferrer(ctx, user.ID, referrer.ID)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, apperrors.ErrAlreadyReferred
	}

	referral := &models.Referral{
		ReferrerID:   referrer.ID,
		ReferredID:   user.ID,
		ReferralCode: code,
		RegisteredAt: time.Now().UTC(),
	}
	if err := repo.CreateReferral(ctx, referral); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.Wrap(apperrors.ErrAlreadyReferred, err)
		}
		return nil, err
	}

	return referral, nil
}

// isAncestor reports whether userID already sits above start in the graph
func (s *ReferralService) isAncestor(ctx context.Context, repo *repository.Repository, userID uint, start *models.User) (bool, error) {
	visited := map[uint]bool{start.ID: true}
	current := start
	for current.ReferrerID != nil {
		next := *current.ReferrerID
		if next == userID {
			return true, nil
		}
		if visited[next] {
			return false, nil
		}
		visited[next] = true

		u, err := repo.GetUserByID(ctx, next)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, nil
			}
			return false, err
		}
		current = u
	}
	return false, nil
}

func registrationResult(err error) string {
	appErr := apperrors.From(err)
	switch appErr.Kind {
	case apperrors.KindInternal:
		return "error"
	default:
		return strings.ToLower(appErr.Code)
	}
}

// ValidateCode reports whether code belongs to an active user
func (s *ReferralService) ValidateCode(ctx context.Context, code string) (bool, error) {
	code = NormalizeCode(code)
	if code == "" {
		return false, nil
	}

	_, err := s.repo.GetActiveUserByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, apperrors.Store(err)
	}
	return true, nil
}

// GetReferralSummary returns the caller's code with totals computed from source tables
func (s *ReferralService) GetReferralSummary(ctx context.Context, userID uint) (*models.ReferralSummary, error) {
	code, err := s.GetOrCreateCode(ctx, userID)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountReferrals(ctx, userID)
	if err != nil {
		return nil, apperrors.Store(err)
	}

	earnings, err := s.repo.SumRewards(ctx, userID, "")
	if err != nil {
		return nil, apperrors.Store(err)
	}

	return &models.ReferralSummary{
		ReferralCode:   code,
		TotalReferrals: total,
		TotalEarnings:  earnings,
	}, nil
}

// GetReferralList returns a page of direct referrals and the total count
func (s *ReferralService) GetReferralList(ctx context.Context, userID uint, limit, offset int) ([]models.ReferralListItem, int64, error) {
	total, err := s.repo.CountReferrals(ctx, userID)
	if err != nil {
		return nil, 0, apperrors.Store(err)
	}

	referrals, err := s.repo.ListReferrals(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Store(err)
	}

	ids := make([]uint, 0, len(referrals))
	for _, r := range referrals {
		ids = append(ids, r.ReferredID)
	}

	users, err := s.repo.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, 0, apperrors.Store(err)
	}

	purchases, err := s.repo.ListConfirmedPurchasesByUsers(ctx, ids)
	if err != nil {
		return nil, 0, apperrors.Store(err)
	}

	rewards, err := s.repo.ListRewardsByReferrer(ctx, userID, "")
	if err != nil {
		return nil, 0, apperrors.Store(err)
	}

	items := make([]models.ReferralListItem, 0, len(referrals))
	index := make(map[uint]int, len(referrals))
	for i, r := range referrals {
		index[r.ReferredID] = i
		items = append(items, models.ReferralListItem{
			ReferredID:           r.ReferredID,
			WalletAddress:        users[r.ReferredID].WalletAddress,
			RegisteredAt:         r.RegisteredAt,
			TotalPurchasesAmount: decimal.Zero,
			TotalRewardsEarned:   decimal.Zero,
		})
	}

	for _, p := range purchases {
		item := &items[index[p.UserID]]
		item.TotalPurchasesCount++
		item.TotalPurchasesAmount = item.TotalPurchasesAmount.Add(p.AmountUSD)
		if p.ConfirmedAt != nil && (item.FirstPurchaseAt == nil || p.ConfirmedAt.Before(*item.FirstPurchaseAt)) {
			at := *p.ConfirmedAt
			item.FirstPurchaseAt = &at
		}
	}

	for _, rw := range rewards {
		if i, ok := index[rw.ReferredID]; ok {
			items[i].TotalRewardsEarned = items[i].TotalRewardsEarned.Add(rw.Amount)
		}
	}

	return items, total, nil
}

// GetReferralStats aggregates a referrer's network and reward totals
func (s *ReferralService) GetReferralStats(ctx context.Context, userID uint) (*models.ReferralStats, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Store(err)
	}

	referrals, err := s.repo.ListReferrals(ctx, userID, 0, 0)
	if err != nil {
		return nil, apperrors.Store(err)
	}

	ids := make([]uint, 0, len(referrals))
	for _, r := range referrals {
		ids = append(ids, r.ReferredID)
	}

	purchases, err := s.repo.ListConfirmedPurchasesByUsers(ctx, ids)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	active := make(map[uint]bool)
	for _, p := range purchases {
		active[p.UserID] = true
	}

	volume, err := s.repo.SumConfirmedVolumeByReferrer(ctx, userID)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	pending, err := s.repo.SumRewards(ctx, userID, models.RewardStatusPending)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	claimed, err := s.repo.SumRewards(ctx, userID, models.RewardStatusClaimed)
	if err != nil {
		return nil, apperrors.Store(err)
	}

	return &models.ReferralStats{
		ReferralCode:     user.Code(),
		TotalReferrals:   int64(len(referrals)),
		ActiveReferrals:  int64(len(active)),
		TotalSalesVolume: volume,
		TotalEarnings:    pending.Add(claimed),
		PendingRewards:   pending,
		ClaimedRewards:   claimed,
	}, nil
}
