package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"presale-referral/internal/apperrors"
	"presale-referral/internal/models"
	"presale-referral/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultLeaderboardLimit = 100
	MaxLeaderboardLimit     = 500
	DefaultActivityLimit    = 20
	MaxActivityLimit        = 100

	timelineDays    = 30
	topN            = 10
	overviewPending = 5
	dayLayout       = "2006-01-02"
)

// DashboardService computes read-only rollups from the source tables on every call
type DashboardService struct {
	repo      *repository.Repository
	referrals *ReferralService
	ledger    *LedgerService
	log       *zap.Logger
	now       func() time.Time
}

func NewDashboardService(db *gorm.DB, referrals *ReferralService, ledger *LedgerService, log *zap.Logger) *DashboardService {
	return &DashboardService{
		repo:      repository.NewRepository(db),
		referrals: referrals,
		ledger:    ledger,
		log:       log,
		now:       time.Now,
	}
}

// ClampLimit bounds limit to [1, maxLimit], using def when limit is not positive
func ClampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// GetLeaderboard ranks referrers by earnings, then referral count, then id
func (s *DashboardService) GetLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	limit = ClampLimit(limit, DefaultLeaderboardLimit, MaxLeaderboardLimit)

	earnings, err := s.repo.EarningsByReferrer(ctx)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	counts, err := s.repo.ReferralCounts(ctx)
	if err != nil {
		return nil, apperrors.Store(err)
	}

	ids := make([]uint, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	for id := range earnings {
		if _, ok := counts[id]; !ok {
			ids = append(ids, id)
		}
	}

	users, err := s.repo.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Store(err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(ids))
	for _, id := range ids {
		u, ok := users[id]
		if !ok || !u.IsActive {
			continue
		}
		total, ok := earnings[id]
		if !ok {
			total = decimal.Zero
		}
		entries = append(entries, models.LeaderboardEntry{
			UserID:         id,
			WalletAddress:  u.WalletAddress,
			ReferralCode:   u.Code(),
			TotalReferrals: counts[id],
			TotalEarnings:  total,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.TotalEarnings.Cmp(b.TotalEarnings); c != 0 {
			return c > 0
		}
		if a.TotalReferrals != b.TotalReferrals {
			return a.TotalReferrals > b.TotalReferrals
		}
		return a.UserID < b.UserID
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Ranking = i + 1
	}

	return entries, nil
}

// GetOverview returns stats, a pending reward summary and recent referee purchases
func (s *DashboardService) GetOverview(ctx context.Context, userID uint) (*models.DashboardOverview, error) {
	stats, err := s.referrals.GetReferralStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	pending, total, err := s.ledger.GetPendingRewards(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := models.PendingSummary{Total: total, Count: len(pending), Rewards: pending}
	if len(pending) > overviewPending {
		summary.Rewards = pending[:overviewPending]
	}

	referrals, err := s.repo.ListReferrals(ctx, userID, 0, 0)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	ids := referredIDs(referrals)

	purchases, err := s.repo.ListConfirmedPurchasesByUsers(ctx, ids)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	sortPurchasesByConfirmedDesc(purchases)
	if len(purchases) > topN {
		purchases = purchases[:topN]
	}

	users, err := s.repo.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Store(err)
	}

	recent := make([]models.RecentPurchase, 0, len(purchases))
	for _, p := range purchases {
		recent = append(recent, models.RecentPurchase{
			PurchaseID:    p.ID,
			UserID:        p.UserID,
			WalletAddress: users[p.UserID].WalletAddress,
			AmountUSD:     p.AmountUSD,
			AmountTokens:  p.AmountTokens,
			ConfirmedAt:   p.ConfirmedAt,
		})
	}

	return &models.DashboardOverview{
		Stats:           stats,
		PendingRewards:  summary,
		RecentPurchases: recent,
	}, nil
}

// GetEarnings breaks rewards down by type and day
func (s *DashboardService) GetEarnings(ctx context.Context, userID uint) (*models.EarningsReport, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	rewards, err := s.repo.ListRewardsByReferrer(ctx, userID, "")
	if err != nil {
		return nil, apperrors.Store(err)
	}

	byType := map[models.RewardType]*models.EarningsByType{}
	for _, t := range []models.RewardType{models.RewardTypeTokens, models.RewardTypeUSDT} {
		byType[t] = &models.EarningsByType{RewardType: t, Total: decimal.Zero, Pending: decimal.Zero, Claimed: decimal.Zero}
	}

	timeline, index := s.emptyTimeline()
	for _, r := range rewards {
		agg, ok := byType[r.RewardType]
		if !ok {
			agg = &models.EarningsByType{RewardType: r.RewardType, Total: decimal.Zero, Pending: decimal.Zero, Claimed: decimal.Zero}
			byType[r.RewardType] = agg
		}
		agg.Total = agg.Total.Add(r.Amount)
		agg.Count++
		if r.Status == models.RewardStatusClaimed {
			agg.Claimed = agg.Claimed.Add(r.Amount)
		} else {
			agg.Pending = agg.Pending.Add(r.Amount)
		}

		if i, ok := index[r.EarnedAt.UTC().Format(dayLayout)]; ok {
			timeline[i].Amount = timeline[i].Amount.Add(r.Amount)
			timeline[i].Count++
		}
	}

	types := make([]models.EarningsByType, 0, len(byType))
	for _, agg := range byType {
		types = append(types, *agg)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].RewardType < types[j].RewardType })

	top := append([]models.ReferralReward(nil), rewards...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Amount.GreaterThan(top[j].Amount) })
	if len(top) > topN {
		top = top[:topN]
	}

	return &models.EarningsReport{
		ByType:     types,
		Timeline:   timeline,
		TopRewards: top,
	}, nil
}

// GetReferralAnalytics returns the conversion funnel, daily sign-ups and top referees
func (s *DashboardService) GetReferralAnalytics(ctx context.Context, userID uint) (*models.ReferralAnalytics, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	items, total, err := s.referrals.GetReferralList(ctx, userID, 0, 0)
	if err != nil {
		return nil, err
	}

	funnel := models.ReferralFunnel{
		TotalReferrals: total,
		TotalVolume:    decimal.Zero,
		ConversionRate: decimal.Zero,
	}
	for _, it := range items {
		if it.TotalPurchasesCount > 0 {
			funnel.Converted++
		}
		if it.TotalPurchasesCount > 1 {
			funnel.RepeatBuyers++
		}
		funnel.TotalVolume = funnel.TotalVolume.Add(it.TotalPurchasesAmount)
	}
	if total > 0 {
		funnel.ConversionRate = decimal.NewFromInt(funnel.Converted).
			Mul(hundred).
			Div(decimal.NewFromInt(total)).
			Round(2)
	}

	timeline, index := s.emptyTimeline()
	for _, it := range items {
		if i, ok := index[it.RegisteredAt.UTC().Format(dayLayout)]; ok {
			timeline[i].Count++
		}
	}

	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ReferredID)
	}
	purchases, err := s.repo.ListConfirmedPurchasesByUsers(ctx, ids)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	for _, p := range purchases {
		if p.ConfirmedAt == nil {
			continue
		}
		if i, ok := index[p.ConfirmedAt.UTC().Format(dayLayout)]; ok {
			timeline[i].Amount = timeline[i].Amount.Add(p.AmountUSD)
		}
	}

	top := make([]models.ReferralListItem, 0, len(items))
	for _, it := range items {
		if it.TotalPurchasesCount > 0 {
			top = append(top, it)
		}
	}
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].TotalPurchasesAmount.GreaterThan(top[j].TotalPurchasesAmount)
	})
	if len(top) > topN {
		top = top[:topN]
	}

	return &models.ReferralAnalytics{
		Funnel:       funnel,
		Timeline:     timeline,
		TopReferrals: top,
	}, nil
}

// GetRecentActivity merges referral, purchase and reward events newest first
func (s *DashboardService) GetRecentActivity(ctx context.Context, userID uint, limit int) ([]models.ActivityEvent, error) {
	limit = ClampLimit(limit, DefaultActivityLimit, MaxActivityLimit)

	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	referrals, err := s.repo.ListReferrals(ctx, userID, limit, 0)
	if err != nil {
		return nil, apperrors.Store(err)
	}

	all, err := s.repo.ListReferrals(ctx, userID, 0, 0)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	ids := referredIDs(all)

	purchases, err := s.repo.ListConfirmedPurchasesByUsers(ctx, ids)
	if err != nil {
		return nil, apperrors.Store(err)
	}

	rewards, err := s.repo.ListRewardsByReferrer(ctx, userID, "")
	if err != nil {
		return nil, apperrors.Store(err)
	}

	// Rewards from deeper levels name buyers outside the direct referral list
	buyers := ids
	for _, r := range rewards {
		buyers = append(buyers, r.ReferredID)
	}
	users, err := s.repo.GetUsersByIDs(ctx, uniqueIDs(buyers))
	if err != nil {
		return nil, apperrors.Store(err)
	}

	events := make([]models.ActivityEvent, 0, len(referrals)+len(purchases)+len(rewards))
	for _, r := range referrals {
		events = append(events, models.ActivityEvent{
			Type:          models.ActivityReferralRegistered,
			Timestamp:     r.RegisteredAt,
			UserID:        r.ReferredID,
			WalletAddress: users[r.ReferredID].WalletAddress,
			ReferenceID:   r.ReferralCode,
		})
	}
	for _, p := range purchases {
		if p.ConfirmedAt == nil {
			continue
		}
		amount := p.AmountUSD
		events = append(events, models.ActivityEvent{
			Type:          models.ActivityPurchaseConfirmed,
			Timestamp:     *p.ConfirmedAt,
			UserID:        p.UserID,
			WalletAddress: users[p.UserID].WalletAddress,
			Amount:        &amount,
			ReferenceID:   p.ID.String(),
		})
	}
	for _, r := range rewards {
		amount := r.Amount
		events = append(events, models.ActivityEvent{
			Type:          models.ActivityRewardEarned,
			Timestamp:     r.EarnedAt,
			UserID:        r.ReferredID,
			WalletAddress: users[r.ReferredID].WalletAddress,
			Amount:        &amount,
			ReferenceID:   r.ID.String(),
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

func (s *DashboardService) requireUser(ctx context.Context, userID uint) error {
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.Store(err)
	}
	return nil
}

// emptyTimeline returns timelineDays zeroed buckets ending today (UTC) and a date index
func (s *DashboardService) emptyTimeline() ([]models.DailyAmount, map[string]int) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	timeline := make([]models.DailyAmount, timelineDays)
	index := make(map[string]int, timelineDays)
	for i := 0; i < timelineDays; i++ {
		day := today.AddDate(0, 0, i-timelineDays+1).Format(dayLayout)
		timeline[i] = models.DailyAmount{Date: day, Amount: decimal.Zero}
		index[day] = i
	}
	return timeline, index
}

func referredIDs(referrals []models.Referral) []uint {
	ids := make([]uint, 0, len(referrals))
	for _, r := range referrals {
		ids = append(ids, r.ReferredID)
	}
	return ids
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortPurchasesByConfirmedDesc(purchases []models.Purchase) {
	sort.SliceStable(purchases, func(i, j int) bool {
		a, b := purchases[i].ConfirmedAt, purchases[j].ConfirmedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
}
