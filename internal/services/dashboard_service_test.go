package services

import (
	"context"
	"testing"
	"time"

	"presale-referral/internal/apperrors"
	"presale-referral/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 100, ClampLimit(0, 100, 500))
	assert.Equal(t, 100, ClampLimit(-1, 100, 500))
	assert.Equal(t, 42, ClampLimit(42, 100, 500))
	assert.Equal(t, 500, ClampLimit(10000, 100, 500))
}

func TestGetLeaderboard(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	c := env.createUser(t, "wallet-c")
	d := env.createUser(t, "wallet-d")
	e := env.createUser(t, "wallet-e")
	f := env.createUser(t, "wallet-f")
	g := env.createUser(t, "wallet-g")
	h := env.createUser(t, "wallet-h")
	i := env.createUser(t, "wallet-i")

	env.refer(t, a, b)
	env.refer(t, a, c)
	env.refer(t, d, e)
	env.refer(t, f, g)
	env.refer(t, h, i)

	env.buy(t, b, 1, "1000")
	env.buy(t, e, 2, "100")

	require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", h.ID).Update("is_active", false).Error)

	board, err := env.dashboard.GetLeaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 3)

	assert.Equal(t, a.ID, board[0].UserID)
	assert.Equal(t, 1, board[0].Ranking)
	assert.Equal(t, int64(2), board[0].TotalReferrals)
	assert.True(t, board[0].TotalEarnings.Equal(decimal.NewFromInt(100)))
	assert.NotEmpty(t, board[0].ReferralCode)

	assert.Equal(t, d.ID, board[1].UserID)
	assert.True(t, board[1].TotalEarnings.Equal(decimal.NewFromInt(10)))

	assert.Equal(t, f.ID, board[2].UserID)
	assert.Equal(t, 3, board[2].Ranking)
	assert.True(t, board[2].TotalEarnings.IsZero())

	board, err = env.dashboard.GetLeaderboard(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, board, 2)
}

func TestGetLeaderboardCountsClaimedEarnings(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	env.refer(t, a, b)
	env.buy(t, b, 1, "1000")

	pending, _, err := env.ledger.GetPendingRewards(ctx, a.ID)
	require.NoError(t, err)
	_, err = env.ledger.ClaimRewards(ctx, a.ID, "tokens", rewardIDs(pending))
	require.NoError(t, err)

	board, err := env.dashboard.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.True(t, board[0].TotalEarnings.Equal(decimal.NewFromInt(100)))
}

func TestGetOverview(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	c := env.createUser(t, "wallet-c")
	env.refer(t, a, b)
	env.refer(t, a, c)

	for n := 1; n <= 7; n++ {
		env.buy(t, b, n, "100")
	}

	overview, err := env.dashboard.GetOverview(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(2), overview.Stats.TotalReferrals)
	assert.Equal(t, int64(1), overview.Stats.ActiveReferrals)
	assert.True(t, overview.Stats.TotalSalesVolume.Equal(decimal.NewFromInt(700)))

	assert.Equal(t, 7, overview.PendingRewards.Count)
	assert.Len(t, overview.PendingRewards.Rewards, 5)
	assert.True(t, overview.PendingRewards.Total.Equal(decimal.NewFromInt(70)))

	require.Len(t, overview.RecentPurchases, 7)
	assert.Equal(t, "wallet-b", overview.RecentPurchases[0].WalletAddress)

	_, err = env.dashboard.GetOverview(ctx, 9999)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestGetEarnings(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	env.refer(t, a, b)
	env.buy(t, b, 1, "1000")
	env.buy(t, b, 2, "300")

	pending, _, err := env.ledger.GetPendingRewards(ctx, a.ID)
	require.NoError(t, err)
	var big models.PendingReward
	for _, p := range pending {
		if p.Amount.Equal(decimal.NewFromInt(100)) {
			big = p
		}
	}
	_, err = env.ledger.ClaimRewards(ctx, a.ID, "tokens", []string{big.ID.String()})
	require.NoError(t, err)

	report, err := env.dashboard.GetEarnings(ctx, a.ID)
	require.NoError(t, err)

	require.Len(t, report.ByType, 2)
	tokens := report.ByType[0]
	assert.Equal(t, models.RewardTypeTokens, tokens.RewardType)
	assert.Equal(t, 2, tokens.Count)
	assert.True(t, tokens.Total.Equal(decimal.NewFromInt(130)))
	assert.True(t, tokens.Claimed.Equal(decimal.NewFromInt(100)))
	assert.True(t, tokens.Pending.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, models.RewardTypeUSDT, report.ByType[1].RewardType)
	assert.True(t, report.ByType[1].Total.IsZero())

	require.Len(t, report.Timeline, 30)
	today := time.Now().UTC().Format("2006-01-02")
	last := report.Timeline[len(report.Timeline)-1]
	assert.Equal(t, today, last.Date)
	assert.Equal(t, 2, last.Count)
	assert.True(t, last.Amount.Equal(decimal.NewFromInt(130)))

	require.Len(t, report.TopRewards, 2)
	assert.True(t, report.TopRewards[0].Amount.Equal(decimal.NewFromInt(100)))
}

func TestGetReferralAnalytics(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	c := env.createUser(t, "wallet-c")
	d := env.createUser(t, "wallet-d")
	env.refer(t, a, b)
	env.refer(t, a, c)
	env.refer(t, a, d)

	env.buy(t, b, 1, "1000")
	env.buy(t, b, 2, "500")
	env.buy(t, c, 3, "200")

	analytics, err := env.dashboard.GetReferralAnalytics(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(3), analytics.Funnel.TotalReferrals)
	assert.Equal(t, int64(2), analytics.Funnel.Converted)
	assert.Equal(t, int64(1), analytics.Funnel.RepeatBuyers)
	assert.True(t, analytics.Funnel.TotalVolume.Equal(decimal.NewFromInt(1700)))
	assert.True(t, analytics.Funnel.ConversionRate.Equal(decimal.RequireFromString("66.67")), "rate %s", analytics.Funnel.ConversionRate)

	last := analytics.Timeline[len(analytics.Timeline)-1]
	assert.Equal(t, 3, last.Count)
	assert.True(t, last.Amount.Equal(decimal.NewFromInt(1700)))

	require.Len(t, analytics.TopReferrals, 2)
	assert.Equal(t, b.ID, analytics.TopReferrals[0].ReferredID)
	assert.Equal(t, c.ID, analytics.TopReferrals[1].ReferredID)

	empty, err := env.dashboard.GetReferralAnalytics(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Funnel.TotalReferrals)
	assert.True(t, empty.Funnel.ConversionRate.IsZero())
}

func TestGetRecentActivity(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	c := env.createUser(t, "wallet-c")
	env.refer(t, a, b)
	env.refer(t, a, c)
	env.buy(t, b, 1, "100")
	env.buy(t, c, 2, "100")

	events, err := env.dashboard.GetRecentActivity(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 6)

	counts := map[models.ActivityType]int{}
	for i, ev := range events {
		counts[ev.Type]++
		if i > 0 {
			assert.False(t, ev.Timestamp.After(events[i-1].Timestamp), "events must be newest first")
		}
	}
	assert.Equal(t, 2, counts[models.ActivityReferralRegistered])
	assert.Equal(t, 2, counts[models.ActivityPurchaseConfirmed])
	assert.Equal(t, 2, counts[models.ActivityRewardEarned])

	events, err = env.dashboard.GetRecentActivity(ctx, a.ID, 4)
	require.NoError(t, err)
	assert.Len(t, events, 4)

	_, err = env.dashboard.GetRecentActivity(ctx, 9999, 10)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestGetRecentActivityNamesIndirectBuyers(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	c := env.createUser(t, "wallet-c")
	env.refer(t, a, b)
	env.refer(t, b, c)
	env.buy(t, c, 1, "100")

	events, err := env.dashboard.GetRecentActivity(ctx, a.ID, 0)
	require.NoError(t, err)

	var rewards []models.ActivityEvent
	for _, ev := range events {
		if ev.Type == models.ActivityRewardEarned {
			rewards = append(rewards, ev)
		}
	}
	require.Len(t, rewards, 1)
	assert.Equal(t, c.ID, rewards[0].UserID)
	assert.Equal(t, "wallet-c", rewards[0].WalletAddress)
}
