package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"presale-referral/internal/apperrors"
	"presale-referral/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// seedRewards has referred buy n times so referrer earns n level-1 rewards
func seedRewards(t *testing.T, env *testEnv, referrer, referred *models.User, n int, start int) []models.PendingReward {
	t.Helper()
	for i := 0; i < n; i++ {
		env.buy(t, referred, start+i, "100")
	}
	pending, _, err := env.ledger.GetPendingRewards(context.Background(), referrer.ID)
	require.NoError(t, err)
	return pending
}

func rewardIDs(rewards []models.PendingReward) []string {
	ids := make([]string, 0, len(rewards))
	for _, r := range rewards {
		ids = append(ids, r.ID.String())
	}
	return ids
}

func TestGetPendingRewards(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	env.refer(t, a, b)

	env.buy(t, b, 1, "1000")
	env.buy(t, b, 2, "250")

	pending, total, err := env.ledger.GetPendingRewards(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.True(t, total.Equal(decimal.RequireFromString("125")), "total %s", total)

	for _, p := range pending {
		assert.Equal(t, b.ID, p.ReferredID)
		assert.Equal(t, "wallet-b", p.ReferredWallet)
		assert.Equal(t, 1, p.Level)
		assert.Equal(t, models.RewardTypeTokens, p.RewardType)
		assert.True(t, p.PurchaseAmount.IsPositive())
	}

	none, total, err := env.ledger.GetPendingRewards(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.True(t, total.IsZero())
}

func TestClaimRewardsAllOrNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	c := env.createUser(t, "wallet-c")
	d := env.createUser(t, "wallet-d")
	env.refer(t, a, b)
	env.refer(t, c, d)

	mine := seedRewards(t, env, a, b, 3, 1)
	foreign := seedRewards(t, env, c, d, 1, 10)
	require.Len(t, mine, 3)
	require.Len(t, foreign, 1)

	ids := append(rewardIDs(mine), foreign[0].ID.String())
	_, err := env.ledger.ClaimRewards(ctx, a.ID, "tokens", ids)
	assert.ErrorIs(t, err, apperrors.ErrInvalidClaim)

	assert.Equal(t, int64(0), env.countRows(t, &models.ReferralReward{}, "status = ?", models.RewardStatusClaimed))
	assert.Equal(t, int64(0), env.countRows(t, &models.RewardClaim{}, ""))

	_, err = env.ledger.ClaimRewards(ctx, a.ID, "tokens", append(rewardIDs(mine), uuid.NewString()))
	assert.ErrorIs(t, err, apperrors.ErrInvalidClaim)
	assert.Equal(t, int64(0), env.countRows(t, &models.ReferralReward{}, "status = ?", models.RewardStatusClaimed))

	res, err := env.ledger.ClaimRewards(ctx, a.ID, "TOKENS", rewardIDs(mine))
	require.NoError(t, err)
	assert.Equal(t, 3, res.RewardCount)
	assert.True(t, res.TotalAmount.Equal(decimal.NewFromInt(30)))

	assert.Equal(t, int64(3), env.countRows(t, &models.ReferralReward{}, "status = ? AND claim_id = ?", models.RewardStatusClaimed, res.ClaimID))
	assert.Equal(t, int64(1), env.countRows(t, &models.ReferralReward{}, "status = ?", models.RewardStatusPending))
}

func TestClaimRewardsRejectsAlreadyClaimed(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	env.refer(t, a, b)

	pending := seedRewards(t, env, a, b, 2, 1)
	require.Len(t, pending, 2)

	_, err := env.ledger.ClaimRewards(ctx, a.ID, "tokens", []string{pending[0].ID.String()})
	require.NoError(t, err)

	_, err = env.ledger.ClaimRewards(ctx, a.ID, "tokens", rewardIDs(pending))
	assert.ErrorIs(t, err, apperrors.ErrInvalidClaim)

	var still models.ReferralReward
	require.NoError(t, env.db.First(&still, "id = ?", pending[1].ID).Error)
	assert.Equal(t, models.RewardStatusPending, still.Status)
	assert.Nil(t, still.ClaimID)
}

func TestClaimRewardsValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	env.refer(t, a, b)
	pending := seedRewards(t, env, a, b, 1, 1)

	_, err := env.ledger.ClaimRewards(ctx, a.ID, "btc", rewardIDs(pending))
	assert.ErrorIs(t, err, apperrors.ErrInvalidRewardType)

	_, err = env.ledger.ClaimRewards(ctx, a.ID, "tokens", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidClaim)

	_, err = env.ledger.ClaimRewards(ctx, a.ID, "tokens", []string{"not-a-uuid"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidClaim)

	// Pending tokens reward requested as usdt
	_, err = env.ledger.ClaimRewards(ctx, a.ID, "usdt", rewardIDs(pending))
	assert.ErrorIs(t, err, apperrors.ErrInvalidClaim)

	// Another user cannot claim it
	_, err = env.ledger.ClaimRewards(ctx, b.ID, "tokens", rewardIDs(pending))
	assert.ErrorIs(t, err, apperrors.ErrInvalidClaim)

	assert.Equal(t, int64(0), env.countRows(t, &models.RewardClaim{}, ""))
}

func TestClaimRewardsDeduplicatesIDs(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	env.refer(t, a, b)
	pending := seedRewards(t, env, a, b, 1, 1)

	id := pending[0].ID.String()
	res, err := env.ledger.ClaimRewards(context.Background(), a.ID, "tokens", []string{id, id, " " + id + " "})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RewardCount)
	assert.True(t, res.TotalAmount.Equal(decimal.NewFromInt(10)))
}

func TestSettleClaimTransitions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	env.refer(t, a, b)
	pending := seedRewards(t, env, a, b, 1, 1)

	res, err := env.ledger.ClaimRewards(ctx, a.ID, "tokens", rewardIDs(pending))
	require.NoError(t, err)

	_, err = env.ledger.SettleClaim(ctx, uuid.New(), models.ClaimStatusConfirmed)
	assert.ErrorIs(t, err, apperrors.ErrClaimNotFound)

	_, err = env.ledger.SettleClaim(ctx, res.ClaimID, models.ClaimStatusSubmitted)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	claim, err := env.ledger.SettleClaim(ctx, res.ClaimID, models.ClaimStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimStatusConfirmed, claim.Status)
	assert.NotNil(t, claim.SettledAt)

	_, err = env.ledger.SettleClaim(ctx, res.ClaimID, models.ClaimStatusFailed)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	claims, err := env.ledger.ListClaims(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, models.ClaimStatusConfirmed, claims[0].Status)

	// Claimed rewards stay claimed whatever happens to the payout
	assert.Equal(t, int64(1), env.countRows(t, &models.ReferralReward{}, "status = ?", models.RewardStatusClaimed))
}

// claimEach claims every pending reward in its own claim
func claimEach(t *testing.T, env *testEnv, referrer *models.User, pending []models.PendingReward) []*models.ClaimResult {
	t.Helper()
	var claims []*models.ClaimResult
	for _, p := range pending {
		res, err := env.ledger.ClaimRewards(context.Background(), referrer.ID, "tokens", []string{p.ID.String()})
		require.NoError(t, err)
		claims = append(claims, res)
	}
	return claims
}

func claimStatuses(t *testing.T, env *testEnv, userID uint) map[uuid.UUID]models.ClaimStatus {
	t.Helper()
	list, err := env.ledger.ListClaims(context.Background(), userID)
	require.NoError(t, err)
	out := map[uuid.UUID]models.ClaimStatus{}
	for _, c := range list {
		out[c.ID] = c.Status
	}
	return out
}

func TestAttachPayoutTx(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	env.refer(t, a, b)
	claims := claimEach(t, env, a, seedRewards(t, env, a, b, 3, 1))

	_, err := env.ledger.AttachPayoutTx(ctx, claims[0].ClaimID, "0x1234")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTxHash)

	_, err = env.ledger.AttachPayoutTx(ctx, uuid.New(), evmHash(900))
	assert.ErrorIs(t, err, apperrors.ErrClaimNotFound)

	claim, err := env.ledger.AttachPayoutTx(ctx, claims[0].ClaimID, evmHash(900))
	require.NoError(t, err)
	require.NotNil(t, claim.PayoutTxHash)
	assert.Equal(t, evmHash(900), *claim.PayoutTxHash)
	assert.NotNil(t, claim.PayoutSubmittedAt)
	assert.Equal(t, models.ClaimStatusSubmitted, claim.Status)

	_, err = env.ledger.AttachPayoutTx(ctx, claims[0].ClaimID, evmHash(901))
	assert.ErrorIs(t, err, apperrors.ErrPayoutAttached)

	_, err = env.ledger.AttachPayoutTx(ctx, claims[1].ClaimID, evmHash(900))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateTransaction)

	_, err = env.ledger.SettleClaim(ctx, claims[2].ClaimID, models.ClaimStatusFailed)
	require.NoError(t, err)
	_, err = env.ledger.AttachPayoutTx(ctx, claims[2].ClaimID, evmHash(902))
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestReconcileClaims(t *testing.T) {
	verifier := newFakeVerifier()
	env := newTestEnv(t, verifier)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	env.refer(t, a, b)

	for i := 1; i <= 4; i++ {
		verifier.set(evmHash(i), int64(1000+i), true)
	}
	pending := seedRewards(t, env, a, b, 4, 1)
	require.Len(t, pending, 4)
	claims := claimEach(t, env, a, pending)

	verifier.set(evmHash(101), 50, true)
	verifier.set(evmHash(102), 51, false)
	for i, hash := range []string{evmHash(101), evmHash(102), evmHash(104)} {
		idx := []int{0, 1, 3}[i]
		_, err := env.ledger.AttachPayoutTx(ctx, claims[idx].ClaimID, hash)
		require.NoError(t, err)
	}

	settled, err := env.ledger.ReconcileClaims(ctx, 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	byID := claimStatuses(t, env, a.ID)
	assert.Equal(t, models.ClaimStatusConfirmed, byID[claims[0].ClaimID])
	assert.Equal(t, models.ClaimStatusFailed, byID[claims[1].ClaimID])
	assert.Equal(t, models.ClaimStatusSubmitted, byID[claims[2].ClaimID])
	assert.Equal(t, models.ClaimStatusSubmitted, byID[claims[3].ClaimID])

	// The claim's own reference is never looked up on chain
	for _, c := range claims {
		assert.Zero(t, verifier.queried[c.TxHash])
	}

	// Expiry still applies while the chain is unreachable
	verifier.err = errors.New("rpc down")
	settled, err = env.ledger.ReconcileClaims(ctx, 10, time.Nanosecond)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	byID = claimStatuses(t, env, a.ID)
	assert.Equal(t, models.ClaimStatusFailed, byID[claims[2].ClaimID])
	assert.Equal(t, models.ClaimStatusFailed, byID[claims[3].ClaimID])
}

func TestReconcileClaimsRotatesPastOpenClaims(t *testing.T) {
	verifier := newFakeVerifier()
	env := newTestEnv(t, verifier)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	env.refer(t, a, b)

	for i := 1; i <= 2; i++ {
		verifier.set(evmHash(i), int64(1000+i), true)
	}
	claims := claimEach(t, env, a, seedRewards(t, env, a, b, 2, 1))

	_, err := env.ledger.AttachPayoutTx(ctx, claims[0].ClaimID, evmHash(200))
	require.NoError(t, err)
	_, err = env.ledger.AttachPayoutTx(ctx, claims[1].ClaimID, evmHash(201))
	require.NoError(t, err)
	verifier.set(evmHash(201), 60, true)

	total := 0
	for pass := 0; pass < 2; pass++ {
		n, err := env.ledger.ReconcileClaims(ctx, 1, time.Hour)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, 1, total)

	byID := claimStatuses(t, env, a.ID)
	assert.Equal(t, models.ClaimStatusSubmitted, byID[claims[0].ClaimID])
	assert.Equal(t, models.ClaimStatusConfirmed, byID[claims[1].ClaimID])
}

func TestExportRewards(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.createUser(t, "wallet-a")
	b := env.createUser(t, "wallet-b")
	env.refer(t, a, b)
	pending := seedRewards(t, env, a, b, 2, 1)

	_, err := env.ledger.ClaimRewards(ctx, a.ID, "tokens", []string{pending[0].ID.String()})
	require.NoError(t, err)

	buf, filename, err := env.ledger.ExportRewards(ctx, a.ID)
	require.NoError(t, err)
	assert.Contains(t, filename, "referral_rewards_")
	assert.Contains(t, filename, ".xlsx")

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Rewards", "Claims"}, f.GetSheetList())

	rewardRows, err := f.GetRows("Rewards")
	require.NoError(t, err)
	require.Len(t, rewardRows, 3)
	assert.Equal(t, "Reward ID", rewardRows[0][0])

	claimRows, err := f.GetRows("Claims")
	require.NoError(t, err)
	require.Len(t, claimRows, 2)
	assert.Equal(t, "submitted", claimRows[1][6])
}
