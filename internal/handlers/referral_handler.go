package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"presale-referral/internal/apperrors"
	"presale-referral/internal/models"
	"presale-referral/internal/services"
)

// ReferralHandler serves the registry, ledger and chain endpoints under /api/referral
type ReferralHandler struct {
	referrals *services.ReferralService
	ledger    *services.LedgerService
	chain     *services.ChainService
	dashboard *services.DashboardService
}

func NewReferralHandler(
	referrals *services.ReferralService,
	ledger *services.LedgerService,
	chain *services.ChainService,
	dashboard *services.DashboardService,
) *ReferralHandler {
	return &ReferralHandler{
		referrals: referrals,
		ledger:    ledger,
		chain:     chain,
		dashboard: dashboard,
	}
}

// GetReferralCode returns the user's referral code, creating it on first use
// GET /api/referral/code
func (h *ReferralHandler) GetReferralCode(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	summary, err := h.referrals.GetReferralSummary(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, summary)
}

// RegisterReferral binds the current user to a referrer code
// POST /api/referral/register
func (h *ReferralHandler) RegisterReferral(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.RegisterReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	referral, err := h.referrals.RegisterReferral(c.Request.Context(), userID, req.ReferrerCode)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"referrerCode": referral.ReferralCode,
	})
}

// GetReferralStats returns aggregated referral statistics
// GET /api/referral/stats
func (h *ReferralHandler) GetReferralStats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	stats, err := h.referrals.GetReferralStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, stats)
}

// GetReferralList returns a page of the user's referees
// GET /api/referral/list?limit=50&offset=0
func (h *ReferralHandler) GetReferralList(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	limit, offset := pageParams(c)
	items, total, err := h.referrals.GetReferralList(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"referrals":  items,
		"pagination": pagination(limit, offset, total),
	})
}

// ValidateCode reports whether a referral code belongs to an active user
// GET /api/referral/validate/:code
func (h *ReferralHandler) ValidateCode(c *gin.Context) {
	code := c.Param("code")

	valid, err := h.referrals.ValidateCode(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"code":  code,
		"valid": valid,
	})
}

// GetPendingRewards lists the user's unclaimed rewards
// GET /api/referral/rewards/pending
func (h *ReferralHandler) GetPendingRewards(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	rewards, total, err := h.ledger.GetPendingRewards(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"rewards":      rewards,
		"totalPending": total,
		"count":        len(rewards),
	})
}

// ClaimRewards claims a batch of pending rewards
// POST /api/referral/claim
func (h *ReferralHandler) ClaimRewards(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.ClaimRewardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.WithMessage(apperrors.ErrInvalidClaim, "rewardType and rewardIds are required"))
		return
	}

	result, err := h.ledger.ClaimRewards(c.Request.Context(), userID, req.RewardType, req.RewardIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, result)
}

// GetClaims lists the user's payout claims
// GET /api/referral/claims
func (h *ReferralHandler) GetClaims(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	claims, err := h.ledger.ListClaims(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"claims": claims,
		"count":  len(claims),
	})
}

// AttachPayout records the chain transaction that paid a claim. Operators only.
// POST /api/referral/claims/:claimId/payout
func (h *ReferralHandler) AttachPayout(c *gin.Context) {
	claimID, err := uuid.Parse(c.Param("claimId"))
	if err != nil {
		respondError(c, apperrors.ErrClaimNotFound)
		return
	}

	var req models.AttachPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidTxHash)
		return
	}

	claim, err := h.ledger.AttachPayoutTx(c.Request.Context(), claimID, req.TxHash)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{"claim": claim})
}

// SettleClaim marks a submitted claim confirmed or failed by hand. Operators only.
// POST /api/referral/claims/:claimId/settle
func (h *ReferralHandler) SettleClaim(c *gin.Context) {
	claimID, err := uuid.Parse(c.Param("claimId"))
	if err != nil {
		respondError(c, apperrors.ErrClaimNotFound)
		return
	}

	var req models.SettleClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	claim, err := h.ledger.SettleClaim(c.Request.Context(), claimID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{"claim": claim})
}

// ExportRewards downloads the user's rewards and claims as xlsx
// GET /api/referral/rewards/export
func (h *ReferralHandler) ExportRewards(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	buf, filename, err := h.ledger.ExportRewards(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// GetReferralChain returns the multi-level downline
// GET /api/referral/chain?depth=3
func (h *ReferralHandler) GetReferralChain(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	depth := services.ClampDepth(queryInt(c, "depth", services.DefaultChainDepth))
	chain, err := h.chain.GetReferralChain(c.Request.Context(), userID, depth)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"chain":          chain,
		"grouped":        services.GroupByLevel(chain),
		"totalReferrals": len(chain),
		"depth":          depth,
	})
}

// GetLeaderboard ranks referrers by total earnings
// GET /api/referral/leaderboard?limit=100
func (h *ReferralHandler) GetLeaderboard(c *gin.Context) {
	limit := services.ClampLimit(queryInt(c, "limit", services.DefaultLeaderboardLimit),
		services.DefaultLeaderboardLimit, services.MaxLeaderboardLimit)

	board, err := h.dashboard.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"leaderboard": board,
		"count":       len(board),
	})
}
