package handlers

import (
	"github.com/gin-gonic/gin"

	"presale-referral/internal/services"
)

// DashboardHandler serves the read-only rollups under /api/dashboard
type DashboardHandler struct {
	dashboard *services.DashboardService
}

func NewDashboardHandler(dashboard *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// GET /api/dashboard/overview
func (h *DashboardHandler) GetOverview(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	overview, err := h.dashboard.GetOverview(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, overview)
}

// GET /api/dashboard/earnings
func (h *DashboardHandler) GetEarnings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	report, err := h.dashboard.GetEarnings(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

// GET /api/dashboard/referrals
func (h *DashboardHandler) GetReferralAnalytics(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	analytics, err := h.dashboard.GetReferralAnalytics(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, analytics)
}

// GET /api/dashboard/activity?limit=20
func (h *DashboardHandler) GetRecentActivity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	events, err := h.dashboard.GetRecentActivity(c.Request.Context(), userID, queryInt(c, "limit", services.DefaultActivityLimit))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"activity": events,
		"count":    len(events),
	})
}
