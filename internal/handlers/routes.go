package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"presale-referral/internal/auth"
	"presale-referral/internal/middleware"
)

// Routes bundles the handlers mounted on the router
type Routes struct {
	Auth      *AuthHandler
	Referral  *ReferralHandler
	Purchase  *PurchaseHandler
	Dashboard *DashboardHandler

	// Operators may attach and settle payouts
	Operators auth.Operators

	// Limiter throttles purchase and claim writes; nil disables throttling
	Limiter    middleware.RateLimiter
	WriteLimit int
	Logger     *zap.Logger
}

// Register mounts the auth and /api routes on router
func (r *Routes) Register(router *gin.Engine) {
	writeLimit := middleware.RateLimit(r.Limiter, r.WriteLimit, time.Minute, r.Logger)

	// Authentication routes (public)
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/wallet/nonce", writeLimit, r.Auth.WalletNonce)
		authRoutes.POST("/wallet", r.Auth.WalletLogin)
		authRoutes.POST("/logout", r.Auth.Logout)
	}

	// Authenticated /auth/me route
	authProtected := router.Group("/auth")
	authProtected.Use(auth.AuthMiddleware(r.Logger))
	{
		authProtected.GET("/me", r.Auth.GetMe)
	}

	// Public referral routes
	router.GET("/api/referral/validate/:code", r.Referral.ValidateCode)

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(r.Logger))
	{
		referral := api.Group("/referral")
		{
			referral.GET("/code", r.Referral.GetReferralCode)
			referral.POST("/register", r.Referral.RegisterReferral)
			referral.GET("/stats", r.Referral.GetReferralStats)
			referral.GET("/list", r.Referral.GetReferralList)
			referral.GET("/rewards/pending", r.Referral.GetPendingRewards)
			referral.GET("/rewards/export", r.Referral.ExportRewards)
			referral.POST("/claim", writeLimit, r.Referral.ClaimRewards)
			referral.GET("/claims", r.Referral.GetClaims)
			referral.POST("/claims/:claimId/payout", auth.RequireOperator(r.Operators), r.Referral.AttachPayout)
			referral.POST("/claims/:claimId/settle", auth.RequireOperator(r.Operators), r.Referral.SettleClaim)
			referral.GET("/chain", r.Referral.GetReferralChain)
			referral.GET("/leaderboard", r.Referral.GetLeaderboard)
		}

		purchase := api.Group("/purchase")
		{
			purchase.POST("/record", writeLimit, r.Purchase.RecordPurchase)
			purchase.POST("/confirm/:purchaseId", writeLimit, r.Purchase.ConfirmPurchase)
			purchase.GET("/history", r.Purchase.GetPurchaseHistory)
			purchase.GET("/verify/:txHash", r.Purchase.VerifyTransaction)
			purchase.GET("/by-tx/:txHash", r.Purchase.GetPurchaseByTxHash)
		}

		dashboard := api.Group("/dashboard")
		{
			dashboard.GET("/overview", r.Dashboard.GetOverview)
			dashboard.GET("/earnings", r.Dashboard.GetEarnings)
			dashboard.GET("/referrals", r.Dashboard.GetReferralAnalytics)
			dashboard.GET("/activity", r.Dashboard.GetRecentActivity)
		}
	}
}
