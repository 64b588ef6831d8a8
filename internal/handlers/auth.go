package handlers

import (
	"github.com/gin-gonic/gin"

	"presale-referral/internal/apperrors"
	"presale-referral/internal/auth"
	"presale-referral/internal/models"
	"presale-referral/internal/services"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// WalletNonce issues the single-use message a wallet signs to log in
// POST /auth/wallet/nonce
func (h *AuthHandler) WalletNonce(c *gin.Context) {
	var req models.WalletNonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	challenge, err := h.authService.IssueNonce(c.Request.Context(), req.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, challenge)
}

// WalletLogin authenticates a user by wallet address and a signature over the
// wallet's current nonce message.
// POST /auth/wallet
func (h *AuthHandler) WalletLogin(c *gin.Context) {
	var req models.WalletLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.authService.VerifyWalletSignature(c.Request.Context(), req.WalletAddress, req.Signature); err != nil {
		respondError(c, err)
		return
	}

	user, err := h.authService.ProcessWalletLogin(c.Request.Context(), req.WalletAddress, req.ReferrerCode)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := auth.GenerateToken(user.ID, user.WalletAddress)
	if err != nil {
		respondError(c, apperrors.Store(err))
		return
	}

	respondOK(c, gin.H{
		"token": token,
		"user":  user,
	})
}

// Logout handles user logout (stateless JWT, client-side only)
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	respondOK(c, gin.H{
		"message": "Successfully logged out",
	})
}

// GetMe returns the currently authenticated user's profile
// GET /auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.authService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"user": user,
	})
}
