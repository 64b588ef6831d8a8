package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"presale-referral/internal/apperrors"
	"presale-referral/internal/auth"
	"presale-referral/internal/models"
	"presale-referral/internal/services"
)

// PurchaseHandler serves /api/purchase
type PurchaseHandler struct {
	purchases *services.PurchaseService
	operators auth.Operators
}

func NewPurchaseHandler(purchases *services.PurchaseService, operators auth.Operators) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, operators: operators}
}

// RecordPurchase records a pending purchase for the current user
// POST /api/purchase/record
func (h *PurchaseHandler) RecordPurchase(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.RecordPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.purchases.RecordPurchase(c.Request.Context(), services.RecordPurchaseInput{
		UserID:       userID,
		TxHash:       req.TxHash,
		AmountUSD:    req.AmountUSD,
		AmountTokens: req.AmountTokens,
		TokenPrice:   req.TokenPrice,
		ReferrerCode: req.ReferrerCode,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    res,
	})
}

// ConfirmPurchase confirms a purchase at a block and mints its referral rewards
// POST /api/purchase/confirm/:purchaseId
func (h *PurchaseHandler) ConfirmPurchase(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	purchaseID, err := uuid.Parse(c.Param("purchaseId"))
	if err != nil {
		respondError(c, apperrors.ErrPurchaseNotFound)
		return
	}

	var req models.ConfirmPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidBlockNumber)
		return
	}

	by := services.Confirmer{UserID: userID, Operator: h.operators.IsOperator(c)}
	purchase, err := h.purchases.ConfirmPurchaseAs(c.Request.Context(), by, purchaseID, req.BlockNumber)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"purchaseId":  purchase.ID,
		"blockNumber": purchase.BlockNumber,
		"status":      purchase.Status,
	})
}

// GetPurchaseHistory returns a page of the user's purchases
// GET /api/purchase/history?limit=50&offset=0
func (h *PurchaseHandler) GetPurchaseHistory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	limit, offset := pageParams(c)
	purchases, total, err := h.purchases.GetPurchaseHistory(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"purchases":  purchases,
		"pagination": pagination(limit, offset, total),
	})
}

// VerifyTransaction looks a transaction up on chain
// GET /api/purchase/verify/:txHash
func (h *PurchaseHandler) VerifyTransaction(c *gin.Context) {
	v, err := h.purchases.VerifyTransaction(c.Request.Context(), c.Param("txHash"))
	if err != nil {
		respondError(c, err)
		return
	}

	status := "failed"
	if v.Success {
		status = "success"
	}

	respondOK(c, gin.H{
		"txHash":      v.TxHash,
		"blockNumber": v.BlockNumber,
		"status":      status,
	})
}

// GetPurchaseByTxHash returns the purchase recorded for a transaction
// GET /api/purchase/by-tx/:txHash
func (h *PurchaseHandler) GetPurchaseByTxHash(c *gin.Context) {
	purchase, err := h.purchases.GetPurchaseByTxHash(c.Request.Context(), c.Param("txHash"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{
		"purchase": purchase,
	})
}
