package auth

import (
	"net/http"

	"presale-referral/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// Operators is the set of wallets allowed to run privileged ledger actions
type Operators map[string]struct{}

// NewOperators builds an operator set from wallet addresses
func NewOperators(wallets []string) Operators {
	ops := make(Operators, len(wallets))
	for _, w := range wallets {
		if w != "" {
			ops[w] = struct{}{}
		}
	}
	return ops
}

// Contains reports whether wallet is an operator
func (o Operators) Contains(wallet string) bool {
	if wallet == "" {
		return false
	}
	_, ok := o[wallet]
	return ok
}

// IsOperator reports whether the authenticated wallet on c is an operator
func (o Operators) IsOperator(c *gin.Context) bool {
	wallet, ok := GetWalletAddress(c)
	return ok && o.Contains(wallet)
}

// RequireOperator rejects authenticated requests from non-operator wallets.
// Must run after AuthMiddleware.
func RequireOperator(ops Operators) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ops.IsOperator(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "operator access required",
				"code":    apperrors.CodeForbidden,
			})
			return
		}
		c.Next()
	}
}
