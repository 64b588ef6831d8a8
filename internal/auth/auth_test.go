package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerateAndValidateToken(t *testing.T) {
	InitJWT("test-secret", time.Hour)

	token, err := GenerateToken(42, "wallet-42")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "wallet-42", claims.WalletAddress)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestValidateTokenRejectsOtherSecret(t *testing.T) {
	InitJWT("secret-a", time.Hour)
	token, err := GenerateToken(1, "w")
	require.NoError(t, err)

	InitJWT("secret-b", time.Hour)
	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	InitJWT("test-secret", time.Hour)

	r := gin.New()
	r.GET("/me", AuthMiddleware(zap.NewNop()), func(c *gin.Context) {
		id, ok := GetUserID(c)
		require.True(t, ok)
		wallet, _ := GetWalletAddress(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "wallet": wallet})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := GenerateToken(7, "wallet-7")
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "wallet-7")
}

func TestLoginMessageBindsNonce(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, LoginMessage("w", a), LoginMessage("w", b))
	assert.Contains(t, LoginMessage("w", a), a)
}

func TestRequireOperator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	InitJWT("test-secret", time.Hour)
	ops := NewOperators([]string{"op-wallet", ""})
	assert.False(t, ops.Contains(""))

	r := gin.New()
	r.POST("/payout", AuthMiddleware(zap.NewNop()), RequireOperator(ops), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	call := func(wallet string) int {
		token, err := GenerateToken(1, wallet)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/payout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, call("op-wallet"))
	assert.Equal(t, http.StatusForbidden, call("someone-else"))
}
