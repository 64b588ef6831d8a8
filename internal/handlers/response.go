package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"presale-referral/internal/apperrors"
	"presale-referral/internal/auth"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes the error envelope for err, mapping AppErrors to their status
func respondError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	body := gin.H{
		"success": false,
		"error":   appErr.Message,
		"code":    appErr.Code,
	}
	if appErr.Retryable {
		body["retryable"] = true
	}
	c.JSON(appErr.Status, body)
}

func respondBindError(c *gin.Context, err error) {
	respondError(c, apperrors.Validation(err.Error()))
}

// currentUser reads the authenticated user id or writes a 401
func currentUser(c *gin.Context) (uint, bool) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return 0, false
	}
	return userID, true
}

// queryInt parses a query parameter, returning def when it is missing or malformed
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// pageParams returns limit in [1, maxPageLimit] and a non-negative offset
func pageParams(c *gin.Context) (int, int) {
	limit := queryInt(c, "limit", defaultPageLimit)
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func pagination(limit, offset int, total int64) gin.H {
	return gin.H{
		"limit":  limit,
		"offset": offset,
		"total":  total,
	}
}
