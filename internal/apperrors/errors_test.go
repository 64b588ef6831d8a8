package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("record purchase: %w", Wrap(ErrDuplicateTransaction, errors.New("unique violation")))

	assert.True(t, errors.Is(wrapped, ErrDuplicateTransaction))
	assert.False(t, errors.Is(wrapped, ErrAlreadyConfirmed))
	assert.Equal(t, http.StatusConflict, From(wrapped).Status)
}

func TestWithMessageKeepsIdentity(t *testing.T) {
	err := WithMessage(ErrInvalidAmount, "invalid token price")

	assert.True(t, errors.Is(err, ErrInvalidAmount))
	assert.Equal(t, "invalid token price", err.Message)
	assert.Equal(t, "amount must be positive", ErrInvalidAmount.Message)
}

func TestStoreWrapsUnknownErrors(t *testing.T) {
	err := Store(errors.New("connection reset"))

	assert.Equal(t, KindInternal, err.Kind)
	assert.True(t, err.Retryable)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.False(t, IsClientError(err))

	assert.Same(t, ErrInvalidClaim, Store(ErrInvalidClaim))
	assert.Nil(t, Store(nil))
}

func TestIsClientError(t *testing.T) {
	for _, err := range []error{ErrInvalidTxHash, ErrAlreadyReferred, ErrInvalidCode, ErrInvalidClaim, ErrForbidden, ErrNonceExpired} {
		assert.True(t, IsClientError(err), err.Error())
	}
	assert.False(t, IsClientError(errors.New("boom")))
}
