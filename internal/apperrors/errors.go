package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP boundary
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindIntegrity    Kind = "integrity"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindInternal     Kind = "internal"
)

// Error codes
const (
	CodeInvalidTxHash        = "INVALID_TX_HASH"
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeInvalidBlockNumber   = "INVALID_BLOCK_NUMBER"
	CodeInvalidRewardType    = "INVALID_REWARD_TYPE"
	CodeMissingReferrerCode  = "MISSING_REFERRER_CODE"
	CodeDuplicateTransaction = "DUPLICATE_TRANSACTION"
	CodeAlreadyReferred      = "ALREADY_REFERRED"
	CodeAlreadyConfirmed     = "ALREADY_CONFIRMED"
	CodeSelfReferral         = "SELF_REFERRAL"
	CodeInvalidCode          = "INVALID_CODE"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodePurchaseNotFound     = "PURCHASE_NOT_FOUND"
	CodeClaimNotFound        = "CLAIM_NOT_FOUND"
	CodeInvalidClaim         = "INVALID_CLAIM"
	CodeTxNotVerified        = "TX_NOT_VERIFIED"
	CodeTxNotFound           = "TX_NOT_FOUND"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInvalidWallet        = "INVALID_WALLET"
	CodeInvalidSignature     = "INVALID_SIGNATURE"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNonceExpired         = "NONCE_EXPIRED"
	CodePayoutAttached       = "PAYOUT_ALREADY_ATTACHED"
	CodeStore                = "STORE_ERROR"
	CodeValidation           = "VALIDATION_ERROR"
)

// AppError is a typed error carrying a stable code and the HTTP status it maps to
type AppError struct {
	Kind      Kind
	Code      string
	Message   string
	Status    int
	Retryable bool
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError with the same code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates an AppError
func New(kind Kind, code string, status int, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// Wrap attaches a cause to a copy of the given sentinel
func Wrap(sentinel *AppError, err error) *AppError {
	cp := *sentinel
	cp.Err = err
	return &cp
}

// WithMessage returns a copy of the sentinel with a more specific message
func WithMessage(sentinel *AppError, message string) *AppError {
	cp := *sentinel
	cp.Message = message
	return &cp
}

// Validation creates an ad-hoc validation error
func Validation(message string) *AppError {
	return New(KindValidation, CodeValidation, http.StatusBadRequest, message)
}

// Store wraps a persistence failure as a retryable internal error
func Store(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{
		Kind:      KindInternal,
		Code:      CodeStore,
		Message:   "storage operation failed, please retry",
		Status:    http.StatusInternalServerError,
		Retryable: true,
		Err:       err,
	}
}

// From extracts an AppError, treating unknown errors as retryable store failures
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Store(err)
}

var (
	ErrInvalidTxHash        = New(KindValidation, CodeInvalidTxHash, http.StatusBadRequest, "invalid transaction hash format")
	ErrInvalidAmount        = New(KindValidation, CodeInvalidAmount, http.StatusBadRequest, "amount must be positive")
	ErrInvalidBlockNumber   = New(KindValidation, CodeInvalidBlockNumber, http.StatusBadRequest, "invalid block number")
	ErrInvalidRewardType    = New(KindValidation, CodeInvalidRewardType, http.StatusBadRequest, "invalid reward type, must be tokens or usdt")
	ErrMissingReferrerCode  = New(KindValidation, CodeMissingReferrerCode, http.StatusBadRequest, "referrer code is required")
	ErrDuplicateTransaction = New(KindConflict, CodeDuplicateTransaction, http.StatusConflict, "transaction already recorded")
	ErrAlreadyReferred      = New(KindConflict, CodeAlreadyReferred, http.StatusBadRequest, "user already has a referrer")
	ErrAlreadyConfirmed     = New(KindConflict, CodeAlreadyConfirmed, http.StatusBadRequest, "purchase already confirmed")
	ErrSelfReferral         = New(KindValidation, CodeSelfReferral, http.StatusBadRequest, "cannot use your own referral code")
	ErrInvalidCode          = New(KindNotFound, CodeInvalidCode, http.StatusNotFound, "invalid referrer code")
	ErrUserNotFound         = New(KindNotFound, CodeUserNotFound, http.StatusNotFound, "user not found")
	ErrPurchaseNotFound     = New(KindNotFound, CodePurchaseNotFound, http.StatusNotFound, "purchase not found")
	ErrClaimNotFound        = New(KindNotFound, CodeClaimNotFound, http.StatusNotFound, "claim not found")
	ErrInvalidClaim         = New(KindIntegrity, CodeInvalidClaim, http.StatusBadRequest, "some rewards are invalid or already claimed")
	ErrTxNotVerified        = New(KindValidation, CodeTxNotVerified, http.StatusBadRequest, "transaction could not be verified on-chain")
	ErrTxNotFound           = New(KindNotFound, CodeTxNotFound, http.StatusNotFound, "transaction not found on chain")
	ErrInvalidTransition    = New(KindConflict, CodeInvalidTransition, http.StatusConflict, "invalid status transition")
	ErrRateLimited          = New(KindValidation, CodeRateLimited, http.StatusTooManyRequests, "too many requests, please slow down")
	ErrInvalidWallet        = New(KindValidation, CodeInvalidWallet, http.StatusBadRequest, "invalid wallet address")
	ErrInvalidSignature     = New(KindUnauthorized, CodeInvalidSignature, http.StatusUnauthorized, "invalid signature")
	ErrUnauthorized         = New(KindUnauthorized, CodeUnauthorized, http.StatusUnauthorized, "unauthorized")
	ErrForbidden            = New(KindForbidden, CodeForbidden, http.StatusForbidden, "not allowed")
	ErrNonceExpired         = New(KindUnauthorized, CodeNonceExpired, http.StatusUnauthorized, "nonce not found or expired, please request a new nonce")
	ErrPayoutAttached       = New(KindConflict, CodePayoutAttached, http.StatusConflict, "claim already has a payout transaction")
)

// IsClientError reports whether err is a locally recoverable 4xx error
func IsClientError(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Kind {
	case KindValidation, KindConflict, KindNotFound, KindIntegrity, KindUnauthorized, KindForbidden:
		return true
	}
	return false
}
