package services

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"time"

	"presale-referral/internal/apperrors"
	"presale-referral/internal/auth"
	"presale-referral/internal/blockchain"
	"presale-referral/internal/database"
	"presale-referral/internal/models"
	"presale-referral/internal/repository"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuthService handles authentication business logic
type AuthService struct {
	db        *gorm.DB
	repo      *repository.Repository
	referrals *ReferralService
	nonceTTL  time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(db *gorm.DB, referrals *ReferralService, nonceTTL time.Duration, log *zap.Logger) *AuthService {
	if nonceTTL <= 0 {
		nonceTTL = 5 * time.Minute
	}
	return &AuthService{
		db:        db,
		repo:      repository.NewRepository(db),
		referrals: referrals,
		nonceTTL:  nonceTTL,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// IssueNonce creates a fresh login challenge for the wallet, replacing any earlier one
func (s *AuthService) IssueNonce(ctx context.Context, walletAddress string) (*models.WalletNonce, error) {
	if !blockchain.ValidateWalletAddress(walletAddress) {
		return nil, apperrors.ErrInvalidWallet
	}

	nonce, err := auth.NewNonce()
	if err != nil {
		return nil, apperrors.Store(err)
	}

	now := s.now()
	row := &models.AuthNonce{
		WalletAddress: walletAddress,
		Nonce:         nonce,
		ExpiresAt:     now.Add(s.nonceTTL),
		CreatedAt:     now,
	}
	if err := s.repo.UpsertNonce(ctx, row); err != nil {
		return nil, apperrors.Store(err)
	}

	return &models.WalletNonce{
		Nonce:     nonce,
		Message:   auth.LoginMessage(walletAddress, nonce),
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// VerifyWalletSignature checks an ed25519 signature over the wallet's current nonce
// message and consumes the nonce, so a signature is accepted at most once.
// Signatures are accepted base58 or hex encoded.
func (s *AuthService) VerifyWalletSignature(ctx context.Context, walletAddress, signature string) error {
	if !blockchain.ValidateWalletAddress(walletAddress) {
		return apperrors.ErrInvalidWallet
	}

	pubKey, err := base58.Decode(walletAddress)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return apperrors.ErrInvalidWallet
	}

	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		sig, err = hex.DecodeString(signature)
		if err != nil || len(sig) != ed25519.SignatureSize {
			return apperrors.WithMessage(apperrors.ErrInvalidSignature, "invalid signature format")
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		nonce, err := repo.GetNonce(ctx, walletAddress)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNonceExpired
			}
			return err
		}
		if !s.now().Before(nonce.ExpiresAt) {
			return apperrors.ErrNonceExpired
		}

		if !ed25519.Verify(pubKey, []byte(auth.LoginMessage(walletAddress, nonce.Nonce)), sig) {
			return apperrors.ErrInvalidSignature
		}

		consumed, err := repo.ConsumeNonce(ctx, walletAddress, nonce.Nonce)
		if err != nil {
			return err
		}
		if consumed == 0 {
			return apperrors.ErrNonceExpired
		}
		return nil
	})
	if err != nil {
		return apperrors.From(err)
	}
	return nil
}

// PurgeExpiredNonces deletes login challenges that can no longer be used
func (s *AuthService) PurgeExpiredNonces(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredNonces(ctx, s.now())
	if err != nil {
		return 0, apperrors.Store(err)
	}
	return n, nil
}

// ProcessWalletLogin finds or creates a user by wallet address. New users get a
// referral code and are bound to referrerCode when one is given.
func (s *AuthService) ProcessWalletLogin(ctx context.Context, walletAddress, referrerCode string) (*models.User, error) {
	user, err := s.repo.GetUserByWallet(ctx, walletAddress)
	created := false

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = &models.User{WalletAddress: walletAddress, IsActive: true}
		if err := s.repo.CreateUser(ctx, user); err != nil {
			if !database.IsUniqueViolation(err) {
				return nil, apperrors.Store(err)
			}
			// Concurrent first login for the same wallet
			user, err = s.repo.GetUserByWallet(ctx, walletAddress)
			if err != nil {
				return nil, apperrors.Store(err)
			}
		} else {
			created = true
		}
	case err != nil:
		return nil, apperrors.Store(err)
	}

	if _, err := s.referrals.GetOrCreateCode(ctx, user.ID); err != nil {
		s.log.Warn("failed to generate referral code", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	if created && referrerCode != "" {
		if _, err := s.referrals.RegisterReferral(ctx, user.ID, referrerCode); err != nil {
			s.log.Warn("referrer code ignored at sign-up",
				zap.Uint("user_id", user.ID),
				zap.String("code", referrerCode),
				zap.Error(err),
			)
		}
	}

	if err := s.repo.TouchLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.log.Warn("failed to record login time", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	if created {
		s.log.Info("new user created", zap.String("wallet", walletAddress), zap.Uint("user_id", user.ID))
	} else {
		s.log.Info("user logged in", zap.String("wallet", walletAddress), zap.Uint("user_id", user.ID))
	}

	return s.GetUserByID(ctx, user.ID)
}

// GetUserByID retrieves a user by their ID
func (s *AuthService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Store(err)
	}
	return user, nil
}
