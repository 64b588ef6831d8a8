package services

import (
	"context"
	"errors"

	"presale-referral/internal/apperrors"
	"presale-referral/internal/config"
	"presale-referral/internal/models"
	"presale-referral/internal/repository"

	"gorm.io/gorm"
)

// DefaultChainDepth is used when the caller does not ask for a depth
const DefaultChainDepth = 3

// ChainService walks the referral graph with an explicit depth counter and visited set
type ChainService struct {
	repo *repository.Repository
}

func NewChainService(db *gorm.DB) *ChainService {
	return &ChainService{repo: repository.NewRepository(db)}
}

// ClampDepth bounds a requested depth to [1, MaxRewardLevels]
func ClampDepth(depth int) int {
	if depth < 1 {
		return 1
	}
	if depth > config.MaxRewardLevels {
		return config.MaxRewardLevels
	}
	return depth
}

// GetReferralChain returns the users below userID breadth-first, ordered by level then id
func (s *ChainService) GetReferralChain(ctx context.Context, userID uint, depth int) ([]models.ChainMember, error) {
	depth = ClampDepth(depth)

	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Store(err)
	}

	visited := map[uint]bool{userID: true}
	frontier := []uint{userID}
	chain := make([]models.ChainMember, 0)

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		edges, err := s.repo.ListReferralsByReferrers(ctx, frontier)
		if err != nil {
			return nil, apperrors.Store(err)
		}

		next := make([]uint, 0, len(edges))
		levelEdges := make([]models.Referral, 0, len(edges))
		for _, edge := range edges {
			if visited[edge.ReferredID] {
				continue
			}
			visited[edge.ReferredID] = true
			next = append(next, edge.ReferredID)
			levelEdges = append(levelEdges, edge)
		}

		users, err := s.repo.GetUsersByIDs(ctx, next)
		if err != nil {
			return nil, apperrors.Store(err)
		}

		for _, edge := range levelEdges {
			u := users[edge.ReferredID]
			chain = append(chain, models.ChainMember{
				UserID:        edge.ReferredID,
				ReferrerID:    edge.ReferrerID,
				WalletAddress: u.WalletAddress,
				ReferralCode:  u.ReferralCode,
				Level:         level,
			})
		}

		frontier = next
	}

	return chain, nil
}

// GroupByLevel buckets a chain by level
func GroupByLevel(chain []models.ChainMember) map[int][]models.ChainMember {
	grouped := make(map[int][]models.ChainMember)
	for _, m := range chain {
		grouped[m.Level] = append(grouped[m.Level], m)
	}
	return grouped
}

// GetUpline walks referrer_id upward from userID. tx may be nil to read outside a transaction.
func (s *ChainService) GetUpline(ctx context.Context, tx *gorm.DB, userID uint, depth int) ([]UplineMember, error) {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}

	depth = ClampDepth(depth)
	visited := map[uint]bool{userID: true}
	upline := make([]UplineMember, 0, depth)
	current := userID

	for level := 1; level <= depth; level++ {
		user, err := repo.GetUserByID(ctx, current)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return nil, err
		}
		if user.ReferrerID == nil || visited[*user.ReferrerID] {
			break
		}

		ref := *user.ReferrerID
		visited[ref] = true
		upline = append(upline, UplineMember{UserID: ref, Level: level})
		current = ref
	}

	return upline, nil
}
