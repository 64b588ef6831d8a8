package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	reconcileBatchSize = 100

	// Payouts the chain still does not know about after this long are marked failed
	claimExpiry = 24 * time.Hour
)

// ClaimReconciler settles submitted claims from the chain
type ClaimReconciler interface {
	ReconcileClaims(ctx context.Context, limit int, expireAfter time.Duration) (int, error)
}

// ClaimReconcileJob moves submitted claims to confirmed or failed
type ClaimReconcileJob struct {
	ledger ClaimReconciler
	log    *zap.Logger
}

func NewClaimReconcileJob(ledger ClaimReconciler, log *zap.Logger) *ClaimReconcileJob {
	return &ClaimReconcileJob{ledger: ledger, log: log}
}

// Run makes one reconciliation pass
func (j *ClaimReconcileJob) Run(ctx context.Context) {
	settled, err := j.ledger.ReconcileClaims(ctx, reconcileBatchSize, claimExpiry)
	if err != nil {
		j.log.Error("claim reconciliation failed", zap.Int("settled", settled), zap.Error(err))
		return
	}
	if settled > 0 {
		j.log.Info("reconciled claims", zap.Int("settled", settled))
	}
}
