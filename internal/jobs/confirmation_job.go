package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const confirmationBatchSize = 100

// PendingConfirmer confirms pending purchases the chain reports as settled
type PendingConfirmer interface {
	ConfirmPendingPurchases(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// ConfirmationJob confirms pending purchases older than a grace period
type ConfirmationJob struct {
	purchases PendingConfirmer
	grace     time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// NewConfirmationJob creates the confirmation poller
func NewConfirmationJob(purchases PendingConfirmer, grace time.Duration, log *zap.Logger) *ConfirmationJob {
	return &ConfirmationJob{
		purchases: purchases,
		grace:     grace,
		log:       log,
		now:       time.Now,
	}
}

// Run makes one pass over pending purchases
func (j *ConfirmationJob) Run(ctx context.Context) {
	olderThan := j.now().UTC().Add(-j.grace)

	confirmed, err := j.purchases.ConfirmPendingPurchases(ctx, olderThan, confirmationBatchSize)
	if err != nil {
		j.log.Error("confirmation pass failed", zap.Int("confirmed", confirmed), zap.Error(err))
		return
	}
	if confirmed > 0 {
		j.log.Info("confirmed pending purchases", zap.Int("confirmed", confirmed))
	}
}
