package jobs

import (
	"context"

	"go.uber.org/zap"
)

// NoncePurger deletes expired login challenges
type NoncePurger interface {
	PurgeExpiredNonces(ctx context.Context) (int64, error)
}

// NonceCleanupJob keeps the auth_nonces table small
type NonceCleanupJob struct {
	auth NoncePurger
	log  *zap.Logger
}

func NewNonceCleanupJob(auth NoncePurger, log *zap.Logger) *NonceCleanupJob {
	return &NonceCleanupJob{auth: auth, log: log}
}

// Run makes one cleanup pass
func (j *NonceCleanupJob) Run(ctx context.Context) {
	purged, err := j.auth.PurgeExpiredNonces(ctx)
	if err != nil {
		j.log.Error("nonce cleanup failed", zap.Error(err))
		return
	}
	if purged > 0 {
		j.log.Debug("purged expired nonces", zap.Int64("count", purged))
	}
}
