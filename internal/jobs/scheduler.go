package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Scheduler runs the background jobs. Each job runs in singleton mode so a slow
// pass is never overlapped by the next tick.
type Scheduler struct {
	sched  gocron.Scheduler
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler
func NewScheduler(log *zap.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{sched: sched, log: log, ctx: ctx, cancel: cancel}, nil
}

// Every registers run at a fixed interval. A non-positive interval disables the job.
func (s *Scheduler) Every(name string, interval time.Duration, run func(ctx context.Context)) error {
	if interval <= 0 {
		s.log.Info("job disabled", zap.String("job", name))
		return nil
	}

	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { run(s.ctx) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	s.log.Info("job scheduled", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

// JobCount returns how many jobs are registered
func (s *Scheduler) JobCount() int {
	return len(s.sched.Jobs())
}

// Start begins running registered jobs
func (s *Scheduler) Start() {
	s.sched.Start()
}

// Stop cancels in-flight runs and waits for them to return
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.sched.Shutdown()
}
