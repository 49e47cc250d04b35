package scheduler

import (
	"context"
	"errors"
	"time"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// Job is one periodic unit of work.
type Job interface {
	Name() string
	RunOnce(ctx context.Context) error
}

type Options struct {
	Interval time.Duration
	// Timeout bounds a single RunOnce. Defaults to the interval.
	Timeout time.Duration
	// Locker, when set, makes the job run on at most one replica per tick.
	Locker  adapter.Locker
	LockTTL time.Duration
	// RunImmediately runs once on Start instead of waiting a full interval.
	RunImmediately bool
}

// Scheduler periodically runs a Job.
type Scheduler struct {
	job  Job
	opts Options
	log  *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler constructs a scheduler that runs job every opts.Interval.
// If the interval is <= 0 it defaults to 1 minute.
func NewScheduler(job Job, opts Options, logger *zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.Interval
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = opts.Timeout + 10*time.Second
	}
	l := logger.With().Str("component", "Scheduler").Str("job", job.Name()).Logger()
	return &Scheduler{job: job, opts: opts, log: &l, done: make(chan struct{})}
}

// Start begins the scheduler loop in a background goroutine.
// Calling Start multiple times has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.ctx != nil {
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.ctx = ctx
	s.cancel = cancel

	go s.loop()
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-s.done
	return nil
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.opts.Interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.opts.Interval).Msg("scheduler started")
	if s.opts.RunImmediately {
		s.tick()
	}
	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs the job once, honouring the lock.
func (s *Scheduler) tick() {
	runCtx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	defer cancel()
	if err := RunLocked(runCtx, s.opts.Locker, "lock:sched:"+s.job.Name(), s.opts.LockTTL, s.job.RunOnce); err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			s.log.Debug().Msg("another replica holds the lock, skipping")
			return
		}
		s.log.Error().Err(err).Msg("scheduled job failed")
	}
}

// RunLocked runs fn while holding key. A nil locker runs fn unguarded.
func RunLocked(ctx context.Context, locker adapter.Locker, key string, ttl time.Duration, fn func(context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}
	token, err := locker.TryLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// release even if ctx expired mid-run
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = locker.Unlock(unlockCtx, key, token)
	}()
	return fn(ctx)
}

// Stop cancels the scheduler and waits for the loop to finish. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.ctx = nil
	s.cancel = nil
	s.done = make(chan struct{})
}
