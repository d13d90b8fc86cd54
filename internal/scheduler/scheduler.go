package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/lock"
	obsmetrics "github.com/smallbiznis/fieldbooks/internal/observability/metrics"
	personneldomain "github.com/smallbiznis/fieldbooks/internal/personnel/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobSyncRetry  = "accounting_sync_retry"
	JobCertExpiry = "certification_expiry"

	lockPrefix = "fieldbooks:scheduler:"
)

var (
	ErrInvalidConfig = errors.New("scheduler_invalid_config")
	ErrUnknownJob    = errors.New("scheduler_unknown_job")
)

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config `optional:"true"`
	Locker     lock.Locker
	Accounting accountingdomain.Service
	Personnel  personneldomain.Service
	Jobs       *obsmetrics.JobMetrics `optional:"true"`
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) (int, error)
}

// Scheduler runs periodic back-office jobs. Each run holds a lease so only one replica works at a time.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	locker     lock.Locker
	accounting accountingdomain.Service
	personnel  personneldomain.Service
	metrics    *obsmetrics.JobMetrics
	cron       *cron.Cron
	jobs       map[string]job
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Locker == nil || p.Accounting == nil || p.Personnel == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	log := p.Log.Named("scheduler").With(zap.String("component", "scheduler"))
	cronLog := cronLogger{log: log.Sugar()}

	s := &Scheduler{
		log:        log,
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		locker:     p.Locker,
		accounting: p.Accounting,
		personnel:  p.Personnel,
		metrics:    p.Jobs,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		jobs: make(map[string]job),
	}

	for _, j := range []job{
		{name: JobSyncRetry, spec: cfg.SyncRetrySpec, run: s.retrySync},
		{name: JobCertExpiry, spec: cfg.CertExpirySpec, run: s.certificationExpiry},
	} {
		name := j.name
		if _, err := s.cron.AddFunc(j.spec, func() {
			if err := s.Run(context.Background(), name); err != nil {
				s.log.Warn("scheduler job failed", zap.String("job", name), zap.Error(err))
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", name, j.spec, err)
		}
		s.jobs[name] = j
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("sync_retry", s.cfg.SyncRetrySpec),
		zap.String("certification_expiry", s.cfg.CertExpirySpec),
	)
}

// Stop prevents new runs and waits for running ones until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes one job now. A run skipped because another replica holds the lease is not an error.
func (s *Scheduler) Run(parent context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return ErrUnknownJob
	}

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()
	ctx, run := s.newJobRun(ctx, name)
	log := s.logger(ctx).With(zap.String("job", name), zap.String("run_id", run.runID))

	key := lockPrefix + name
	token, acquired, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.metrics.IncError(name, err)
		return fmt.Errorf("%s: acquire lock: %w", name, err)
	}
	if !acquired {
		s.metrics.IncSkipped(name)
		log.Debug("scheduler.job.skipped", zap.String("reason", obsmetrics.JobReasonLockHeld))
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn("release lock failed", zap.Error(err))
		}
	}()

	s.metrics.IncRun(name)
	s.logJobStart(ctx, run)
	processed, err := j.run(ctx)
	run.AddProcessed(processed)
	s.metrics.ObserveDuration(name, s.clock.Now().Sub(run.startedAt))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	s.metrics.IncError(name, err)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) retrySync(ctx context.Context) (int, error) {
	result, err := s.accounting.RetryFailed(ctx, s.clock.Now())
	s.metrics.AddProcessed(JobSyncRetry, "synced", result.Synced)
	s.metrics.AddProcessed(JobSyncRetry, "failed", result.Failed)
	return result.Attempted, err
}

func (s *Scheduler) certificationExpiry(ctx context.Context) (int, error) {
	reported, err := s.personnel.SendExpiryDigest(ctx, s.cfg.CertExpiryDays)
	s.metrics.AddProcessed(JobCertExpiry, "reported", reported)
	return reported, err
}
