package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/lock"
	personneldomain "github.com/smallbiznis/fieldbooks/internal/personnel/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAccounting struct {
	accountingdomain.Service
	calls  int
	now    time.Time
	result accountingdomain.RetryResult
	err    error
}

func (f *fakeAccounting) RetryFailed(_ context.Context, now time.Time) (accountingdomain.RetryResult, error) {
	f.calls++
	f.now = now
	return f.result, f.err
}

type fakePersonnel struct {
	personneldomain.Service
	calls    int
	days     int
	reported int
	err      error
	block    bool
}

func (f *fakePersonnel) SendExpiryDigest(ctx context.Context, days int) (int, error) {
	f.calls++
	f.days = days
	if f.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.reported, f.err
}

type failingLocker struct{}

func (failingLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, errors.New("redis down")
}

func (failingLocker) Release(context.Context, string, string) error { return nil }

type fixture struct {
	sched      *Scheduler
	clock      *clock.FakeClock
	locker     lock.Locker
	accounting *fakeAccounting
	personnel  *fakePersonnel
}

func newFixture(t *testing.T, locker lock.Locker, cfg Config) fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC))
	accounting := &fakeAccounting{}
	personnel := &fakePersonnel{}

	sched, err := New(Params{
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Config:     cfg,
		Locker:     locker,
		Accounting: accounting,
		Personnel:  personnel,
	})
	require.NoError(t, err)

	return fixture{sched: sched, clock: clk, locker: locker, accounting: accounting, personnel: personnel}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{JobTimeout: 10 * time.Minute, LockTTL: time.Minute}.withDefaults()

	assert.Equal(t, "@every 5m", cfg.SyncRetrySpec)
	assert.Equal(t, "0 7 * * *", cfg.CertExpirySpec)
	assert.Equal(t, 30, cfg.CertExpiryDays)
	assert.Equal(t, 11*time.Minute, cfg.LockTTL)
}

func TestNewRejectsBadSpec(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	_, err = New(Params{
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Now()),
		Config:     Config{SyncRetrySpec: "every tuesday"},
		Locker:     lock.NewLocalLocker(),
		Accounting: &fakeAccounting{},
		Personnel:  &fakePersonnel{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobSyncRetry)

	_, err = New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunSyncRetry(t *testing.T) {
	f := newFixture(t, lock.NewLocalLocker(), Config{})
	f.accounting.result = accountingdomain.RetryResult{Attempted: 3, Synced: 2, Failed: 1}

	require.NoError(t, f.sched.Run(context.Background(), JobSyncRetry))
	assert.Equal(t, 1, f.accounting.calls)
	assert.Equal(t, f.clock.Now(), f.accounting.now)
	assert.Zero(t, f.personnel.calls)
}

func TestRunCertificationExpiryUsesConfiguredWindow(t *testing.T) {
	f := newFixture(t, lock.NewLocalLocker(), Config{CertExpiryDays: 14})
	f.personnel.reported = 4

	require.NoError(t, f.sched.Run(context.Background(), JobCertExpiry))
	assert.Equal(t, 1, f.personnel.calls)
	assert.Equal(t, 14, f.personnel.days)
}

func TestRunUnknownJob(t *testing.T) {
	f := newFixture(t, lock.NewLocalLocker(), Config{})
	assert.ErrorIs(t, f.sched.Run(context.Background(), "invoice_reminders"), ErrUnknownJob)
}

func TestRunSkipsWhenLeaseHeld(t *testing.T) {
	locker := lock.NewLocalLocker()
	f := newFixture(t, locker, Config{})

	token, ok, err := locker.TryLock(context.Background(), lockPrefix+JobSyncRetry, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.sched.Run(context.Background(), JobSyncRetry))
	assert.Zero(t, f.accounting.calls)

	require.NoError(t, locker.Release(context.Background(), lockPrefix+JobSyncRetry, token))
	require.NoError(t, f.sched.Run(context.Background(), JobSyncRetry))
	assert.Equal(t, 1, f.accounting.calls)
}

func TestRunReleasesLeaseAfterFailure(t *testing.T) {
	f := newFixture(t, lock.NewLocalLocker(), Config{})
	f.accounting.err = errors.New("provider unavailable")

	err := f.sched.Run(context.Background(), JobSyncRetry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unavailable")

	f.accounting.err = nil
	require.NoError(t, f.sched.Run(context.Background(), JobSyncRetry))
	assert.Equal(t, 2, f.accounting.calls)
}

func TestRunLockError(t *testing.T) {
	f := newFixture(t, failingLocker{}, Config{})

	err := f.sched.Run(context.Background(), JobCertExpiry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire lock")
	assert.Zero(t, f.personnel.calls)
}

func TestRunTimeoutIsNotReturned(t *testing.T) {
	f := newFixture(t, lock.NewLocalLocker(), Config{JobTimeout: 20 * time.Millisecond})
	f.personnel.block = true

	require.NoError(t, f.sched.Run(context.Background(), JobCertExpiry))
	assert.Equal(t, 1, f.personnel.calls)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, lock.NewLocalLocker(), Config{})
	f.sched.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Stop(ctx))
}
