package sync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFiresRecurring(t *testing.T) {
	scheduler := NewScheduler(NewMemoryCheckpoints(), slog.Default())
	defer scheduler.Close()

	var fired atomic.Int32
	err := scheduler.RegisterRecurring(context.Background(), "snack.differences", 10*time.Millisecond,
		func(context.Context) error {
			fired.Add(1)
			return nil
		})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return fired.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerOverdueJobFiresImmediately(t *testing.T) {
	checkpoints := NewMemoryCheckpoints()
	require.NoError(t, checkpoints.Save(context.Background(), "machine.all", time.Now().Add(-time.Hour)))

	scheduler := NewScheduler(checkpoints, slog.Default())
	defer scheduler.Close()

	var fired atomic.Int32
	err := scheduler.RegisterRecurring(context.Background(), "machine.all", time.Hour,
		func(context.Context) error {
			fired.Add(1)
			return nil
		})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerFreshCheckpointDelaysFirstFire(t *testing.T) {
	checkpoints := NewMemoryCheckpoints()
	require.NoError(t, checkpoints.Save(context.Background(), "snack.all", time.Now()))

	scheduler := NewScheduler(checkpoints, slog.Default())
	defer scheduler.Close()

	var fired atomic.Int32
	err := scheduler.RegisterRecurring(context.Background(), "snack.all", time.Hour,
		func(context.Context) error {
			fired.Add(1)
			return nil
		})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestSchedulerSavesCheckpointAfterRun(t *testing.T) {
	checkpoints := NewMemoryCheckpoints()
	scheduler := NewScheduler(checkpoints, slog.Default())
	defer scheduler.Close()

	var fired atomic.Int32
	err := scheduler.RegisterRecurring(context.Background(), "purchase.differences", 10*time.Millisecond,
		func(context.Context) error {
			fired.Add(1)
			return nil
		})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fired.Load() >= 1 }, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		firedAt, err := checkpoints.Load(context.Background(), "purchase.differences")
		return err == nil && !firedAt.IsZero()
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerDuplicateName(t *testing.T) {
	scheduler := NewScheduler(NewMemoryCheckpoints(), slog.Default())
	defer scheduler.Close()

	noop := func(context.Context) error { return nil }
	require.NoError(t, scheduler.RegisterRecurring(context.Background(), "snack.differences", time.Hour, noop))
	assert.Error(t, scheduler.RegisterRecurring(context.Background(), "snack.differences", time.Hour, noop))
}

func TestSchedulerCancelStopsJob(t *testing.T) {
	scheduler := NewScheduler(NewMemoryCheckpoints(), slog.Default())
	defer scheduler.Close()

	var fired atomic.Int32
	err := scheduler.RegisterRecurring(context.Background(), "machine.differences", 10*time.Millisecond,
		func(context.Context) error {
			fired.Add(1)
			return nil
		})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fired.Load() >= 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, scheduler.Cancel("machine.differences"))

	settled := fired.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, fired.Load(), settled+1)

	assert.Error(t, scheduler.Cancel("machine.differences"))
}

func TestSchedulerRunsNeverOverlap(t *testing.T) {
	scheduler := NewScheduler(NewMemoryCheckpoints(), slog.Default())
	defer scheduler.Close()

	var inFlight atomic.Int32
	var overlapped atomic.Bool
	err := scheduler.RegisterRecurring(context.Background(), "snack.differences", 5*time.Millisecond,
		func(context.Context) error {
			if inFlight.Add(1) > 1 {
				overlapped.Store(true)
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		})
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	assert.False(t, overlapped.Load())
}
