package loadtest_test

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
)

func waitDone(t *testing.T, vu *loadtest.VirtualUser, timeout time.Duration) {
	t.Helper()
	select {
	case <-vu.Done():
	case <-time.After(timeout):
		t.Fatalf("VU %d did not stop within %s", vu.ID, timeout)
	}
}

func TestVirtualUser_RunsUntilRetired(t *testing.T) {
	registry := metrics.NewRegistry()
	vu := loadtest.NewVirtualUser(1, nil, registry, loadtest.Options{}, nil)
	assert.Equal(t, loadtest.VUStateIdle, vu.GetState())

	var count atomic.Int64
	go vu.Run(context.Background(), loadtest.IterationFunc(func(ctx context.Context) error {
		count.Add(1)
		return loadtest.Sleep(ctx, 5*time.Millisecond)
	}))

	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, time.Millisecond)
	vu.Retire()
	vu.Retire() // idempotent
	waitDone(t, vu, time.Second)

	assert.Equal(t, loadtest.VUStateStopped, vu.GetState())
	assert.Equal(t, int64(0), vu.Failures(), "ErrRetired from Sleep is not a failure")

	iterations, _ := registry.Snapshot(metrics.Iterations)
	assert.Equal(t, float64(vu.Iterations()), iterations.Sum)
	duration, _ := registry.Snapshot(metrics.IterationDuration)
	assert.Equal(t, int64(vu.Iterations()), duration.Count)
}

func TestVirtualUser_StateIsVisibleToIteration(t *testing.T) {
	registry := metrics.NewRegistry()
	vu := loadtest.NewVirtualUser(42, nil, registry, loadtest.Options{}, nil)

	seen := make(chan *loadtest.State, 1)
	go vu.Run(context.Background(), loadtest.IterationFunc(func(ctx context.Context) error {
		st := loadtest.StateFrom(ctx)
		st.Vars["token"] = "abc"
		select {
		case seen <- st:
		default:
		}
		return loadtest.Sleep(ctx, time.Millisecond)
	}))

	st := <-seen
	vu.Retire()
	waitDone(t, vu, time.Second)

	assert.Equal(t, 42, st.VU)
	assert.NotNil(t, st.Rand)
	assert.Equal(t, "abc", st.Vars["token"])
}

func TestVirtualUser_PanicIsRecordedAsFailure(t *testing.T) {
	registry := metrics.NewRegistry()
	vu := loadtest.NewVirtualUser(1, nil, registry, loadtest.Options{}, nil)

	var calls atomic.Int64
	go vu.Run(context.Background(), loadtest.IterationFunc(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return loadtest.Sleep(ctx, time.Millisecond)
	}))

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	vu.Retire()
	waitDone(t, vu, time.Second)

	assert.Equal(t, int64(1), vu.Failures())
	errs, _ := registry.Snapshot(metrics.IterationErrors)
	assert.Equal(t, float64(1), errs.Sum)
}

func TestVirtualUser_StopOnError(t *testing.T) {
	registry := metrics.NewRegistry()
	vu := loadtest.NewVirtualUser(1, nil, registry, loadtest.Options{StopOnError: true}, nil)

	var calls atomic.Int64
	go vu.Run(context.Background(), loadtest.IterationFunc(func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("checkout failed")
	}))

	waitDone(t, vu, time.Second)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, int64(1), vu.Failures())
}

func TestVirtualUser_ErrorsContinueByDefault(t *testing.T) {
	registry := metrics.NewRegistry()
	vu := loadtest.NewVirtualUser(1, nil, registry, loadtest.Options{}, nil)

	go vu.Run(context.Background(), loadtest.IterationFunc(func(ctx context.Context) error {
		_ = loadtest.Sleep(ctx, time.Millisecond)
		return errors.New("checkout failed")
	}))

	require.Eventually(t, func() bool { return vu.Failures() >= 3 }, time.Second, time.Millisecond)
	vu.Retire()
	waitDone(t, vu, time.Second)
}

func TestVirtualUser_ThinkTimeWakesOnRetire(t *testing.T) {
	registry := metrics.NewRegistry()
	opts := loadtest.Options{ThinkTime: loadtest.ThinkTime{Duration: time.Hour}}
	vu := loadtest.NewVirtualUser(1, nil, registry, opts, nil)

	var calls atomic.Int64
	go vu.Run(context.Background(), loadtest.IterationFunc(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	vu.Retire()
	waitDone(t, vu, time.Second)
	assert.Equal(t, int64(1), calls.Load())
}

func TestVirtualUser_HardStopIsNotRecorded(t *testing.T) {
	registry := metrics.NewRegistry()
	vu := loadtest.NewVirtualUser(1, nil, registry, loadtest.Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go vu.Run(ctx, loadtest.IterationFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	<-started
	cancel()
	waitDone(t, vu, time.Second)

	iterations, _ := registry.Snapshot(metrics.Iterations)
	assert.Equal(t, float64(0), iterations.Sum)
	errs, _ := registry.Snapshot(metrics.IterationErrors)
	assert.Equal(t, float64(0), errs.Sum)
}

func TestSleep(t *testing.T) {
	start := time.Now()
	require.NoError(t, loadtest.Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, loadtest.Sleep(ctx, time.Hour), context.Canceled)
}

func TestThinkTime_Next(t *testing.T) {
	constant := loadtest.ThinkTime{Duration: time.Second}
	random := loadtest.ThinkTime{Min: 100 * time.Millisecond, Max: 200 * time.Millisecond}

	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, time.Second, constant.Next(rng))
	for i := 0; i < 100; i++ {
		d := random.Next(rng)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 200*time.Millisecond)
	}
	assert.True(t, loadtest.ThinkTime{}.Zero())
}

func TestOptions_WithDefaults(t *testing.T) {
	opts := loadtest.Options{}.WithDefaults()
	assert.Equal(t, loadtest.DefaultTimeout, opts.Timeout)
	assert.Equal(t, loadtest.DefaultTimeout, opts.GracefulStop, "the drain outlasts the request timeout")

	opts = loadtest.Options{Timeout: 5 * time.Second}.WithDefaults()
	assert.Equal(t, loadtest.DefaultGracefulStop, opts.GracefulStop)

	opts = loadtest.Options{GracefulStop: loadtest.UnboundedGracefulStop}.WithDefaults()
	assert.Equal(t, loadtest.UnboundedGracefulStop, opts.GracefulStop)

	errs := &loadtest.ValidationErrors{}
	opts.Validate(errs)
	assert.False(t, errs.HasErrors())
}
