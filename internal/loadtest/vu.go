package loadtest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU has been created but not started.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is actively running iterations.
	VUStateRunning
	// VUStateStopping indicates the VU has been retired and is finishing
	// its current iteration.
	VUStateStopping
	// VUStateStopped indicates the VU goroutine has exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is a single simulated user repeatedly executing an Iteration.
//
// Each VU has its own:
//   - Variable scope and random source (exposed through State)
//   - Iteration counter
//   - Stop signal, raised when the scheduler retires it
//
// VUs are created by the VUScheduler.
type VirtualUser struct {
	// Unique identifier for this VU
	ID int

	driver  *Driver
	metrics *metrics.Registry
	opts    Options
	logger  *zap.Logger

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	stopCh  chan struct{}
	stopped atomic.Bool
	doneCh  chan struct{}

	iterations atomic.Int64
	failures   atomic.Int64

	st *State
}

// NewVirtualUser creates a VU. The driver and registry are shared by all
// VUs of a run.
func NewVirtualUser(id int, driver *Driver, registry *metrics.Registry, opts Options, logger *zap.Logger) *VirtualUser {
	if logger == nil {
		logger = zap.NewNop()
	}
	vu := &VirtualUser{
		ID:      id,
		driver:  driver,
		metrics: registry,
		opts:    opts,
		logger:  logger.With(zap.Int("vu", id)),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	vu.st = &State{
		VU:     id,
		Driver: driver,
		Vars:   make(map[string]string),
		Rand:   newVURand(id),
		stop:   vu.stopCh,
	}
	return vu
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// Iterations returns the number of iterations started so far.
func (vu *VirtualUser) Iterations() int64 {
	return vu.iterations.Load()
}

// Failures returns the number of failed iterations.
func (vu *VirtualUser) Failures() int64 {
	return vu.failures.Load()
}

// Retire signals the VU to stop after its current iteration. It never
// interrupts a request in flight. Safe to call more than once.
func (vu *VirtualUser) Retire() {
	if vu.stopped.CompareAndSwap(false, true) {
		vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping))
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping))
		close(vu.stopCh)
	}
}

// Retired reports whether Retire has been called.
func (vu *VirtualUser) Retired() bool {
	return vu.stopped.Load()
}

// Done is closed once Run has returned.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// Run executes iterations until the VU is retired, ctx is cancelled, or
// (with StopOnError) an iteration fails. It must be called at most once.
func (vu *VirtualUser) Run(ctx context.Context, body Iteration) {
	defer close(vu.doneCh)
	defer vu.state.Store(int32(VUStateStopped))

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	ctx = WithState(ctx, vu.st)

	for {
		if vu.Retired() || ctx.Err() != nil {
			return
		}

		err := vu.runIteration(ctx, body)
		if err != nil && vu.opts.StopOnError {
			vu.logger.Info("stopping VU after failed iteration", zap.Error(err))
			return
		}

		if !vu.opts.ThinkTime.Zero() {
			if Sleep(ctx, vu.opts.ThinkTime.Next(vu.st.Rand)) != nil {
				return
			}
		}
	}
}

// runIteration executes one iteration and records its metrics. A panic in
// the body is recovered and treated as a failed iteration.
func (vu *VirtualUser) runIteration(ctx context.Context, body Iteration) (err error) {
	vu.st.Iteration = vu.iterations.Add(1) - 1
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panicked: %v", r)
		}

		// Iterations cut short by a hard stop are not recorded.
		if ctx.Err() != nil {
			return
		}

		_ = vu.metrics.Add(metrics.Iterations, 1, nil)
		_ = vu.metrics.Add(metrics.IterationDuration, metrics.Millis(time.Since(start)), nil)

		if err != nil && !errors.Is(err, ErrRetired) {
			vu.failures.Add(1)
			_ = vu.metrics.Add(metrics.IterationErrors, 1, nil)
			vu.logger.Debug("iteration failed",
				zap.Int64("iteration", vu.st.Iteration),
				zap.Error(err))
			return
		}
		err = nil
	}()

	return body.Run(ctx)
}
