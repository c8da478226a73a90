package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
)

// StageListener is notified when the active stage changes. index is -1
// once the profile is exhausted.
type StageListener func(index int, stage loadtest.Stage, ramping bool)

// RampingVUs ramps VU count up and down according to stages.
//
// Every tick it reads the desired concurrency from the profile and asks
// the scaler for it, so VU counts follow the interpolated ramp instead of
// changing in steps at stage boundaries.
//
// Example stages:
//
//	stages:
//	  - duration: 30s
//	    target: 10     # Ramp from 0 to 10 VUs over 30s
//	  - duration: 2m
//	    target: 10     # Stay at 10 VUs for 2 minutes
//	  - duration: 30s
//	    target: 0      # Ramp down to 0 VUs over 30s
type RampingVUs struct {
	profile  loadtest.Profile
	tick     time.Duration
	logger   *zap.Logger
	listener StageListener
	now      func() time.Time

	// State
	mu           sync.RWMutex
	startTime    time.Time
	activeVUs    atomic.Int32
	targetVUs    atomic.Int32
	currentStage atomic.Int32
	running      atomic.Bool
	finished     atomic.Bool
}

// Option configures a RampingVUs executor.
type Option func(*RampingVUs)

// WithTick sets the adjustment interval (default 100ms).
func WithTick(d time.Duration) Option {
	return func(e *RampingVUs) {
		if d > 0 {
			e.tick = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *RampingVUs) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStageListener registers a callback for stage transitions.
func WithStageListener(fn StageListener) Option {
	return func(e *RampingVUs) {
		e.listener = fn
	}
}

// NewRampingVUs creates a ramping VUs executor for profile.
func NewRampingVUs(profile loadtest.Profile, opts ...Option) *RampingVUs {
	e := &RampingVUs{
		profile: profile,
		tick:    loadtest.DefaultTick,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	e.currentStage.Store(-1)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Run adjusts the VU count every tick until the profile is exhausted, then
// returns nil. If ctx is cancelled first it returns ctx.Err(). VUs are left
// running in both cases.
func (e *RampingVUs) Run(ctx context.Context, scaler Scaler) error {
	e.mu.Lock()
	e.startTime = e.now()
	e.mu.Unlock()
	e.running.Store(true)
	defer e.running.Store(false)

	total := e.profile.TotalDuration()
	e.logger.Info("ramping VUs",
		zap.Int("stages", len(e.profile)),
		zap.Duration("duration", total),
		zap.Int("maxVUs", e.profile.MaxTarget()))

	// Apply the t=0 target immediately so a zero-duration first stage
	// does not wait for the first tick.
	if done := e.adjust(scaler); done {
		return nil
	}

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if done := e.adjust(scaler); done {
				return nil
			}
		}
	}
}

// adjust applies the desired concurrency for the current elapsed time and
// reports whether the profile is exhausted.
func (e *RampingVUs) adjust(scaler Scaler) bool {
	elapsed := e.now().Sub(e.started())
	if elapsed >= e.profile.TotalDuration() {
		e.updateStage(-1)
		e.finished.Store(true)
		return true
	}

	target := e.profile.DesiredConcurrency(elapsed)
	e.targetVUs.Store(int32(target))
	e.activeVUs.Store(int32(scaler.Scale(target)))
	e.updateStage(e.profile.StageAt(elapsed))
	return false
}

func (e *RampingVUs) updateStage(index int) {
	prev := e.currentStage.Swap(int32(index))
	if int(prev) == index {
		return
	}

	var stage loadtest.Stage
	ramping := false
	if index >= 0 {
		stage = e.profile[index]
		ramping = e.profile.Ramping(index)
		e.logger.Debug("stage started",
			zap.Int("stage", index),
			zap.String("name", stage.Name),
			zap.Int("target", stage.Target),
			zap.Duration("duration", stage.Duration))
	}
	if e.listener != nil {
		e.listener(index, stage, ramping)
	}
}

func (e *RampingVUs) started() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.startTime
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	start := e.started()
	if start.IsZero() {
		return 0.0
	}
	if e.finished.Load() {
		return 1.0
	}

	total := e.profile.TotalDuration()
	if total == 0 {
		return 1.0
	}

	progress := float64(e.now().Sub(start)) / float64(total)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	start := e.started()

	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = e.now().Sub(start)
	}

	stageIdx := int(e.currentStage.Load())
	stats := &Stats{
		StartTime:     start,
		Elapsed:       elapsed,
		TotalDuration: e.profile.TotalDuration(),
		ActiveVUs:     int(e.activeVUs.Load()),
		TargetVUs:     int(e.targetVUs.Load()),
		CurrentStage:  stageIdx,
		TotalStages:   len(e.profile),
	}
	if stageIdx >= 0 && stageIdx < len(e.profile) {
		stats.CurrentStageName = e.profile[stageIdx].Name
		stats.Ramping = e.profile.Ramping(stageIdx)
	}
	return stats
}

// Ensure RampingVUs implements Executor
var _ Executor = (*RampingVUs)(nil)
