package loadtest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
)

// SchedulerConfig contains what every VU of a run shares.
type SchedulerConfig struct {
	Body    Iteration
	Driver  *Driver
	Metrics *metrics.Registry
	Options Options
	Logger  *zap.Logger
}

// VUScheduler manages the pool of Virtual Users for one run.
//
// It provides:
//   - Scaling the pool up and down (Scale)
//   - Graceful drain with a hard-stop deadline (Shutdown)
//   - The vus and vus_max gauges
//
// Executors drive it; it never decides concurrency on its own.
type VUScheduler struct {
	cfg    SchedulerConfig
	logger *zap.Logger

	// hardCtx is the context every iteration runs under. It is cancelled
	// only after the graceful stop period expires.
	hardCtx    context.Context
	hardCancel context.CancelFunc

	mu     sync.Mutex
	active []*VirtualUser // in spawn order
	nextID int
	peak   int
	closed bool

	wg sync.WaitGroup
}

// NewVUScheduler creates a scheduler. Values of ctx are visible to
// iterations but its cancellation is not: cancelling a run drains it.
func NewVUScheduler(ctx context.Context, cfg SchedulerConfig) *VUScheduler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.Options = cfg.Options.WithDefaults()

	hardCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &VUScheduler{
		cfg:        cfg,
		logger:     cfg.Logger,
		hardCtx:    hardCtx,
		hardCancel: cancel,
	}
}

// Scale spawns or retires VUs until target are active. Newly needed VUs are
// spawned immediately; excess VUs are retired most-recent first and finish
// their current iteration in the background. It returns the active count.
func (s *VUScheduler) Scale(target int) int {
	if target < 0 {
		target = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return len(s.active)
	}

	current := len(s.active)
	switch {
	case target > current:
		for i := current; i < target; i++ {
			s.spawnLocked()
		}
	case target < current:
		for i := current - 1; i >= target; i-- {
			s.active[i].Retire()
			s.active[i] = nil
		}
		s.active = s.active[:target]
	}

	if len(s.active) > s.peak {
		s.peak = len(s.active)
		_ = s.cfg.Metrics.Add(metrics.VUsMax, float64(s.peak), nil)
	}
	if current != len(s.active) {
		s.logger.Debug("scaled VUs", zap.Int("from", current), zap.Int("to", len(s.active)))
	}
	_ = s.cfg.Metrics.Add(metrics.VUs, float64(len(s.active)), nil)

	return len(s.active)
}

func (s *VUScheduler) spawnLocked() {
	s.nextID++
	vu := NewVirtualUser(s.nextID, s.cfg.Driver, s.cfg.Metrics, s.cfg.Options, s.logger)
	s.active = append(s.active, vu)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		vu.Run(s.hardCtx, s.cfg.Body)
	}()
}

// Active returns the number of VUs that have not been retired.
func (s *VUScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Peak returns the highest active count seen.
func (s *VUScheduler) Peak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// Spawned returns how many VUs have been created.
func (s *VUScheduler) Spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// Shutdown retires every VU and waits up to gracefulStop for in-flight
// iterations; a negative gracefulStop waits without limit. Once it expires
// the hard-stop context is cancelled and the remaining iterations are
// interrupted. It returns true when every VU stopped within the graceful
// period. Scale is a no-op afterwards.
func (s *VUScheduler) Shutdown(gracefulStop time.Duration) bool {
	s.mu.Lock()
	s.closed = true
	for _, vu := range s.active {
		vu.Retire()
	}
	s.active = nil
	s.mu.Unlock()

	_ = s.cfg.Metrics.Add(metrics.VUs, 0, nil)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var expired <-chan time.Time
	if gracefulStop >= 0 {
		timer := time.NewTimer(gracefulStop)
		defer timer.Stop()
		expired = timer.C
	}

	graceful := true
	select {
	case <-done:
	case <-expired:
		graceful = false
		s.logger.Warn("graceful stop expired, interrupting in-flight iterations",
			zap.Duration("gracefulStop", gracefulStop))
		s.hardCancel()
		<-done
	}

	s.hardCancel()
	if s.cfg.Driver != nil {
		s.cfg.Driver.CloseIdleConnections()
	}
	return graceful
}
