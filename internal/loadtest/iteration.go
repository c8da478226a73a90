package loadtest

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrRetired is returned by Sleep when the calling VU was retired while
// sleeping. Iteration bodies may return it; it is not counted as a failure.
var ErrRetired = errors.New("virtual user retired")

// Iteration is the unit of work a VU repeats until it is retired.
//
// The context carries the VU's State (see StateFrom). It is cancelled only
// when the run hard-stops, never when the VU is merely retired, so requests
// in flight at retirement complete and are recorded.
type Iteration interface {
	Run(ctx context.Context) error
}

// IterationFunc adapts a function to the Iteration interface.
type IterationFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f IterationFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// State is the per-VU state visible to an iteration body. It is owned by a
// single VU goroutine; Vars may be used freely from that goroutine.
type State struct {
	// VU is the 1-based VU id
	VU int

	// Iteration is the 0-based iteration number of this VU
	Iteration int64

	// Driver issues and records HTTP requests
	Driver *Driver

	// Vars is the VU's private variable scope
	Vars map[string]string

	// Rand is the VU's private random source
	Rand *rand.Rand

	stop <-chan struct{}
}

type stateKey struct{}

// WithState returns a context carrying s.
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// StateFrom returns the VU state carried by ctx, or nil.
func StateFrom(ctx context.Context) *State {
	s, _ := ctx.Value(stateKey{}).(*State)
	return s
}

// DriverFrom returns the request driver of the VU running ctx, or nil.
func DriverFrom(ctx context.Context) *Driver {
	if s := StateFrom(ctx); s != nil {
		return s.Driver
	}
	return nil
}

// Sleep pauses the calling VU for d. It returns early with ErrRetired when
// the VU is retired, or with ctx.Err() when the run hard-stops.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	var stop <-chan struct{}
	if s := StateFrom(ctx); s != nil {
		stop = s.stop
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return ErrRetired
	case <-timer.C:
		return nil
	}
}

// newVURand returns a random source for one VU, seeded from the VU id and
// the clock.
func newVURand(id int) *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(id)<<32))
}
