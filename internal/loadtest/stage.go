package loadtest

import (
	"fmt"
	"math"
	"time"
)

// Stage is one segment of a load profile. Concurrency moves linearly from
// the previous stage's target to Target over Duration.
type Stage struct {
	// Duration of this stage; zero means an instant jump to Target
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count at the end of this stage
	Target int `json:"target" yaml:"target"`

	// Optional name for reporting
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Profile is an ordered list of stages.
type Profile []Stage

// FixedProfile holds vus constant for duration.
func FixedProfile(vus int, duration time.Duration) Profile {
	return Profile{
		{Duration: 0, Target: vus},
		{Duration: duration, Target: vus},
	}
}

// TotalDuration is the sum of all stage durations.
func (p Profile) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range p {
		total += s.Duration
	}
	return total
}

// MaxTarget returns the highest target of any stage.
func (p Profile) MaxTarget() int {
	max := 0
	for _, s := range p {
		if s.Target > max {
			max = s.Target
		}
	}
	return max
}

// Validate reports every invalid stage.
func (p Profile) Validate() error {
	errs := &ValidationErrors{}
	if len(p) == 0 {
		errs.Add("stages", "at least one stage is required")
	}
	for i, s := range p {
		field := fmt.Sprintf("stages[%d]", i)
		if s.Duration < 0 {
			errs.Add(field+".duration", "duration must not be negative")
		}
		if s.Target < 0 {
			errs.Add(field+".target", "target must not be negative")
		}
	}
	if err := errs.Err(); err != nil {
		return &ConfigurationError{Err: err}
	}
	return nil
}

// DesiredConcurrency returns how many VUs should be active at elapsed.
//
// Within a stage the value is interpolated from the previous target (0
// before the first stage) and rounded half up. At exactly TotalDuration the
// last target is returned; after it, 0.
func (p Profile) DesiredConcurrency(elapsed time.Duration) int {
	if len(p) == 0 || elapsed < 0 {
		return 0
	}

	var stageStart time.Duration
	prevTarget := 0

	for _, stage := range p {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			value := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return int(math.Floor(value + 0.5))
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	if elapsed == stageStart {
		return prevTarget
	}
	return 0
}

// StageAt returns the index of the stage active at elapsed, or -1 once the
// profile is exhausted. Zero-duration stages are never reported as active.
func (p Profile) StageAt(elapsed time.Duration) int {
	var stageStart time.Duration
	for i, stage := range p {
		stageStart += stage.Duration
		if elapsed < stageStart {
			return i
		}
	}
	return -1
}

// Ramping reports whether stage i changes concurrency.
func (p Profile) Ramping(i int) bool {
	if i < 0 || i >= len(p) {
		return false
	}
	prev := 0
	if i > 0 {
		prev = p[i-1].Target
	}
	return p[i].Target != prev
}
