// Package executor provides load generation strategies for a run.
package executor

import (
	"context"
	"time"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"
)

// Scaler adjusts the number of active virtual users.
// *loadtest.VUScheduler implements it.
type Scaler interface {
	Scale(target int) int
}

// Executor defines the interface for load generation strategies.
//
// Executors control HOW load is generated. They decide the desired
// concurrency over time and ask a Scaler to reach it; they never run
// iterations themselves.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Run drives the scaler and blocks until the load profile is exhausted
	// or ctx is cancelled. Draining the VUs is left to the caller.
	Run(ctx context.Context, scaler Scaler) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetStats returns executor-specific statistics.
	GetStats() *Stats
}

// Stats contains real-time executor statistics.
type Stats struct {
	// Timing
	StartTime     time.Time     `json:"startTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	// VU stats
	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`

	// Stage info
	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
	Ramping          bool   `json:"ramping"`
}
