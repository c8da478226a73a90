package loadtest_test

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
)

func TestProfile_DesiredConcurrency(t *testing.T) {
	profile := loadtest.Profile{
		{Duration: 10 * time.Second, Target: 10},
		{Duration: 10 * time.Second, Target: 10},
		{Duration: 10 * time.Second, Target: 0},
	}

	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"start", 0, 0},
		{"quarter of ramp up", 2500 * time.Millisecond, 3}, // 2.5 rounds up
		{"midpoint of ramp up", 5 * time.Second, 5},
		{"end of ramp up", 10 * time.Second, 10},
		{"plateau", 15 * time.Second, 10},
		{"midpoint of ramp down", 25 * time.Second, 5},
		{"just before end", 29999 * time.Millisecond, 0},
		{"exactly at end", 30 * time.Second, 0},
		{"after end", 31 * time.Second, 0},
		{"negative", -time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, profile.DesiredConcurrency(tt.elapsed))
		})
	}
}

func TestProfile_EndpointsAndMidpoint(t *testing.T) {
	profile := loadtest.Profile{{Duration: 60 * time.Second, Target: 50}}

	assert.Equal(t, 0, profile.DesiredConcurrency(0))
	assert.Equal(t, 50, profile.DesiredConcurrency(60*time.Second), "exactly at total duration returns last target")
	assert.Equal(t, 0, profile.DesiredConcurrency(61*time.Second), "past total duration returns 0")
	assert.InDelta(t, 25, profile.DesiredConcurrency(30*time.Second), 1)
}

func TestProfile_ZeroDurationStageJumps(t *testing.T) {
	profile := loadtest.Profile{
		{Duration: 5 * time.Second, Target: 10},
		{Duration: 0, Target: 40},
		{Duration: 5 * time.Second, Target: 40},
	}

	assert.Equal(t, 10, profile.DesiredConcurrency(4999*time.Millisecond))
	assert.Equal(t, 40, profile.DesiredConcurrency(5*time.Second))
	assert.Equal(t, 40, profile.DesiredConcurrency(10*time.Second))
}

func TestFixedProfile(t *testing.T) {
	profile := loadtest.FixedProfile(7, 30*time.Second)

	assert.Equal(t, 30*time.Second, profile.TotalDuration())
	assert.Equal(t, 7, profile.DesiredConcurrency(0), "zero-duration first stage applies at t=0")
	assert.Equal(t, 7, profile.DesiredConcurrency(15*time.Second))
	assert.Equal(t, 7, profile.DesiredConcurrency(30*time.Second))
	assert.Equal(t, 0, profile.DesiredConcurrency(31*time.Second))
	assert.Equal(t, 7, profile.MaxTarget())
}

func TestProfile_Validate(t *testing.T) {
	require.NoError(t, loadtest.Profile{{Duration: time.Second, Target: 1}}.Validate())

	tests := []struct {
		name    string
		profile loadtest.Profile
		errs    int
	}{
		{"empty", loadtest.Profile{}, 1},
		{"negative duration", loadtest.Profile{{Duration: -time.Second, Target: 1}}, 1},
		{"negative target", loadtest.Profile{{Duration: time.Second, Target: -1}}, 1},
		{"both negative", loadtest.Profile{{Duration: -time.Second, Target: -1}}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			require.Error(t, err)

			var cfgErr *loadtest.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))

			var verrs *loadtest.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Len(t, verrs.Errors, tt.errs)
		})
	}
}

func TestProfile_StageAt(t *testing.T) {
	profile := loadtest.Profile{
		{Duration: 10 * time.Second, Target: 10},
		{Duration: 0, Target: 20},
		{Duration: 10 * time.Second, Target: 20},
	}

	assert.Equal(t, 0, profile.StageAt(0))
	assert.Equal(t, 2, profile.StageAt(10*time.Second))
	assert.Equal(t, -1, profile.StageAt(20*time.Second))
	assert.True(t, profile.Ramping(0))
	assert.False(t, profile.Ramping(2))
}

func TestProperty_RampIsMonotonicWithinStage(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("desired concurrency moves toward the stage target", prop.ForAll(
		func(from, to int, durationMs int64, a, b int64) bool {
			profile := loadtest.Profile{
				{Duration: 0, Target: from},
				{Duration: time.Duration(durationMs) * time.Millisecond, Target: to},
			}
			t1 := time.Duration(a%durationMs) * time.Millisecond
			t2 := time.Duration(b%durationMs) * time.Millisecond
			if t1 > t2 {
				t1, t2 = t2, t1
			}

			v1 := profile.DesiredConcurrency(t1)
			v2 := profile.DesiredConcurrency(t2)

			lo, hi := from, to
			if lo > hi {
				lo, hi = hi, lo
			}
			if v1 < lo || v1 > hi || v2 < lo || v2 > hi {
				return false
			}
			if to >= from {
				return v1 <= v2
			}
			return v1 >= v2
		},
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
		gen.Int64Range(1, 600_000),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
	))

	properties.Property("profile ends at its last target", prop.ForAll(
		func(targets []int) bool {
			if len(targets) == 0 {
				return true
			}
			profile := make(loadtest.Profile, len(targets))
			for i, target := range targets {
				profile[i] = loadtest.Stage{Duration: time.Second, Target: target}
			}
			total := profile.TotalDuration()
			return profile.DesiredConcurrency(total) == targets[len(targets)-1] &&
				profile.DesiredConcurrency(total+time.Nanosecond) == 0
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}
