package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bakeops/bakeops/api/pkg/types"
)

func TestSimulatedNow(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	state := &types.SimulationState{StartedAtReal: t0, SpeedMultiplier: 60}

	// nothing elapsed, the clock sits at opening
	assert.Equal(t, 360.0, simulatedNow(state, t0, 360))

	// one real minute at 60x is one simulated hour
	assert.Equal(t, 420.0, simulatedNow(state, t0.Add(time.Minute), 360))

	// sub-minute progress quantizes down to a tenth of a minute
	assert.InDelta(t, 360.3, simulatedNow(state, t0.Add(387*time.Millisecond), 360), 1e-9)

	// a wall clock behind the start never runs the simulation backwards
	assert.Equal(t, 360.0, simulatedNow(state, t0.Add(-time.Minute), 360))
}

func TestSimulatedNow_SpeedMultiplier(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	slow := &types.SimulationState{StartedAtReal: t0, SpeedMultiplier: 1}
	assert.Equal(t, 365.0, simulatedNow(slow, t0.Add(5*time.Minute), 360))

	fast := &types.SimulationState{StartedAtReal: t0, SpeedMultiplier: 120}
	assert.Equal(t, 480.0, simulatedNow(fast, t0.Add(time.Minute), 360))
}

func TestSimulatedNow_PauseCredit(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	// thirty banked seconds of pause are invisible to the simulation
	state := &types.SimulationState{
		StartedAtReal:   t0,
		SpeedMultiplier: 60,
		PausedDuration:  30 * time.Second,
	}
	assert.Equal(t, 420.0, simulatedNow(state, t0.Add(90*time.Second), 360))

	// a pause still in progress freezes the clock where it stopped
	pausedAt := t0.Add(time.Minute)
	state.PausedAt = &pausedAt
	assert.Equal(t, 390.0, simulatedNow(state, t0.Add(3*time.Minute), 360))
}
