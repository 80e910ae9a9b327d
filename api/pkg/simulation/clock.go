package simulation

import (
	"math"
	"time"

	"github.com/bakeops/bakeops/api/pkg/types"
)

// simulatedNow converts wall-clock progress into simulated minutes since
// midnight. One real minute is SpeedMultiplier simulated minutes. Paused
// stretches do not count, so while paused the clock reads the same value
// it had when the pause began.
//
// The result is quantized to a tenth of a simulated minute so repeated
// reads inside one driver tick agree with each other.
func simulatedNow(state *types.SimulationState, now time.Time, startMinutes int) float64 {
	elapsed := now.Sub(state.StartedAtReal) - state.PausedDuration
	if state.PausedAt != nil {
		elapsed -= now.Sub(*state.PausedAt)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	simMinutes := elapsed.Minutes() * state.SpeedMultiplier
	return float64(startMinutes) + math.Floor(simMinutes*10)/10
}
