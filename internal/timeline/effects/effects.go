// Package effects applies a single event's effect map onto a simulation
// state. Application is a pure transform: given a state and an event, it
// returns a new state with shocks, infrastructure changes, and
// environmental changes folded in. Unknown effect keys are ignored.
package effects

import "timeline-backend/internal/timeline/simstate"

// Event is the subset of an event record the effect applicator reads. The
// rest of an event's descriptive fields are opaque to the core.
type Event struct {
	ID       int64
	AstroDay int64
	Effects  map[string]float64
}

const (
	keyShockMultiplier      = "shock_multiplier"
	keyInfrastructureDamage = "infrastructure_damage"
	keyInfrastructureBoost  = "infrastructure_boost"
	keyEnvironmentalChange  = "environmental_change"
)

// Apply folds one event's effects map into state and returns the resulting
// state. Effects within a single event are independent: they touch disjoint
// fields, so application order within the event does not matter.
func Apply(state simstate.SimulationState, event Event) simstate.SimulationState {
	if len(event.Effects) == 0 {
		return state
	}

	if v, ok := event.Effects[keyShockMultiplier]; ok {
		state.Population = state.Population.ApplyShock(clamp(v, 0.0, 1.0))
	}
	if v, ok := event.Effects[keyInfrastructureDamage]; ok {
		damage := clamp(v, 0.0, 1.0)
		state.InfrastructureFactor = max(0.1, state.InfrastructureFactor*damage)
	}
	if v, ok := event.Effects[keyInfrastructureBoost]; ok {
		boost := clamp(v, -0.5, 1.0)
		state.InfrastructureFactor = clamp(state.InfrastructureFactor+boost, 0.1, 3.0)
	}
	if v, ok := event.Effects[keyEnvironmentalChange]; ok {
		change := clamp(v, -0.5, 0.5)
		state.EnvironmentalFactor = clamp(state.EnvironmentalFactor+change, 0.1, 2.0)
	}

	return state
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
