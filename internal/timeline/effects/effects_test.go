package effects

import (
	"testing"

	"timeline-backend/internal/timeline/simstate"
)

func baseState() simstate.SimulationState {
	return simstate.SimulationState{
		Population: simstate.PopulationState{
			Total:     10000,
			BySpecies: map[string]int{"huum": 7000, "sint": 3000},
			ByHabitat: map[string]int{"on_ground": 9000, "under_ground": 1000},
		},
		InfrastructureFactor: 1.0,
		EnvironmentalFactor:  1.0,
		LocationFactor:       1.0,
	}
}

func TestApplyUnknownKeysIgnored(t *testing.T) {
	state := baseState()
	got := Apply(state, Event{Effects: map[string]float64{"some_future_effect": 0.5}})
	if got.Population.Total != state.Population.Total {
		t.Errorf("unknown effect key changed total: got %d, want %d", got.Population.Total, state.Population.Total)
	}
	if got.InfrastructureFactor != state.InfrastructureFactor {
		t.Errorf("unknown effect key changed infrastructure factor")
	}
}

func TestApplyEmptyEffectsIsIdentity(t *testing.T) {
	state := baseState()
	got := Apply(state, Event{})
	if got.Population.Total != state.Population.Total {
		t.Errorf("empty effects changed state")
	}
}

func TestApplyShockMultiplier(t *testing.T) {
	state := baseState()
	got := Apply(state, Event{Effects: map[string]float64{"shock_multiplier": 0.75}})

	wantHuum := 5250 // 7000 * 0.75
	wantSint := 2250 // 3000 * 0.75
	if got.Population.BySpecies["huum"] != wantHuum {
		t.Errorf("huum = %d, want %d", got.Population.BySpecies["huum"], wantHuum)
	}
	if got.Population.BySpecies["sint"] != wantSint {
		t.Errorf("sint = %d, want %d", got.Population.BySpecies["sint"], wantSint)
	}
	if got.Population.Total != wantHuum+wantSint {
		t.Errorf("total = %d, want sum of species %d", got.Population.Total, wantHuum+wantSint)
	}
}

func TestApplyShockMultiplierClamped(t *testing.T) {
	state := baseState()
	got := Apply(state, Event{Effects: map[string]float64{"shock_multiplier": 5.0}})
	if got.Population.BySpecies["huum"] != 7000 {
		t.Errorf("shock_multiplier should clamp to 1.0, huum = %d, want 7000", got.Population.BySpecies["huum"])
	}
}

func TestApplyInfrastructureDamage(t *testing.T) {
	state := baseState()
	state.InfrastructureFactor = 1.0
	got := Apply(state, Event{Effects: map[string]float64{"infrastructure_damage": 0.5}})
	if got.InfrastructureFactor != 0.5 {
		t.Errorf("InfrastructureFactor = %v, want 0.5", got.InfrastructureFactor)
	}

	t.Run("floored at 0.1", func(t *testing.T) {
		state := baseState()
		state.InfrastructureFactor = 0.15
		got := Apply(state, Event{Effects: map[string]float64{"infrastructure_damage": 0.5}})
		if got.InfrastructureFactor != 0.1 {
			t.Errorf("InfrastructureFactor = %v, want floored at 0.1", got.InfrastructureFactor)
		}
	})
}

func TestApplyInfrastructureBoost(t *testing.T) {
	state := baseState()
	state.InfrastructureFactor = 1.0
	got := Apply(state, Event{Effects: map[string]float64{"infrastructure_boost": 0.5}})
	if got.InfrastructureFactor != 1.5 {
		t.Errorf("InfrastructureFactor = %v, want 1.5", got.InfrastructureFactor)
	}

	t.Run("clamped to 3.0 ceiling", func(t *testing.T) {
		state := baseState()
		state.InfrastructureFactor = 2.9
		got := Apply(state, Event{Effects: map[string]float64{"infrastructure_boost": 1.0}})
		if got.InfrastructureFactor != 3.0 {
			t.Errorf("InfrastructureFactor = %v, want clamped to 3.0", got.InfrastructureFactor)
		}
	})
}

func TestApplyEnvironmentalChange(t *testing.T) {
	state := baseState()
	state.EnvironmentalFactor = 1.0
	got := Apply(state, Event{Effects: map[string]float64{"environmental_change": -0.5}})
	if got.EnvironmentalFactor != 0.5 {
		t.Errorf("EnvironmentalFactor = %v, want 0.5", got.EnvironmentalFactor)
	}

	t.Run("clamped to 2.0 ceiling", func(t *testing.T) {
		state := baseState()
		state.EnvironmentalFactor = 1.9
		got := Apply(state, Event{Effects: map[string]float64{"environmental_change": 0.5}})
		if got.EnvironmentalFactor != 2.0 {
			t.Errorf("EnvironmentalFactor = %v, want clamped to 2.0", got.EnvironmentalFactor)
		}
	})
}

func TestApplyNeverTouchesLocationFactor(t *testing.T) {
	state := baseState()
	state.LocationFactor = 1.0
	got := Apply(state, Event{Effects: map[string]float64{
		"shock_multiplier":      0.5,
		"infrastructure_damage": 0.5,
		"environmental_change":  0.1,
	}})
	if got.LocationFactor != 1.0 {
		t.Errorf("LocationFactor changed: got %v, want unchanged 1.0", got.LocationFactor)
	}
}
