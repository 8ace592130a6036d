package rcs

import (
	"math"
	"testing"

	"apollosim/pkg/resource"
)

func fixtureController() (*Controller, *resource.State) {
	res := resource.New(nil, map[resource.Tank]*resource.StageBudget{
		resource.TankCSMRcs: {InitialKg: 50, ReserveKg: 5, UsableDeltaVMps: 30, RemainingKg: 50},
	})

	thrusters := []Thruster{
		{ID: "A1", CraftID: "csm", TranslationAxes: []string{"x"}, TorqueAxes: []string{"pitch"}, ThrustN: 440, IspSec: 290, TankKey: resource.TankCSMRcs, MinImpulseSeconds: 0.01},
		{ID: "A2", CraftID: "csm", TranslationAxes: []string{"y"}, TorqueAxes: []string{"yaw"}, ThrustN: 440, IspSec: 290, TankKey: resource.TankCSMRcs, MinImpulseSeconds: 0.01},
	}

	return NewController(thrusters, res), res
}

func TestSelectExplicitIDsOverride(t *testing.T) {
	t.Parallel()

	c, _ := fixtureController()

	selected := c.Select(PulseRequest{ThrusterIDs: []string{"A2"}})
	if len(selected) != 1 || selected[0].ID != "A2" {
		t.Fatalf("Select() = %+v, want [A2]", selected)
	}
}

func TestSelectByAxisDeterministicOrder(t *testing.T) {
	t.Parallel()

	c, _ := fixtureController()

	selected := c.Select(PulseRequest{CraftID: "csm"})
	if len(selected) != 2 || selected[0].ID != "A1" || selected[1].ID != "A2" {
		t.Fatalf("Select() = %+v, want [A1 A2]", selected)
	}
}

func TestFireRecordsPropellantUsage(t *testing.T) {
	t.Parallel()

	c, res := fixtureController()

	before := res.Propellant.CSMRcsKg

	result := c.Fire(PulseRequest{
		ThrusterIDs:     []string{"A1"},
		DurationSeconds: 1,
		DutyCycle:       1,
		Count:           2,
	}, 0, "test")

	wantMassFlow := 440.0 / (290.0 * StandardGravity)
	wantMass := wantMassFlow * 1 * 2

	if math.Abs(result.TotalMassKg-wantMass) > 1e-6 {
		t.Fatalf("TotalMassKg = %v, want %v", result.TotalMassKg, wantMass)
	}

	if math.Abs((before-res.Propellant.CSMRcsKg)-wantMass) > 1e-6 {
		t.Fatalf("propellant consumed = %v, want %v", before-res.Propellant.CSMRcsKg, wantMass)
	}

	stats := c.Stats()
	if stats.TotalPulses != 2 {
		t.Fatalf("TotalPulses = %d, want 2", stats.TotalPulses)
	}
}

func TestFireMaxThrustersTruncates(t *testing.T) {
	t.Parallel()

	c, _ := fixtureController()

	result := c.Fire(PulseRequest{CraftID: "csm", MaxThrusters: 1, DurationSeconds: 1, DutyCycle: 1, Count: 1}, 0, "test")
	if len(result.ThrusterIDs) != 1 {
		t.Fatalf("fired %d thrusters, want 1", len(result.ThrusterIDs))
	}
}
