package autopilot

import (
	"testing"

	"apollosim/pkg/resource"
)

func budgets() map[resource.Tank]*resource.StageBudget {
	return map[resource.Tank]*resource.StageBudget{
		resource.TankCSMSps: {
			InitialKg:       1000,
			RemainingKg:     1000,
			ReserveKg:       50,
			UsableDeltaVMps: 3000,
		},
	}
}

func newResourceState() *resource.State {
	return resource.New(nil, budgets())
}

func TestThrottleStepBurnConsumesPropellant(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	runner := NewRunner(res, nil, nil)

	def := NewDefinition("BURN1", "", []Command{
		{Time: 0, Kind: CommandThrottle, Throttle: &ThrottleParams{Level: 1.0}},
		{Time: 10, Kind: CommandThrottle, Throttle: &ThrottleParams{Level: 0.0}},
	}, nil, Propulsion{TankKey: resource.TankCSMSps, MassFlowKgPerSec: 5})

	runner.Start("evt1", def, 100)

	for get := 100.0; get <= 111; get++ {
		runner.Update(get)
	}

	if got := res.Snapshot().Propellant.CSMSpsKg; got >= 1000 {
		t.Fatalf("CSMSpsKg = %v, want < 1000 after a 10s full-throttle burn", got)
	}
}

func TestThrottleRampLinearInterpolation(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	runner := NewRunner(res, nil, nil)

	def := NewDefinition("RAMP1", "", []Command{
		{Time: 0, Kind: CommandThrottleRamp, ThrottleRamp: &ThrottleRampParams{To: 1.0, DurationSeconds: 10}},
		{Time: 10, Kind: CommandThrottle, Throttle: &ThrottleParams{Level: 0}},
	}, nil, Propulsion{TankKey: resource.TankCSMSps, MassFlowKgPerSec: 10})

	rt := runner.Start("evt1", def, 0)

	runner.Update(5)
	if got := rt.throttleAt(5); got < 0.45 || got > 0.55 {
		t.Fatalf("throttleAt(5) = %v, want ~0.5 mid-ramp", got)
	}

	runner.Update(10)
	if rt.currentLevel != 0 {
		t.Fatalf("currentLevel after final throttle command = %v, want 0", rt.currentLevel)
	}
}

func TestUllageWindowConsumesUllageTank(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	runner := NewRunner(res, nil, nil)

	def := NewDefinition("ULL1", "", []Command{
		{Time: 0, Kind: CommandUllageFire, UllageFire: &UllageFireParams{DurationSeconds: 4}},
	}, nil, Propulsion{
		TankKey:          resource.TankCSMSps,
		MassFlowKgPerSec: 0,
		Ullage:           &UllageConfig{TankKey: resource.TankCSMRcs, MassFlowKgPerSec: 2},
	})

	runner.Start("evt1", def, 0)
	runner.Update(2)
	runner.Update(4)
	runner.Update(6)

	rt := runner.Runtime("evt1")
	if rt.ullageUsedKg < 7.9 || rt.ullageUsedKg > 8.1 {
		t.Fatalf("ullageUsedKg = %v, want ~8 (2kg/s * 4s)", rt.ullageUsedKg)
	}
}

func TestRunCompletesAndFansOutSummary(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	runner := NewRunner(res, nil, nil)

	var got *Summary
	runner.Subscribe(func(s Summary) { got = &s })

	def := NewDefinition("BURN2", "", []Command{
		{Time: 0, Kind: CommandThrottle, Throttle: &ThrottleParams{Level: 1}},
		{Time: 5, Kind: CommandThrottle, Throttle: &ThrottleParams{Level: 0}},
	}, nil, Propulsion{TankKey: resource.TankCSMSps, MassFlowKgPerSec: 4})

	runner.Start("evt1", def, 0)

	for get := 0.0; get <= 6; get++ {
		runner.Update(get)
	}

	if got == nil {
		t.Fatal("expected a summary to be dispatched on completion")
	}

	if got.Status != StatusComplete {
		t.Fatalf("Status = %v, want StatusComplete", got.Status)
	}

	if got.PropellantUsedKg <= 0 {
		t.Fatalf("PropellantUsedKg = %v, want > 0", got.PropellantUsedKg)
	}

	if runner.Active("evt1") {
		t.Fatal("Active() should be false after completion")
	}
}

func TestAbortRetainsPartialMetricsAndExcludesFromComplete(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	runner := NewRunner(res, nil, nil)

	var got *Summary
	runner.Subscribe(func(s Summary) { got = &s })

	def := NewDefinition("BURN3", "", []Command{
		{Time: 0, Kind: CommandThrottle, Throttle: &ThrottleParams{Level: 1}},
		{Time: 20, Kind: CommandThrottle, Throttle: &ThrottleParams{Level: 0}},
	}, nil, Propulsion{TankKey: resource.TankCSMSps, MassFlowKgPerSec: 3})

	runner.Start("evt1", def, 0)
	runner.Update(5)
	runner.Abort("evt1", 5, "prerequisite withdrawn")

	if got == nil {
		t.Fatal("expected a summary on abort")
	}

	if got.Status != StatusAborted {
		t.Fatalf("Status = %v, want StatusAborted", got.Status)
	}

	if got.PropellantUsedKg <= 0 {
		t.Fatal("aborted run should retain partial propellant usage")
	}
}

func TestToleranceViolationMarksFailed(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	runner := NewRunner(res, nil, nil)

	var got *Summary
	runner.Subscribe(func(s Summary) { got = &s })

	maxKg := 1.0
	def := NewDefinition("BURN4", "", []Command{
		{Time: 0, Kind: CommandThrottle, Throttle: &ThrottleParams{Level: 1}},
		{Time: 5, Kind: CommandThrottle, Throttle: &ThrottleParams{Level: 0}},
	}, &Tolerances{
		PropellantKg: &ToleranceRange{Max: &maxKg},
	}, Propulsion{TankKey: resource.TankCSMSps, MassFlowKgPerSec: 10})

	runner.Start("evt1", def, 0)

	for get := 0.0; get <= 6; get++ {
		runner.Update(get)
	}

	if got.Status != StatusFailed {
		t.Fatalf("Status = %v, want StatusFailed (propellant usage exceeds 1kg tolerance)", got.Status)
	}

	if got.FailureReason == "" {
		t.Fatal("expected a non-empty FailureReason")
	}
}
