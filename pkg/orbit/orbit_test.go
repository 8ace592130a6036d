package orbit

import (
	"math"
	"testing"
)

const earthMu = 3.986004418e14

func circularOrbit() *Propagator {
	radius := 6.6e6 // roughly LEO
	speed := math.Sqrt(earthMu / radius)

	body := Body{ID: "earth", Mu: earthMu, Radius: 6.371e6}
	state := StateVector{
		Position: Vec3{radius, 0, 0},
		Velocity: Vec3{0, speed, 0},
	}

	return NewPropagator(body, state)
}

func TestCircularOrbitConservesRadius(t *testing.T) {
	t.Parallel()

	p := circularOrbit()
	initialRadius := p.State.Position.Norm()

	for i := 0; i < 200; i++ {
		p.Update(1, UpdateInput{GetSeconds: float64(i + 1)})
	}

	finalRadius := p.State.Position.Norm()

	if math.Abs(finalRadius-initialRadius)/initialRadius > 1e-4 {
		t.Fatalf("radius drifted: initial=%v final=%v", initialRadius, finalRadius)
	}
}

func TestApplyDeltaVProgradeIncreasesSpeed(t *testing.T) {
	t.Parallel()

	p := circularOrbit()
	before := p.State.Velocity.Norm()

	p.ApplyDeltaV(DeltaVRequest{Magnitude: 10, Frame: FramePrograde, GetSeconds: 0})

	after := p.State.Velocity.Norm()

	if math.Abs((after-before)-10) > 1e-6 {
		t.Fatalf("speed changed by %v, want +10", after-before)
	}
}

func TestApplyDeltaVLogsImpulse(t *testing.T) {
	t.Parallel()

	p := circularOrbit()
	p.ApplyDeltaV(DeltaVRequest{Magnitude: 5, Frame: FrameRadial, GetSeconds: 42})

	log := p.Impulses()
	if len(log) != 1 || log[0].GetSeconds != 42 {
		t.Fatalf("Impulses() = %+v", log)
	}

	history := p.History()
	if len(history) == 0 {
		t.Fatal("ApplyDeltaV should force a history sample")
	}
}

func TestImpulseLogCapped(t *testing.T) {
	t.Parallel()

	p := circularOrbit()
	p.ImpulseLogCap = 3

	for i := 0; i < 10; i++ {
		p.ApplyDeltaV(DeltaVRequest{Magnitude: 0.1, Frame: FramePrograde, GetSeconds: float64(i)})
	}

	if len(p.Impulses()) != 3 {
		t.Fatalf("len(Impulses()) = %d, want 3", len(p.Impulses()))
	}
}

func TestSummaryCircularOrbitNearZeroEccentricity(t *testing.T) {
	t.Parallel()

	p := circularOrbit()
	elements := p.Summary()

	if elements.Eccentricity > 1e-3 {
		t.Fatalf("Eccentricity = %v, want ~0 for a circular orbit", elements.Eccentricity)
	}

	if elements.PeriodSeconds <= 0 {
		t.Fatal("expected a positive orbital period for an elliptical/circular orbit")
	}
}
