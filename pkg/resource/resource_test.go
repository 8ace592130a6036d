package resource

import (
	"math"
	"testing"
)

func budgets() map[Tank]*StageBudget {
	return map[Tank]*StageBudget{
		TankCSMSps: {InitialKg: 100, ReserveKg: 10, UsableDeltaVMps: 1000, RemainingKg: 100},
	}
}

func TestApplyEffectAccumulatesNumericLeaves(t *testing.T) {
	t.Parallel()

	s := New(nil, budgets())
	s.PowerMarginPct = 80

	err := s.ApplyEffect(EffectMap{"power_margin_pct": Num(-5)}, EffectContext{Type: SourceSuccess})
	if err != nil {
		t.Fatalf("ApplyEffect: %v", err)
	}

	if s.PowerMarginPct != 75 {
		t.Fatalf("PowerMarginPct = %v, want 75", s.PowerMarginPct)
	}
}

func TestApplyEffectReplacesNonNumericLeaves(t *testing.T) {
	t.Parallel()

	s := New(nil, budgets())

	err := s.ApplyEffect(EffectMap{"thermal_balance_state": Str("roll_active")}, EffectContext{})
	if err != nil {
		t.Fatalf("ApplyEffect: %v", err)
	}

	if s.ThermalBalanceState != "roll_active" {
		t.Fatalf("ThermalBalanceState = %q, want roll_active", s.ThermalBalanceState)
	}
}

func TestApplyEffectUnknownKeyWarns(t *testing.T) {
	t.Parallel()

	s := New(nil, budgets())

	err := s.ApplyEffect(EffectMap{"not_a_real_field": Num(1)}, EffectContext{})
	if err == nil {
		t.Fatal("expected a warning error for an unknown key")
	}
}

func TestRecordPropellantUsageClampsAtZero(t *testing.T) {
	t.Parallel()

	s := New(nil, budgets())
	s.Propellant.CSMSpsKg = 5

	ok := s.RecordPropellantUsage(TankCSMSps, 50, EffectContext{})
	if !ok {
		t.Fatal("RecordPropellantUsage returned false for a known tank")
	}

	if s.Propellant.CSMSpsKg != 0 {
		t.Fatalf("CSMSpsKg = %v, want 0", s.Propellant.CSMSpsKg)
	}
}

func TestRecordPropellantUsageUnknownTank(t *testing.T) {
	t.Parallel()

	s := New(nil, budgets())

	if s.RecordPropellantUsage(Tank("bogus"), 10, EffectContext{}) {
		t.Fatal("expected false for unknown tank")
	}
}

func TestStageDeltaVMarginInvariant(t *testing.T) {
	t.Parallel()

	s := New(nil, budgets())

	// Consume half the usable propellant range (100-10=90kg usable; consume 45kg).
	s.RecordPropellantUsage(TankCSMSps, 45, EffectContext{})

	budget := s.Budgets[TankCSMSps]
	want := budget.UsableDeltaVMps * (budget.RemainingKg - budget.ReserveKg) / (budget.InitialKg - budget.ReserveKg)

	if math.Abs(budget.MarginMps()-want) > 1e-6 {
		t.Fatalf("MarginMps() = %v, want %v", budget.MarginMps(), want)
	}

	if math.Abs(s.DeltaVMarginMps-want) > 1e-6 {
		t.Fatalf("DeltaVMarginMps = %v, want %v", s.DeltaVMarginMps, want)
	}
}

func TestCommunicationsPassEnterExit(t *testing.T) {
	t.Parallel()

	s := New(nil, budgets())
	s.PowerMarginPct = 90
	s.SetSchedule([]CommsWindow{
		{ID: "pass1", Station: "Goldstone", GetOpenSeconds: 10, GetCloseSeconds: 20, PowerMarginDeltaKw: 5},
	})

	s.Update(1, 5)
	if s.Comms.ActiveWindowID != "" {
		t.Fatalf("ActiveWindowID = %q before window opens", s.Comms.ActiveWindowID)
	}

	s.Update(1, 15)
	if s.Comms.ActiveWindowID != "pass1" {
		t.Fatalf("ActiveWindowID = %q, want pass1", s.Comms.ActiveWindowID)
	}

	if s.PowerMarginPct >= 90 {
		t.Fatalf("PowerMarginPct = %v, expected a drop from entering the pass", s.PowerMarginPct)
	}

	marginDuringPass := s.PowerMarginPct

	s.Update(1, 25)
	if s.Comms.ActiveWindowID != "" {
		t.Fatalf("ActiveWindowID = %q after window closes", s.Comms.ActiveWindowID)
	}

	// The exit restores the pass's 5 points; Update's 1s of passive drift
	// (PTC inactive) is applied on the same tick.
	want := marginDuringPass + 5 - s.Drift.PowerMarginDriftPctPerSec*1
	if math.Abs(s.PowerMarginPct-want) > 1e-6 {
		t.Fatalf("PowerMarginPct after exit = %v, want restoration to ~%v", s.PowerMarginPct, want)
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	t.Parallel()

	s := New(nil, budgets())
	snap := s.Snapshot()

	s.Propellant.CSMSpsKg = 1
	snap.Budgets[TankCSMSps].RemainingKg = 999

	if s.Budgets[TankCSMSps].RemainingKg == 999 {
		t.Fatal("Snapshot budgets alias the live state")
	}
}
