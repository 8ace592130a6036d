package manualqueue

import (
	"testing"

	"apollosim/pkg/checklist"
	"apollosim/pkg/resource"
)

func newResourceState() *resource.State {
	return resource.New(nil, map[resource.Tank]*resource.StageBudget{
		resource.TankCSMRcs: {InitialKg: 0, RemainingKg: 0, ReserveKg: 0, UsableDeltaVMps: 100},
	})
}

type fakePanel struct {
	dskyCalls  []DSKYEntryParams
	panelCalls []PanelControlParams
}

func (f *fakePanel) DSKYEntry(params DSKYEntryParams, _ float64) {
	f.dskyCalls = append(f.dskyCalls, params)
}

func (f *fakePanel) PanelControl(params PanelControlParams, _ float64) {
	f.panelCalls = append(f.panelCalls, params)
}

func retryUntil(v float64) *float64 { return &v }

func TestChecklistAckRetriesUntilChecklistActive(t *testing.T) {
	t.Parallel()

	cm := checklist.NewManager(map[string]*checklist.Definition{
		"CL1": {ID: "CL1", Steps: []checklist.Step{{StepNumber: 1}, {StepNumber: 2}}},
	}, nil)

	q := NewQueue(newResourceState(), cm, nil, nil)

	q.Enqueue(&Action{
		GetSeconds:        0,
		Kind:              KindChecklistAck,
		RetryUntilSeconds: retryUntil(10),
		ChecklistAck:      &ChecklistAckParams{EventID: "E1", Count: 2, Actor: "crew"},
	})

	q.Update(0)

	if q.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1 (still retrying, no active checklist)", q.Pending())
	}

	if _, err := cm.ActivateEvent("E1", "CL1", 1, checklist.ActivationParams{
		ExpectedDurationSeconds: 100,
		WindowCloseSeconds:      200,
		AutoAdvance:             false,
	}); err != nil {
		t.Fatalf("ActivateEvent: %v", err)
	}

	q.Update(1)

	if q.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0 after checklist became active", q.Pending())
	}

	if !cm.IsEventComplete("E1") {
		t.Fatalf("E1 checklist not fully acknowledged after ack(count=2)")
	}

	hist := q.History()
	if len(hist) != 1 || hist[0].Status != StatusSuccess {
		t.Fatalf("History = %+v, want one success entry", hist)
	}
}

func TestResourceDeltaAlwaysSucceeds(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	cm := checklist.NewManager(nil, nil)
	q := NewQueue(res, cm, nil, nil)

	q.Enqueue(&Action{
		GetSeconds:    5,
		Kind:          KindResourceDelta,
		ResourceDelta: &ResourceDeltaParams{Effect: resource.EffectMap{"power_margin_pct": resource.Num(-3)}},
	})

	q.Update(5)

	hist := q.History()
	if len(hist) != 1 || hist[0].Status != StatusSuccess {
		t.Fatalf("History = %+v, want one success entry", hist)
	}
}

// TestPropellantBurnRetriesThenSucceeds mirrors the manual-burn-retry scenario:
// a tank starts empty, the burn is requested at GET 0 with a 3s retry window,
// the tank is refilled after the first attempt by a negative
// RecordPropellantUsage call, and the burn should
// succeed once sufficient propellant is available, before the retry window
// expires.
func TestPropellantBurnRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	cm := checklist.NewManager(nil, nil)
	q := NewQueue(res, cm, nil, nil)

	q.Enqueue(&Action{
		GetSeconds:        0,
		Kind:              KindPropellantBurn,
		RetryUntilSeconds: retryUntil(3),
		PropellantBurn:    &PropellantBurnParams{Tank: resource.TankCSMRcs, AmountKg: 50},
	})

	q.Update(0)

	if q.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1 (tank empty, burn should retry)", q.Pending())
	}

	res.RecordPropellantUsage(resource.TankCSMRcs, -50, resource.EffectContext{Type: resource.SourceManual})

	if got := res.Snapshot().Propellant.CSMRcsKg; got < 50 {
		t.Fatalf("CSMRcsKg = %v after refill, want >= 50", got)
	}

	q.Update(1)

	hist := q.History()
	if len(hist) != 1 || hist[0].Status != StatusSuccess {
		t.Fatalf("History = %+v, want one success entry once tank refilled", hist)
	}

	if got := res.Snapshot().Propellant.CSMRcsKg; got != 0 {
		t.Fatalf("CSMRcsKg = %v after burn, want 0", got)
	}
}

func TestPropellantBurnFailsWhenRetryWindowExpires(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	cm := checklist.NewManager(nil, nil)
	q := NewQueue(res, cm, nil, nil)
	q.retryIntervalSeconds = 1

	q.Enqueue(&Action{
		GetSeconds:        0,
		Kind:              KindPropellantBurn,
		RetryUntilSeconds: retryUntil(2),
		PropellantBurn:    &PropellantBurnParams{Tank: resource.TankCSMRcs, AmountKg: 50},
	})

	for get := 0.0; get <= 5; get++ {
		q.Update(get)
	}

	if q.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0 (action should have concluded)", q.Pending())
	}

	hist := q.History()
	if len(hist) != 1 || hist[0].Status != StatusFailed {
		t.Fatalf("History = %+v, want one failed entry once retry window expired", hist)
	}
}

func TestPropellantBurnUnknownTankFailsImmediately(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	cm := checklist.NewManager(nil, nil)
	q := NewQueue(res, cm, nil, nil)

	q.Enqueue(&Action{
		GetSeconds:     0,
		Kind:           KindPropellantBurn,
		PropellantBurn: &PropellantBurnParams{Tank: resource.Tank("bogus"), AmountKg: 1},
	})

	q.Update(0)

	hist := q.History()
	if len(hist) != 1 || hist[0].Status != StatusFailed {
		t.Fatalf("History = %+v, want immediate failure for unknown tank", hist)
	}
}

func TestDSKYEntryAndPanelControlForwardToReceiver(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	cm := checklist.NewManager(nil, nil)
	panel := &fakePanel{}
	q := NewQueue(res, cm, panel, nil)

	q.Enqueue(&Action{GetSeconds: 0, Kind: KindDSKYEntry, DSKYEntry: &DSKYEntryParams{Verb: 16, Noun: 65}})
	q.Enqueue(&Action{GetSeconds: 0, Kind: KindPanelControl, PanelControl: &PanelControlParams{Control: "abort_switch", Value: 1}})

	q.Update(0)

	if len(panel.dskyCalls) != 1 || panel.dskyCalls[0].Verb != 16 {
		t.Fatalf("dskyCalls = %+v, want one entry with Verb=16", panel.dskyCalls)
	}

	if len(panel.panelCalls) != 1 || panel.panelCalls[0].Control != "abort_switch" {
		t.Fatalf("panelCalls = %+v, want one entry for abort_switch", panel.panelCalls)
	}

	hist := q.History()
	if len(hist) != 2 {
		t.Fatalf("History length = %d, want 2", len(hist))
	}

	for _, h := range hist {
		if h.Status != StatusSuccess {
			t.Fatalf("entry %+v, want success", h)
		}
	}
}

func TestQueueOrdersByGetSecondsThenInsertion(t *testing.T) {
	t.Parallel()

	res := newResourceState()
	cm := checklist.NewManager(nil, nil)
	panel := &fakePanel{}
	q := NewQueue(res, cm, panel, nil)

	q.Enqueue(&Action{GetSeconds: 5, Kind: KindPanelControl, PanelControl: &PanelControlParams{Control: "second"}})
	q.Enqueue(&Action{GetSeconds: 0, Kind: KindPanelControl, PanelControl: &PanelControlParams{Control: "first"}})
	q.Enqueue(&Action{GetSeconds: 5, Kind: KindPanelControl, PanelControl: &PanelControlParams{Control: "third"}})

	q.Update(10)

	if len(panel.panelCalls) != 3 {
		t.Fatalf("panelCalls length = %d, want 3", len(panel.panelCalls))
	}

	want := []string{"first", "second", "third"}
	for i, w := range want {
		if panel.panelCalls[i].Control != w {
			t.Fatalf("panelCalls[%d].Control = %q, want %q", i, panel.panelCalls[i].Control, w)
		}
	}
}
