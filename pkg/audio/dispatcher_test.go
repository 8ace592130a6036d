package audio

import "testing"

type fakeMixer struct {
	gains map[string]float64
	calls int
}

func (m *fakeMixer) SetGain(busID string, gain float64, _ float64) {
	if m.gains == nil {
		m.gains = make(map[string]float64)
	}

	m.gains[busID] = gain
	m.calls++
}

func preemptionCatalog() Catalog {
	ducking := []DuckingRule{{TargetBusID: "ambient", GainLinear: 0.2}}

	return Catalog{
		Buses: map[string]*Bus{
			"ambient": {ID: "ambient", MaxConcurrent: 1},
			"alerts":  {ID: "alerts", MaxConcurrent: 1, Ducking: ducking},
		},
		Categories: map[string]*Category{},
		Cues: map[string]*Cue{
			"ambient.cabin": {
				ID: "ambient.cabin", BusID: "ambient", LengthSeconds: 0, Loop: true,
				Priority: floatPtr(10),
			},
			"alerts.master_alarm": {
				ID: "alerts.master_alarm", BusID: "alerts", LengthSeconds: 5, Loop: false,
				Priority: floatPtr(100),
			},
		},
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestAudioPreemptionWithDucking(t *testing.T) {
	t.Parallel()

	mixer := &fakeMixer{}
	d := NewDispatcher(preemptionCatalog(), mixer, nil)

	d.Enqueue(Trigger{CueID: "ambient.cabin", TriggeredAtSeconds: 0})
	d.Update(0)

	active := d.Active("ambient")
	if len(active) != 1 || active[0].CueID != "ambient.cabin" {
		t.Fatalf("Active(ambient) = %+v, want ambient.cabin playing", active)
	}

	d.Enqueue(Trigger{CueID: "alerts.master_alarm", TriggeredAtSeconds: 5})
	d.Update(5)

	alertsActive := d.Active("alerts")
	if len(alertsActive) != 1 || alertsActive[0].CueID != "alerts.master_alarm" {
		t.Fatalf("Active(alerts) = %+v, want alerts.master_alarm playing", alertsActive)
	}

	if gain, ok := mixer.gains["ambient"]; !ok || gain != 0.2 {
		t.Fatalf("ambient bus gain = %v (ok=%v), want 0.2 from ducking rule", gain, ok)
	}

	// ambient.cabin lives on its own bus, so the alarm on "alerts" only ducks
	// it rather than literally preempting playback (preemption only contends
	// for capacity within a single bus).
	ambientActive := d.Active("ambient")
	if len(ambientActive) != 1 || ambientActive[0].CueID != "ambient.cabin" {
		t.Fatalf("Active(ambient) = %+v, want ambient.cabin still looping (ducked, not stopped)", ambientActive)
	}
}

func TestCooldownSuppressesRepeatTrigger(t *testing.T) {
	t.Parallel()

	catalog := Catalog{
		Buses: map[string]*Bus{"master": {ID: "master", MaxConcurrent: 1}},
		Cues: map[string]*Cue{
			"ping": {ID: "ping", BusID: "master", LengthSeconds: 1, CooldownSeconds: 10, Priority: floatPtr(1)},
		},
	}

	d := NewDispatcher(catalog, nil, nil)

	d.Enqueue(Trigger{CueID: "ping", TriggeredAtSeconds: 0})
	d.Update(0)

	if len(d.Active("master")) != 1 {
		t.Fatalf("expected ping to start playing at GET 0")
	}

	d.Update(1) // retires the 1s cue

	d.Enqueue(Trigger{CueID: "ping", TriggeredAtSeconds: 2})
	d.Update(2)

	if len(d.Active("master")) != 0 {
		t.Fatalf("expected retrigger within cooldown window to be suppressed, not played")
	}

	if d.SuppressedCount() != 1 {
		t.Fatalf("SuppressedCount() = %d, want 1", d.SuppressedCount())
	}
}

func TestMaxConcurrentCapsActiveCount(t *testing.T) {
	t.Parallel()

	catalog := Catalog{
		Buses: map[string]*Bus{"master": {ID: "master", MaxConcurrent: 1}},
		Cues: map[string]*Cue{
			"a": {ID: "a", BusID: "master", LengthSeconds: 100, Priority: floatPtr(1)},
			"b": {ID: "b", BusID: "master", LengthSeconds: 100, Priority: floatPtr(1)},
		},
	}

	d := NewDispatcher(catalog, nil, nil)

	d.Enqueue(Trigger{CueID: "a", TriggeredAtSeconds: 0})
	d.Enqueue(Trigger{CueID: "b", TriggeredAtSeconds: 0})
	d.Update(0)

	if got := len(d.Active("master")); got > 1 {
		t.Fatalf("Active(master) length = %d, want <= MaxConcurrent (1)", got)
	}
}

func TestLoopNeverExpires(t *testing.T) {
	t.Parallel()

	catalog := Catalog{
		Buses: map[string]*Bus{"master": {ID: "master", MaxConcurrent: 1}},
		Cues:  map[string]*Cue{"loop": {ID: "loop", BusID: "master", Loop: true, Priority: floatPtr(1)}},
	}

	d := NewDispatcher(catalog, nil, nil)
	d.Enqueue(Trigger{CueID: "loop", TriggeredAtSeconds: 0})

	for get := 0.0; get <= 1000; get += 50 {
		d.Update(get)
	}

	if len(d.Active("master")) != 1 {
		t.Fatalf("loop cue should still be active after many ticks")
	}
}
