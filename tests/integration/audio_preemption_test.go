package integration_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apollosim/pkg/audio"
)

// recordingMixer captures every SetGain call so a test can assert on the
// ducking gain applied to a bus, without a real mixer backend.
type recordingMixer struct {
	calls []gainCall
}

type gainCall struct {
	busID       string
	gain        float64
	rampSeconds float64
}

func (m *recordingMixer) SetGain(busID string, gain, rampSeconds float64) {
	m.calls = append(m.calls, gainCall{busID: busID, gain: gain, rampSeconds: rampSeconds})
}

// TestAlertBusDucksAmbientBusOnPreemption covers spec.md §8 scenario 5: a
// high-priority alert cue starts on its own bus while a looping ambient cue
// plays on a separate bus, and ducks that bus's gain per the alert bus's
// ducking rule; preemption contends only within a bus, so the ambient cue
// keeps playing.
func TestAlertBusDucksAmbientBusOnPreemption(t *testing.T) {
	t.Parallel()

	ambientPriority := 10.0
	alarmPriority := 100.0

	catalog := audio.Catalog{
		Buses: map[string]*audio.Bus{
			"ambient": {ID: "ambient", MaxConcurrent: 1},
			"alert": {
				ID:            "alert",
				MaxConcurrent: 1,
				Ducking:       []audio.DuckingRule{{TargetBusID: "ambient", GainLinear: 0.1}},
			},
		},
		Cues: map[string]*audio.Cue{
			"ambient.cabin": {
				ID:            "ambient.cabin",
				BusID:         "ambient",
				LengthSeconds: math.Inf(1),
				Loop:          true,
				Priority:      &ambientPriority,
			},
			"alerts.master_alarm": {
				ID:            "alerts.master_alarm",
				BusID:         "alert",
				LengthSeconds: 10,
				Priority:      &alarmPriority,
			},
		},
	}

	mixer := &recordingMixer{}
	dispatcher := audio.NewDispatcher(catalog, mixer, nil)

	dispatcher.Enqueue(audio.Trigger{CueID: "ambient.cabin", Severity: audio.SeverityAmbient, TriggeredAtSeconds: 0})
	dispatcher.Update(0)

	ambientActive := dispatcher.Active("ambient")
	require.Len(t, ambientActive, 1)
	assert.Equal(t, "ambient.cabin", ambientActive[0].CueID)

	dispatcher.Enqueue(audio.Trigger{CueID: "alerts.master_alarm", Severity: audio.SeverityEmergency, TriggeredAtSeconds: 5})
	dispatcher.Update(5)

	alertActive := dispatcher.Active("alert")
	require.Len(t, alertActive, 1)
	assert.Equal(t, "alerts.master_alarm", alertActive[0].CueID)

	// ambient.cabin keeps playing on its own bus (ducking reduces its
	// audible gain; it is not preempted off a different bus).
	ambientActive = dispatcher.Active("ambient")
	require.Len(t, ambientActive, 1)
	assert.Equal(t, "ambient.cabin", ambientActive[0].CueID)

	require.NotEmpty(t, mixer.calls)
	last := mixer.calls[len(mixer.calls)-1]
	assert.Equal(t, "ambient", last.busID)
	assert.InDelta(t, 0.1, last.gain, 1e-9)
}
