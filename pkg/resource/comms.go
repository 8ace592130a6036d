package resource

import (
	"sort"

	"apollosim/pkg/missionlog"
)

// CommsWindow is one scheduled communications pass.
type CommsWindow struct {
	ID                 string
	Station            string
	GetOpenSeconds     float64
	GetCloseSeconds    float64
	PowerMarginDeltaKw float64
	SignalStrengthPct  float64
	DownlinkRateKbps   float64
	AcquireAudioCueID  string
}

// CommsState is the communications runtime record (spec.md §3/§4.2.1).
type CommsState struct {
	Schedule []CommsWindow

	ActiveWindowID          string
	CurrentStation          string
	CurrentSignalStrengthPct float64
	CurrentDownlinkRateKbps float64
	TimeRemainingSeconds    float64
	TimeSinceOpenSeconds    float64
	ProgressFraction        float64

	NextWindowID             string
	NextWindowOpensInSeconds float64

	appliedLoadMetric string
	appliedLoadDeltaKw float64
}

// SetSchedule installs the comms schedule, sorted by GetOpenSeconds as
// spec.md §4.2.1 requires.
func (s *State) SetSchedule(windows []CommsWindow) {
	sorted := append([]CommsWindow(nil), windows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].GetOpenSeconds < sorted[j].GetOpenSeconds
	})
	s.Comms.Schedule = sorted
}

func (s *State) findActiveWindow(getSeconds float64) *CommsWindow {
	for i := range s.Comms.Schedule {
		w := &s.Comms.Schedule[i]
		if getSeconds >= w.GetOpenSeconds && getSeconds < w.GetCloseSeconds {
			return w
		}
	}

	return nil
}

func (s *State) findNextWindow(getSeconds float64) *CommsWindow {
	for i := range s.Comms.Schedule {
		w := &s.Comms.Schedule[i]
		if w.GetOpenSeconds > getSeconds {
			return w
		}
	}

	return nil
}

func (s *State) updateCommunications(getSeconds float64) {
	active := s.findActiveWindow(getSeconds)

	activeID := ""
	if active != nil {
		activeID = active.ID
	}

	if activeID != s.Comms.ActiveWindowID {
		s.exitActiveWindow(getSeconds)

		if active != nil {
			s.enterWindow(active, getSeconds)
		}
	}

	if active != nil {
		s.Comms.TimeRemainingSeconds = active.GetCloseSeconds - getSeconds
		s.Comms.TimeSinceOpenSeconds = getSeconds - active.GetOpenSeconds

		span := active.GetCloseSeconds - active.GetOpenSeconds
		if span > 0 {
			s.Comms.ProgressFraction = s.Comms.TimeSinceOpenSeconds / span
		} else {
			s.Comms.ProgressFraction = 1
		}
	} else {
		s.Comms.TimeRemainingSeconds = 0
		s.Comms.TimeSinceOpenSeconds = 0
		s.Comms.ProgressFraction = 0
	}

	if next := s.findNextWindow(getSeconds); next != nil {
		s.Comms.NextWindowID = next.ID
		s.Comms.NextWindowOpensInSeconds = next.GetOpenSeconds - getSeconds
	} else {
		s.Comms.NextWindowID = ""
		s.Comms.NextWindowOpensInSeconds = 0
	}
}

func (s *State) exitActiveWindow(getSeconds float64) {
	if s.Comms.ActiveWindowID == "" {
		return
	}

	if s.Comms.appliedLoadMetric != "" {
		s.RecordPowerLoadDelta(s.Comms.appliedLoadMetric, -s.Comms.appliedLoadDeltaKw, EffectContext{
			GetSeconds: getSeconds,
			Source:     "communications",
			Type:       SourceManual,
		})
	}

	s.logf(getSeconds, missionlog.SeverityInfo, "communications pass %s closed", s.Comms.ActiveWindowID)

	s.Comms.ActiveWindowID = ""
	s.Comms.CurrentStation = ""
	s.Comms.CurrentSignalStrengthPct = 0
	s.Comms.CurrentDownlinkRateKbps = 0
	s.Comms.appliedLoadMetric = ""
	s.Comms.appliedLoadDeltaKw = 0
}

func (s *State) enterWindow(window *CommsWindow, getSeconds float64) {
	delta := -window.PowerMarginDeltaKw

	s.RecordPowerLoadDelta("power_margin_pct", delta, EffectContext{
		GetSeconds: getSeconds,
		Source:     "communications",
		Type:       SourceManual,
	})

	s.Comms.appliedLoadMetric = "power_margin_pct"
	s.Comms.appliedLoadDeltaKw = delta

	s.Comms.ActiveWindowID = window.ID
	s.Comms.CurrentStation = window.Station
	s.Comms.CurrentSignalStrengthPct = window.SignalStrengthPct
	s.Comms.CurrentDownlinkRateKbps = window.DownlinkRateKbps

	s.logf(getSeconds, missionlog.SeverityInfo, "communications pass %s acquired via %s", window.ID, window.Station)

	if window.AcquireAudioCueID != "" && s.OnCommsAcquire != nil {
		s.OnCommsAcquire(window.AcquireAudioCueID, getSeconds)
	}
}
