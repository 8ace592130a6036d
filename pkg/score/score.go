package score

import (
	"fmt"
	"math"

	"apollosim/pkg/missionlog"
	"apollosim/pkg/resource"
)

// DefaultMaxHistoryEntries bounds the sampled rating history.
const DefaultMaxHistoryEntries = 2000

// Tracker is the Score System (C11).
type Tracker struct {
	cfg Config
	log missionlog.Sink

	minPower float64
	maxPower float64

	minDeltaV float64
	maxDeltaV float64

	thermalViolationSeconds float64
	thermalViolationEvents  int
	wasThermalViolating     bool

	totalFaults int

	eventCounts EventCounts

	manualStepsTaken  int
	acknowledgedSteps int

	history            []Sample
	maxHistory         int
	lastSampleGet      float64
	haveLastSample     bool
	lastGrade          Grade
	lastCommanderScore float64
}

// NewTracker constructs a Tracker with no observations yet; min/max margins
// are seeded on the first Observe call.
func NewTracker(cfg Config, log missionlog.Sink) *Tracker {
	return &Tracker{
		cfg:        cfg,
		log:        log,
		maxHistory: DefaultMaxHistoryEntries,
		lastGrade:  GradeA,
	}
}

func (t *Tracker) logf(getSeconds float64, severity missionlog.Severity, format string, args ...any) {
	if t.log == nil {
		return
	}

	t.log.Log(missionlog.Entry{
		GetSeconds: getSeconds,
		Severity:   severity,
		Category:   missionlog.CategoryScore,
		Source:     "score",
		Message:    fmt.Sprintf(format, args...),
	})
}

// Observe folds one tick's resource snapshot into the rolling margins and
// edge-triggered thermal violation tally.
func (t *Tracker) Observe(getSeconds float64, snap resource.State) {
	if !t.haveLastSample {
		t.minPower, t.maxPower = snap.PowerMarginPct, snap.PowerMarginPct
		t.minDeltaV, t.maxDeltaV = snap.DeltaVMarginMps, snap.DeltaVMarginMps
		t.haveLastSample = true
	} else {
		t.minPower = math.Min(t.minPower, snap.PowerMarginPct)
		t.maxPower = math.Max(t.maxPower, snap.PowerMarginPct)
		t.minDeltaV = math.Min(t.minDeltaV, snap.DeltaVMarginMps)
		t.maxDeltaV = math.Max(t.maxDeltaV, snap.DeltaVMarginMps)
	}

	violating := snap.CryoBoiloffRatePctPerHr > t.cfg.ThermalViolationThresholdPctHr

	if violating {
		t.thermalViolationSeconds += getSeconds - t.lastSampleGet

		if !t.wasThermalViolating {
			t.thermalViolationEvents++
			t.logf(getSeconds, missionlog.SeverityWarn, "thermal violation #%d (boiloff %.3f%%/hr)",
				t.thermalViolationEvents, snap.CryoBoiloffRatePctPerHr)
		}
	}

	t.wasThermalViolating = violating
	t.lastSampleGet = getSeconds
}

// RecordFault increments the fault tally. The kernel calls it once for each
// event it observes failed.
func (t *Tracker) RecordFault(getSeconds float64, reason string) {
	t.totalFaults++
	t.logf(getSeconds, missionlog.SeverityWarn, "fault #%d recorded: %s", t.totalFaults, reason)
}

// SetEventCounts replaces the Score System's view of the schedule's
// completion/failure tally, recomputed each tick by the kernel from
// scheduler.Events().
func (t *Tracker) SetEventCounts(counts EventCounts) {
	t.eventCounts = counts
}

// SetManualProgress records the manual action queue's successful-action
// count and the checklist manager's cumulative acknowledged-step count, per
// spec.md §4.10's manualScore = manualSteps / acknowledgedSteps.
func (t *Tracker) SetManualProgress(manualStepsTaken, acknowledgedSteps int) {
	t.manualStepsTaken = manualStepsTaken
	t.acknowledgedSteps = acknowledgedSteps
}

// ThermalViolationSeconds returns the accumulated time spent above the
// configured cryo boiloff threshold.
func (t *Tracker) ThermalViolationSeconds() float64 {
	return t.thermalViolationSeconds
}

// TotalFaults returns the cumulative fault count.
func (t *Tracker) TotalFaults() int {
	return t.totalFaults
}

func hRamp(value, warning, ideal float64) float64 {
	if ideal <= warning {
		if value >= ideal {
			return 1
		}

		return 0
	}

	if value <= warning {
		return 0
	}

	if value >= ideal {
		return 1
	}

	return (value - warning) / (ideal - warning)
}

func lRamp(value, zero, critical float64) float64 {
	return 1 - hRamp(value, zero, critical)
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

// Rate computes the current rating breakdown from accumulated observations,
// per spec.md §4.10.
func (t *Tracker) Rate() Rating {
	eventScore := 1.0
	if t.eventCounts.Total > 0 {
		eventScore = clamp(float64(t.eventCounts.Complete)/float64(t.eventCounts.Total), 0, 1)
	}

	resourceScore := t.cfg.WeightPower*hRamp(t.minPower, t.cfg.PowerWarningPct, t.cfg.PowerIdealPct) +
		t.cfg.WeightDeltaV*hRamp(t.minDeltaV, t.cfg.DeltaVFailureMps, t.cfg.DeltaVIdealMps) +
		t.cfg.WeightThermal*lRamp(t.thermalViolationSeconds, 0, t.cfg.ThermalCriticalSeconds)

	faultScore := 1.0
	if t.cfg.FaultBaseline > 0 {
		faultScore = math.Max(0, 1-float64(t.totalFaults)/t.cfg.FaultBaseline)
	} else if t.totalFaults > 0 {
		faultScore = 0
	}

	manualScore := 0.0
	if t.acknowledgedSteps > 0 {
		manualScore = float64(t.manualStepsTaken) / float64(t.acknowledgedSteps)
	}

	baseScore := 100 * (t.cfg.WeightEvent*eventScore + t.cfg.WeightResource*resourceScore + t.cfg.WeightFault*faultScore)
	manualBonus := 100 * t.cfg.WeightManual * manualScore
	commanderScore := clamp(baseScore+manualBonus, 0, 100)

	return Rating{
		EventScore:     eventScore,
		ResourceScore:  resourceScore,
		FaultScore:     faultScore,
		ManualScore:    manualScore,
		BaseScore:      baseScore,
		ManualBonus:    manualBonus,
		CommanderScore: commanderScore,
		Grade:          gradeFor(commanderScore),
	}
}

// SampleIfDue appends a history Sample when getSeconds has advanced by at
// least HistoryStepSeconds since the last sample, or the grade changed, or
// the commander score moved by more than DeltaLogThreshold — whichever
// comes first, per spec.md §4.10.
func (t *Tracker) SampleIfDue(getSeconds float64) {
	rating := t.Rate()

	due := len(t.history) == 0
	if !due && t.cfg.HistoryStepSeconds > 0 {
		due = getSeconds-t.history[len(t.history)-1].GetSeconds >= t.cfg.HistoryStepSeconds
	}

	if !due && rating.Grade != t.lastGrade {
		due = true
	}

	delta := math.Abs(rating.CommanderScore - t.lastCommanderScore)
	if !due && t.cfg.DeltaLogThreshold > 0 && delta >= t.cfg.DeltaLogThreshold {
		due = true
	}

	if due && delta >= t.cfg.DeltaLogThreshold && len(t.history) > 0 {
		t.logf(getSeconds, missionlog.SeverityInfo, "commander score moved by %.2f to %.2f (grade %s)",
			delta, rating.CommanderScore, rating.Grade)
	}

	if due {
		t.history = append(t.history, Sample{GetSeconds: getSeconds, Rating: rating})
		if overflow := len(t.history) - t.maxHistory; overflow > 0 {
			t.history = t.history[overflow:]
		}
	}

	t.lastGrade = rating.Grade
	t.lastCommanderScore = rating.CommanderScore
}

// History returns a copy of the sampled rating history, oldest first.
func (t *Tracker) History() []Sample {
	out := make([]Sample, len(t.history))
	copy(out, t.history)

	return out
}
