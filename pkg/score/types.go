// Package score implements the Score System (C11): rolling resource
// margins, thermal violation tally, fault count, and the commander rating
// computed from them at summary time.
package score

// Config tunes the rating computation. With the zero value the power and
// delta-v sub-scores pass trivially, but the thermal sub-score is 0
// (ThermalCriticalSeconds 0), any recorded fault zeroes the fault sub-score
// (FaultBaseline 0), and every weight is 0 — DefaultConfig supplies working
// values.
type Config struct {
	PowerWarningPct float64
	PowerIdealPct   float64

	DeltaVFailureMps float64
	DeltaVIdealMps   float64

	ThermalCriticalSeconds         float64
	ThermalViolationThresholdPctHr float64

	FaultBaseline float64

	WeightPower   float64
	WeightDeltaV  float64
	WeightThermal float64

	WeightEvent    float64
	WeightResource float64
	WeightFault    float64
	WeightManual   float64

	DeltaLogThreshold  float64
	HistoryStepSeconds float64
}

// DefaultConfig returns the weights and thresholds used when a mission
// fixture doesn't override them. DeltaV thresholds default to 0/0
// (trivially satisfied) since a mission's achievable delta-v margin depends
// on its loaded propulsion budgets; cmd/apollosim derives real
// DeltaVFailureMps/DeltaVIdealMps values from the sum of configured
// StageBudget.UsableDeltaVMps once a mission is loaded.
func DefaultConfig() Config {
	return Config{
		PowerWarningPct:                20,
		PowerIdealPct:                  80,
		DeltaVFailureMps:               0,
		DeltaVIdealMps:                 0,
		ThermalCriticalSeconds:         60,
		ThermalViolationThresholdPctHr: 3.0,
		FaultBaseline:                  5,
		WeightPower:                    0.4,
		WeightDeltaV:                   0.4,
		WeightThermal:                  0.2,
		WeightEvent:                    0.5,
		WeightResource:                 0.35,
		WeightFault:                    0.15,
		WeightManual:                   0.2,
		DeltaLogThreshold:              5,
		HistoryStepSeconds:             10,
	}
}

// EventCounts is the minimal per-tick projection of the Event Scheduler's
// state the Score System needs, computed by the kernel so this package
// never imports pkg/scheduler directly.
type EventCounts struct {
	Total    int
	Complete int
	Failed   int
}

// Grade is the letter grade derived from CommanderScore.
type Grade string

// Recognised grades.
const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

func gradeFor(commanderScore float64) Grade {
	switch {
	case commanderScore >= 90:
		return GradeA
	case commanderScore >= 80:
		return GradeB
	case commanderScore >= 70:
		return GradeC
	case commanderScore >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// Rating is the summary-time rating breakdown (spec.md §4.10).
type Rating struct {
	EventScore     float64
	ResourceScore  float64
	FaultScore     float64
	ManualScore    float64
	BaseScore      float64
	ManualBonus    float64
	CommanderScore float64
	Grade          Grade
}

// Sample is one history entry, taken at the configured cadence or on a
// grade change / large delta.
type Sample struct {
	GetSeconds float64
	Rating     Rating
}
