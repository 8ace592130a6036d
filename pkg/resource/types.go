// Package resource implements the Resource System (C3): consumables state,
// effect application, propellant accounting, passive drift/recovery and the
// communications pass state machine. All mutation goes through the public
// methods of State; there is no locking because there is no concurrency
// (§5) — callers own a single instance per simulation run.
package resource

import "math"

// Tank identifies a propellant tank by the keys spec.md §3 names.
type Tank string

// Recognised propellant tanks.
const (
	TankCSMSps     Tank = "csm_sps"
	TankCSMRcs     Tank = "csm_rcs"
	TankLMDescent  Tank = "lm_descent"
	TankLMAscent   Tank = "lm_ascent"
	TankLMRcs      Tank = "lm_rcs"
)

// tankOrder fixes a deterministic iteration order for snapshots and budgets.
var tankOrder = []Tank{TankCSMSps, TankCSMRcs, TankLMDescent, TankLMAscent, TankLMRcs}

// EffectSourceType classifies the origin of an applied effect.
type EffectSourceType string

// Effect source types.
const (
	SourceSuccess EffectSourceType = "success"
	SourceFailure EffectSourceType = "failure"
	SourceManual  EffectSourceType = "manual"
)

// EffectContext carries the provenance of an applyEffect / recordXxx call.
type EffectContext struct {
	GetSeconds float64
	Source     string
	Type       EffectSourceType
	Note       string
}

// PowerState mirrors spec.md §3's nested power record.
type PowerState struct {
	FuelCellOutputKw        float64
	FuelCellLoadKw          float64
	BatteryChargePct        float64
	ReactantMinutesRemaining float64
}

// PropellantState holds the five recognised tanks, in kilograms.
type PropellantState struct {
	CSMSpsKg    float64
	CSMRcsKg    float64
	LMDescentKg float64
	LMAscentKg  float64
	LMRcsKg     float64
}

func (p *PropellantState) field(tank Tank) *float64 {
	switch tank {
	case TankCSMSps:
		return &p.CSMSpsKg
	case TankCSMRcs:
		return &p.CSMRcsKg
	case TankLMDescent:
		return &p.LMDescentKg
	case TankLMAscent:
		return &p.LMAscentKg
	case TankLMRcs:
		return &p.LMRcsKg
	default:
		return nil
	}
}

// LifeSupportState tracks crew consumables.
type LifeSupportState struct {
	OxygenKgRemaining float64
	WaterKgRemaining  float64
	Co2ScrubberPct    float64
}

// DeltaVMetrics accumulates absolute used/recovered delta-v across the run.
type DeltaVMetrics struct {
	UsedMps      float64
	RecoveredMps float64
}

// Metrics is the resource system's derived, accumulating counters.
type Metrics struct {
	DeltaV DeltaVMetrics
}

// StageBudget is a Propulsion Budget entry (spec.md §3).
type StageBudget struct {
	InitialKg      float64
	ReserveKg      float64
	UsableDeltaVMps float64
	RemainingKg    float64
	AdjustmentMps  float64
}

// MarginMps returns this stage's delta-v margin per spec.md §3/§8:
// usableDeltaV * clamp((remaining-reserve)/(initial-reserve), 0, 1) + adjustment.
func (b StageBudget) MarginMps() float64 {
	denom := b.InitialKg - b.ReserveKg
	var ratio float64

	if denom > 0 {
		ratio = (b.RemainingKg - b.ReserveKg) / denom
	}

	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}

	margin := b.UsableDeltaVMps * ratio
	if margin < 0 {
		margin = 0
	} else if margin > b.UsableDeltaVMps {
		margin = b.UsableDeltaVMps
	}

	return margin + b.AdjustmentMps
}

// FailureRecord is one entry in the failures set, with a breadcrumb of how
// it was triggered.
type FailureRecord struct {
	ID         string
	GetSeconds float64
	Source     string
}

// clampPct clamps a percentage value to [0, 100].
func clampPct(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}

	if v < 0 {
		return 0
	}

	if v > 100 {
		return 100
	}

	return v
}

// MinCryoBoiloffPctPerHr and MaxCryoBoiloffPctPerHr bound
// cryo_boiloff_rate_pct_per_hr during drift/recovery, per spec.md §3.
const (
	MinCryoBoiloffPctPerHr = 0.5
	MaxCryoBoiloffPctPerHr = 5.0
)

func clampCryoBoiloff(v float64) float64 {
	if v < MinCryoBoiloffPctPerHr {
		return MinCryoBoiloffPctPerHr
	}

	if v > MaxCryoBoiloffPctPerHr {
		return MaxCryoBoiloffPctPerHr
	}

	return v
}
