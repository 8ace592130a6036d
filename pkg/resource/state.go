package resource

import (
	"fmt"

	"go.uber.org/multierr"

	"apollosim/pkg/missionlog"
)

// DriftRates configures passive power/cryo drift when PTC is not stable and
// recovery when it is, consumed by Update. All rates are per second.
type DriftRates struct {
	PowerMarginDriftPctPerSec  float64
	PowerMarginRecoverPctPerSec float64
	CryoBoiloffDriftPctPerSec  float64
	CryoBoiloffRecoverPctPerSec float64
}

// DefaultDriftRates returns conservative defaults used when none are
// configured.
func DefaultDriftRates() DriftRates {
	return DriftRates{
		PowerMarginDriftPctPerSec:   0.0006,
		PowerMarginRecoverPctPerSec: 0.0003,
		CryoBoiloffDriftPctPerSec:   0.0004,
		CryoBoiloffRecoverPctPerSec: 0.0002,
	}
}

// State is the Resource System. It owns all consumables state, the
// propulsion budgets, derived metrics and the failures set.
type State struct {
	PowerMarginPct          float64
	CryoBoiloffRatePctPerHr float64
	ThermalBalanceState     string
	PTCActive               bool
	DeltaVMarginMps         float64

	Power       PowerState
	Propellant  PropellantState
	LifeSupport LifeSupportState
	Comms       CommsState

	Metrics Metrics

	Budgets map[Tank]*StageBudget

	Failures map[string]FailureRecord

	Drift DriftRates

	log    missionlog.Sink
	source string

	// OnCommsAcquire, if set, fires when the communications state machine
	// enters a new pass with a configured acquire audio cue id.
	OnCommsAcquire func(cueID string, getSeconds float64)
}

// New constructs a resource System with the given propulsion budgets and
// initial propellant load. budgets may be nil or partial; tanks without a
// configured budget simply never contribute to DeltaVMarginMps.
func New(log missionlog.Sink, budgets map[Tank]*StageBudget) *State {
	if budgets == nil {
		budgets = map[Tank]*StageBudget{}
	}

	s := &State{
		PowerMarginPct:          100,
		CryoBoiloffRatePctPerHr: MinCryoBoiloffPctPerHr,
		ThermalBalanceState:     "nominal",
		Budgets:                 budgets,
		Failures:                map[string]FailureRecord{},
		Drift:                   DefaultDriftRates(),
		log:                     log,
		source:                  "resource",
	}

	for tank, budget := range budgets {
		if budget == nil {
			continue
		}

		if field := s.Propellant.field(tank); field != nil {
			*field = budget.RemainingKg
		}
	}

	s.recomputeTotalDeltaV()

	return s
}

func (s *State) logf(getSeconds float64, severity missionlog.Severity, format string, args ...any) {
	if s.log == nil {
		return
	}

	s.log.Log(missionlog.Entry{
		GetSeconds: getSeconds,
		Severity:   severity,
		Category:   missionlog.CategoryResource,
		Source:     s.source,
		Message:    fmt.Sprintf(format, args...),
	})
}

// ApplyEffect applies a (possibly nested) EffectMap to the resource state.
// Numeric leaves accumulate; non-numeric leaves replace. "failure_id" is
// added to the failures set rather than stored as a field.
func (s *State) ApplyEffect(effect EffectMap, ctx EffectContext) error {
	if effect == nil {
		return nil
	}

	var warnings error

	for key, value := range effect {
		if err := s.applyTopLevel(key, value, ctx); err != nil {
			warnings = multierr.Append(warnings, err)
		}
	}

	return warnings
}

func (s *State) applyTopLevel(key string, value EffectValue, ctx EffectContext) error {
	switch key {
	case "power_margin_pct":
		return s.applyNumberLeaf(&s.PowerMarginPct, value, clampPct)
	case "cryo_boiloff_rate_pct_per_hr":
		return s.applyNumberLeaf(&s.CryoBoiloffRatePctPerHr, value, clampCryoBoiloff)
	case "thermal_balance_state":
		if value.Kind == KindString {
			s.ThermalBalanceState = value.String
		}

		return nil
	case "ptc_active":
		if value.Kind == KindBool {
			s.PTCActive = value.Bool
		}

		return nil
	case "delta_v_margin_mps":
		return s.applyDeltaVMarginDelta(value, ctx)
	case "failure_id":
		if value.Kind == KindString {
			s.addFailure(value.String, ctx)
		}

		return nil
	case "power":
		return s.applyPowerMap(value)
	case "propellant":
		return s.applyPropellantMap(value, ctx)
	case "life_support":
		return s.applyLifeSupportMap(value)
	case "delta_v":
		return s.applyDeltaVMap(value, ctx)
	case "communications":
		// Communications runtime fields are derived by Update, not by
		// effects; silently ignored here rather than treated as unknown.
		return nil
	default:
		return fmt.Errorf("resource: unknown effect key %q", key)
	}
}

func (s *State) applyNumberLeaf(field *float64, value EffectValue, clamp func(float64) float64) error {
	switch value.Kind {
	case KindNumber:
		*field += value.Number
		if clamp != nil {
			*field = clamp(*field)
		}

		return nil
	case KindString:
		// non-numeric leaves replace; a string sentinel has no numeric
		// representation, so this is a programmer error in the effect data.
		return fmt.Errorf("resource: expected numeric leaf, got string %q", value.String)
	default:
		return nil
	}
}

func (s *State) addFailure(id string, ctx EffectContext) {
	if _, exists := s.Failures[id]; exists {
		return
	}

	s.Failures[id] = FailureRecord{ID: id, GetSeconds: ctx.GetSeconds, Source: ctx.Source}
	s.logf(ctx.GetSeconds, missionlog.SeverityWarn, "failure recorded: %s (source=%s)", id, ctx.Source)
}

func (s *State) applyPowerMap(value EffectValue) error {
	if value.Kind != KindSubMap {
		return fmt.Errorf("resource: power effect must be a sub-map")
	}

	var warnings error

	for key, leaf := range value.SubMap {
		switch key {
		case "fuel_cell_output_kw":
			warnings = multierr.Append(warnings, s.applyNumberLeaf(&s.Power.FuelCellOutputKw, leaf, nil))
		case "fuel_cell_load_kw":
			warnings = multierr.Append(warnings, s.applyNumberLeaf(&s.Power.FuelCellLoadKw, leaf, nil))
		case "battery_charge_pct":
			warnings = multierr.Append(warnings, s.applyNumberLeaf(&s.Power.BatteryChargePct, leaf, clampPct))
		case "reactant_minutes_remaining":
			warnings = multierr.Append(warnings, s.applyNumberLeaf(&s.Power.ReactantMinutesRemaining, leaf, nil))
		default:
			warnings = multierr.Append(warnings, fmt.Errorf("resource: unknown power key %q", key))
		}
	}

	return warnings
}

func (s *State) applyLifeSupportMap(value EffectValue) error {
	if value.Kind != KindSubMap {
		return fmt.Errorf("resource: life_support effect must be a sub-map")
	}

	var warnings error

	for key, leaf := range value.SubMap {
		switch key {
		case "oxygen_kg_remaining":
			warnings = multierr.Append(warnings, s.applyNumberLeaf(&s.LifeSupport.OxygenKgRemaining, leaf, nonNegative))
		case "water_kg_remaining":
			warnings = multierr.Append(warnings, s.applyNumberLeaf(&s.LifeSupport.WaterKgRemaining, leaf, nonNegative))
		case "co2_scrubber_pct":
			warnings = multierr.Append(warnings, s.applyNumberLeaf(&s.LifeSupport.Co2ScrubberPct, leaf, clampPct))
		default:
			warnings = multierr.Append(warnings, fmt.Errorf("resource: unknown life_support key %q", key))
		}
	}

	return warnings
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}

	return v
}

func (s *State) applyPropellantMap(value EffectValue, ctx EffectContext) error {
	if value.Kind != KindSubMap {
		return fmt.Errorf("resource: propellant effect must be a sub-map")
	}

	var warnings error

	for key, leaf := range value.SubMap {
		if leaf.Kind != KindNumber {
			warnings = multierr.Append(warnings, fmt.Errorf("resource: propellant leaf %q must be numeric", key))

			continue
		}

		tank, ok := tankForEffectKey(key)
		if !ok {
			warnings = multierr.Append(warnings, fmt.Errorf("resource: unknown propellant key %q", key))

			continue
		}

		// A positive delta here means "add propellant" (a replenishment
		// effect), the inverse sign convention of recordPropellantUsage's
		// "positive consumes" (spec.md §4.2).
		s.recordPropellantDelta(tank, leaf.Number, ctx)
	}

	return warnings
}

func tankForEffectKey(key string) (Tank, bool) {
	switch key {
	case "csm_sps_kg":
		return TankCSMSps, true
	case "csm_rcs_kg":
		return TankCSMRcs, true
	case "lm_descent_kg":
		return TankLMDescent, true
	case "lm_ascent_kg":
		return TankLMAscent, true
	case "lm_rcs_kg":
		return TankLMRcs, true
	default:
		return "", false
	}
}

func (s *State) applyDeltaVMap(value EffectValue, ctx EffectContext) error {
	if value.Kind != KindSubMap {
		return fmt.Errorf("resource: delta_v effect must be a sub-map")
	}

	stagesVal, ok := value.SubMap["stages"]
	if !ok {
		return nil
	}

	if stagesVal.Kind != KindSubMap {
		return fmt.Errorf("resource: delta_v.stages must be a sub-map")
	}

	var warnings error

	for tankKey, stageVal := range stagesVal.SubMap {
		if stageVal.Kind != KindSubMap {
			warnings = multierr.Append(warnings, fmt.Errorf("resource: delta_v.stages.%s must be a sub-map", tankKey))

			continue
		}

		adjVal, ok := stageVal.SubMap["adjustment_mps"]
		if !ok || adjVal.Kind != KindNumber {
			continue
		}

		tank := Tank(tankKey)

		budget, ok := s.Budgets[tank]
		if !ok {
			warnings = multierr.Append(warnings, fmt.Errorf("resource: unknown delta_v stage %q", tankKey))

			continue
		}

		before := budget.MarginMps()
		budget.AdjustmentMps += adjVal.Number
		s.accumulateDeltaVMetric(before, budget.MarginMps())
	}

	s.recomputeTotalDeltaV()

	return warnings
}

// applyDeltaVMarginDelta resolves the Open-Question-adjacent ambiguity in
// spec.md §4.2 ("changes to delta_v_margin_mps ... update per-stage
// adjustments") by routing a direct top-level delta to the CSM SPS stage's
// adjustment, the only stage spec.md §8 names explicitly. See DESIGN.md.
func (s *State) applyDeltaVMarginDelta(value EffectValue, ctx EffectContext) error {
	if value.Kind != KindNumber {
		return fmt.Errorf("resource: delta_v_margin_mps leaf must be numeric")
	}

	budget, ok := s.Budgets[TankCSMSps]
	if !ok {
		s.DeltaVMarginMps += value.Number

		return nil
	}

	before := budget.MarginMps()
	budget.AdjustmentMps += value.Number
	s.accumulateDeltaVMetric(before, budget.MarginMps())
	s.recomputeTotalDeltaV()

	return nil
}

func (s *State) accumulateDeltaVMetric(before, after float64) {
	delta := after - before
	if delta < 0 {
		s.Metrics.DeltaV.UsedMps += -delta
	} else if delta > 0 {
		s.Metrics.DeltaV.RecoveredMps += delta
	}
}

func (s *State) recomputeTotalDeltaV() {
	total := 0.0
	for _, tank := range tankOrder {
		if budget, ok := s.Budgets[tank]; ok {
			total += budget.MarginMps()
		}
	}

	s.DeltaVMarginMps = total
}

// RecordPropellantUsage consumes amountKg from tankKey (positive amountKg
// consumes fuel; a negative amountKg adds it back). The tank is clamped at
// zero. Returns false when the tank is unknown.
func (s *State) RecordPropellantUsage(tankKey Tank, amountKg float64, ctx EffectContext) bool {
	field := s.Propellant.field(tankKey)
	if field == nil {
		s.logf(ctx.GetSeconds, missionlog.SeverityWarn, "unknown propellant tank %q (source=%s)", tankKey, ctx.Source)

		return false
	}

	s.recordPropellantDelta(tankKey, -amountKg, ctx)

	return true
}

// recordPropellantDelta applies a raw signed delta in kilograms (positive
// adds propellant, negative consumes), clamping the tank to >= 0, and
// recomputes that tank's stage delta-v margin if a budget exists.
func (s *State) recordPropellantDelta(tankKey Tank, deltaKg float64, ctx EffectContext) {
	field := s.Propellant.field(tankKey)
	if field == nil {
		return
	}

	budget, hasBudget := s.Budgets[tankKey]

	var before float64
	if hasBudget {
		before = budget.MarginMps()
	}

	*field += deltaKg
	if *field < 0 {
		*field = 0
	}

	if hasBudget {
		budget.RemainingKg = *field
		s.accumulateDeltaVMetric(before, budget.MarginMps())
		s.recomputeTotalDeltaV()
	}
}

// RecordPowerLoadDelta applies deltaKw additively to a known power metric,
// which may be the top-level power_margin_pct or a field of the nested
// power record. Returns false for unknown metric keys.
func (s *State) RecordPowerLoadDelta(metricKey string, deltaKw float64, ctx EffectContext) bool {
	switch metricKey {
	case "power_margin_pct":
		s.PowerMarginPct = clampPct(s.PowerMarginPct + deltaKw)
	case "fuel_cell_output_kw":
		s.Power.FuelCellOutputKw += deltaKw
	case "fuel_cell_load_kw":
		s.Power.FuelCellLoadKw += deltaKw
	case "battery_charge_pct":
		s.Power.BatteryChargePct = clampPct(s.Power.BatteryChargePct + deltaKw)
	case "reactant_minutes_remaining":
		s.Power.ReactantMinutesRemaining += deltaKw
	default:
		s.logf(ctx.GetSeconds, missionlog.SeverityWarn, "unknown power metric %q (source=%s)", metricKey, ctx.Source)

		return false
	}

	return true
}

// Update advances passive drift/recovery and the communications state
// machine by dtSeconds.
func (s *State) Update(dtSeconds, getSeconds float64) {
	if s.PTCActive {
		s.PowerMarginPct = clampPct(s.PowerMarginPct + s.Drift.PowerMarginRecoverPctPerSec*dtSeconds)
		s.CryoBoiloffRatePctPerHr = clampCryoBoiloff(s.CryoBoiloffRatePctPerHr - s.Drift.CryoBoiloffRecoverPctPerSec*dtSeconds)
	} else {
		s.PowerMarginPct = clampPct(s.PowerMarginPct - s.Drift.PowerMarginDriftPctPerSec*dtSeconds)
		s.CryoBoiloffRatePctPerHr = clampCryoBoiloff(s.CryoBoiloffRatePctPerHr + s.Drift.CryoBoiloffDriftPctPerSec*dtSeconds)
	}

	s.updateCommunications(getSeconds)
}

// Snapshot returns a deep copy of the resource state suitable for a
// summary/frame payload; mutating the result never affects the live state.
func (s *State) Snapshot() State {
	cp := *s

	cp.Budgets = make(map[Tank]*StageBudget, len(s.Budgets))
	for k, v := range s.Budgets {
		budgetCopy := *v
		cp.Budgets[k] = &budgetCopy
	}

	cp.Failures = make(map[string]FailureRecord, len(s.Failures))
	for k, v := range s.Failures {
		cp.Failures[k] = v
	}

	cp.Comms.Schedule = append([]CommsWindow(nil), s.Comms.Schedule...)
	cp.log = nil
	cp.OnCommsAcquire = nil

	return cp
}
