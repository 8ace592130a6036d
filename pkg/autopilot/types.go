// Package autopilot implements the Autopilot Runner (C5): a script
// interpreter for burns, ullage, throttle ramps, RCS pulses and DSKY
// entries, with continuous propellant-effect integration and tolerance
// checking.
package autopilot

import (
	"sort"

	"apollosim/pkg/rcs"
	"apollosim/pkg/resource"
)

// CommandKind enumerates the recognised script command types.
type CommandKind string

// Command kinds (spec.md §3/§4.5).
const (
	CommandAttitudeHold CommandKind = "attitude_hold"
	CommandUllageFire   CommandKind = "ullage_fire"
	CommandThrottle     CommandKind = "throttle"
	CommandThrottleRamp CommandKind = "throttle_ramp"
	CommandRCSPulse     CommandKind = "rcs_pulse"
	CommandDSKYEntry    CommandKind = "dsky_entry"
)

// UllageFireParams parameterises an ullage_fire command.
type UllageFireParams struct {
	DurationSeconds float64
}

// ThrottleParams parameterises a throttle command.
type ThrottleParams struct {
	Level float64
}

// ThrottleRampParams parameterises a throttle_ramp command. From is
// optional; when nil, the ramp starts from the current throttle level.
type ThrottleRampParams struct {
	From            *float64
	To              float64
	DurationSeconds float64
}

// DSKYEntryParams parameterises a dsky_entry command.
type DSKYEntryParams struct {
	Verb      int
	Noun      int
	Program   int
	Registers []float64
}

// Command is one entry in an autopilot script.
type Command struct {
	Time         float64
	Kind         CommandKind
	UllageFire   *UllageFireParams
	Throttle     *ThrottleParams
	ThrottleRamp *ThrottleRampParams
	RCSPulse     *rcs.PulseRequest
	DSKYEntry    *DSKYEntryParams
}

// endTime returns the time at which this command's effects are fully
// resolved, used to derive Definition.DurationSeconds.
func (c Command) endTime() float64 {
	switch c.Kind {
	case CommandUllageFire:
		if c.UllageFire != nil {
			return c.Time + c.UllageFire.DurationSeconds
		}
	case CommandThrottleRamp:
		if c.ThrottleRamp != nil {
			return c.Time + c.ThrottleRamp.DurationSeconds
		}
	}

	return c.Time
}

// UllageConfig configures ullage propellant consumption.
type UllageConfig struct {
	TankKey          resource.Tank
	MassFlowKgPerSec float64
}

// Propulsion resolves the main-engine propellant consumption model for an
// autopilot script.
type Propulsion struct {
	TankKey             resource.Tank
	MassFlowKgPerSec    float64
	Ullage              *UllageConfig
	// DeltaVPerSecondMps is an optional constant from which the runner
	// accumulates Summary.DeltaVAchievedMps; that figure is checked against
	// tolerances, and the kernel applies it to the orbit propagator as a
	// prograde impulse.
	DeltaVPerSecondMps float64
}

// ToleranceRange bounds an achieved metric to [Min, Max]; a nil bound is
// unconstrained.
type ToleranceRange struct {
	Min *float64
	Max *float64
}

func (r *ToleranceRange) withinBounds(v float64) bool {
	if r == nil {
		return true
	}

	if r.Min != nil && v < *r.Min {
		return false
	}

	if r.Max != nil && v > *r.Max {
		return false
	}

	return true
}

// Tolerances bound the achieved burn duration, propellant consumption and
// delta-v against script limits (spec.md §4.5).
type Tolerances struct {
	BurnDurationSeconds *ToleranceRange
	PropellantKg        *ToleranceRange
	DeltaVMps           *ToleranceRange
}

// Definition is an immutable autopilot script definition.
type Definition struct {
	ID              string
	Description     string
	Sequence        []Command
	Tolerances      *Tolerances
	Propulsion      Propulsion
	DurationSeconds float64
}

// NewDefinition sorts sequence by time and derives DurationSeconds as
// max(time+duration) across the sequence, per spec.md §3.
func NewDefinition(id, description string, sequence []Command, tolerances *Tolerances, propulsion Propulsion) *Definition {
	sorted := append([]Command(nil), sequence...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	duration := 0.0
	for _, c := range sorted {
		if end := c.endTime(); end > duration {
			duration = end
		}
	}

	return &Definition{
		ID:              id,
		Description:     description,
		Sequence:        sorted,
		Tolerances:      tolerances,
		Propulsion:      propulsion,
		DurationSeconds: duration,
	}
}
