// Package rcs implements the RCS Controller (C6): thruster selection and
// impulse/mass accounting for reaction control system pulses.
package rcs

import (
	"sort"

	"apollosim/pkg/resource"
)

// StandardGravity is g0 in m/s^2, used to convert specific impulse to mass
// flow.
const StandardGravity = 9.80665

// Thruster is an immutable thruster definition.
type Thruster struct {
	ID                string
	CraftID           string
	TranslationAxes   []string
	TorqueAxes        []string
	ThrustN           float64
	IspSec            float64
	TankKey           resource.Tank
	MinImpulseSeconds float64
}

// PulseRequest parameterises one RCS pulse command (spec.md §4.6).
type PulseRequest struct {
	CraftID        string
	ThrusterIDs    []string
	Axis           string
	TorqueAxis     string
	DurationSeconds float64
	Count          int
	DutyCycle      float64
	TankKey        resource.Tank
	MaxThrusters   int
}

// PulseResult summarises the effect of one Fire call.
type PulseResult struct {
	ThrusterIDs  []string
	TotalMassKg  float64
	TotalImpulse float64
	Pulses       int
}

// Controller holds the immutable thruster catalog and cumulative metrics.
type Controller struct {
	thrusters map[string]*Thruster
	res       *resource.State

	totalPulses   int
	totalImpulse  float64
	totalMassKg   float64
}

// NewController constructs a Controller over the given thruster catalog.
func NewController(thrusters []Thruster, res *resource.State) *Controller {
	index := make(map[string]*Thruster, len(thrusters))
	for i := range thrusters {
		t := thrusters[i]
		index[t.ID] = &t
	}

	return &Controller{thrusters: index, res: res}
}

func containsAxis(axes []string, axis string) bool {
	if axis == "" {
		return true
	}

	for _, a := range axes {
		if a == axis {
			return true
		}
	}

	return false
}

// Select resolves the thruster list for req: explicit ids override;
// otherwise intersect translation-axis and torque-axis indexes, restricted
// to CraftID when given, sorted deterministically by id and truncated to
// MaxThrusters.
func (c *Controller) Select(req PulseRequest) []*Thruster {
	var selected []*Thruster

	if len(req.ThrusterIDs) > 0 {
		for _, id := range req.ThrusterIDs {
			if t, ok := c.thrusters[id]; ok {
				selected = append(selected, t)
			}
		}
	} else {
		for _, t := range c.thrusters {
			if req.CraftID != "" && t.CraftID != req.CraftID {
				continue
			}

			if !containsAxis(t.TranslationAxes, req.Axis) {
				continue
			}

			if !containsAxis(t.TorqueAxes, req.TorqueAxis) {
				continue
			}

			selected = append(selected, t)
		}
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].ID < selected[j].ID })

	if req.MaxThrusters > 0 && len(selected) > req.MaxThrusters {
		selected = selected[:req.MaxThrusters]
	}

	return selected
}

// Fire selects thrusters for req, fires count pulses against each, and
// records propellant usage via the resource system. amountKg per thruster
// per pulse = massFlow * effectiveDuration, where massFlow = thrust /
// (isp*g0) and effectiveDuration = max(minImpulse, duration) * dutyCycle.
func (c *Controller) Fire(req PulseRequest, getSeconds float64, source string) PulseResult {
	count := req.Count
	if count <= 0 {
		count = 1
	}

	duty := req.DutyCycle
	if duty <= 0 {
		duty = 1
	} else if duty > 1 {
		duty = 1
	}

	selected := c.Select(req)

	var result PulseResult

	for _, t := range selected {
		duration := req.DurationSeconds
		if duration < t.MinImpulseSeconds {
			duration = t.MinImpulseSeconds
		}

		effectiveDuration := duration * duty

		massFlow := 0.0
		if t.IspSec > 0 {
			massFlow = t.ThrustN / (t.IspSec * StandardGravity)
		}

		perPulseMassKg := massFlow * effectiveDuration
		perPulseImpulse := t.ThrustN * effectiveDuration

		totalMassKg := perPulseMassKg * float64(count)
		totalImpulse := perPulseImpulse * float64(count)

		tank := req.TankKey
		if tank == "" {
			tank = t.TankKey
		}

		if c.res != nil && totalMassKg > 0 {
			c.res.RecordPropellantUsage(tank, totalMassKg, resource.EffectContext{
				GetSeconds: getSeconds,
				Source:     source,
				Type:       resource.SourceManual,
				Note:       "rcs pulse " + t.ID,
			})
		}

		result.ThrusterIDs = append(result.ThrusterIDs, t.ID)
		result.TotalMassKg += totalMassKg
		result.TotalImpulse += totalImpulse
		result.Pulses += count
	}

	c.totalPulses += result.Pulses
	c.totalImpulse += result.TotalImpulse
	c.totalMassKg += result.TotalMassKg

	return result
}

// Stats summarises cumulative RCS activity for the summary payload.
type Stats struct {
	TotalPulses  int
	TotalImpulse float64
	TotalMassKg  float64
}

// Stats returns cumulative RCS metrics.
func (c *Controller) Stats() Stats {
	return Stats{TotalPulses: c.totalPulses, TotalImpulse: c.totalImpulse, TotalMassKg: c.totalMassKg}
}
