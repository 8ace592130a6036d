// Package orbit implements the Orbit Propagator (C7): an RK4 two-body
// integrator, impulsive delta-v application and derived orbital elements.
package orbit

// Body is the primary gravitating body.
type Body struct {
	ID        string
	Mu        float64 // gravitational parameter, m^3/s^2
	Radius    float64 // mean radius, m
	SoiRadius float64 // sphere-of-influence radius, m
}

// StateVector is the integrator's position/velocity state.
type StateVector struct {
	Position Vec3
	Velocity Vec3
}

// Frame names a delta-v application direction relative to the current
// state vector.
type Frame string

// Recognised delta-v frames.
const (
	FramePrograde   Frame = "prograde"
	FrameRetrograde Frame = "retrograde"
	FrameNormal     Frame = "normal"
	FrameAntinormal Frame = "antinormal"
	FrameRadial     Frame = "radial"
	FrameRadialIn   Frame = "radial_in"
)

// ImpulseLogEntry records one applied delta-v.
type ImpulseLogEntry struct {
	Seq        int
	GetSeconds float64
	Magnitude  float64
	Frame      Frame
	Vector     Vec3
	Metadata   map[string]string
}

// HistorySample is one time-stamped altitude/speed record.
type HistorySample struct {
	Seconds  float64
	Radius   float64
	Altitude float64
	Speed    float64
}

// DefaultMaxSubstepSeconds bounds RK4 substeps per spec.md §4.7/§9.
const DefaultMaxSubstepSeconds = 5.0

// DefaultHistoryCadenceSeconds and DefaultHistoryCap are the history
// buffer's default sampling cadence and capacity.
const (
	DefaultHistoryCadenceSeconds = 60.0
	DefaultHistoryCap            = 360
)

// DefaultImpulseLogCap bounds the rolling impulse log.
const DefaultImpulseLogCap = 200

// DeltaVRequest parameterises an impulsive burn (spec.md §4.7).
type DeltaVRequest struct {
	Magnitude  float64
	Vector     *Vec3
	Frame      Frame
	GetSeconds float64
	Metadata   map[string]string
}

// UpdateInput carries the optional external acceleration for one Update
// call (e.g. contributions outside simple two-body gravity).
type UpdateInput struct {
	GetSeconds   float64
	Acceleration Vec3
}

// Propagator is the Orbit Propagator.
type Propagator struct {
	Body  Body
	State StateVector

	TimeSeconds  float64
	EpochSeconds float64

	MaxSubstepSeconds     float64
	HistoryCadenceSeconds float64
	HistoryCap            int
	ImpulseLogCap         int

	impulses   []ImpulseLogEntry
	history    []HistorySample
	nextSeq    int
	lastSample float64
	sampled    bool
}

// NewPropagator constructs a Propagator around body starting at state.
func NewPropagator(body Body, state StateVector) *Propagator {
	return &Propagator{
		Body:                  body,
		State:                 state,
		MaxSubstepSeconds:     DefaultMaxSubstepSeconds,
		HistoryCadenceSeconds: DefaultHistoryCadenceSeconds,
		HistoryCap:            DefaultHistoryCap,
		ImpulseLogCap:         DefaultImpulseLogCap,
	}
}

func (p *Propagator) acceleration(position, external Vec3) Vec3 {
	r := position.Norm()
	if r == 0 {
		return external
	}

	gravity := position.Unit().Scale(-p.Body.Mu / (r * r))

	return gravity.Add(external)
}

type derivative struct {
	dPos Vec3
	dVel Vec3
}

func (p *Propagator) derivativeAt(state StateVector, external Vec3) derivative {
	return derivative{
		dPos: state.Velocity,
		dVel: p.acceleration(state.Position, external),
	}
}

// Update integrates dtSeconds forward, splitting into substeps bounded by
// MaxSubstepSeconds, using classical RK4 at each substep.
func (p *Propagator) Update(dtSeconds float64, input UpdateInput) {
	if dtSeconds <= 0 {
		return
	}

	maxSub := p.MaxSubstepSeconds
	if maxSub <= 0 {
		maxSub = DefaultMaxSubstepSeconds
	}

	remaining := dtSeconds

	for remaining > 0 {
		step := remaining
		if step > maxSub {
			step = maxSub
		}

		p.rk4Step(step, input.Acceleration)
		remaining -= step
		p.TimeSeconds += step
	}

	if input.GetSeconds > 0 {
		p.maybeSample(input.GetSeconds)
	} else {
		p.maybeSample(p.TimeSeconds)
	}
}

func (p *Propagator) rk4Step(dt float64, external Vec3) {
	s0 := p.State

	k1 := p.derivativeAt(s0, external)

	s1 := StateVector{
		Position: s0.Position.Add(k1.dPos.Scale(dt / 2)),
		Velocity: s0.Velocity.Add(k1.dVel.Scale(dt / 2)),
	}
	k2 := p.derivativeAt(s1, external)

	s2 := StateVector{
		Position: s0.Position.Add(k2.dPos.Scale(dt / 2)),
		Velocity: s0.Velocity.Add(k2.dVel.Scale(dt / 2)),
	}
	k3 := p.derivativeAt(s2, external)

	s3 := StateVector{
		Position: s0.Position.Add(k3.dPos.Scale(dt)),
		Velocity: s0.Velocity.Add(k3.dVel.Scale(dt)),
	}
	k4 := p.derivativeAt(s3, external)

	dPos := k1.dPos.Add(k2.dPos.Scale(2)).Add(k3.dPos.Scale(2)).Add(k4.dPos).Scale(dt / 6)
	dVel := k1.dVel.Add(k2.dVel.Scale(2)).Add(k3.dVel.Scale(2)).Add(k4.dVel).Scale(dt / 6)

	p.State.Position = s0.Position.Add(dPos)
	p.State.Velocity = s0.Velocity.Add(dVel)
}

// resolveDirection returns a unit vector for req, preferring an explicit
// vector, then a named frame, relative to the current state.
func (p *Propagator) resolveDirection(req DeltaVRequest) Vec3 {
	if req.Vector != nil {
		return req.Vector.Unit()
	}

	prograde := p.State.Velocity.Unit()
	radial := p.State.Position.Unit()
	normal := p.State.Position.Cross(p.State.Velocity).Unit()

	switch req.Frame {
	case FrameRetrograde:
		return prograde.Scale(-1)
	case FrameNormal:
		return normal
	case FrameAntinormal:
		return normal.Scale(-1)
	case FrameRadial:
		return radial
	case FrameRadialIn:
		return radial.Scale(-1)
	default:
		return prograde
	}
}

// ApplyDeltaV adds an impulsive velocity change, logs it (capped history)
// and forces an immediate history sample, per spec.md §4.7.
func (p *Propagator) ApplyDeltaV(req DeltaVRequest) Vec3 {
	direction := p.resolveDirection(req)
	impulse := direction.Scale(req.Magnitude)

	p.State.Velocity = p.State.Velocity.Add(impulse)

	p.nextSeq++
	entry := ImpulseLogEntry{
		Seq:        p.nextSeq,
		GetSeconds: req.GetSeconds,
		Magnitude:  req.Magnitude,
		Frame:      req.Frame,
		Vector:     impulse,
		Metadata:   req.Metadata,
	}

	p.impulses = append(p.impulses, entry)

	cap := p.ImpulseLogCap
	if cap <= 0 {
		cap = DefaultImpulseLogCap
	}

	if overflow := len(p.impulses) - cap; overflow > 0 {
		p.impulses = p.impulses[overflow:]
	}

	p.forceSample(req.GetSeconds)

	return impulse
}

func (p *Propagator) maybeSample(getSeconds float64) {
	cadence := p.HistoryCadenceSeconds
	if cadence <= 0 {
		cadence = DefaultHistoryCadenceSeconds
	}

	if p.sampled && getSeconds-p.lastSample < cadence {
		return
	}

	p.forceSample(getSeconds)
}

func (p *Propagator) forceSample(getSeconds float64) {
	radius := p.State.Position.Norm()

	sample := HistorySample{
		Seconds:  getSeconds,
		Radius:   radius,
		Altitude: radius - p.Body.Radius,
		Speed:    p.State.Velocity.Norm(),
	}

	p.history = append(p.history, sample)

	cap := p.HistoryCap
	if cap <= 0 {
		cap = DefaultHistoryCap
	}

	if overflow := len(p.history) - cap; overflow > 0 {
		p.history = p.history[overflow:]
	}

	p.lastSample = getSeconds
	p.sampled = true
}

// Impulses returns a copy of the rolling impulse log.
func (p *Propagator) Impulses() []ImpulseLogEntry {
	out := make([]ImpulseLogEntry, len(p.impulses))
	copy(out, p.impulses)

	return out
}

// History returns a copy of the rolling altitude/speed history.
func (p *Propagator) History() []HistorySample {
	out := make([]HistorySample, len(p.history))
	copy(out, p.history)

	return out
}
