package autopilot

import (
	"fmt"
	"math"

	"apollosim/pkg/missionlog"
	"apollosim/pkg/rcs"
	"apollosim/pkg/resource"
)

// tickEpsilon mirrors the GET comparison tolerance used throughout the
// simulation.
const tickEpsilon = 1e-6

// Summary is the terminal report handed to subscribed handlers when a run
// concludes, per spec.md §4.5's summary fan-out.
type Summary struct {
	EventID           string
	AutopilotID       string
	Status            Status
	StartGet          float64
	EndGet            float64
	BurnSeconds       float64
	PropellantUsedKg  float64
	UllageUsedKg      float64
	DeltaVAchievedMps float64
	DSKYEntries       []DSKYEntryParams
	AttitudeHolds     int
	RCSPulses         []PulseSummary
	FailureReason     string
}

// Handler receives a Summary when a run concludes. The orbit propagator
// subscribes at construction time (spec.md §4.5/§9) to translate an
// autopilot's achieved delta-v into an impulsive burn.
type Handler func(Summary)

// Runner is the Autopilot Runner (C5): it drives zero or more concurrent
// Runtimes forward each tick, interpreting their scripted commands,
// integrating continuous propellant effects, checking tolerances and
// fanning out completion summaries.
type Runner struct {
	res *resource.State
	rcs *rcs.Controller
	log missionlog.Sink

	active   map[string]*Runtime
	handlers []Handler
}

// NewRunner constructs a Runner. rcsController may be nil if the mission
// never schedules rcs_pulse commands from an autopilot script.
func NewRunner(res *resource.State, rcsController *rcs.Controller, log missionlog.Sink) *Runner {
	return &Runner{
		res:    res,
		rcs:    rcsController,
		log:    log,
		active: make(map[string]*Runtime),
	}
}

// Subscribe registers h to be called with every run's terminal Summary.
func (r *Runner) Subscribe(h Handler) {
	r.handlers = append(r.handlers, h)
}

func (r *Runner) logf(getSeconds float64, severity missionlog.Severity, format string, args ...any) {
	if r.log == nil {
		return
	}

	r.log.Log(missionlog.Entry{
		GetSeconds: getSeconds,
		Severity:   severity,
		Category:   missionlog.CategoryAutopilot,
		Source:     "autopilot",
		Message:    fmt.Sprintf(format, args...),
	})
}

// Start begins executing def against eventID at startGet.
func (r *Runner) Start(eventID string, def *Definition, startGet float64) *Runtime {
	rt := NewRuntime(eventID, def, startGet)
	r.active[eventID] = rt

	r.logf(startGet, missionlog.SeverityInfo, "autopilot %s started for event %s", def.ID, eventID)

	return rt
}

// Active reports whether eventID has an in-progress run.
func (r *Runner) Active(eventID string) bool {
	rt, ok := r.active[eventID]

	return ok && !rt.Done()
}

// Runtime returns the Runtime for eventID, or nil.
func (r *Runner) Runtime(eventID string) *Runtime {
	return r.active[eventID]
}

// Update advances every active runtime to getSeconds: dispatching due
// commands, integrating continuous propellant effects since the runtime's
// last update, and checking for natural completion.
func (r *Runner) Update(getSeconds float64) {
	for _, rt := range r.active {
		if rt.Done() {
			continue
		}

		r.advance(rt, getSeconds)

		if rt.Done() {
			r.conclude(rt, getSeconds)
		}
	}
}

func (r *Runner) advance(rt *Runtime, getSeconds float64) {
	elapsedNow := rt.Elapsed(getSeconds)

	for rt.nextCommand < len(rt.Definition.Sequence) {
		cmd := rt.Definition.Sequence[rt.nextCommand]
		if cmd.Time > elapsedNow+tickEpsilon {
			break
		}

		r.dispatch(rt, cmd, getSeconds)
		rt.nextCommand++
	}

	r.integrate(rt, getSeconds)

	if rt.nextCommand >= len(rt.Definition.Sequence) &&
		elapsedNow >= rt.Definition.DurationSeconds-tickEpsilon &&
		rt.currentLevel <= tickEpsilon &&
		rt.ullage == nil {
		rt.status = StatusComplete
	}
}

func (r *Runner) dispatch(rt *Runtime, cmd Command, getSeconds float64) {
	switch cmd.Kind {
	case CommandAttitudeHold:
		rt.attitudeHolds++

	case CommandUllageFire:
		if cmd.UllageFire != nil {
			elapsed := rt.Elapsed(getSeconds)
			rt.ullage = &ullageWindow{startGet: elapsed, endGet: elapsed + cmd.UllageFire.DurationSeconds}
		}

	case CommandThrottle:
		if cmd.Throttle != nil {
			rt.currentLevel = cmd.Throttle.Level
			rt.ramp = nil
		}

	case CommandThrottleRamp:
		if cmd.ThrottleRamp != nil {
			from := rt.currentLevel
			if cmd.ThrottleRamp.From != nil {
				from = *cmd.ThrottleRamp.From
			}

			if cmd.ThrottleRamp.DurationSeconds <= 0 {
				rt.currentLevel = cmd.ThrottleRamp.To
				rt.ramp = nil
			} else {
				rt.ramp = &rampState{
					from:     from,
					to:       cmd.ThrottleRamp.To,
					startGet: cmd.Time,
					endGet:   cmd.Time + cmd.ThrottleRamp.DurationSeconds,
				}
			}
		}

	case CommandRCSPulse:
		if cmd.RCSPulse != nil && r.rcs != nil {
			result := r.rcs.Fire(*cmd.RCSPulse, getSeconds, "autopilot:"+rt.EventID)
			rt.rcsPulses = append(rt.rcsPulses, PulseSummary{
				GetSeconds: getSeconds,
				MassKg:     result.TotalMassKg,
				Impulse:    result.TotalImpulse,
			})
		}

	case CommandDSKYEntry:
		if cmd.DSKYEntry != nil {
			rt.dskyEntries = append(rt.dskyEntries, *cmd.DSKYEntry)
		}
	}
}

// throttleAt returns the effective throttle level at elapsed seconds since
// the run started, accounting for an in-progress ramp.
func (rt *Runtime) throttleAt(elapsed float64) float64 {
	if rt.ramp != nil {
		level := rt.ramp.levelAt(elapsed)
		if elapsed >= rt.ramp.endGet {
			rt.currentLevel = rt.ramp.to
			rt.ramp = nil
		}

		return level
	}

	return rt.currentLevel
}

// integrate applies the trapezoidal-integrated throttle and any active
// ullage window to propellant tanks over [rt.lastUpdateGet, getSeconds].
func (r *Runner) integrate(rt *Runtime, getSeconds float64) {
	interval := getSeconds - rt.lastUpdateGet
	if interval <= 0 {
		return
	}

	startElapsed := rt.Elapsed(rt.lastUpdateGet)
	endElapsed := rt.Elapsed(getSeconds)

	startLevel := rt.throttleAt(startElapsed)
	endLevel := rt.throttleAt(endElapsed)
	avgLevel := (startLevel + endLevel) / 2

	if avgLevel > tickEpsilon && rt.Definition.Propulsion.MassFlowKgPerSec > 0 {
		usedKg := avgLevel * rt.Definition.Propulsion.MassFlowKgPerSec * interval

		if r.res != nil {
			r.res.RecordPropellantUsage(rt.Definition.Propulsion.TankKey, usedKg, resource.EffectContext{
				GetSeconds: getSeconds,
				Source:     "autopilot:" + rt.EventID,
				Type:       resource.SourceSuccess,
				Note:       "burn propellant",
			})
		}

		rt.propellantUsedKg += usedKg
		rt.burnSeconds += interval

		if rt.Definition.Propulsion.DeltaVPerSecondMps > 0 {
			rt.deltaVAccumulatedMps += avgLevel * rt.Definition.Propulsion.DeltaVPerSecondMps * interval
		}
	}

	if rt.ullage != nil {
		overlapStart := math.Max(startElapsed, rt.ullage.startGet)
		overlapEnd := math.Min(endElapsed, rt.ullage.endGet)

		if overlapEnd > overlapStart && rt.Definition.Propulsion.Ullage != nil {
			overlap := overlapEnd - overlapStart
			cfg := rt.Definition.Propulsion.Ullage
			usedKg := cfg.MassFlowKgPerSec * overlap

			if r.res != nil && usedKg > 0 {
				r.res.RecordPropellantUsage(cfg.TankKey, usedKg, resource.EffectContext{
					GetSeconds: getSeconds,
					Source:     "autopilot:" + rt.EventID,
					Type:       resource.SourceSuccess,
					Note:       "ullage propellant",
				})
			}

			rt.ullageUsedKg += usedKg
		}

		if endElapsed >= rt.ullage.endGet-tickEpsilon {
			rt.ullage = nil
		}
	}

	rt.lastUpdateGet = getSeconds
}

// checkTolerances evaluates the run's achieved metrics against its
// Definition's Tolerances, returning a failure reason if any are violated.
func (rt *Runtime) checkTolerances() string {
	tol := rt.Definition.Tolerances
	if tol == nil {
		return ""
	}

	if !tol.BurnDurationSeconds.withinBounds(rt.burnSeconds) {
		return fmt.Sprintf("burn duration %.2fs outside tolerance", rt.burnSeconds)
	}

	if !tol.PropellantKg.withinBounds(rt.propellantUsedKg) {
		return fmt.Sprintf("propellant usage %.2fkg outside tolerance", rt.propellantUsedKg)
	}

	if !tol.DeltaVMps.withinBounds(rt.deltaVAccumulatedMps) {
		return fmt.Sprintf("delta-v %.2fmps outside tolerance", rt.deltaVAccumulatedMps)
	}

	return ""
}

// Finish forces immediate completion of eventID's run at getSeconds,
// integrating any remaining interval first.
func (r *Runner) Finish(eventID string, getSeconds float64) {
	rt, ok := r.active[eventID]
	if !ok || rt.Done() {
		return
	}

	r.integrate(rt, getSeconds)
	rt.status = StatusComplete

	r.conclude(rt, getSeconds)
}

// Abort terminates eventID's run at getSeconds with reason, retaining
// partial metrics but excluding it from the "completed" tally (spec.md §9
// decision: aborted runs report Status == StatusAborted, never
// StatusComplete).
func (r *Runner) Abort(eventID string, getSeconds float64, reason string) {
	rt, ok := r.active[eventID]
	if !ok || rt.Done() {
		return
	}

	r.integrate(rt, getSeconds)
	rt.status = StatusAborted
	rt.failureReason = reason

	r.conclude(rt, getSeconds)
}

func (r *Runner) conclude(rt *Runtime, getSeconds float64) {
	if rt.status == StatusComplete {
		if reason := rt.checkTolerances(); reason != "" {
			rt.status = StatusFailed
			rt.failureReason = reason
		}
	}

	r.logf(getSeconds, missionlog.SeverityInfo, "autopilot %s for event %s concluded: %s",
		rt.Definition.ID, rt.EventID, rt.status)

	summary := Summary{
		EventID:           rt.EventID,
		AutopilotID:       rt.Definition.ID,
		Status:            rt.status,
		StartGet:          rt.StartGet,
		EndGet:            getSeconds,
		BurnSeconds:       rt.burnSeconds,
		PropellantUsedKg:  rt.propellantUsedKg,
		UllageUsedKg:      rt.ullageUsedKg,
		DeltaVAchievedMps: rt.deltaVAccumulatedMps,
		DSKYEntries:       append([]DSKYEntryParams(nil), rt.dskyEntries...),
		AttitudeHolds:     rt.attitudeHolds,
		RCSPulses:         append([]PulseSummary(nil), rt.rcsPulses...),
		FailureReason:     rt.failureReason,
	}

	for _, h := range r.handlers {
		h(summary)
	}
}
