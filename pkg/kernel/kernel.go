package kernel

import (
	"fmt"

	"apollosim/pkg/audio"
	"apollosim/pkg/autopilot"
	"apollosim/pkg/manualqueue"
	"apollosim/pkg/missionlog"
	"apollosim/pkg/orbit"
	"apollosim/pkg/scheduler"
	"apollosim/pkg/score"
)

const tickEpsilon = 1e-6

// Kernel is the Simulation Kernel (C12).
type Kernel struct {
	deps Deps
	cfg  Config

	aborted     bool
	abortReason string

	lastSampleGet float64
	haveSampled   bool

	faultedEvents map[string]bool
}

// New constructs a Kernel over deps, wiring the two cross-component
// subscriptions that must exist before the first tick:
//
//   - the orbit propagator subscribes to the autopilot runner's summary
//     fan-out, translating an achieved burn into an impulsive delta-v
//     (spec.md §4.5/§9: "the orbit propagator subscribes at construction
//     time");
//   - the scheduler's audio-cue trigger is wired to the dispatcher, so an
//     event's configured audioCueId actually plays.
func New(deps Deps, cfg Config) *Kernel {
	if deps.Orbit != nil && deps.AutopilotRunner != nil {
		orbitProp := deps.Orbit

		deps.AutopilotRunner.Subscribe(func(summary autopilot.Summary) {
			if summary.DeltaVAchievedMps == 0 {
				return
			}

			orbitProp.ApplyDeltaV(orbit.DeltaVRequest{
				Magnitude:  summary.DeltaVAchievedMps,
				Frame:      orbit.FramePrograde,
				GetSeconds: summary.EndGet,
				Metadata:   map[string]string{"eventId": summary.EventID, "autopilotId": summary.AutopilotID},
			})
		})
	}

	if deps.Scheduler != nil && deps.Audio != nil {
		deps.Scheduler.SetAudioTrigger(func(cueID string, getSeconds float64) {
			deps.Audio.Enqueue(audio.Trigger{
				CueID:              cueID,
				Severity:           audio.SeverityNominal,
				TriggeredAtSeconds: getSeconds,
			})
		})
	}

	return &Kernel{deps: deps, cfg: cfg}
}

func (k *Kernel) logf(getSeconds float64, severity missionlog.Severity, format string, args ...any) {
	if k.deps.Log == nil {
		return
	}

	k.deps.Log.Log(missionlog.Entry{
		GetSeconds: getSeconds,
		Severity:   severity,
		Category:   missionlog.CategoryKernel,
		Source:     "kernel",
		Message:    fmt.Sprintf(format, args...),
	})
}

// Aborted reports whether a prior tick tripped the fault breaker.
func (k *Kernel) Aborted() bool {
	return k.aborted
}

// Tick advances every component by exactly one fixed timestep, in the
// order spec.md §2 fixes: manual queue, scheduler (events, checklist
// auto-advance, autopilot start/finish), orbit propagator, resource
// system, score system, audio dispatcher, HUD build callback, clock
// advance.
func (k *Kernel) Tick(onFrame func(Frame)) {
	if k.aborted {
		return
	}

	getSeconds := k.deps.Clock.Now()
	dt := k.deps.Clock.DtSeconds()

	if k.deps.ManualQueue != nil {
		k.deps.ManualQueue.Update(getSeconds)
	}

	k.driveChecklistAutoAdvance(getSeconds)

	if k.deps.Scheduler != nil {
		k.deps.Scheduler.Update(getSeconds)
	}

	if k.deps.AutopilotRunner != nil {
		k.deps.AutopilotRunner.Update(getSeconds)
	}

	if k.deps.Orbit != nil {
		k.deps.Orbit.Update(dt, orbit.UpdateInput{GetSeconds: getSeconds})
	}

	if k.deps.Resource != nil {
		k.deps.Resource.Update(dt, getSeconds)
	}

	k.updateScore(getSeconds)

	if k.deps.Audio != nil {
		k.deps.Audio.Update(getSeconds)
	}

	if k.deps.Scheduler != nil && k.deps.Scheduler.ShouldAbort() {
		k.aborted = true
		k.abortReason = "fault breaker tripped"
		k.logf(getSeconds, missionlog.SeverityError, "kernel aborted: %s", k.abortReason)
	}

	if onFrame != nil && k.frameDue(getSeconds) {
		onFrame(k.buildFrame(getSeconds))
	}

	k.deps.Clock.Advance()
}

// driveChecklistAutoAdvance acknowledges every due auto-advance step for
// events currently active with an attached checklist, ahead of the
// scheduler's own completion check later this tick.
func (k *Kernel) driveChecklistAutoAdvance(getSeconds float64) {
	if k.deps.ChecklistMgr == nil || k.deps.Scheduler == nil {
		return
	}

	for _, ev := range k.deps.Scheduler.Events() {
		if ev.Status != scheduler.StatusActive || !ev.RequiresChecklist {
			continue
		}

		for _, stepNumber := range k.deps.ChecklistMgr.PendingAutoAdvance(ev.Def.ID, getSeconds) {
			k.deps.ChecklistMgr.Acknowledge(ev.Def.ID, stepNumber, getSeconds, "auto-advance")
		}
	}
}

func (k *Kernel) eventCounts() score.EventCounts {
	if k.deps.Scheduler == nil {
		return score.EventCounts{}
	}

	counts := score.EventCounts{}

	for _, ev := range k.deps.Scheduler.Events() {
		counts.Total++

		switch ev.Status {
		case scheduler.StatusComplete:
			counts.Complete++
		case scheduler.StatusFailed:
			counts.Failed++
		}
	}

	return counts
}

func (k *Kernel) manualSuccessCount() int {
	if k.deps.ManualQueue == nil {
		return 0
	}

	count := 0

	for _, entry := range k.deps.ManualQueue.History() {
		if entry.Status == manualqueue.StatusSuccess {
			count++
		}
	}

	return count
}

// recordNewFaults reports each event the first tick it is observed failed,
// so Rate's faultScore reflects every failure exactly once.
func (k *Kernel) recordNewFaults(getSeconds float64) {
	if k.deps.Score == nil || k.deps.Scheduler == nil {
		return
	}

	if k.faultedEvents == nil {
		k.faultedEvents = make(map[string]bool)
	}

	for _, ev := range k.deps.Scheduler.Events() {
		if ev.Status != scheduler.StatusFailed || k.faultedEvents[ev.Def.ID] {
			continue
		}

		k.faultedEvents[ev.Def.ID] = true
		k.deps.Score.RecordFault(getSeconds, "event "+ev.Def.ID+" failed")
	}
}

func (k *Kernel) updateScore(getSeconds float64) {
	if k.deps.Score == nil {
		return
	}

	if k.deps.Resource != nil {
		k.deps.Score.Observe(getSeconds, k.deps.Resource.Snapshot())
	}

	k.recordNewFaults(getSeconds)
	k.deps.Score.SetEventCounts(k.eventCounts())

	acknowledged := 0
	if k.deps.ChecklistMgr != nil {
		acknowledged = k.deps.ChecklistMgr.AcknowledgedStepCount()
	}

	k.deps.Score.SetManualProgress(k.manualSuccessCount(), acknowledged)
	k.deps.Score.SampleIfDue(getSeconds)
}

func (k *Kernel) frameDue(getSeconds float64) bool {
	if k.cfg.SampleEverySeconds <= 0 {
		return true
	}

	if !k.haveSampled {
		k.haveSampled = true
		k.lastSampleGet = getSeconds

		return true
	}

	if getSeconds-k.lastSampleGet+tickEpsilon >= k.cfg.SampleEverySeconds {
		k.lastSampleGet = getSeconds

		return true
	}

	return false
}

func (k *Kernel) buildFrame(getSeconds float64) Frame {
	frame := Frame{GetSeconds: getSeconds, Tick: k.deps.Clock.Ticks()}

	if k.deps.Resource != nil {
		frame.Resource = k.deps.Resource.Snapshot()
	}

	if k.deps.Score != nil {
		frame.Rating = k.deps.Score.Rate()
	}

	if k.deps.Scheduler != nil {
		events := k.deps.Scheduler.Events()
		frame.Events = make([]EventSummary, len(events))

		for i, ev := range events {
			frame.Events[i] = EventSummary{ID: ev.Def.ID, Status: ev.Status}
		}
	}

	return frame
}

// Run advances the kernel tick by tick until the clock reaches
// untilGetSeconds or the kernel aborts, returning the terminal Summary.
func (k *Kernel) Run(untilGetSeconds float64, onFrame func(Frame)) Summary {
	for k.deps.Clock.Now() < untilGetSeconds-tickEpsilon && !k.aborted {
		k.Tick(onFrame)
	}

	return k.summary()
}

func (k *Kernel) summary() Summary {
	s := Summary{
		Ticks:           k.deps.Clock.Ticks(),
		FinalGetSeconds: k.deps.Clock.Now(),
		Aborted:         k.aborted,
		AbortReason:     k.abortReason,
		EventCounts:     k.eventCounts(),
	}

	if k.deps.Score != nil {
		s.Rating = k.deps.Score.Rate()
	}

	if k.deps.Resource != nil {
		s.Resource = k.deps.Resource.Snapshot()
	}

	return s
}
