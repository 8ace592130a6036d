package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"apollosim/pkg/autopilot"
	"apollosim/pkg/checklist"
	"apollosim/pkg/missionlog"
	"apollosim/pkg/resource"
)

const tickEpsilon = 1e-6

// Expected-duration fallbacks, per spec.md §4.3's priority chain.
const (
	minHalfWindowSeconds    = 5.0
	maxHalfWindowSeconds    = 600.0
	defaultExpectedDuration = 120.0
)

var errEventFailed = errors.New("scheduler: event failed")

// AudioTrigger fires an event's configured audio cue; the kernel wires this
// to the Audio Dispatcher once constructed, keeping this package free of an
// import on pkg/audio.
type AudioTrigger func(cueID string, getSeconds float64)

// Scheduler is the Event Scheduler (C8).
type Scheduler struct {
	events []*Event
	byID   map[string]*Event

	checklistMgr    *checklist.Manager
	autopilotRunner *autopilot.Runner
	autopilotDefs   map[string]*autopilot.Definition
	res             *resource.State
	log             missionlog.Sink
	audio           AudioTrigger
	cfg             Config

	breaker *gobreaker.CircuitBreaker
}

// Config bounds the fault breaker's trip threshold and checklist behavior.
type Config struct {
	// ConsecutiveFailuresToTrip opens the fault breaker after this many
	// consecutive event failures across the whole schedule. Zero selects a
	// default of 3.
	ConsecutiveFailuresToTrip uint32

	// ManualChecklistsOnly disables synthetic auto-advance: every checklist
	// step then waits for an explicit checklist.Manager.Acknowledge call
	// (typically issued through the Manual Action Queue), the way a crewed
	// mission run would require before trusting onboard automation for it.
	ManualChecklistsOnly bool
}

// NewScheduler prepares every definition's runtime Event: resolving its
// autopilot/checklist, computing expectedDurationSeconds, and fixing the
// (getOpenSeconds, insertion order) tie-break ordering used for arming.
func NewScheduler(
	defs []*Definition,
	checklistMgr *checklist.Manager,
	autopilotRunner *autopilot.Runner,
	autopilotDefs map[string]*autopilot.Definition,
	res *resource.State,
	log missionlog.Sink,
	cfg Config,
) *Scheduler {
	s := &Scheduler{
		byID:            make(map[string]*Event, len(defs)),
		checklistMgr:    checklistMgr,
		autopilotRunner: autopilotRunner,
		autopilotDefs:   autopilotDefs,
		res:             res,
		log:             log,
		cfg:             cfg,
	}

	for i, def := range defs {
		ev := &Event{
			Def:            def,
			Status:         StatusPending,
			insertionIndex: i,
		}

		ev.RequiresChecklist = def.ChecklistID != ""
		ev.RequiresDurationGate = true
		ev.ExpectedDurationSeconds = s.expectedDuration(def)

		s.events = append(s.events, ev)
		s.byID[def.ID] = ev
	}

	sort.SliceStable(s.events, func(i, j int) bool {
		a, b := s.events[i], s.events[j]
		if a.Def.GetOpenSeconds != b.Def.GetOpenSeconds {
			return a.Def.GetOpenSeconds < b.Def.GetOpenSeconds
		}

		return a.insertionIndex < b.insertionIndex
	})

	threshold := cfg.ConsecutiveFailuresToTrip
	if threshold == 0 {
		threshold = 3
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "scheduler-fault-breaker",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logf(0, missionlog.SeverityWarn, "fault breaker %s: %s -> %s", name, from, to)
		},
	})

	return s
}

// SetAudioTrigger registers the kernel's audio-cue fan-out.
func (s *Scheduler) SetAudioTrigger(trigger AudioTrigger) {
	s.audio = trigger
}

// expectedDuration implements spec.md §4.3's priority chain: autopilot
// duration -> checklist estimate -> half window clamped to [5s, 600s] -> 120s.
func (s *Scheduler) expectedDuration(def *Definition) float64 {
	if def.AutopilotID != "" {
		if ap, ok := s.autopilotDefs[def.AutopilotID]; ok {
			return ap.DurationSeconds
		}
	}

	if def.ChecklistID != "" {
		if cd, ok := s.checklistMgr.Definition(def.ChecklistID); ok {
			return checklist.EstimateDuration(cd)
		}
	}

	half := (def.GetCloseSeconds - def.GetOpenSeconds) / 2
	if half < minHalfWindowSeconds {
		return minHalfWindowSeconds
	}

	if half > maxHalfWindowSeconds {
		return maxHalfWindowSeconds
	}

	if half > 0 {
		return half
	}

	return defaultExpectedDuration
}

func (s *Scheduler) logf(getSeconds float64, severity missionlog.Severity, format string, args ...any) {
	if s.log == nil {
		return
	}

	s.log.Log(missionlog.Entry{
		GetSeconds: getSeconds,
		Severity:   severity,
		Category:   missionlog.CategoryScheduler,
		Source:     "scheduler",
		Message:    fmt.Sprintf(format, args...),
	})
}

// Event returns the runtime Event for id, if any.
func (s *Scheduler) Event(id string) (*Event, bool) {
	ev, ok := s.byID[id]

	return ev, ok
}

// Events returns the fixed tie-break-ordered event list.
func (s *Scheduler) Events() []*Event {
	return s.events
}

// ShouldAbort reports whether the fault breaker has tripped open, per
// spec.md §4.1's KernelAborted trigger.
func (s *Scheduler) ShouldAbort() bool {
	return s.breaker.State() == gobreaker.StateOpen
}

func (s *Scheduler) prerequisitesComplete(ev *Event) bool {
	for _, id := range ev.Def.Prerequisites {
		dep, ok := s.byID[id]
		if !ok || dep.Status != StatusComplete {
			return false
		}
	}

	return true
}

// Update advances every event's state machine to getSeconds. It is
// idempotent within a tick: re-invoking with the same getSeconds does not
// advance any event beyond the state it reached on the first call.
func (s *Scheduler) Update(getSeconds float64) {
	for _, ev := range s.events {
		if ev.Status == StatusComplete || ev.Status == StatusFailed {
			continue
		}

		s.updateEvent(ev, getSeconds)
	}
}

// updateEvent advances ev's state machine by one tick. The event windows
// are half-open [getOpenSeconds, getCloseSeconds), matching the
// communications pass windows elsewhere in the resource system: an event
// that has not reached complete by the instant its window closes fails,
// whether or not it ever armed (spec.md §8 scenario 4's "window expiry
// without arming" case).
func (s *Scheduler) updateEvent(ev *Event, getSeconds float64) {
	if getSeconds+tickEpsilon >= ev.Def.GetCloseSeconds {
		s.fail(ev, getSeconds, "window closed")

		return
	}

	if ev.Status == StatusPending {
		if getSeconds+tickEpsilon < ev.Def.GetOpenSeconds || !s.prerequisitesComplete(ev) {
			return
		}

		ev.Status = StatusArmed
		s.logf(getSeconds, missionlog.SeverityInfo, "event %s armed", ev.Def.ID)
	}

	if ev.Status == StatusArmed {
		s.activate(ev, getSeconds)
	}

	if ev.Status == StatusActive {
		if s.checkCompletion(ev, getSeconds) {
			s.complete(ev, getSeconds)
		}
	}
}

func (s *Scheduler) activate(ev *Event, getSeconds float64) {
	ev.Status = StatusActive
	ev.ActivationTimeSeconds = getSeconds

	s.logf(getSeconds, missionlog.SeverityInfo, "event %s activated", ev.Def.ID)

	if ev.RequiresChecklist {
		_, err := s.checklistMgr.ActivateEvent(ev.Def.ID, ev.Def.ChecklistID, getSeconds, checklist.ActivationParams{
			ExpectedDurationSeconds: ev.ExpectedDurationSeconds,
			WindowCloseSeconds:      ev.Def.GetCloseSeconds,
			AutoAdvance:             !s.cfg.ManualChecklistsOnly,
		})
		if err != nil {
			s.logf(getSeconds, missionlog.SeverityError, "event %s: %v", ev.Def.ID, err)
		}
	}

	if ev.Def.AutopilotID != "" && s.autopilotRunner != nil {
		if def, ok := s.autopilotDefs[ev.Def.AutopilotID]; ok {
			s.autopilotRunner.Start(ev.Def.ID, def, getSeconds)
		}
	}

	if ev.Def.AudioCueID != "" && s.audio != nil {
		s.audio(ev.Def.AudioCueID, getSeconds)
	}
}

func (s *Scheduler) checkCompletion(ev *Event, getSeconds float64) bool {
	timerOK := true
	if ev.RequiresDurationGate {
		elapsed := getSeconds - ev.ActivationTimeSeconds
		timerOK = elapsed >= ev.ExpectedDurationSeconds-tickEpsilon
	}

	checklistOK := true
	if ev.RequiresChecklist {
		checklistOK = s.checklistMgr.IsEventComplete(ev.Def.ID)
	}

	return timerOK && checklistOK
}

func (s *Scheduler) complete(ev *Event, getSeconds float64) {
	ev.Status = StatusComplete
	ev.CompletionTimeSeconds = getSeconds

	if s.res != nil && len(ev.Def.SuccessEffects) > 0 {
		if err := s.res.ApplyEffect(ev.Def.SuccessEffects, resource.EffectContext{
			GetSeconds: getSeconds,
			Source:     ev.Def.ID,
			Type:       resource.SourceSuccess,
		}); err != nil {
			s.logf(getSeconds, missionlog.SeverityError, "event %s success effects: %v", ev.Def.ID, err)
		}
	}

	if ev.RequiresChecklist {
		s.checklistMgr.Finalize(ev.Def.ID)
	}

	if s.autopilotRunner != nil && s.autopilotRunner.Active(ev.Def.ID) {
		s.autopilotRunner.Finish(ev.Def.ID, getSeconds)
	}

	s.logf(getSeconds, missionlog.SeverityInfo, "event %s complete", ev.Def.ID)

	_, _ = s.breaker.Execute(func() (any, error) { return nil, nil })
}

func (s *Scheduler) fail(ev *Event, getSeconds float64, reason string) {
	ev.Status = StatusFailed
	ev.CompletionTimeSeconds = getSeconds

	if s.res != nil && len(ev.Def.FailureEffects) > 0 {
		if err := s.res.ApplyEffect(ev.Def.FailureEffects, resource.EffectContext{
			GetSeconds: getSeconds,
			Source:     ev.Def.ID,
			Type:       resource.SourceFailure,
		}); err != nil {
			s.logf(getSeconds, missionlog.SeverityError, "event %s failure effects: %v", ev.Def.ID, err)
		}
	}

	if ev.RequiresChecklist {
		s.checklistMgr.Finalize(ev.Def.ID)
	}

	if s.autopilotRunner != nil && s.autopilotRunner.Active(ev.Def.ID) {
		s.autopilotRunner.Abort(ev.Def.ID, getSeconds, reason)
	}

	s.logf(getSeconds, missionlog.SeverityWarn, "event %s failed: %s", ev.Def.ID, reason)

	_, _ = s.breaker.Execute(func() (any, error) { return nil, errEventFailed })
}
