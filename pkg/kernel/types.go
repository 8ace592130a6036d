// Package kernel implements the Simulation Kernel (C12): the fixed-tick
// driver that advances every other component in the exact per-tick order
// the simulation depends on for determinism.
package kernel

import (
	"apollosim/pkg/audio"
	"apollosim/pkg/autopilot"
	"apollosim/pkg/checklist"
	"apollosim/pkg/get"
	"apollosim/pkg/manualqueue"
	"apollosim/pkg/missionlog"
	"apollosim/pkg/orbit"
	"apollosim/pkg/resource"
	"apollosim/pkg/scheduler"
	"apollosim/pkg/score"
)

// Deps bundles the already-constructed components a Kernel drives. Each is
// built and wired by the caller (cmd/apollosim, or a test) since their
// construction order has its own dependencies (e.g. the scheduler needs the
// checklist manager and autopilot runner before it can exist); the Kernel's
// job starts once every component exists.
type Deps struct {
	Clock           *get.Clock
	ManualQueue     *manualqueue.Queue
	Scheduler       *scheduler.Scheduler
	ChecklistMgr    *checklist.Manager
	AutopilotRunner *autopilot.Runner
	Orbit           *orbit.Propagator // nil if the mission has no orbit to propagate
	Resource        *resource.State
	Score           *score.Tracker
	Audio           *audio.Dispatcher
	Log             missionlog.Sink
}

// Config tunes kernel-level behavior not owned by any one subsystem.
type Config struct {
	// SampleEverySeconds controls how often OnFrame fires; zero disables
	// sampled frame emission (OnFrame still fires, but every tick).
	SampleEverySeconds float64
}

// EventSummary is a HUD/summary-time projection of one event's status.
type EventSummary struct {
	ID     string
	Status scheduler.Status
}

// Frame is the payload passed to OnFrame each sampled tick. It plays the
// role of a HUD build callback in a kernel with no actual display: whatever
// the caller does with it (print, serialize, feed a UI) is outside this
// package's concern.
type Frame struct {
	GetSeconds float64
	Tick       uint64
	Resource   resource.State
	Rating     score.Rating
	Events     []EventSummary
}

// Summary is the terminal report returned by Run.
type Summary struct {
	Ticks           uint64
	FinalGetSeconds float64
	Aborted         bool
	AbortReason     string
	EventCounts     score.EventCounts
	Rating          score.Rating
	Resource        resource.State
}
