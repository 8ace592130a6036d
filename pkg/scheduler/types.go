// Package scheduler implements the Event Scheduler (C8): the mission event
// state machine, prerequisite gating, expected-duration derivation and the
// fault breaker that feeds the kernel's shouldAbort() check.
package scheduler

import "apollosim/pkg/resource"

// Status is an event's lifecycle state. Transitions are monotonic:
// pending -> armed -> active -> {complete | failed}.
type Status string

// Recognised statuses.
const (
	StatusPending  Status = "pending"
	StatusArmed    Status = "armed"
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Definition is an immutable event definition, loaded data.
type Definition struct {
	ID              string
	Phase           string
	GetOpenSeconds  float64
	GetCloseSeconds float64
	Prerequisites   []string
	AutopilotID     string
	ChecklistID     string
	PadID           string
	SuccessEffects  resource.EffectMap
	FailureEffects  resource.EffectMap
	AudioCueID      string
	System          string
}

// Event is the mutable runtime record for one Definition.
type Event struct {
	Def *Definition

	Status                  Status
	ActivationTimeSeconds   float64
	CompletionTimeSeconds   float64
	ExpectedDurationSeconds float64
	RequiresChecklist       bool
	RequiresDurationGate    bool

	insertionIndex int
}
