// Package audio implements the Audio Dispatcher (C10): per-bus
// priority/cooldown/ducking/preemption queues fed by cue triggers, with a
// bounded, FIFO-trimmed playback ledger.
package audio

import "math"

// Severity biases a trigger's effective priority, mirroring missionlog's
// severity scale but kept local so this package doesn't need to import it
// just to weight a number.
type Severity int

// Recognised severities, least to most urgent.
const (
	SeverityAmbient Severity = iota
	SeverityNominal
	SeverityCaution
	SeverityWarning
	SeverityEmergency
)

// severityWeight adds to a cue/category's base priority per spec.md §4.9.
var severityWeight = map[Severity]float64{
	SeverityAmbient:   0,
	SeverityNominal:   0,
	SeverityCaution:   10,
	SeverityWarning:   25,
	SeverityEmergency: 50,
}

// DuckingRule contributes a gain multiplier to a target bus while the
// owning bus has an active cue playing.
type DuckingRule struct {
	TargetBusID string
	GainLinear  float64
}

// Bus is a playback channel with a concurrency cap and outgoing ducking
// rules applied while any cue on this bus is active.
type Bus struct {
	ID            string
	MaxConcurrent int
	Ducking       []DuckingRule
}

// Category groups cues under a default priority and cooldown.
type Category struct {
	ID              string
	BusID           string
	DefaultPriority float64
	CooldownSeconds float64
}

// Cue is one playable sound definition.
type Cue struct {
	ID              string
	BusID           string
	CategoryID      string
	LengthSeconds   float64 // +Inf for a loop
	Loop            bool
	CooldownSeconds float64
	Priority        *float64
}

// DefaultCueDurationSeconds is used when a cue's length is non-finite and it
// is not marked as a loop (malformed catalog data).
const DefaultCueDurationSeconds = 3.0

// Catalog is the immutable audio configuration loaded with the mission.
type Catalog struct {
	Buses      map[string]*Bus
	Categories map[string]*Category
	Cues       map[string]*Cue
}

// DefaultBusID is used when a trigger resolves to no explicit or
// category-derived bus.
const DefaultBusID = "master"

// Trigger requests playback of a cue, either from the binder (event audio
// cues) or a direct external enqueue.
type Trigger struct {
	CueID              string
	Severity           Severity
	TriggeredAtSeconds float64
	Metadata           map[string]string

	insertionSeq int
}

// resolvedTrigger is a Trigger annotated with its resolved bus/category and
// effective priority, ready for queue ordering.
type resolvedTrigger struct {
	Trigger
	cue               *Cue
	busID             string
	effectivePriority float64
}

// Status is a ledger entry's terminal or in-flight disposition.
type Status string

// Recognised statuses.
const (
	StatusPlaying   Status = "playing"
	StatusCompleted Status = "completed"
	StatusPreempted Status = "preempted"
	StatusStopped   Status = "stopped"
)

// ActiveRecord is a currently-playing (or just-retired) cue instance.
type ActiveRecord struct {
	LedgerID       int
	CueID          string
	CategoryID     string
	BusID          string
	Severity       Severity
	Priority       float64
	StartedAt      float64
	EndsAt         float64 // +Inf for a loop
	duckingApplied []DuckingRule
}

// LedgerEntry is an immutable record of one playback's lifecycle, retained
// in the dispatcher's bounded ledger.
type LedgerEntry struct {
	LedgerID   int
	CueID      string
	CategoryID string
	BusID      string
	Severity   Severity
	StartedAt  float64
	EndedAt    float64
	StopReason string
	Status     Status
	Metadata   map[string]string
	Ducking    []DuckingRule
}

func isLoopEnd(endsAt float64) bool {
	return math.IsInf(endsAt, 1)
}
