package manualqueue

import (
	"fmt"
	"math"
	"sort"

	"apollosim/pkg/checklist"
	"apollosim/pkg/missionlog"
	"apollosim/pkg/resource"
)

const tickEpsilon = 1e-6

// DefaultRetryIntervalSeconds separates successive retry attempts when an
// action's RETRY condition fires (spec.md §4.8 gives the backoff formula but
// leaves the interval itself to the implementation).
const DefaultRetryIntervalSeconds = 1.0

// DefaultHistoryCap bounds the queue's FIFO-trimmed concluded-action ledger.
const DefaultHistoryCap = 500

// outcome is the internal result of attempting one action.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetry
	outcomeFailed
)

// Queue is the Manual Action Queue (C9).
type Queue struct {
	items []*Action

	res          *resource.State
	checklistMgr *checklist.Manager
	panel        PanelReceiver
	log          missionlog.Sink

	retryIntervalSeconds float64
	historyCap           int
	history              []HistoryEntry

	nextInsertionIndex int
}

// NewQueue constructs an empty Queue. panel may be nil if the mission never
// schedules dsky_entry/panel_control manual actions.
func NewQueue(res *resource.State, checklistMgr *checklist.Manager, panel PanelReceiver, log missionlog.Sink) *Queue {
	return &Queue{
		res:                  res,
		checklistMgr:         checklistMgr,
		panel:                panel,
		log:                  log,
		retryIntervalSeconds: DefaultRetryIntervalSeconds,
		historyCap:           DefaultHistoryCap,
	}
}

func (q *Queue) logf(getSeconds float64, severity missionlog.Severity, format string, args ...any) {
	if q.log == nil {
		return
	}

	q.log.Log(missionlog.Entry{
		GetSeconds: getSeconds,
		Severity:   severity,
		Category:   missionlog.CategoryManual,
		Source:     "manualqueue",
		Message:    fmt.Sprintf(format, args...),
	})
}

// Enqueue schedules action, fixing its tie-break insertion index and initial
// NextAttemptSeconds (defaulting to GetSeconds), per spec.md §4.8's
// (getSeconds, insertionIndex) ordering.
func (q *Queue) Enqueue(action *Action) {
	action.insertionIndex = q.nextInsertionIndex
	q.nextInsertionIndex++

	if action.NextAttemptSeconds == 0 {
		action.NextAttemptSeconds = action.GetSeconds
	}

	q.items = append(q.items, action)
	q.resort()
}

func (q *Queue) resort() {
	sort.SliceStable(q.items, func(i, j int) bool {
		a, b := q.items[i], q.items[j]
		if a.NextAttemptSeconds != b.NextAttemptSeconds {
			return a.NextAttemptSeconds < b.NextAttemptSeconds
		}

		return a.insertionIndex < b.insertionIndex
	})
}

// Pending returns the number of actions still queued.
func (q *Queue) Pending() int {
	return len(q.items)
}

// History returns a copy of the concluded-action ledger, oldest first.
func (q *Queue) History() []HistoryEntry {
	out := make([]HistoryEntry, len(q.history))
	copy(out, q.history)

	return out
}

// Update processes every head action whose NextAttemptSeconds has arrived,
// in queue order, rescheduling RETRYs and recording terminal outcomes to
// history.
func (q *Queue) Update(getSeconds float64) {
	for len(q.items) > 0 {
		head := q.items[0]
		if head.NextAttemptSeconds > getSeconds+tickEpsilon {
			break
		}

		q.items = q.items[1:]
		head.attempts++

		result, reason := q.execute(head, getSeconds)

		switch result {
		case outcomeSuccess:
			q.record(head, StatusSuccess, getSeconds, reason)

		case outcomeFailed:
			q.record(head, StatusFailed, getSeconds, reason)

		case outcomeRetry:
			next := math.Max(getSeconds+q.retryIntervalSeconds, head.NextAttemptSeconds+q.retryIntervalSeconds)

			if head.RetryUntilSeconds != nil && next > *head.RetryUntilSeconds+tickEpsilon {
				q.record(head, StatusFailed, getSeconds, "retry window expired: "+reason)

				continue
			}

			head.NextAttemptSeconds = next
			q.items = append(q.items, head)
			q.resort()
		}
	}
}

func (q *Queue) record(action *Action, status Status, getSeconds float64, reason string) {
	q.history = append(q.history, HistoryEntry{
		Action:             action,
		Status:             status,
		Attempts:           action.attempts,
		CompletedAtSeconds: getSeconds,
		Reason:             reason,
	})

	if overflow := len(q.history) - q.historyCap; q.historyCap > 0 && overflow > 0 {
		q.history = q.history[overflow:]
	}

	severity := missionlog.SeverityInfo
	if status == StatusFailed {
		severity = missionlog.SeverityWarn
	}

	q.logf(getSeconds, severity, "manual action %s concluded: %s (%s)", action.Kind, status, reason)
}

func (q *Queue) execute(action *Action, getSeconds float64) (outcome, string) {
	switch action.Kind {
	case KindChecklistAck:
		return q.executeChecklistAck(action, getSeconds)

	case KindResourceDelta:
		return q.executeResourceDelta(action, getSeconds)

	case KindPropellantBurn:
		return q.executePropellantBurn(action, getSeconds)

	case KindDSKYEntry:
		if q.panel != nil && action.DSKYEntry != nil {
			q.panel.DSKYEntry(*action.DSKYEntry, getSeconds)
		}

		return outcomeSuccess, ""

	case KindPanelControl:
		if q.panel != nil && action.PanelControl != nil {
			q.panel.PanelControl(*action.PanelControl, getSeconds)
		}

		return outcomeSuccess, ""

	default:
		return outcomeFailed, "unrecognised action kind"
	}
}

func (q *Queue) executeChecklistAck(action *Action, getSeconds float64) (outcome, string) {
	if action.ChecklistAck == nil {
		return outcomeFailed, "missing checklist_ack params"
	}

	params := action.ChecklistAck

	state, ok := q.checklistMgr.State(params.EventID)
	if !ok {
		return outcomeRetry, "no active checklist for event " + params.EventID
	}

	count := params.Count
	if count <= 0 {
		count = 1
	}

	acked := 0
	for _, step := range state.Steps {
		if acked >= count {
			break
		}

		if step.Acknowledged {
			continue
		}

		if q.checklistMgr.Acknowledge(params.EventID, step.StepNumber, getSeconds, params.Actor) {
			acked++
		} else {
			break
		}
	}

	return outcomeSuccess, ""
}

func (q *Queue) executeResourceDelta(action *Action, getSeconds float64) (outcome, string) {
	if action.ResourceDelta == nil {
		return outcomeFailed, "missing resource_delta params"
	}

	if q.res == nil {
		return outcomeFailed, "no resource system attached"
	}

	if err := q.res.ApplyEffect(action.ResourceDelta.Effect, resource.EffectContext{
		GetSeconds: getSeconds,
		Source:     "manual",
		Type:       resource.SourceManual,
	}); err != nil {
		return outcomeFailed, err.Error()
	}

	return outcomeSuccess, ""
}

var knownTanks = map[resource.Tank]bool{
	resource.TankCSMSps:    true,
	resource.TankCSMRcs:    true,
	resource.TankLMDescent: true,
	resource.TankLMAscent:  true,
	resource.TankLMRcs:     true,
}

func tankAmountKg(snap resource.State, tank resource.Tank) float64 {
	switch tank {
	case resource.TankCSMSps:
		return snap.Propellant.CSMSpsKg
	case resource.TankCSMRcs:
		return snap.Propellant.CSMRcsKg
	case resource.TankLMDescent:
		return snap.Propellant.LMDescentKg
	case resource.TankLMAscent:
		return snap.Propellant.LMAscentKg
	case resource.TankLMRcs:
		return snap.Propellant.LMRcsKg
	default:
		return 0
	}
}

func (q *Queue) executePropellantBurn(action *Action, getSeconds float64) (outcome, string) {
	if action.PropellantBurn == nil {
		return outcomeFailed, "missing propellant_burn params"
	}

	params := action.PropellantBurn

	if !knownTanks[params.Tank] {
		return outcomeFailed, "unknown propellant tank " + string(params.Tank)
	}

	if q.res == nil {
		return outcomeFailed, "no resource system attached"
	}

	if tankAmountKg(q.res.Snapshot(), params.Tank) < params.AmountKg {
		return outcomeRetry, "insufficient propellant in tank " + string(params.Tank)
	}

	q.res.RecordPropellantUsage(params.Tank, params.AmountKg, resource.EffectContext{
		GetSeconds: getSeconds,
		Source:     "manual",
		Type:       resource.SourceManual,
		Note:       "manual propellant burn",
	})

	return outcomeSuccess, ""
}
