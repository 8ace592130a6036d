// Package panel implements Panel State / Workspace / AGC (C13): the thin
// manual control surfaces that the Manual Action Queue's dsky_entry and
// panel_control actions write through to. Like pkg/resource, there is no
// locking because there is no concurrency (spec.md §5) — a single
// simulation run owns one Workspace.
package panel

import (
	"fmt"

	"apollosim/pkg/manualqueue"
	"apollosim/pkg/missionlog"
)

// DSKYState mirrors the AGC display/keyboard's addressable state: the last
// verb/noun/program entered and the register values it carried.
type DSKYState struct {
	Verb        int
	Noun        int
	Program     int
	Registers   []float64
	LastEntryAt float64
}

// ControlChange records one panel_control write, retained in a bounded
// history for inspection (e.g. a HUD "recent panel activity" view).
type ControlChange struct {
	Control    string
	Value      float64
	GetSeconds float64
}

// DefaultHistoryCap bounds the control-change history.
const DefaultHistoryCap = 500

// Workspace is the Panel State / Workspace / AGC placeholder (C13).
// It implements manualqueue.PanelReceiver.
type Workspace struct {
	dsky     DSKYState
	switches map[string]float64
	history  []ControlChange

	historyCap int
	log        missionlog.Sink
}

var _ manualqueue.PanelReceiver = (*Workspace)(nil)

// NewWorkspace constructs an empty Workspace.
func NewWorkspace(log missionlog.Sink) *Workspace {
	return &Workspace{
		switches:   make(map[string]float64),
		historyCap: DefaultHistoryCap,
		log:        log,
	}
}

func (w *Workspace) logf(getSeconds float64, severity missionlog.Severity, format string, args ...any) {
	if w.log == nil {
		return
	}

	w.log.Log(missionlog.Entry{
		GetSeconds: getSeconds,
		Severity:   severity,
		Category:   missionlog.CategoryPanel,
		Source:     "panel",
		Message:    fmt.Sprintf(format, args...),
	})
}

// DSKYEntry implements manualqueue.PanelReceiver, updating the addressable
// DSKY state from a manual verb/noun/program/register entry.
func (w *Workspace) DSKYEntry(params manualqueue.DSKYEntryParams, getSeconds float64) {
	w.dsky = DSKYState{
		Verb:        params.Verb,
		Noun:        params.Noun,
		Program:     params.Program,
		Registers:   append([]float64(nil), params.Registers...),
		LastEntryAt: getSeconds,
	}

	w.logf(getSeconds, missionlog.SeverityInfo, "DSKY entry V%02dN%02d (program %d)", params.Verb, params.Noun, params.Program)
}

// PanelControl implements manualqueue.PanelReceiver, recording a raw panel
// switch/control position.
func (w *Workspace) PanelControl(params manualqueue.PanelControlParams, getSeconds float64) {
	w.switches[params.Control] = params.Value

	w.history = append(w.history, ControlChange{
		Control:    params.Control,
		Value:      params.Value,
		GetSeconds: getSeconds,
	})
	if overflow := len(w.history) - w.historyCap; overflow > 0 {
		w.history = w.history[overflow:]
	}

	w.logf(getSeconds, missionlog.SeverityInfo, "panel control %q -> %v", params.Control, params.Value)
}

// DSKYState returns the current DSKY display/keyboard state.
func (w *Workspace) DSKYState() DSKYState {
	return w.dsky
}

// SwitchPosition returns control's last-written value, if any.
func (w *Workspace) SwitchPosition(control string) (float64, bool) {
	v, ok := w.switches[control]

	return v, ok
}

// History returns a copy of the bounded panel-control change ledger, oldest
// first.
func (w *Workspace) History() []ControlChange {
	out := make([]ControlChange, len(w.history))
	copy(out, w.history)

	return out
}
