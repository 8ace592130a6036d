package missionio

import (
	"os"
	"path/filepath"
	"testing"

	"apollosim/pkg/manualqueue"
)

const sampleScript = `
- getSeconds: 0
  kind: propellant_burn
  retryUntilSeconds: 120
  propellantBurn:
    tank: csm_rcs
    amountKg: 50
- getSeconds: 30
  kind: checklist_ack
  checklistAck:
    eventId: E1
    count: 2
    actor: CDR
- getSeconds: 45
  kind: dsky_entry
  dskyEntry:
    verb: 16
    noun: 65
    program: 11
- getSeconds: 60
  kind: panel_control
  panelControl:
    control: main_bus_a
    value: 1
`

func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "actions.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	return path
}

func TestLoadActionScriptDecodesAllKinds(t *testing.T) {
	t.Parallel()

	path := writeScript(t, sampleScript)

	actions, err := LoadActionScript(path)
	if err != nil {
		t.Fatalf("LoadActionScript() error = %v", err)
	}

	if len(actions) != 4 {
		t.Fatalf("len(actions) = %d, want 4", len(actions))
	}

	if actions[0].Kind != manualqueue.KindPropellantBurn || actions[0].PropellantBurn.AmountKg != 50 {
		t.Fatalf("actions[0] = %+v, want a 50kg propellant_burn", actions[0])
	}

	if actions[0].RetryUntilSeconds == nil || *actions[0].RetryUntilSeconds != 120 {
		t.Fatalf("actions[0].RetryUntilSeconds = %v, want 120", actions[0].RetryUntilSeconds)
	}

	if actions[1].ChecklistAck == nil || actions[1].ChecklistAck.Count != 2 {
		t.Fatalf("actions[1] = %+v, want checklist_ack count=2", actions[1])
	}

	if actions[2].DSKYEntry == nil || actions[2].DSKYEntry.Verb != 16 {
		t.Fatalf("actions[2] = %+v, want dsky_entry V16", actions[2])
	}

	if actions[3].PanelControl == nil || actions[3].PanelControl.Control != "main_bus_a" {
		t.Fatalf("actions[3] = %+v, want panel_control main_bus_a", actions[3])
	}
}

func TestLoadActionScriptRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `
- getSeconds: 0
  kind: not_a_real_kind
`)

	if _, err := LoadActionScript(path); err == nil {
		t.Fatalf("LoadActionScript() error = nil, want an error for an unrecognised kind")
	}
}

func TestLoadActionScriptMissingFile(t *testing.T) {
	t.Parallel()

	// A nonexistent parent directory means the lock file itself can't be
	// created, unlike a merely-missing sibling file (which flock would
	// happily create for the lock).
	if _, err := LoadActionScript(filepath.Join(t.TempDir(), "no-such-dir", "missing.yaml")); err == nil {
		t.Fatalf("LoadActionScript() error = nil, want a lock/read error")
	}
}
