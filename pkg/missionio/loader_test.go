package missionio

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMission(t *testing.T, yamlBody string) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, missionFileName), []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	return dir
}

const minimalMission = `
events:
  - id: E1
    phase: launch
    getOpenSeconds: 0
    getCloseSeconds: 30
    successEffects:
      power:
        powerMarginPct: -1
budgets:
  csm_sps:
    initialKg: 18000
    reserveKg: 500
    usableDeltaVMps: 2800
    remainingKg: 18000
`

func TestLoadDecodesMinimalMission(t *testing.T) {
	t.Parallel()

	dir := writeMission(t, minimalMission)

	mission, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(mission.Events) != 1 || mission.Events[0].ID != "E1" {
		t.Fatalf("Events = %+v, want one event E1", mission.Events)
	}

	if mission.Warnings != nil {
		t.Fatalf("Warnings = %v, want nil for a clean mission", mission.Warnings)
	}

	budget, ok := mission.Budgets["csm_sps"]
	if !ok || budget.InitialKg != 18000 {
		t.Fatalf("Budgets[csm_sps] = %+v, ok=%v, want InitialKg=18000", budget, ok)
	}
}

func TestLoadRejectsPrerequisiteCycle(t *testing.T) {
	t.Parallel()

	dir := writeMission(t, `
events:
  - id: E1
    getOpenSeconds: 0
    getCloseSeconds: 10
    prerequisites: [E2]
  - id: E2
    getOpenSeconds: 0
    getCloseSeconds: 10
    prerequisites: [E1]
`)

	_, err := Load(dir)
	if err == nil {
		t.Fatalf("Load() error = nil, want a prerequisite cycle error")
	}
}

func TestLoadAggregatesUnknownReferenceWarnings(t *testing.T) {
	t.Parallel()

	dir := writeMission(t, `
events:
  - id: E1
    getOpenSeconds: 0
    getCloseSeconds: 10
    autopilotId: does-not-exist
    checklistId: also-missing
`)

	mission, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v, want success with warnings", err)
	}

	if mission.Warnings == nil {
		t.Fatalf("Warnings = nil, want unknown-reference warnings")
	}
}

func TestLoadAggregatesDegenerateWindowWarning(t *testing.T) {
	t.Parallel()

	dir := writeMission(t, `
events:
  - id: E1
    getOpenSeconds: 30
    getCloseSeconds: 10
`)

	mission, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v, want success with warnings", err)
	}

	if mission.Warnings == nil {
		t.Fatalf("Warnings = nil, want a degenerate-window warning")
	}
}

func TestLoadMissingFileIsHardError(t *testing.T) {
	t.Parallel()

	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatalf("Load() error = nil, want a read error for a missing mission.yaml")
	}
}
