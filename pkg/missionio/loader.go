package missionio

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"apollosim/pkg/audio"
	"apollosim/pkg/autopilot"
	"apollosim/pkg/checklist"
	"apollosim/pkg/resource"
	"apollosim/pkg/scheduler"
)

// Mission bundles every definition the kernel needs to run a tick loop,
// assembled from one mission fixture directory.
type Mission struct {
	Events     []*scheduler.Definition
	Autopilots map[string]*autopilot.Definition
	Checklists map[string]*checklist.Definition
	Catalog    *audio.Catalog
	Budgets    map[resource.Tank]*resource.StageBudget

	// Warnings aggregates the non-fatal issues the validation pass found
	// (unknown autopilot/checklist references, degenerate event windows).
	// It is nil when the mission is clean.
	Warnings error
}

// missionFileName is the single fixture file a mission directory carries.
// Splitting across multiple files (events.yaml, autopilots.yaml, ...) is
// not needed at this scale; everything nests under one document, mirroring
// cmd/shaper/config.go's single fileConfig.
const missionFileName = "mission.yaml"

// Load reads and validates the mission fixture in dir. Parse errors and
// prerequisite cycles are hard failures; everything else the validation
// pass finds is aggregated into Mission.Warnings for the caller to log.
func Load(dir string) (*Mission, error) {
	path := filepath.Join(dir, missionFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("missionio: read %q: %w", path, err)
	}

	var fixture fixtureMission

	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("missionio: decode %q: %w", path, err)
	}

	mission, err := decodeMission(fixture)
	if err != nil {
		return nil, fmt.Errorf("missionio: %q: %w", path, err)
	}

	if err := checkCycles(mission.Events); err != nil {
		return nil, fmt.Errorf("missionio: %q: %w", path, err)
	}

	mission.Warnings = validate(mission)

	return mission, nil
}

func decodeMission(fixture fixtureMission) (*Mission, error) {
	events := make([]*scheduler.Definition, 0, len(fixture.Events))
	for _, fe := range fixture.Events {
		ev, err := decodeEvent(fe)
		if err != nil {
			return nil, err
		}

		events = append(events, ev)
	}

	autopilots := make(map[string]*autopilot.Definition, len(fixture.Autopilots))
	for _, fa := range fixture.Autopilots {
		ap, err := decodeAutopilot(fa)
		if err != nil {
			return nil, err
		}

		autopilots[fa.ID] = ap
	}

	checklists := make(map[string]*checklist.Definition, len(fixture.Checklists))
	for _, fc := range fixture.Checklists {
		checklists[fc.ID] = decodeChecklist(fc)
	}

	budgets, err := decodeBudgets(fixture.Budgets)
	if err != nil {
		return nil, err
	}

	return &Mission{
		Events:     events,
		Autopilots: autopilots,
		Checklists: checklists,
		Catalog:    decodeCatalog(fixture.Audio),
		Budgets:    budgets,
	}, nil
}

// checkCycles hard-fails on any cycle in the prerequisite graph: a cyclic
// dependency is not a quality issue, it is a mission that can never reach
// pending->armed for every event in the cycle.
func checkCycles(events []*scheduler.Definition) error {
	byID := make(map[string]*scheduler.Definition, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(events))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("prerequisite cycle detected: %v -> %s", path, id)
		}

		state[id] = visiting
		path = append(path, id)

		if ev, ok := byID[id]; ok {
			for _, dep := range ev.Prerequisites {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		state[id] = done

		return nil
	}

	for _, ev := range events {
		if err := visit(ev.ID); err != nil {
			return err
		}
	}

	return nil
}

// validate aggregates the non-fatal issues a loaded mission can still have:
// references to autopilot/checklist ids that were never defined, and event
// windows that are already closed before they open.
func validate(m *Mission) error {
	var errs error

	for _, ev := range m.Events {
		if ev.AutopilotID != "" {
			if _, ok := m.Autopilots[ev.AutopilotID]; !ok {
				errs = multierr.Append(errs, fmt.Errorf("event %q references unknown autopilot %q", ev.ID, ev.AutopilotID))
			}
		}

		if ev.ChecklistID != "" {
			if _, ok := m.Checklists[ev.ChecklistID]; !ok {
				errs = multierr.Append(errs, fmt.Errorf("event %q references unknown checklist %q", ev.ID, ev.ChecklistID))
			}
		}

		if ev.GetOpenSeconds >= ev.GetCloseSeconds {
			errs = multierr.Append(errs, fmt.Errorf("event %q has a degenerate window [%.3f, %.3f)", ev.ID, ev.GetOpenSeconds, ev.GetCloseSeconds))
		}

		if ev.AudioCueID != "" && m.Catalog != nil {
			if _, ok := m.Catalog.Cues[ev.AudioCueID]; !ok {
				errs = multierr.Append(errs, fmt.Errorf("event %q references unknown audio cue %q", ev.ID, ev.AudioCueID))
			}
		}
	}

	return errs
}
