package missionio

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"apollosim/pkg/manualqueue"
	"apollosim/pkg/resource"
)

// lockTimeout bounds how long LoadActionScript waits for the advisory
// read-lock before giving up; a script file is small and briefly held, so a
// short bound is enough to surface a stuck writer rather than hang.
const lockTimeout = 2 * time.Second

type fixtureAction struct {
	GetSeconds        float64                `yaml:"getSeconds"`
	Kind              string                 `yaml:"kind"`
	RetryUntilSeconds *float64               `yaml:"retryUntilSeconds"`
	ChecklistAck      *fixtureChecklistAck   `yaml:"checklistAck"`
	ResourceDelta     map[string]any         `yaml:"resourceDelta"`
	PropellantBurn    *fixturePropellantBurn `yaml:"propellantBurn"`
	DSKYEntry         *fixtureDSKY           `yaml:"dskyEntry"`
	PanelControl      *fixturePanelControl   `yaml:"panelControl"`
}

type fixtureChecklistAck struct {
	EventID string `yaml:"eventId"`
	Count   int    `yaml:"count"`
	Actor   string `yaml:"actor"`
}

type fixturePropellantBurn struct {
	Tank     string  `yaml:"tank"`
	AmountKg float64 `yaml:"amountKg"`
}

type fixturePanelControl struct {
	Control string  `yaml:"control"`
	Value   float64 `yaml:"value"`
}

// LoadActionScript reads and decodes a manual action script file under an
// advisory read lock, so a script being written by an external tool is
// never read mid-write.
func LoadActionScript(path string) ([]*manualqueue.Action, error) {
	lock := flock.New(path)

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("missionio: lock %q: %w", path, err)
	}

	if !locked {
		return nil, fmt.Errorf("missionio: lock %q: timed out after %s", path, lockTimeout)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("missionio: read %q: %w", path, err)
	}

	var raw []fixtureAction

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("missionio: decode %q: %w", path, err)
	}

	actions := make([]*manualqueue.Action, 0, len(raw))

	for i, fa := range raw {
		action, err := decodeAction(fa)
		if err != nil {
			return nil, fmt.Errorf("missionio: %q: action %d: %w", path, i, err)
		}

		actions = append(actions, action)
	}

	return actions, nil
}

func decodeAction(fa fixtureAction) (*manualqueue.Action, error) {
	action := &manualqueue.Action{
		GetSeconds:        fa.GetSeconds,
		RetryUntilSeconds: fa.RetryUntilSeconds,
	}

	switch manualqueue.ActionKind(fa.Kind) {
	case manualqueue.KindChecklistAck:
		if fa.ChecklistAck == nil {
			return nil, fmt.Errorf("checklist_ack action missing checklistAck block")
		}

		action.Kind = manualqueue.KindChecklistAck
		action.ChecklistAck = &manualqueue.ChecklistAckParams{
			EventID: fa.ChecklistAck.EventID,
			Count:   fa.ChecklistAck.Count,
			Actor:   fa.ChecklistAck.Actor,
		}

	case manualqueue.KindResourceDelta:
		effect, err := decodeEffectMap(fa.ResourceDelta)
		if err != nil {
			return nil, fmt.Errorf("resource_delta: %w", err)
		}

		action.Kind = manualqueue.KindResourceDelta
		action.ResourceDelta = &manualqueue.ResourceDeltaParams{Effect: effect}

	case manualqueue.KindPropellantBurn:
		if fa.PropellantBurn == nil {
			return nil, fmt.Errorf("propellant_burn action missing propellantBurn block")
		}

		action.Kind = manualqueue.KindPropellantBurn
		action.PropellantBurn = &manualqueue.PropellantBurnParams{
			Tank:     resource.Tank(fa.PropellantBurn.Tank),
			AmountKg: fa.PropellantBurn.AmountKg,
		}

	case manualqueue.KindDSKYEntry:
		if fa.DSKYEntry == nil {
			return nil, fmt.Errorf("dsky_entry action missing dskyEntry block")
		}

		action.Kind = manualqueue.KindDSKYEntry
		action.DSKYEntry = &manualqueue.DSKYEntryParams{
			Verb:      fa.DSKYEntry.Verb,
			Noun:      fa.DSKYEntry.Noun,
			Program:   fa.DSKYEntry.Program,
			Registers: fa.DSKYEntry.Registers,
		}

	case manualqueue.KindPanelControl:
		if fa.PanelControl == nil {
			return nil, fmt.Errorf("panel_control action missing panelControl block")
		}

		action.Kind = manualqueue.KindPanelControl
		action.PanelControl = &manualqueue.PanelControlParams{
			Control: fa.PanelControl.Control,
			Value:   fa.PanelControl.Value,
		}

	default:
		return nil, fmt.Errorf("unrecognised manual action kind %q", fa.Kind)
	}

	return action, nil
}
