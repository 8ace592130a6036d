package missionio

import (
	"fmt"

	"apollosim/pkg/audio"
	"apollosim/pkg/autopilot"
	"apollosim/pkg/checklist"
	"apollosim/pkg/rcs"
	"apollosim/pkg/resource"
	"apollosim/pkg/scheduler"
)

// The fixture* structs below are the YAML-facing shape of a mission
// directory. They stay separate from the domain types (scheduler.Definition
// and friends) the same way cmd/shaper's fileConfig stays separate from
// runtimeConfig: the file format is allowed to drift (optional fields,
// looser types) without touching the types the kernel actually runs on.

type fixtureMission struct {
	Events     []fixtureEvent                `yaml:"events"`
	Autopilots []fixtureAutopilot            `yaml:"autopilots"`
	Checklists []fixtureChecklist            `yaml:"checklists"`
	Audio      fixtureAudioCatalog           `yaml:"audio"`
	Budgets    map[string]fixtureStageBudget `yaml:"budgets"`
}

type fixtureEvent struct {
	ID              string         `yaml:"id"`
	Phase           string         `yaml:"phase"`
	GetOpenSeconds  float64        `yaml:"getOpenSeconds"`
	GetCloseSeconds float64        `yaml:"getCloseSeconds"`
	Prerequisites   []string       `yaml:"prerequisites"`
	AutopilotID     string         `yaml:"autopilotId"`
	ChecklistID     string         `yaml:"checklistId"`
	PadID           string         `yaml:"padId"`
	SuccessEffects  map[string]any `yaml:"successEffects"`
	FailureEffects  map[string]any `yaml:"failureEffects"`
	AudioCueID      string         `yaml:"audioCueId"`
	System          string         `yaml:"system"`
}

type fixtureAutopilot struct {
	ID          string             `yaml:"id"`
	Description string             `yaml:"description"`
	Sequence    []fixtureCommand   `yaml:"sequence"`
	Tolerances  *fixtureTolerances `yaml:"tolerances"`
	Propulsion  fixturePropulsion  `yaml:"propulsion"`
}

type fixtureCommand struct {
	Time     float64      `yaml:"time"`
	Kind     string       `yaml:"kind"`
	Duration float64      `yaml:"durationSeconds"`
	From     *float64     `yaml:"from"`
	To       float64      `yaml:"to"`
	Level    float64      `yaml:"level"`
	RCS      *fixtureRCS  `yaml:"rcs"`
	DSKY     *fixtureDSKY `yaml:"dsky"`
}

type fixtureRCS struct {
	CraftID         string   `yaml:"craftId"`
	ThrusterIDs     []string `yaml:"thrusterIds"`
	Axis            string   `yaml:"axis"`
	TorqueAxis      string   `yaml:"torqueAxis"`
	DurationSeconds float64  `yaml:"durationSeconds"`
	Count           int      `yaml:"count"`
	DutyCycle       float64  `yaml:"dutyCycle"`
	TankKey         string   `yaml:"tankKey"`
	MaxThrusters    int      `yaml:"maxThrusters"`
}

type fixtureDSKY struct {
	Verb      int       `yaml:"verb"`
	Noun      int       `yaml:"noun"`
	Program   int       `yaml:"program"`
	Registers []float64 `yaml:"registers"`
}

type fixtureRange struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

type fixtureTolerances struct {
	BurnDurationSeconds *fixtureRange `yaml:"burnDurationSeconds"`
	PropellantKg        *fixtureRange `yaml:"propellantKg"`
	DeltaVMps           *fixtureRange `yaml:"deltaVMps"`
}

type fixturePropulsion struct {
	TankKey            string         `yaml:"tankKey"`
	MassFlowKgPerSec   float64        `yaml:"massFlowKgPerSec"`
	Ullage             *fixtureUllage `yaml:"ullage"`
	DeltaVPerSecondMps float64        `yaml:"deltaVPerSecondMps"`
}

type fixtureUllage struct {
	TankKey          string  `yaml:"tankKey"`
	MassFlowKgPerSec float64 `yaml:"massFlowKgPerSec"`
}

type fixtureChecklist struct {
	ID                string        `yaml:"id"`
	Title             string        `yaml:"title"`
	CrewRole          string        `yaml:"crewRole"`
	NominalGetSeconds float64       `yaml:"nominalGetSeconds"`
	Steps             []fixtureStep `yaml:"steps"`
}

type fixtureStep struct {
	StepNumber       int    `yaml:"stepNumber"`
	Action           string `yaml:"action"`
	ExpectedResponse string `yaml:"expectedResponse"`
	Reference        string `yaml:"reference"`
	AudioCueComplete string `yaml:"audioCueComplete"`
}

type fixtureAudioCatalog struct {
	Buses      []fixtureBus      `yaml:"buses"`
	Categories []fixtureCategory `yaml:"categories"`
	Cues       []fixtureCue      `yaml:"cues"`
}

type fixtureBus struct {
	ID            string           `yaml:"id"`
	MaxConcurrent int              `yaml:"maxConcurrent"`
	Ducking       []fixtureDucking `yaml:"ducking"`
}

type fixtureDucking struct {
	TargetBusID string  `yaml:"targetBusId"`
	GainLinear  float64 `yaml:"gainLinear"`
}

type fixtureCategory struct {
	ID              string  `yaml:"id"`
	BusID           string  `yaml:"busId"`
	DefaultPriority float64 `yaml:"defaultPriority"`
	CooldownSeconds float64 `yaml:"cooldownSeconds"`
}

type fixtureCue struct {
	ID              string   `yaml:"id"`
	BusID           string   `yaml:"busId"`
	CategoryID      string   `yaml:"categoryId"`
	LengthSeconds   float64  `yaml:"lengthSeconds"`
	Loop            bool     `yaml:"loop"`
	CooldownSeconds float64  `yaml:"cooldownSeconds"`
	Priority        *float64 `yaml:"priority"`
}

type fixtureStageBudget struct {
	InitialKg       float64 `yaml:"initialKg"`
	ReserveKg       float64 `yaml:"reserveKg"`
	UsableDeltaVMps float64 `yaml:"usableDeltaVMps"`
	RemainingKg     float64 `yaml:"remainingKg"`
	AdjustmentMps   float64 `yaml:"adjustmentMps"`
}

// decodeEffectMap converts a YAML-decoded map[string]any (yaml.v3 normalises
// mappings to map[string]any, not map[any]any) into a resource.EffectMap,
// per spec.md §9's tagged-variant design note.
func decodeEffectMap(raw map[string]any) (resource.EffectMap, error) {
	if raw == nil {
		return nil, nil
	}

	out := make(resource.EffectMap, len(raw))

	for key, value := range raw {
		v, err := decodeEffectValue(value)
		if err != nil {
			return nil, fmt.Errorf("effect key %q: %w", key, err)
		}

		out[key] = v
	}

	return out, nil
}

func decodeEffectValue(value any) (resource.EffectValue, error) {
	switch v := value.(type) {
	case int:
		return resource.Num(float64(v)), nil
	case float64:
		return resource.Num(v), nil
	case string:
		return resource.Str(v), nil
	case bool:
		return resource.Boolean(v), nil
	case map[string]any:
		sub, err := decodeEffectMap(v)
		if err != nil {
			return resource.EffectValue{}, err
		}

		return resource.Sub(sub), nil
	default:
		return resource.EffectValue{}, fmt.Errorf("unsupported effect value type %T", value)
	}
}

func decodeCommand(fc fixtureCommand) (autopilot.Command, error) {
	cmd := autopilot.Command{Time: fc.Time}

	switch autopilot.CommandKind(fc.Kind) {
	case autopilot.CommandAttitudeHold:
		cmd.Kind = autopilot.CommandAttitudeHold
	case autopilot.CommandUllageFire:
		cmd.Kind = autopilot.CommandUllageFire
		cmd.UllageFire = &autopilot.UllageFireParams{DurationSeconds: fc.Duration}
	case autopilot.CommandThrottle:
		cmd.Kind = autopilot.CommandThrottle
		cmd.Throttle = &autopilot.ThrottleParams{Level: fc.Level}
	case autopilot.CommandThrottleRamp:
		cmd.Kind = autopilot.CommandThrottleRamp
		cmd.ThrottleRamp = &autopilot.ThrottleRampParams{From: fc.From, To: fc.To, DurationSeconds: fc.Duration}
	case autopilot.CommandRCSPulse:
		cmd.Kind = autopilot.CommandRCSPulse
		if fc.RCS == nil {
			return autopilot.Command{}, fmt.Errorf("rcs_pulse command missing rcs block")
		}
		cmd.RCSPulse = &rcs.PulseRequest{
			CraftID:         fc.RCS.CraftID,
			ThrusterIDs:     fc.RCS.ThrusterIDs,
			Axis:            fc.RCS.Axis,
			TorqueAxis:      fc.RCS.TorqueAxis,
			DurationSeconds: fc.RCS.DurationSeconds,
			Count:           fc.RCS.Count,
			DutyCycle:       fc.RCS.DutyCycle,
			TankKey:         resource.Tank(fc.RCS.TankKey),
			MaxThrusters:    fc.RCS.MaxThrusters,
		}
	case autopilot.CommandDSKYEntry:
		cmd.Kind = autopilot.CommandDSKYEntry
		if fc.DSKY == nil {
			return autopilot.Command{}, fmt.Errorf("dsky_entry command missing dsky block")
		}
		cmd.DSKYEntry = &autopilot.DSKYEntryParams{
			Verb:      fc.DSKY.Verb,
			Noun:      fc.DSKY.Noun,
			Program:   fc.DSKY.Program,
			Registers: fc.DSKY.Registers,
		}
	default:
		return autopilot.Command{}, fmt.Errorf("unrecognised autopilot command kind %q", fc.Kind)
	}

	return cmd, nil
}

func decodeRange(r *fixtureRange) *autopilot.ToleranceRange {
	if r == nil {
		return nil
	}

	return &autopilot.ToleranceRange{Min: r.Min, Max: r.Max}
}

func decodeAutopilot(fa fixtureAutopilot) (*autopilot.Definition, error) {
	sequence := make([]autopilot.Command, 0, len(fa.Sequence))
	for _, fc := range fa.Sequence {
		cmd, err := decodeCommand(fc)
		if err != nil {
			return nil, fmt.Errorf("autopilot %q: %w", fa.ID, err)
		}

		sequence = append(sequence, cmd)
	}

	var tolerances *autopilot.Tolerances
	if fa.Tolerances != nil {
		tolerances = &autopilot.Tolerances{
			BurnDurationSeconds: decodeRange(fa.Tolerances.BurnDurationSeconds),
			PropellantKg:        decodeRange(fa.Tolerances.PropellantKg),
			DeltaVMps:           decodeRange(fa.Tolerances.DeltaVMps),
		}
	}

	propulsion := autopilot.Propulsion{
		TankKey:            resource.Tank(fa.Propulsion.TankKey),
		MassFlowKgPerSec:   fa.Propulsion.MassFlowKgPerSec,
		DeltaVPerSecondMps: fa.Propulsion.DeltaVPerSecondMps,
	}
	if fa.Propulsion.Ullage != nil {
		propulsion.Ullage = &autopilot.UllageConfig{
			TankKey:          resource.Tank(fa.Propulsion.Ullage.TankKey),
			MassFlowKgPerSec: fa.Propulsion.Ullage.MassFlowKgPerSec,
		}
	}

	return autopilot.NewDefinition(fa.ID, fa.Description, sequence, tolerances, propulsion), nil
}

func decodeChecklist(fc fixtureChecklist) *checklist.Definition {
	steps := make([]checklist.Step, 0, len(fc.Steps))
	for _, fs := range fc.Steps {
		steps = append(steps, checklist.Step{
			StepNumber:       fs.StepNumber,
			Action:           fs.Action,
			ExpectedResponse: fs.ExpectedResponse,
			Reference:        fs.Reference,
			AudioCueComplete: fs.AudioCueComplete,
		})
	}

	return &checklist.Definition{
		ID:                fc.ID,
		Title:             fc.Title,
		CrewRole:          fc.CrewRole,
		NominalGetSeconds: fc.NominalGetSeconds,
		Steps:             steps,
	}
}

func decodeCatalog(fc fixtureAudioCatalog) *audio.Catalog {
	catalog := &audio.Catalog{
		Buses:      make(map[string]*audio.Bus, len(fc.Buses)),
		Categories: make(map[string]*audio.Category, len(fc.Categories)),
		Cues:       make(map[string]*audio.Cue, len(fc.Cues)),
	}

	for _, fb := range fc.Buses {
		ducking := make([]audio.DuckingRule, 0, len(fb.Ducking))
		for _, fd := range fb.Ducking {
			ducking = append(ducking, audio.DuckingRule{TargetBusID: fd.TargetBusID, GainLinear: fd.GainLinear})
		}

		catalog.Buses[fb.ID] = &audio.Bus{ID: fb.ID, MaxConcurrent: fb.MaxConcurrent, Ducking: ducking}
	}

	for _, cat := range fc.Categories {
		catalog.Categories[cat.ID] = &audio.Category{
			ID:              cat.ID,
			BusID:           cat.BusID,
			DefaultPriority: cat.DefaultPriority,
			CooldownSeconds: cat.CooldownSeconds,
		}
	}

	for _, cue := range fc.Cues {
		catalog.Cues[cue.ID] = &audio.Cue{
			ID:              cue.ID,
			BusID:           cue.BusID,
			CategoryID:      cue.CategoryID,
			LengthSeconds:   cue.LengthSeconds,
			Loop:            cue.Loop,
			CooldownSeconds: cue.CooldownSeconds,
			Priority:        cue.Priority,
		}
	}

	return catalog
}

func decodeBudgets(raw map[string]fixtureStageBudget) (map[resource.Tank]*resource.StageBudget, error) {
	out := make(map[resource.Tank]*resource.StageBudget, len(raw))

	for key, fb := range raw {
		tank := resource.Tank(key)

		out[tank] = &resource.StageBudget{
			InitialKg:       fb.InitialKg,
			ReserveKg:       fb.ReserveKg,
			UsableDeltaVMps: fb.UsableDeltaVMps,
			RemainingKg:     fb.RemainingKg,
			AdjustmentMps:   fb.AdjustmentMps,
		}
	}

	return out, nil
}

func decodeEvent(fe fixtureEvent) (*scheduler.Definition, error) {
	success, err := decodeEffectMap(fe.SuccessEffects)
	if err != nil {
		return nil, fmt.Errorf("event %q successEffects: %w", fe.ID, err)
	}

	failure, err := decodeEffectMap(fe.FailureEffects)
	if err != nil {
		return nil, fmt.Errorf("event %q failureEffects: %w", fe.ID, err)
	}

	return &scheduler.Definition{
		ID:              fe.ID,
		Phase:           fe.Phase,
		GetOpenSeconds:  fe.GetOpenSeconds,
		GetCloseSeconds: fe.GetCloseSeconds,
		Prerequisites:   fe.Prerequisites,
		AutopilotID:     fe.AutopilotID,
		ChecklistID:     fe.ChecklistID,
		PadID:           fe.PadID,
		SuccessEffects:  success,
		FailureEffects:  failure,
		AudioCueID:      fe.AudioCueID,
		System:          fe.System,
	}, nil
}
