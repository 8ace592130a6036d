package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"apollosim/pkg/orbit"
	"apollosim/pkg/rcs"
	"apollosim/pkg/resource"
)

const (
	envMissionDir        = "APOLLOSIM_MISSION_DIR"
	envUntilGet          = "APOLLOSIM_UNTIL_GET_SECONDS"
	envTickRate          = "APOLLOSIM_TICK_RATE"
	envLogIntervalGet    = "APOLLOSIM_LOG_INTERVAL_SECONDS"
	envSampleEvery       = "APOLLOSIM_SAMPLE_EVERY_SECONDS"
	envManualChecklists  = "APOLLOSIM_MANUAL_CHECKLISTS_ONLY"
	envManualScriptPath  = "APOLLOSIM_MANUAL_SCRIPT"
	envConsecutiveFaults = "APOLLOSIM_FAULTS_TO_TRIP"
	envLogLevel          = "APOLLOSIM_LOG_LEVEL"
)

// runtimeConfig is cmd/apollosim's KernelConfig: every tunable that isn't
// owned by the mission fixture itself (tick rate, HUD sampling cadence,
// checklist automation, the manual action script to preload), mirroring the
// way cmd/shaper's runtimeConfig separates deployment tuning from the
// adapt.Controller's own defaults.
type runtimeConfig struct {
	MissionDir string
	LogLevel   string

	UntilGetSeconds           float64
	TickRate                  float64
	LogIntervalSeconds        float64
	SampleEverySeconds        float64
	ManualChecklistsOnly      bool
	ManualActionScriptPath    string
	ConsecutiveFailuresToTrip uint32

	Orbit        orbitConfig
	RCSThrusters []rcs.Thruster
}

// orbitConfig seeds the Orbit Propagator (C7). A mission fixture carries no
// orbital-mechanics data of its own (spec.md's mission format stops at
// events/autopilots/checklists/audio/budgets), so cmd/apollosim owns it the
// same way it owns every other kernel-level tunable.
type orbitConfig struct {
	Enabled bool

	BodyID    string
	MuM3S2    float64
	RadiusM   float64
	SoiM      float64
	PositionM orbit.Vec3
	VelocityM orbit.Vec3
}

type fileConfig struct {
	MissionDir                *string  `yaml:"missionDir"`
	LogLevel                  *string  `yaml:"logLevel"`
	UntilGetSeconds           *float64 `yaml:"untilGetSeconds"`
	TickRate                  *float64 `yaml:"tickRate"`
	LogIntervalSeconds        *float64 `yaml:"logIntervalSeconds"`
	SampleEverySeconds        *float64 `yaml:"sampleEverySeconds"`
	ManualChecklistsOnly      *bool    `yaml:"manualChecklistsOnly"`
	ManualActionScriptPath    *string  `yaml:"manualActionScriptPath"`
	ConsecutiveFailuresToTrip *uint32  `yaml:"consecutiveFailuresToTrip"`

	Orbit        *orbitFileConfig         `yaml:"orbit"`
	RCSThrusters []rcsThrusterFileConfig  `yaml:"rcsThrusters"`
}

type orbitFileConfig struct {
	Enabled   *bool     `yaml:"enabled"`
	BodyID    *string   `yaml:"bodyId"`
	MuM3S2    *float64  `yaml:"muM3S2"`
	RadiusM   *float64  `yaml:"radiusM"`
	SoiM      *float64  `yaml:"soiM"`
	PositionM []float64 `yaml:"positionM"`
	VelocityM []float64 `yaml:"velocityM"`
}

type rcsThrusterFileConfig struct {
	ID                string   `yaml:"id"`
	CraftID           string   `yaml:"craftId"`
	TranslationAxes   []string `yaml:"translationAxes"`
	TorqueAxes        []string `yaml:"torqueAxes"`
	ThrustN           float64  `yaml:"thrustN"`
	IspSec            float64  `yaml:"ispSec"`
	TankKey           string   `yaml:"tankKey"`
	MinImpulseSeconds float64  `yaml:"minImpulseSeconds"`
}

// Earth mean orbital constants, used as the default Orbit Propagator seed: a
// 185km circular parking orbit, the Apollo program's standard LEO insertion
// target.
const (
	defaultEarthMuM3S2   = 3.986004418e14
	defaultEarthRadiusM  = 6371000.0
	defaultEarthSoiM     = 9.24e8
	defaultParkingAltM   = 185000.0
)

func defaultRuntimeConfig() runtimeConfig {
	parkingRadius := defaultEarthRadiusM + defaultParkingAltM
	circularSpeed := math.Sqrt(defaultEarthMuM3S2 / parkingRadius)

	return runtimeConfig{
		MissionDir:                "mission",
		LogLevel:                  "info",
		UntilGetSeconds:           3600,
		TickRate:                  20,
		LogIntervalSeconds:        60,
		SampleEverySeconds:        10,
		ManualChecklistsOnly:      false,
		ManualActionScriptPath:    "",
		ConsecutiveFailuresToTrip: 3,
		Orbit: orbitConfig{
			Enabled:   true,
			BodyID:    "earth",
			MuM3S2:    defaultEarthMuM3S2,
			RadiusM:   defaultEarthRadiusM,
			SoiM:      defaultEarthSoiM,
			PositionM: orbit.Vec3{parkingRadius, 0, 0},
			VelocityM: orbit.Vec3{0, circularSpeed, 0},
		},
		RCSThrusters: defaultRCSThrusters(),
	}
}

// defaultRCSThrusters models one simplified CSM RCS quad per translation
// axis, enough for the RCS Controller (C6) to resolve axis- and id-based
// pulse requests without a mission fixture needing to carry a thruster
// catalog of its own.
func defaultRCSThrusters() []rcs.Thruster {
	return []rcs.Thruster{
		{
			ID: "csm-quad-a-plus-x", CraftID: "csm",
			TranslationAxes: []string{"+x"}, TorqueAxes: []string{"pitch"},
			ThrustN: 440, IspSec: 290, TankKey: resource.TankCSMRcs, MinImpulseSeconds: 0.012,
		},
		{
			ID: "csm-quad-b-minus-x", CraftID: "csm",
			TranslationAxes: []string{"-x"}, TorqueAxes: []string{"pitch"},
			ThrustN: 440, IspSec: 290, TankKey: resource.TankCSMRcs, MinImpulseSeconds: 0.012,
		},
		{
			ID: "csm-quad-c-plus-y", CraftID: "csm",
			TranslationAxes: []string{"+y"}, TorqueAxes: []string{"yaw"},
			ThrustN: 440, IspSec: 290, TankKey: resource.TankCSMRcs, MinImpulseSeconds: 0.012,
		},
		{
			ID: "csm-quad-d-minus-y", CraftID: "csm",
			TranslationAxes: []string{"-y"}, TorqueAxes: []string{"yaw"},
			ThrustN: 440, IspSec: 290, TankKey: resource.TankCSMRcs, MinImpulseSeconds: 0.012,
		},
		{
			ID: "csm-quad-e-plus-z", CraftID: "csm",
			TranslationAxes: []string{"+z"}, TorqueAxes: []string{"roll"},
			ThrustN: 440, IspSec: 290, TankKey: resource.TankCSMRcs, MinImpulseSeconds: 0.012,
		},
		{
			ID: "csm-quad-f-minus-z", CraftID: "csm",
			TranslationAxes: []string{"-z"}, TorqueAxes: []string{"roll"},
			ThrustN: 440, IspSec: 290, TankKey: resource.TankCSMRcs, MinImpulseSeconds: 0.012,
		},
		{
			ID: "lm-rcs-cluster-1", CraftID: "lm",
			TranslationAxes: []string{"+x", "-x"}, TorqueAxes: []string{"pitch", "yaw", "roll"},
			ThrustN: 445, IspSec: 290, TankKey: resource.TankLMRcs, MinImpulseSeconds: 0.012,
		},
	}
}

func loadConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()

	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		applyEnvOverrides(&cfg)

		return cfg, nil
	}

	data, err := os.ReadFile(trimmed)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return runtimeConfig{}, fmt.Errorf("read config file %q: %w", trimmed, err)
		}
	} else {
		var fc fileConfig

		if err := yaml.Unmarshal(data, &fc); err != nil {
			return runtimeConfig{}, fmt.Errorf("decode config file %q: %w", trimmed, err)
		}

		mergeRuntimeConfig(&cfg, fc)
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func mergeRuntimeConfig(dst *runtimeConfig, src fileConfig) {
	assignString(&dst.MissionDir, src.MissionDir)
	assignString(&dst.LogLevel, src.LogLevel)
	assignFloat(&dst.UntilGetSeconds, src.UntilGetSeconds)
	assignFloat(&dst.TickRate, src.TickRate)
	assignFloat(&dst.LogIntervalSeconds, src.LogIntervalSeconds)
	assignFloat(&dst.SampleEverySeconds, src.SampleEverySeconds)
	assignString(&dst.ManualActionScriptPath, src.ManualActionScriptPath)

	if src.ManualChecklistsOnly != nil {
		dst.ManualChecklistsOnly = *src.ManualChecklistsOnly
	}

	if src.ConsecutiveFailuresToTrip != nil {
		dst.ConsecutiveFailuresToTrip = *src.ConsecutiveFailuresToTrip
	}

	if src.Orbit != nil {
		mergeOrbitConfig(&dst.Orbit, *src.Orbit)
	}

	if len(src.RCSThrusters) > 0 {
		dst.RCSThrusters = make([]rcs.Thruster, 0, len(src.RCSThrusters))
		for _, t := range src.RCSThrusters {
			dst.RCSThrusters = append(dst.RCSThrusters, rcs.Thruster{
				ID:                t.ID,
				CraftID:           t.CraftID,
				TranslationAxes:   t.TranslationAxes,
				TorqueAxes:        t.TorqueAxes,
				ThrustN:           t.ThrustN,
				IspSec:            t.IspSec,
				TankKey:           resource.Tank(t.TankKey),
				MinImpulseSeconds: t.MinImpulseSeconds,
			})
		}
	}
}

func mergeOrbitConfig(dst *orbitConfig, src orbitFileConfig) {
	if src.Enabled != nil {
		dst.Enabled = *src.Enabled
	}

	assignString(&dst.BodyID, src.BodyID)
	assignFloat(&dst.MuM3S2, src.MuM3S2)
	assignFloat(&dst.RadiusM, src.RadiusM)
	assignFloat(&dst.SoiM, src.SoiM)

	if len(src.PositionM) == 3 {
		dst.PositionM = orbit.Vec3{src.PositionM[0], src.PositionM[1], src.PositionM[2]}
	}

	if len(src.VelocityM) == 3 {
		dst.VelocityM = orbit.Vec3{src.VelocityM[0], src.VelocityM[1], src.VelocityM[2]}
	}
}

func applyEnvOverrides(cfg *runtimeConfig) {
	cfg.MissionDir = envString(envMissionDir, cfg.MissionDir)
	cfg.LogLevel = envString(envLogLevel, cfg.LogLevel)
	cfg.UntilGetSeconds = envFloat(envUntilGet, cfg.UntilGetSeconds)
	cfg.TickRate = envFloat(envTickRate, cfg.TickRate)
	cfg.LogIntervalSeconds = envFloat(envLogIntervalGet, cfg.LogIntervalSeconds)
	cfg.SampleEverySeconds = envFloat(envSampleEvery, cfg.SampleEverySeconds)
	cfg.ManualActionScriptPath = envString(envManualScriptPath, cfg.ManualActionScriptPath)
	cfg.ManualChecklistsOnly = envBool(envManualChecklists, cfg.ManualChecklistsOnly)
	cfg.ConsecutiveFailuresToTrip = envUint32(envConsecutiveFaults, cfg.ConsecutiveFailuresToTrip)

	if cfg.TickRate <= 0 {
		cfg.TickRate = 20
	}

	if cfg.UntilGetSeconds <= 0 {
		cfg.UntilGetSeconds = 3600
	}
}

var lookupEnv = os.LookupEnv //nolint:gochecknoglobals // overridden in tests

func assignFloat(target *float64, value *float64) {
	if value != nil {
		*target = *value
	}
}

func assignString(target *string, value *string) {
	if value != nil {
		*target = strings.TrimSpace(*value)
	}
}

func envFloat(key string, fallback float64) float64 {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	trimmed := strings.TrimSpace(value)

	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}

	return parsed
}

func envUint32(key string, fallback uint32) uint32 {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return fallback
	}

	return uint32(parsed)
}

func envBool(key string, fallback bool) bool {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}

	return parsed
}

func envString(key, fallback string) string {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	return trimmed
}
