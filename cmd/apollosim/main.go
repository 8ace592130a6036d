// Command apollosim wires the simulation kernel CLI entrypoint: loads a
// mission fixture, constructs every subsystem the kernel drives, and runs
// the tick loop to completion or abort.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"apollosim/pkg/audio"
	"apollosim/pkg/autopilot"
	"apollosim/pkg/checklist"
	"apollosim/pkg/get"
	"apollosim/pkg/kernel"
	"apollosim/pkg/manualqueue"
	"apollosim/pkg/missionio"
	"apollosim/pkg/missionlog"
	"apollosim/pkg/orbit"
	"apollosim/pkg/panel"
	"apollosim/pkg/rcs"
	"apollosim/pkg/resource"
	"apollosim/pkg/scheduler"
	"apollosim/pkg/score"
)

const (
	defaultConfigPath = ""

	exitCodeSuccess      = 0
	exitCodeRuntimeError = 1
	exitCodeParseError   = 2
)

func main() {
	code := run(context.Background(), os.Args[1:], defaultRunDeps(), os.Stderr)
	if code != 0 {
		os.Exit(code)
	}
}

// runDeps isolates the seams a test needs to substitute, mirroring
// cmd/shaper's runDeps: a logger factory and a mission loader, so
// run()'s tests never touch a real filesystem mission directory unless
// they want to.
type runDeps struct {
	newLogger   func(level string) (*zap.Logger, error)
	loadMission func(dir string) (*missionio.Mission, error)
}

func defaultRunDeps() runDeps {
	return runDeps{
		newLogger:   missionlog.NewProductionLogger,
		loadMission: missionio.Load,
	}
}

func run(_ context.Context, args []string, deps runDeps, stderr io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)

		return exitCodeParseError
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "apollosim: %v\n", err)

		return exitCodeRuntimeError
	}

	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	if opts.missionDir != "" {
		cfg.MissionDir = opts.missionDir
	}

	if opts.untilGetSeconds > 0 {
		cfg.UntilGetSeconds = opts.untilGetSeconds
	}

	zl, err := deps.newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "apollosim: failed to configure logger: %v\n", err)

		return exitCodeRuntimeError
	}

	defer func() {
		_ = zl.Sync()
	}()

	log := missionlog.NewLogger(zl, missionlog.DefaultRingCapacity)

	mission, err := deps.loadMission(cfg.MissionDir)
	if err != nil {
		zl.Error("failed to load mission", zap.Error(err))

		return exitCodeRuntimeError
	}

	if mission.Warnings != nil {
		zl.Warn("mission loaded with warnings", zap.Error(mission.Warnings))
	}

	summary, err := runMission(mission, cfg, log)
	if err != nil {
		zl.Error("mission run failed", zap.Error(err))

		return exitCodeRuntimeError
	}

	printSummary(os.Stdout, summary)

	return exitCodeSuccess
}

// runMission builds every kernel subsystem from a loaded mission and the
// resolved runtimeConfig, wires kernel.Deps, and runs the tick loop.
func runMission(mission *missionio.Mission, cfg runtimeConfig, log missionlog.Sink) (kernel.Summary, error) {
	res := resource.New(log, mission.Budgets)

	checklistMgr := checklist.NewManager(mission.Checklists, log)

	rcsController := rcs.NewController(cfg.RCSThrusters, res)

	autopilotRunner := autopilot.NewRunner(res, rcsController, log)

	schedCfg := scheduler.Config{
		ConsecutiveFailuresToTrip: cfg.ConsecutiveFailuresToTrip,
		ManualChecklistsOnly:      cfg.ManualChecklistsOnly,
	}

	sched := scheduler.NewScheduler(mission.Events, checklistMgr, autopilotRunner, mission.Autopilots, res, log, schedCfg)

	workspace := panel.NewWorkspace(log)

	manualQueue := manualqueue.NewQueue(res, checklistMgr, workspace, log)

	if cfg.ManualActionScriptPath != "" {
		actions, err := missionio.LoadActionScript(cfg.ManualActionScriptPath)
		if err != nil {
			return kernel.Summary{}, err
		}

		for _, action := range actions {
			manualQueue.Enqueue(action)
		}
	}

	catalog := mission.Catalog
	if catalog == nil {
		catalog = &audio.Catalog{}
	}

	dispatcher := audio.NewDispatcher(*catalog, nil, log)

	scoreCfg := score.DefaultConfig()
	scoreCfg.DeltaVIdealMps, scoreCfg.DeltaVFailureMps = deltaVThresholds(mission.Budgets)

	tracker := score.NewTracker(scoreCfg, log)

	clock := get.NewClock(cfg.TickRate)

	deps := kernel.Deps{
		Clock:           clock,
		ManualQueue:     manualQueue,
		Scheduler:       sched,
		ChecklistMgr:    checklistMgr,
		AutopilotRunner: autopilotRunner,
		Resource:        res,
		Score:           tracker,
		Audio:           dispatcher,
		Log:             log,
	}

	if cfg.Orbit.Enabled {
		deps.Orbit = orbit.NewPropagator(
			orbit.Body{ID: cfg.Orbit.BodyID, Mu: cfg.Orbit.MuM3S2, Radius: cfg.Orbit.RadiusM, SoiRadius: cfg.Orbit.SoiM},
			orbit.StateVector{Position: cfg.Orbit.PositionM, Velocity: cfg.Orbit.VelocityM},
		)
	}

	k := kernel.New(deps, kernel.Config{SampleEverySeconds: cfg.SampleEverySeconds})

	lastLoggedGet := 0.0

	summary := k.Run(cfg.UntilGetSeconds, func(frame kernel.Frame) {
		if cfg.LogIntervalSeconds <= 0 || frame.GetSeconds-lastLoggedGet+get.Epsilon < cfg.LogIntervalSeconds {
			return
		}

		lastLoggedGet = frame.GetSeconds

		log.Log(missionlog.Entry{
			GetSeconds: frame.GetSeconds,
			Severity:   missionlog.SeverityInfo,
			Category:   missionlog.CategoryKernel,
			Source:     "apollosim",
			Message:    fmt.Sprintf("GET %s commander score %.1f", get.Format(frame.GetSeconds), frame.Rating.CommanderScore),
		})
	})

	return summary, nil
}

// deltaVThresholds sums every configured StageBudget.UsableDeltaVMps:
// DeltaVIdealMps is the full sum, DeltaVFailureMps is a conservative 20% of
// it, below which the Score System treats remaining margin as a failure.
func deltaVThresholds(budgets map[resource.Tank]*resource.StageBudget) (ideal, failure float64) {
	for _, b := range budgets {
		if b == nil {
			continue
		}

		ideal += b.UsableDeltaVMps
	}

	return ideal, ideal * 0.2
}

func printSummary(w io.Writer, s kernel.Summary) {
	fmt.Fprintf(w, "apollosim: run complete at GET %s (%d ticks)\n", get.Format(s.FinalGetSeconds), s.Ticks)

	if s.Aborted {
		fmt.Fprintf(w, "apollosim: ABORTED: %s\n", s.AbortReason)
	}

	fmt.Fprintf(w, "apollosim: events complete=%d failed=%d total=%d\n", s.EventCounts.Complete, s.EventCounts.Failed, s.EventCounts.Total)
	fmt.Fprintf(w, "apollosim: commander score %.1f (%s)\n", s.Rating.CommanderScore, s.Rating.Grade)
}

type options struct {
	configPath      string
	missionDir      string
	logLevel        string
	untilGetSeconds float64
}

func parseArgs(args []string) (options, error) {
	var (
		opts     options
		untilGet string
	)

	flagSet := flag.NewFlagSet("apollosim", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to the apollosim configuration file")
	flagSet.StringVar(&opts.missionDir, "mission", "", "Path to the mission fixture directory (overrides config)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "Structured log level (debug, info, warn, error)")
	flagSet.StringVar(&untilGet, "until", "", "Run until this GET (HH:MM:SS[.fff]), overrides config")

	if err := flagSet.Parse(args); err != nil {
		return options{}, fmt.Errorf("parse CLI arguments: %w", err)
	}

	opts.logLevel = strings.TrimSpace(opts.logLevel)
	opts.missionDir = strings.TrimSpace(opts.missionDir)

	untilGet = strings.TrimSpace(untilGet)
	if untilGet != "" {
		seconds, err := get.Parse(untilGet)
		if err != nil {
			return options{}, fmt.Errorf("%w: -until %q: %w", errInvalidUntil, untilGet, err)
		}

		opts.untilGetSeconds = seconds
	}

	return opts, nil
}

var errInvalidUntil = errors.New("invalid GET value")
