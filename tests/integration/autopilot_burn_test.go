package integration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apollosim/pkg/autopilot"
	"apollosim/pkg/checklist"
	"apollosim/pkg/get"
	"apollosim/pkg/kernel"
	"apollosim/pkg/manualqueue"
	"apollosim/pkg/resource"
	"apollosim/pkg/scheduler"
	"apollosim/pkg/score"
)

// TestSingleAutopilotBurnConsumesPropellant covers spec.md §8 scenario 3: a
// throttle-up/throttle-down script against a 10kg/s propulsion model
// consumes exactly the burn duration's worth of propellant and completes
// its owning event.
func TestSingleAutopilotBurnConsumesPropellant(t *testing.T) {
	t.Parallel()

	res := resource.New(nil, map[resource.Tank]*resource.StageBudget{
		resource.TankCSMSps: {InitialKg: 100, RemainingKg: 100, UsableDeltaVMps: 3000},
	})
	checklistMgr := checklist.NewManager(nil, nil)
	autopilotRunner := autopilot.NewRunner(res, nil, nil)

	ap1 := autopilot.NewDefinition("AP1", "test burn", []autopilot.Command{
		{Time: 0, Kind: autopilot.CommandThrottle, Throttle: &autopilot.ThrottleParams{Level: 1}},
		{Time: 5, Kind: autopilot.CommandThrottle, Throttle: &autopilot.ThrottleParams{Level: 0}},
	}, nil, autopilot.Propulsion{TankKey: resource.TankCSMSps, MassFlowKgPerSec: 10})

	autopilotDefs := map[string]*autopilot.Definition{"AP1": ap1}

	defs := []*scheduler.Definition{
		{ID: "E2", GetOpenSeconds: 0, GetCloseSeconds: 60, AutopilotID: "AP1"},
	}

	sched := scheduler.NewScheduler(defs, checklistMgr, autopilotRunner, autopilotDefs, res, nil, scheduler.Config{})
	manualQueue := manualqueue.NewQueue(res, checklistMgr, nil, nil)
	tracker := score.NewTracker(score.DefaultConfig(), nil)

	deps := kernel.Deps{
		Clock:           get.NewClock(20),
		ManualQueue:     manualQueue,
		Scheduler:       sched,
		ChecklistMgr:    checklistMgr,
		AutopilotRunner: autopilotRunner,
		Resource:        res,
		Score:           tracker,
	}

	k := kernel.New(deps, kernel.Config{})
	k.Run(10, nil)

	ev, ok := sched.Event("E2")
	require.True(t, ok)
	assert.Equal(t, scheduler.StatusComplete, ev.Status)

	consumed := 100 - res.Snapshot().Propellant.CSMSpsKg
	assert.InDelta(t, 50.0, consumed, 1.0)
}
