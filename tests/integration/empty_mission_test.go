// Package integration_test exercises the kernel end to end, the way a
// mission fixture run through cmd/apollosim would, without going through
// the CLI or a YAML file on disk.
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

// newKernel wires the minimal subsystem set every scenario needs, mirroring
// cmd/apollosim's runMission construction order.
func newKernel(defs []*scheduler.Definition, budgets map[resource.Tank]*resource.StageBudget, schedCfg scheduler.Config) (*kernel.Kernel, *resource.State, *manualqueue.Queue, *scheduler.Scheduler) {
	res := resource.New(nil, budgets)
	checklistMgr := checklist.NewManager(nil, nil)
	autopilotRunner := autopilot.NewRunner(res, nil, nil)
	sched := scheduler.NewScheduler(defs, checklistMgr, autopilotRunner, nil, res, nil, schedCfg)
	manualQueue := manualqueue.NewQueue(res, checklistMgr, nil, nil)
	tracker := score.NewTracker(score.DefaultConfig(), nil)
	clock := get.NewClock(20)

	deps := kernel.Deps{
		Clock:           clock,
		ManualQueue:     manualQueue,
		Scheduler:       sched,
		ChecklistMgr:    checklistMgr,
		AutopilotRunner: autopilotRunner,
		Resource:        res,
		Score:           tracker,
	}

	return kernel.New(deps, kernel.Config{}), res, manualQueue, sched
}

// TestEmptyMissionReachesPerfectScore covers spec.md §8 scenario 1: a
// mission with no events or autopilots, run for 10 ticks at 20Hz, lands on
// a perfect commander score with every count at zero.
func TestEmptyMissionReachesPerfectScore(t *testing.T) {
	t.Parallel()

	k, _, _, _ := newKernel(nil, nil, scheduler.Config{})

	summary := k.Run(0.5, nil)

	assert.Equal(t, uint64(10), summary.Ticks)
	assert.InDelta(t, 0.5, summary.FinalGetSeconds, 1e-6)
	assert.False(t, summary.Aborted)
	assert.Equal(t, 0, summary.EventCounts.Total)
	assert.Equal(t, 0, summary.EventCounts.Complete)
	assert.Equal(t, 0, summary.EventCounts.Failed)
	require.InDelta(t, 100.0, summary.Rating.CommanderScore, 1e-6)
	assert.Equal(t, score.GradeA, summary.Rating.Grade)
}
