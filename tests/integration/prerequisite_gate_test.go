package integration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apollosim/pkg/scheduler"
)

// TestPrerequisiteGateBlocksDependentEventOnFailure covers spec.md §8
// scenario 4: an event with no checklist or autopilot fails once its
// window closes without ever reaching complete, and a dependent event
// gated on it never arms, failing its own window in turn.
func TestPrerequisiteGateBlocksDependentEventOnFailure(t *testing.T) {
	t.Parallel()

	defs := []*scheduler.Definition{
		{ID: "E3", GetOpenSeconds: 0, GetCloseSeconds: 5},
		{ID: "E4", GetOpenSeconds: 0, GetCloseSeconds: 5, Prerequisites: []string{"E3"}},
	}

	k, _, _, sched := newKernel(defs, nil, scheduler.Config{})
	k.Run(10, nil)

	e3, ok := sched.Event("E3")
	require.True(t, ok)
	assert.Equal(t, scheduler.StatusFailed, e3.Status)

	e4, ok := sched.Event("E4")
	require.True(t, ok)
	assert.Equal(t, scheduler.StatusFailed, e4.Status)
	assert.Equal(t, 0.0, e4.ActivationTimeSeconds, "E4 must never arm/activate while its prerequisite is incomplete")
}
