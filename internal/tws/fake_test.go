package tws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resync-ops/resync/internal/errors"
)

func planFixture() PlanSnapshot {
	return PlanSnapshot{
		Jobs: []Job{
			{Name: "JOB_EXTRACT", Workstation: "CPU1", Status: StateSucc},
			{Name: "JOB_PAYROLL", Workstation: "CPU1", Status: StateAbend, ReturnCode: 8},
			{Name: "JOB_REPORT", Workstation: "CPU2", Status: StateHold},
		},
		Dependencies: []Dependency{
			{From: "JOB_PAYROLL", To: "JOB_EXTRACT"},
			{From: "JOB_REPORT", To: "JOB_PAYROLL"},
		},
		ResourceUses: []ResourceUse{
			{JobName: "JOB_PAYROLL", Resource: "DB_POOL", Quantity: 2},
		},
		Workstations: []Workstation{
			{Name: "CPU1", Type: "FTA", Linked: true, JobLimit: 10, Running: 3},
		},
		TakenAt: time.Now(),
	}
}

func TestFake_JobStatus(t *testing.T) {
	f := NewFake()
	f.Snapshot = planFixture()

	job, err := f.JobStatus(context.Background(), "JOB_PAYROLL")
	require.NoError(t, err)
	assert.Equal(t, StateAbend, job.Status)
	assert.Equal(t, 8, job.ReturnCode)

	_, err = f.JobStatus(context.Background(), "NO_SUCH_JOB")
	assert.True(t, errors.IsNotFound(err))

	_, err = f.JobStatus(context.Background(), "")
	assert.True(t, errors.IsValidation(err))
}

func TestFake_PlanSnapshotCopies(t *testing.T) {
	f := NewFake()
	f.Snapshot = planFixture()

	snap, err := f.PlanSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Jobs, 3)

	// Mutating the copy must not touch the fake's state.
	snap.Jobs[0].Status = StateCancl
	job, err := f.JobStatus(context.Background(), "JOB_EXTRACT")
	require.NoError(t, err)
	assert.Equal(t, StateSucc, job.Status)
}

func TestFake_WritesMutateStateAndRecord(t *testing.T) {
	f := NewFake()
	f.Snapshot = planFixture()

	require.NoError(t, f.RerunJob(context.Background(), "JOB_PAYROLL"))
	require.NoError(t, f.ReleaseJob(context.Background(), "JOB_REPORT"))

	job, err := f.JobStatus(context.Background(), "JOB_PAYROLL")
	require.NoError(t, err)
	assert.Equal(t, StateReady, job.Status)

	assert.Equal(t, []string{"rerun:JOB_PAYROLL", "release:JOB_REPORT"}, f.WriteCalls)
}

func TestFake_DownFailsEverything(t *testing.T) {
	f := NewFake()
	f.Snapshot = planFixture()
	f.Down = true

	assert.False(t, f.Available(context.Background()))

	_, err := f.JobStatus(context.Background(), "JOB_PAYROLL")
	assert.Error(t, err)

	_, err = f.PlanSnapshot(context.Background())
	assert.Error(t, err)

	err = f.KillJob(context.Background(), "JOB_PAYROLL")
	assert.Error(t, err)
	assert.Empty(t, f.WriteCalls, "no writes recorded while down")
}

func TestJobState_Terminal(t *testing.T) {
	assert.True(t, StateSucc.Terminal())
	assert.True(t, StateAbend.Terminal())
	assert.True(t, StateCancl.Terminal())
	assert.False(t, StateExec.Terminal())
	assert.False(t, StateReady.Terminal())
	assert.False(t, StateHold.Terminal())
}
