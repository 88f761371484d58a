package agent

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resync-ops/resync/internal/audit"
	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/graph"
	"github.com/resync-ops/resync/internal/llm"
	"github.com/resync-ops/resync/internal/tws"
)

func newTestQueue(t *testing.T) *audit.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return audit.NewQueue(client)
}

func newTestTWS() *tws.Fake {
	f := tws.NewFake()
	f.Snapshot = tws.PlanSnapshot{
		Jobs: []tws.Job{
			{Name: "AWSBH001", Workstation: "CPU1", Status: tws.StateAbend, ReturnCode: 8, PlannedAt: time.Now()},
			{Name: "AWSBH002", Workstation: "CPU1", Status: tws.StateWait, PlannedAt: time.Now()},
		},
		Dependencies: []tws.Dependency{{From: "AWSBH002", To: "AWSBH001"}},
		Workstations: []tws.Workstation{
			{Name: "CPU1", Type: "FTA", Linked: true, JobLimit: 10, Running: 2},
		},
		TakenAt: time.Now(),
	}
	return f
}

func newTestExecutor(t *testing.T, fake *llm.Fake, twsFake *tws.Fake, maxSteps int) (*Executor, *audit.Queue) {
	t.Helper()
	queue := newTestQueue(t)
	registry := DefaultRegistry(twsFake, graph.New(twsFake, time.Minute))
	return NewExecutor(fake, registry, queue, maxSteps), queue
}

func TestLoopToolThenAnswer(t *testing.T) {
	t.Parallel()

	fake := llm.NewFake(
		`{"action": "tool", "tool": "status_check", "args": {"job": "AWSBH001"}, "confidence": 0.9}`,
		`{"action": "final", "answer": "AWSBH001 abended with rc=8 on CPU1", "confidence": 0.8}`,
	)
	e, _ := newTestExecutor(t, fake, newTestTWS(), 8)

	res, err := e.Run(context.Background(), "what happened to AWSBH001", "", "op1", "s1")
	require.NoError(t, err)

	assert.Equal(t, "AWSBH001 abended with rc=8 on CPU1", res.Answer)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	assert.Equal(t, []string{"status_check"}, res.ToolsUsed)
	require.Len(t, res.Steps, 1)
	assert.Contains(t, res.Steps[0].Observation, "ABEND")
	assert.Empty(t, res.ApprovalIDs)
}

func TestLoopQuarantinesLowConfidenceWrite(t *testing.T) {
	t.Parallel()

	fake := llm.NewFake(
		`{"action": "tool", "tool": "rerun_job", "args": {"job": "AWSBH001"}, "confidence": 0.3, "reason": "probably transient"}`,
		`{"action": "final", "answer": "The rerun awaits approval.", "confidence": 0.9}`,
	)
	twsFake := newTestTWS()
	e, queue := newTestExecutor(t, fake, twsFake, 8)

	res, err := e.Run(context.Background(), "rerun AWSBH001", "", "op1", "s1")
	require.NoError(t, err)

	// The write did not reach TWS.
	assert.Empty(t, twsFake.WriteCalls)

	require.Len(t, res.ApprovalIDs, 1)
	require.Len(t, res.Steps, 1)
	assert.True(t, res.Steps[0].Quarantined)
	assert.Contains(t, res.Steps[0].Observation, "queued for human approval")

	pending, err := queue.GetPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "rerun_job", pending[0].Action)
	assert.Equal(t, "AWSBH001", pending[0].Target)
	assert.Equal(t, "op1", pending[0].RequestedBy)
	assert.InDelta(t, 0.3, pending[0].Confidence, 1e-9)
	assert.Equal(t, "probably transient", pending[0].Reason)
}

func TestLoopQueuesConfidentWrite(t *testing.T) {
	t.Parallel()

	// High confidence buys a write nothing; it still waits for a human.
	fake := llm.NewFake(
		`{"action": "tool", "tool": "rerun_job", "args": {"job": "AWSBH001"}, "confidence": 0.9}`,
		`{"action": "final", "answer": "The rerun awaits approval.", "confidence": 0.9}`,
	)
	twsFake := newTestTWS()
	e, queue := newTestExecutor(t, fake, twsFake, 8)

	res, err := e.Run(context.Background(), "rerun AWSBH001", "", "op1", "s1")
	require.NoError(t, err)

	assert.Empty(t, twsFake.WriteCalls)
	require.Len(t, res.ApprovalIDs, 1)
	require.Len(t, res.Steps, 1)
	assert.True(t, res.Steps[0].Quarantined)

	n, err := queue.QueueLength(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLoopBounded(t *testing.T) {
	t.Parallel()

	toolDecision := `{"action": "tool", "tool": "status_check", "args": {"job": "AWSBH001"}, "confidence": 0.9}`

	t.Run("forced final after budget", func(t *testing.T) {
		t.Parallel()
		fake := llm.NewFake(toolDecision, toolDecision, toolDecision,
			`{"action": "final", "answer": "Checked repeatedly; still ABEND.", "confidence": 0.6}`)
		e, _ := newTestExecutor(t, fake, newTestTWS(), 3)

		res, err := e.Run(context.Background(), "keep checking AWSBH001", "", "op1", "s1")
		require.NoError(t, err)
		assert.Len(t, res.Steps, 3)
		assert.Equal(t, 4, fake.CallCount())
		assert.Equal(t, "Checked repeatedly; still ABEND.", res.Answer)
	})

	t.Run("model never answers", func(t *testing.T) {
		t.Parallel()
		fake := llm.NewFake()
		fake.Default = toolDecision
		e, _ := newTestExecutor(t, fake, newTestTWS(), 3)

		_, err := e.Run(context.Background(), "keep checking AWSBH001", "", "op1", "s1")
		require.Error(t, err)
	})
}

func TestLoopUnknownToolBecomesObservation(t *testing.T) {
	t.Parallel()

	fake := llm.NewFake(
		`{"action": "tool", "tool": "frobnicate", "args": {}, "confidence": 0.9}`,
		`{"action": "final", "answer": "No such capability.", "confidence": 0.7}`,
	)
	e, _ := newTestExecutor(t, fake, newTestTWS(), 8)

	res, err := e.Run(context.Background(), "frobnicate the plan", "", "op1", "s1")
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	assert.Contains(t, res.Steps[0].Observation, "unknown tool")
	assert.Empty(t, res.ToolsUsed)
}

func TestLoopToolFailureBecomesObservation(t *testing.T) {
	t.Parallel()

	fake := llm.NewFake(
		`{"action": "tool", "tool": "status_check", "args": {"job": "NOPE"}, "confidence": 0.9}`,
		`{"action": "final", "answer": "NOPE is not in the plan.", "confidence": 0.8}`,
	)
	e, _ := newTestExecutor(t, fake, newTestTWS(), 8)

	res, err := e.Run(context.Background(), "status of NOPE", "", "op1", "s1")
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	assert.Contains(t, res.Steps[0].Observation, "tool failed")
}

func TestLoopMalformedDecision(t *testing.T) {
	t.Parallel()

	e, _ := newTestExecutor(t, llm.NewFake("not json"), newTestTWS(), 8)

	_, err := e.Run(context.Background(), "anything", "", "op1", "s1")
	require.Error(t, err)
	assert.True(t, errors.IsDataParsing(err))
}

func TestLoopEmptyQuery(t *testing.T) {
	t.Parallel()

	e, _ := newTestExecutor(t, llm.NewFake(), newTestTWS(), 8)

	_, err := e.Run(context.Background(), "  ", "", "op1", "s1")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestDependencyCheckTool(t *testing.T) {
	t.Parallel()

	twsFake := newTestTWS()
	registry := DefaultRegistry(twsFake, graph.New(twsFake, time.Minute))

	tool, ok := registry.Get("dependency_check")
	require.True(t, ok)
	assert.True(t, tool.ReadOnly())

	out, err := tool.Run(context.Background(), map[string]string{"job": "AWSBH002"})
	require.NoError(t, err)
	assert.Contains(t, out, "AWSBH001")
}

func TestWorkstationStatusTool(t *testing.T) {
	t.Parallel()

	twsFake := newTestTWS()
	registry := DefaultRegistry(twsFake, graph.New(twsFake, time.Minute))

	tool, ok := registry.Get("workstation_status")
	require.True(t, ok)

	out, err := tool.Run(context.Background(), map[string]string{"workstation": "CPU1"})
	require.NoError(t, err)
	assert.Contains(t, out, "LINKED")
	assert.Contains(t, out, "2/10")

	_, err = tool.Run(context.Background(), map[string]string{})
	assert.True(t, errors.IsValidation(err))
}

func TestRegistryDescribeListsEveryTool(t *testing.T) {
	t.Parallel()

	twsFake := newTestTWS()
	registry := DefaultRegistry(twsFake, graph.New(twsFake, time.Minute))

	desc := registry.Describe()
	for _, name := range []string{
		"status_check", "job_lookup", "dependency_check", "workstation_status",
		"rerun_job", "kill_job", "release_job",
	} {
		assert.Contains(t, desc, name)
	}
	assert.Contains(t, desc, "(write)")
}
