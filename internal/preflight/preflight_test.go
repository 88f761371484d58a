package preflight

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resync-ops/resync/internal/config"
)

func TestRunAllDefaultsAreReadyWithWarnings(t *testing.T) {
	t.Parallel()

	c := New(config.NewConfig(), WithOutput(&bytes.Buffer{}))
	results := c.RunAll(context.Background())

	assert.False(t, c.HasCriticalFailures(results))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus(results))

	byName := make(map[string]CheckResult)
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, StatusPass, byName["configuration"].Status)
	assert.Equal(t, StatusWarn, byName["redis"].Status)
	assert.Equal(t, StatusWarn, byName["database"].Status)
	assert.Equal(t, StatusWarn, byName["llm_endpoint"].Status)
}

func TestCheckRedisAgainstLiveServer(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := config.NewConfig()
	cfg.Storage.RedisURL = "redis://" + mr.Addr()

	c := New(cfg)
	result := c.CheckRedis(context.Background())
	assert.Equal(t, StatusPass, result.Status)

	mr.Close()
	result = c.CheckRedis(context.Background())
	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
}

func TestCheckConfigRejectsInvalid(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.Retrieval.VectorWeight = 0.9 // weights no longer sum to 1

	c := New(cfg)
	result := c.CheckConfig()
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "sum to 1.0")
}

func TestPrintResults(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	cfg := config.NewConfig()
	c := New(cfg, WithOutput(buf), WithVerbose(true))

	c.PrintResults(c.RunAll(context.Background()))
	out := buf.String()

	require.Contains(t, out, "Resync System Check")
	assert.Contains(t, out, "[PASS] configuration")
	assert.Contains(t, out, "[WARN] redis")
	assert.Contains(t, out, "Status: READY_WITH_WARNINGS")
}
