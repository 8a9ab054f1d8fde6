package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_TerraceDinner(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/terrace_dinner.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Errors)
}

func TestTraceSnapshot_OmitsEmptyFields(t *testing.T) {
	r := NewResult()
	r.Trace = append(r.Trace, TraceStep{Step: 0, Command: "OPEN_TABLE", CommandID: "cmd-0001", ErrorCode: "TABLE_OCCUPIED"})
	m := (&TraceSnapshot{ScenarioName: "x", Result: r}).toCanonicalMap()

	step := m["trace"].([]any)[0].(map[string]any)
	assert.NotContains(t, step, "order")
	assert.NotContains(t, step, "events")
	assert.Equal(t, "TABLE_OCCUPIED", step["error_code"])
	assert.Empty(t, m["orders"])
}
