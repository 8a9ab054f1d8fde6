package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/LucaXiang/Crab-sub002/internal/canonical"
)

// GoldenDir is where golden files live, relative to the test package.
const GoldenDir = "testdata/golden"

// TraceSnapshot is the golden form of a run: the step trace and the
// headline figures of every aliased order. Ids derived from hashes are
// left out so the file stays readable; aliases stand in for order ids.
type TraceSnapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts the snapshot to the value types canonical.Marshal
// accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Result.Trace))
	for i, step := range s.Result.Trace {
		m := map[string]any{
			"step":       step.Step,
			"command":    string(step.Command),
			"command_id": step.CommandID,
			"success":    step.Success,
		}
		if step.Order != "" {
			m["order"] = step.Order
		}
		if step.ErrorCode != "" {
			m["error_code"] = string(step.ErrorCode)
		}
		if len(step.Events) > 0 {
			events := make([]any, len(step.Events))
			for j, ev := range step.Events {
				events[j] = map[string]any{"seq": ev.Sequence, "type": string(ev.Type)}
			}
			m["events"] = events
		}
		trace[i] = m
	}

	orders := make(map[string]any, len(s.Result.Orders))
	for alias, snap := range s.Result.Orders {
		orders[alias] = map[string]any{
			"status":           string(snap.Status),
			"total":            snap.Total,
			"paid_amount":      snap.PaidAmount,
			"remaining_amount": snap.RemainingAmount,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"orders":        orders,
	}
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	data, err := GoldenBytes(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

// GoldenBytes renders the golden form of a result as canonical JSON.
func GoldenBytes(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Result: result}
	return canonical.Marshal(snapshot.toCanonicalMap())
}
