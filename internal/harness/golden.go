package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/hashgraph/guardian-sub011/internal/doc"
)

// GoldenDir holds golden trace files, relative to the test's package.
const GoldenDir = "testdata/golden"

// TraceJSON renders a scenario trace as canonical JSON.
func TraceJSON(scenarioName string, result *Result) ([]byte, error) {
	events := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"step":    ev.Step,
			"op":      ev.Op,
			"outcome": ev.Outcome,
		}
		if len(ev.Args) > 0 {
			m["args"] = ev.Args
		}
		if len(ev.Result) > 0 {
			m["result"] = ev.Result
		}
		events[i] = m
	}
	return doc.MarshalCanonical(map[string]any{
		"scenario_name": scenarioName,
		"trace":         events,
	})
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
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := TraceJSON(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
