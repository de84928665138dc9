package experiment

import (
	"fmt"

	"consensussim/util/file"
)

// AssertionResult records one checked constraint. A failing assertion is
// reported, it never stops the sweep.
type AssertionResult struct {
	Metric   string  `json:"metric"`
	Bound    string  `json:"bound"`
	Observed float64 `json:"observed"`
	Passed   bool    `json:"passed"`
}

func (a AssertionResult) String() string {
	verdict := "PASS"
	if !a.Passed {
		verdict = "FAIL"
	}
	return fmt.Sprintf("%v %v=%v %v", verdict, a.Metric, a.Observed, a.Bound)
}

// Check evaluates one assertion. InRange includes both bounds, GreaterThan is strict.
func Check(assert file.AssertConfig, observed float64) AssertionResult {
	result := AssertionResult{Metric: assert.Metric, Observed: observed}
	switch {
	case assert.InRange != nil:
		result.Bound = fmt.Sprintf("in [%v, %v]", assert.InRange.Min, assert.InRange.Max)
		result.Passed = observed >= assert.InRange.Min && observed <= assert.InRange.Max
	case assert.GreaterThan != nil:
		result.Bound = fmt.Sprintf("> %v", *assert.GreaterThan)
		result.Passed = observed > *assert.GreaterThan
	}
	return result
}

// PointCheck holds the assertions of one sweep point evaluated on the mean
// over its repetitions.
type PointCheck struct {
	Key        string            `json:"key"`
	Runs       int               `json:"runs"`
	Failed     int               `json:"failed"`
	Assertions []AssertionResult `json:"assertions"`
}

// Passed is false when any repetition failed to run.
func (c PointCheck) Passed() bool {
	if c.Failed > 0 {
		return false
	}
	for _, a := range c.Assertions {
		if !a.Passed {
			return false
		}
	}
	return true
}

// CheckPoints evaluates asserts on the per-point means of summaries.
func CheckPoints(summaries []PointSummary, asserts []file.AssertConfig) []PointCheck {
	checks := make([]PointCheck, 0, len(summaries))
	for _, s := range summaries {
		c := PointCheck{Key: s.Key, Runs: s.Runs, Failed: s.Failed}
		for _, a := range asserts {
			mean, ok := s.Mean[a.Metric]
			check := Check(a, mean)
			check.Passed = check.Passed && ok
			c.Assertions = append(c.Assertions, check)
		}
		checks = append(checks, c)
	}
	return checks
}
