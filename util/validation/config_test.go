package validation

import (
	"testing"

	"consensussim/interfaces"
	"consensussim/util/file"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsAreValid(t *testing.T) {
	library := file.Builtin()
	for _, name := range library.ExperimentNames() {
		e, err := library.Experiment(name)
		require.NoError(t, err)
		assert.NoError(t, ValidateExperiment(name, e, library), name)
	}
	for _, name := range library.TestNames() {
		tc, err := library.Test(name)
		require.NoError(t, err)
		assert.NoError(t, ValidateTest(name, tc, library), name)
	}
	assert.NoError(t, ValidateConfig(file.DefaultConfig()))
}

func TestValidateExperimentCollectsEveryProblem(t *testing.T) {
	library := file.Builtin()
	experiment := &file.ExperimentConfig{
		Protocol: "paxos",
		Network:  "medium-p2p",
		Timeout:  file.TimeoutConfig{Kind: "seconds", Warmup: 0, Runtime: 10},
		Parameters: []file.RangeConfig{
			{Name: "maxBlockSize", Start: 10, End: 1, Step: 1},
			{Name: "colour", Start: 1, End: 2, Step: 1},
		},
		Metrics: []string{"Happiness"},
	}
	err := ValidateExperiment("broken", experiment, library)
	require.Error(t, err)
	assert.True(t, eris.Is(err, interfaces.ErrConfig))
	for _, want := range []string{`unknown protocol "paxos"`, "warmup must be positive", "empty range", `unknown parameter "colour"`, `unknown metric "Happiness"`} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParameterMustApplyToProtocol(t *testing.T) {
	library := file.Builtin()
	experiment := &file.ExperimentConfig{
		Protocol:   "pbft",
		Network:    "pbft-cluster",
		Timeout:    file.TimeoutConfig{Kind: "seconds", Warmup: 1, Runtime: 10},
		Parameters: []file.RangeConfig{{Name: "commitDelay", Start: 1, End: 2, Step: 1}},
	}
	err := ValidateExperiment("pbft-commit", experiment, library)
	assert.True(t, eris.Is(err, interfaces.ErrConfig))
}

func TestValidateTestNeedsAsserts(t *testing.T) {
	err := ValidateTest("empty", &file.TestConfig{Protocol: "pbft", Network: "pbft-cluster"}, file.Builtin())
	assert.True(t, eris.Is(err, interfaces.ErrConfig))
}

func TestValidateInstance(t *testing.T) {
	library := file.Builtin()
	protocol, _ := library.Protocol("pbft")
	network, _ := library.Network("pbft-cluster")
	timeout := &file.TimeoutConfig{Kind: "blocks", Warmup: 1, Runtime: 5}

	assert.NoError(t, ValidateInstance(protocol, network, &file.FailureConfig{}, timeout))
	assert.Error(t, ValidateInstance(protocol, network, &file.FailureConfig{FaultyFraction: 0.2}, timeout))
	assert.Error(t, ValidateInstance(protocol, network, &file.FailureConfig{FaultyFraction: 0.2, Policy: "selfish"}, timeout))

	network.NumMiningNodes = 0
	assert.Error(t, ValidateInstance(protocol, network, &file.FailureConfig{}, timeout))
}

func TestAssertConstraints(t *testing.T) {
	gt := 1.0
	errs := assertProblems([]file.AssertConfig{
		{Metric: "Throughput", GreaterThan: &gt},
		{Metric: "Throughput"},
		{Metric: "Latency", InRange: &file.InRangeConfig{Min: 5, Max: 1}},
	})
	assert.Len(t, errs, 2)
}
