package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinLibrary(t *testing.T) {
	library := Builtin()

	bitcoin, err := library.Protocol("bitcoin")
	require.NoError(t, err)
	require.NotNil(t, bitcoin.Nakamoto)
	assert.Equal(t, uint64(200000), bitcoin.Nakamoto.BlockGeneration.InitialDifficulty)
	assert.Equal(t, 600.0, bitcoin.Nakamoto.BlockGeneration.TargetBlockInterval)
	assert.False(t, bitcoin.Nakamoto.UseGhost)

	network, err := library.Network("medium-p2p")
	require.NoError(t, err)
	assert.Equal(t, "gossip", network.Topology)
	assert.Equal(t, 50, network.NumNodes())

	test, err := library.Test("bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 36000.0, test.Timeout.Warmup)
	require.Len(t, test.Asserts, 1)
	assert.Equal(t, 500.0, test.Asserts[0].InRange.Min)

	for _, name := range library.ExperimentNames() {
		e, err := library.Experiment(name)
		require.NoError(t, err)
		_, err = library.Protocol(e.Protocol)
		assert.NoError(t, err, name)
		_, err = library.Network(e.Network)
		assert.NoError(t, err, name)
	}
	for _, name := range library.TestNames() {
		tc, err := library.Test(name)
		require.NoError(t, err)
		_, err = library.Protocol(tc.Protocol)
		assert.NoError(t, err, name)
		_, err = library.Network(tc.Network)
		assert.NoError(t, err, name)
	}

	_, err = library.Protocol("nope")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestLookupsReturnCopies(t *testing.T) {
	library := Builtin()
	p, err := library.Protocol("bitcoin")
	require.NoError(t, err)
	p.Nakamoto.MaxBlockSize = 1

	again, err := library.Protocol("bitcoin")
	require.NoError(t, err)
	assert.NotEqual(t, 1, again.Nakamoto.MaxBlockSize)
}

func TestLoadLibraryOverridesBuiltins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "networks"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "networks", "small-mesh.yml"), []byte("topology: all-to-all\nnumMiningNodes: 9\n"), 0o644))

	library, err := LoadLibrary(dir)
	require.NoError(t, err)
	n, err := library.Network("small-mesh")
	require.NoError(t, err)
	assert.Equal(t, 9, n.NumMiningNodes)

	_, err = library.Network("medium-p2p")
	assert.NoError(t, err)
}

func TestLoadLibraryRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "protocols"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "protocols", "bad.yml"), []byte("type: pbft\nbogus: 1\n"), 0o644))

	_, err := LoadLibrary(dir)
	assert.True(t, eris.Is(err, ErrDecode))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 7\nparallelism: 3\n"), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), config.Seed())
	assert.Equal(t, 3, config.Parallelism())
	assert.Equal(t, "out", config.OutPath())

	config, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

func TestApplyParameter(t *testing.T) {
	library := Builtin()
	protocol, _ := library.Protocol("bitcoin")
	network, _ := library.Network("medium-p2p")
	failures := &FailureConfig{}

	require.NoError(t, ApplyParameter(PARAM_MAX_BLOCK_SIZE, 300, protocol, network, failures))
	require.NoError(t, ApplyParameter(PARAM_NUM_MINING_NODES, 15, protocol, network, failures))
	require.NoError(t, ApplyParameter(PARAM_FAULTY_FRACTION, 0.2, protocol, network, failures))
	require.NoError(t, ApplyParameter(PARAM_LINK_LATENCY, 42, protocol, network, failures))
	assert.Equal(t, 300, protocol.Nakamoto.MaxBlockSize)
	assert.Equal(t, 15, network.NumMiningNodes)
	assert.Equal(t, 0.2, failures.FaultyFraction)
	assert.Equal(t, Fixed(42), network.LinkLatency)

	err := ApplyParameter(PARAM_ROUND_TIMEOUT, 100, protocol, network, failures)
	assert.True(t, eris.Is(err, ErrUnsupportedParameter))
	err = ApplyParameter("colour", 1, protocol, network, failures)
	assert.True(t, eris.Is(err, ErrUnsupportedParameter))
}

func TestRangeInteger(t *testing.T) {
	assert.True(t, RangeConfig{Start: 100, End: 1000, Step: 100}.Integer())
	assert.False(t, RangeConfig{Start: 0, End: 0.3, Step: 0.1}.Integer())
}
