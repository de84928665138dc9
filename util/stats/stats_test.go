package stats_test

import (
	"bytes"
	"context"
	"testing"

	"consensussim/util/file"
	"consensussim/util/stats"
	"consensussim/world"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedRun(t *testing.T) *world.World {
	w, err := world.NewInstance(world.InstanceConfig{
		Name: "overview",
		Protocol: &file.ProtocolConfig{
			Type: "pbft",
			Pbft: &file.PbftConfig{MaxBlockSize: 20, MaxBlockInterval: 500, RoundTimeout: 2000},
		},
		Network: &file.NetworkConfig{
			Topology:       "all-to-all",
			NumMiningNodes: 4,
			LinkLatency:    file.Fixed(10),
			NodeBandwidth:  1000,
			Workload:       file.WorkloadConfig{NumClients: 4, ClientStartupInterval: 1, TransactionInterval: 100},
		},
		Timeout: file.TimeoutConfig{Kind: file.TIMEOUT_SECONDS, Warmup: 1, Runtime: 5},
		Seed:    3,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, w.Run(context.Background()))
	return w
}

func TestStatsOverview(t *testing.T) {
	w := finishedRun(t)
	overview := stats.NewStatsOverview(w)

	assert.Equal(t, w.Time(), overview.SimulatedTime)
	assert.Equal(t, w.EventsExecuted(), overview.EventsExecuted)
	assert.Len(t, overview.BlockCountPerNode, 4)
	assert.Len(t, overview.PeersPerNode, 4)
	assert.Equal(t, "1,2,3", overview.PeersPerNode["0"])
	require.NotEmpty(t, overview.AgreedChain)
	assert.Equal(t, 0, overview.AgreedChain[0])
	assert.Greater(t, len(overview.AgreedChain), 1)

	share := 0.0
	for id, nodeStats := range overview.StatsPerNodePerType {
		assert.GreaterOrEqual(t, nodeStats["current"], nodeStats["finalized"], "node %v", id)
		share += nodeStats["hashPowerPercentage"]
	}
	assert.InDelta(t, 100, share, 1e-6)
}

func TestPrintStatsOverview(t *testing.T) {
	w := finishedRun(t)
	var out bytes.Buffer
	require.NoError(t, stats.PrintStatsOverview(w, &out))

	var decoded stats.StatsOverview
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, *stats.NewStatsOverview(w), decoded)
}
