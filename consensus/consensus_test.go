package consensus_test

import (
	"context"
	"testing"

	"consensussim/consensus"
	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/node"
	"consensussim/util/file"
	"consensussim/util/metrics"
	"consensussim/world"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuorum(t *testing.T) {
	for n, want := range map[int]int{1: 1, 3: 3, 4: 3, 7: 5, 10: 7, 100: 67} {
		assert.Equal(t, want, consensus.Quorum(n), "n=%d", n)
	}
}

func TestStakeTableWeighsLeaders(t *testing.T) {
	arena := ledger.NewArena(0)
	stakes := []float64{1, 3, 0, 6}
	nodes := make([]interfaces.INode, 0, len(stakes)+1)
	for i, stake := range stakes {
		nodes = append(nodes, node.NewNode(i, interfaces.MINING_NODE, 1, stake, 0, ledger.NewChainView(arena, ledger.LongestChain{})))
	}
	nodes = append(nodes, node.NewNode(4, interfaces.NON_MINING_NODE, 0, 100, 0, ledger.NewChainView(arena, ledger.LongestChain{})))

	table := consensus.NewStakeTable(nodes, 17)
	counts := make(map[int]int)
	const slots = 20000
	for slot := int64(0); slot < slots; slot++ {
		counts[table.Leader(slot)]++
	}
	assert.Zero(t, counts[2])
	assert.Zero(t, counts[4])
	assert.InDelta(t, 0.1, float64(counts[0])/slots, 0.015)
	assert.InDelta(t, 0.3, float64(counts[1])/slots, 0.015)
	assert.InDelta(t, 0.6, float64(counts[3])/slots, 0.015)

	// every node computes the same schedule
	again := consensus.NewStakeTable(nodes, 17)
	for slot := int64(0); slot < 100; slot++ {
		assert.Equal(t, table.Leader(slot), again.Leader(slot))
	}
	assert.Equal(t, -1, consensus.NewStakeTable(nodes[2:3], 1).Leader(0))
}

func instance(protocol *file.ProtocolConfig, network *file.NetworkConfig, timeout file.TimeoutConfig) world.InstanceConfig {
	return world.InstanceConfig{
		Name:     protocol.Type,
		Protocol: protocol,
		Network:  network,
		Timeout:  timeout,
		Seed:     3,
		Logger:   zerolog.Nop(),
	}
}

func TestPbftViewChangeAfterSilentLeader(t *testing.T) {
	w, err := world.NewInstance(instance(
		&file.ProtocolConfig{Type: "pbft", Pbft: &file.PbftConfig{MaxBlockSize: 20, MaxBlockInterval: 200, RoundTimeout: 1000}},
		&file.NetworkConfig{
			Topology:       "all-to-all",
			NumMiningNodes: 4,
			LinkLatency:    file.Fixed(10),
			Workload:       file.WorkloadConfig{NumClients: 4, ClientStartupInterval: 1, TransactionInterval: 100},
		},
		file.TimeoutConfig{Kind: file.TIMEOUT_SECONDS, Warmup: 1, Runtime: 20},
	))
	require.NoError(t, err)
	// the view 0 leader never gets a message out
	w.Node(0).SetFaultPolicy(interfaces.FAULT_SILENT_DROP)
	require.NoError(t, w.Run(context.Background()))

	replica := w.Node(1).Protocol().(*consensus.Pbft)
	assert.GreaterOrEqual(t, replica.View(), int64(1))
	assert.Greater(t, replica.Height(), 2)
	assert.NotEmpty(t, w.Metrics().Series(metrics.VIEW_CHANGE))

	for h := 1; h < replica.Height(); h++ {
		want, _ := replica.Decided(h)
		for _, id := range []int{2, 3} {
			got, ok := w.Node(id).Protocol().(*consensus.Pbft).Decided(h)
			if ok {
				assert.Equal(t, want, got)
			}
		}
	}
}

func TestStakeLeadersProduceOnSlots(t *testing.T) {
	w, err := world.NewInstance(instance(
		&file.ProtocolConfig{Type: "stake", Stake: &file.StakeConfig{SlotLength: 1000, MaxBlockSize: 50, CommitDelay: 2, RetryDelay: 300}},
		&file.NetworkConfig{
			Topology:       "gossip",
			NumMiningNodes: 8,
			Fanout:         3,
			LinkLatency:    file.Fixed(40),
			Workload:       file.WorkloadConfig{NumClients: 2, ClientStartupInterval: 1, TransactionInterval: 500},
		},
		file.TimeoutConfig{Kind: file.TIMEOUT_SECONDS, Warmup: 5, Runtime: 60},
	))
	require.NoError(t, err)
	require.NoError(t, w.Run(context.Background()))

	for _, block := range w.Arena().Blocks()[1:] {
		assert.Zero(t, block.CreatedAt()%1000, "block %d off slot", block.Id())
	}
	interval, err := w.Summary().Get(metrics.METRIC_BLOCK_INTERVAL)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, interval, 0.2)
}

func TestHomesteadDifficultyTracksTarget(t *testing.T) {
	protocol := &file.ProtocolConfig{Type: "nakamoto", Nakamoto: &file.NakamotoConfig{
		BlockGeneration: file.ProofOfWorkConfig{
			InitialDifficulty:   160000,
			TargetBlockInterval: 14,
			HashRate:            10000,
			Adjustment:          file.AdjustmentConfig{Strategy: "homestead", MinDifficulty: 131072},
		},
		UseGhost:     true,
		MaxBlockSize: 100,
		CommitDelay:  6,
		RetryDelay:   500,
	}}
	w, err := world.NewInstance(instance(protocol,
		&file.NetworkConfig{Topology: "gossip", NumMiningNodes: 10, Fanout: 3, LinkLatency: file.Fixed(50)},
		file.TimeoutConfig{Kind: file.TIMEOUT_SECONDS, Warmup: 3600, Runtime: 3600},
	))
	require.NoError(t, err)
	require.NoError(t, w.Run(context.Background()))

	// 16s blocks at first, homestead settles where half the blocks take under 10s
	assert.NotEmpty(t, w.Metrics().Series(metrics.DIFFICULTY_CHANGED))
	interval, err := w.Summary().Get(metrics.METRIC_BLOCK_INTERVAL)
	require.NoError(t, err)
	assert.InDelta(t, 15, interval, 5)
}

func TestEquivocationOnlyForgesOwnMessages(t *testing.T) {
	w, err := world.NewInstance(instance(
		&file.ProtocolConfig{Type: "gossip", Gossip: &file.GossipConfig{RetryDelay: 100, BlockSize: 100, GenerationInterval: 1000}},
		&file.NetworkConfig{Topology: "all-to-all", NumMiningNodes: 3, LinkLatency: file.Fixed(10)},
		file.TimeoutConfig{Kind: file.TIMEOUT_SECONDS, Warmup: 1, Runtime: 1},
	))
	require.NoError(t, err)
	sizes := file.SizesConfig{}.WithDefaults()
	block := w.Arena().NewBlock(w.Arena().Genesis(), 1, 0, nil, 100, 0, 0)

	msg := consensus.NewNotifyNewBlock(block.Id(), sizes)
	assert.Same(t, msg, msg.Equivocate(2, w))
	forged := msg.Equivocate(1, w).(*consensus.NotifyNewBlock)
	assert.NotEqual(t, block.Id(), forged.Block)
	sibling, ok := w.Arena().Block(forged.Block)
	require.True(t, ok)
	assert.Equal(t, block.Parent(), sibling.Parent())
	assert.Equal(t, block.Height(), sibling.Height())
}
