package world

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"consensussim/consensus"
	"consensussim/event"
	"consensussim/interfaces"
	"consensussim/util/file"
	"consensussim/util/metrics"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pbftInstance(seed uint64, failures file.FailureConfig) InstanceConfig {
	return InstanceConfig{
		Name: "pbft",
		Protocol: &file.ProtocolConfig{
			Type: "pbft",
			Pbft: &file.PbftConfig{MaxBlockSize: 50, MaxBlockInterval: 500, RoundTimeout: 2000},
		},
		Network: &file.NetworkConfig{
			Topology:       "all-to-all",
			NumMiningNodes: 4,
			LinkLatency:    file.Fixed(20),
			NodeBandwidth:  1000,
			Workload:       file.WorkloadConfig{NumClients: 8, ClientStartupInterval: 1, TransactionInterval: 50},
		},
		Failures: failures,
		Timeout:  file.TimeoutConfig{Kind: file.TIMEOUT_SECONDS, Warmup: 2, Runtime: 20},
		Seed:     seed,
		Logger:   zerolog.Nop(),
	}
}

func nakamotoInstance(seed uint64) InstanceConfig {
	return InstanceConfig{
		Name: "nakamoto",
		Protocol: &file.ProtocolConfig{
			Type: "nakamoto",
			Nakamoto: &file.NakamotoConfig{
				BlockGeneration: file.ProofOfWorkConfig{
					InitialDifficulty:   10000,
					TargetBlockInterval: 10,
					Adjustment:          file.AdjustmentConfig{Strategy: "none"},
				},
				MaxBlockSize: 100,
				CommitDelay:  3,
				RetryDelay:   500,
			},
		},
		Network: &file.NetworkConfig{
			Topology:          "gossip",
			NumMiningNodes:    10,
			NumNonMiningNodes: 2,
			Fanout:            3,
			LinkLatency:       file.DistributionConfig{Distribution: "norm", Params: []float64{100, 20}},
			NodeBandwidth:     100,
			Workload:          file.WorkloadConfig{NumClients: 4, ClientStartupInterval: 1, TransactionInterval: 500},
		},
		Timeout: file.TimeoutConfig{Kind: file.TIMEOUT_SECONDS, Warmup: 60, Runtime: 600},
		Seed:    seed,
		Logger:  zerolog.Nop(),
	}
}

func run(t *testing.T, config InstanceConfig) *World {
	t.Helper()
	w, err := NewInstance(config)
	require.NoError(t, err)
	require.NoError(t, w.Run(context.Background()))
	return w
}

func TestSameSeedSameTrace(t *testing.T) {
	a := run(t, nakamotoInstance(7))
	b := run(t, nakamotoInstance(7))
	c := run(t, nakamotoInstance(8))

	assert.Equal(t, a.Trace(), b.Trace())
	assert.Equal(t, a.EventsExecuted(), b.EventsExecuted())
	assert.Equal(t, a.Arena().NumBlocks(), b.Arena().NumBlocks())
	assert.NotEqual(t, a.Trace(), c.Trace())

	sa, sb := a.Summary(), b.Summary()
	assert.Equal(t, sa, sb)
}

func TestNakamotoProducesAndCommits(t *testing.T) {
	w := run(t, nakamotoInstance(3))
	summary := w.Summary()

	assert.Greater(t, summary.ProducedBlocks, 0.0)
	assert.Greater(t, summary.CommittedBlocks, 0.0)
	interval, err := summary.Get(metrics.METRIC_BLOCK_INTERVAL)
	require.NoError(t, err)
	assert.InDelta(t, 10, interval, 6)
	assert.Equal(t, 0, len(w.Metrics().Series(metrics.FINALITY_VIOLATION)))

	// every correct node extends the agreed chain up to its finalized block
	agreed := w.AgreedHead()
	for _, n := range w.Nodes() {
		finalized := n.Chain().Finalized()
		assert.True(t, w.Arena().IsAncestor(finalized, agreed) || w.Arena().IsAncestor(agreed, finalized), "node %d", n.Id())
	}
}

func TestPbftAgreement(t *testing.T) {
	w := run(t, pbftInstance(11, file.FailureConfig{}))
	quorum := consensus.Quorum(4)

	reference := w.Node(0).Protocol().(*consensus.Pbft)
	require.Greater(t, reference.Height(), 2)
	for _, n := range w.Nodes() {
		engine := n.Protocol().(*consensus.Pbft)
		for h := 1; h < engine.Height(); h++ {
			got, ok := engine.Decided(h)
			require.True(t, ok)
			want, ok := reference.Decided(h)
			if ok {
				assert.Equal(t, want, got, "node %d height %d", n.Id(), h)
			}
			assert.GreaterOrEqual(t, len(engine.Certificate(h)), quorum)
		}
	}
	summary := w.Summary()
	assert.Greater(t, summary.Throughput, 1.0)
	assert.Equal(t, 0, len(w.Metrics().Series(metrics.FINALITY_VIOLATION)))
}

func TestPbftToleratesSilentReplica(t *testing.T) {
	// floor(0.25*4) = 1 faulty replica, which is the most four replicas tolerate
	w := run(t, pbftInstance(5, file.FailureConfig{FaultyFraction: 0.25, Policy: "silent-drop"}))

	assert.False(t, w.Node(0).IsFaulty())
	faulty := 0
	for _, n := range w.Nodes() {
		if n.IsFaulty() {
			faulty++
		}
	}
	assert.Equal(t, 1, faulty)
	assert.Greater(t, w.Summary().CommittedBlocks, 0.0)
}

func TestPbftEquivocationIsSafe(t *testing.T) {
	w := run(t, pbftInstance(9, file.FailureConfig{FaultyFraction: 0.25, Policy: "equivocate"}))
	assert.Equal(t, 0, len(w.Metrics().Series(metrics.FINALITY_VIOLATION)))
}

func TestGossipReachesEveryNode(t *testing.T) {
	config := InstanceConfig{
		Name:     "gossip",
		Protocol: &file.ProtocolConfig{Type: "gossip", Gossip: &file.GossipConfig{RetryDelay: 300, BlockSize: 10000, GenerationInterval: 1000}},
		Network: &file.NetworkConfig{
			Topology:        "gossip",
			NumMiningNodes:  15,
			Fanout:          3,
			LinkLatency:     file.Fixed(50),
			DropProbability: 0.1,
			NodeBandwidth:   100,
		},
		Timeout: file.TimeoutConfig{Kind: file.TIMEOUT_SECONDS, Warmup: 1, Runtime: 10},
		Seed:    1,
		Logger:  zerolog.Nop(),
	}
	w := run(t, config)
	summary := w.Summary()

	assert.Greater(t, summary.BlockPropagationDelay, 0.0)
	assert.Greater(t, summary.NumDroppedMessages, 0.0)
	first, ok := w.Arena().Block(1)
	require.True(t, ok)
	for _, n := range w.Nodes() {
		assert.True(t, n.Chain().Has(first.Id()), "node %d never received block 1", n.Id())
		assert.Greater(t, n.Chain().Len(), 2, "node %d", n.Id())
	}
	agreed, _ := w.Arena().Block(w.AgreedHead())
	assert.Greater(t, agreed.Height(), 5)
}

func TestEquivocationCopiesAreNotProduced(t *testing.T) {
	config := nakamotoInstance(5)
	config.Failures = file.FailureConfig{FaultyFraction: 0.5, Policy: "equivocate"}
	w := run(t, config)

	forged := 0
	for _, b := range w.Arena().Blocks() {
		if _, ok := b.ForgedFrom(); ok {
			forged++
		}
	}
	require.Greater(t, forged, 0)
	summary := w.Summary()
	assert.Equal(t, float64(w.Metrics().Count(metrics.BLOCK_PRODUCED, w.Window())), summary.ProducedBlocks)
	assert.LessOrEqual(t, summary.OrphanRate, 1.0)
}

func TestBlockBudget(t *testing.T) {
	config := nakamotoInstance(2)
	config.Timeout = file.TimeoutConfig{Kind: file.TIMEOUT_BLOCKS, Warmup: 5, Runtime: 10}
	w := run(t, config)

	assert.GreaterOrEqual(t, w.Arena().MaxHeight(), 15)
	window := w.Window()
	assert.Less(t, window.Start, window.End)
}

func TestAuditLogAndSink(t *testing.T) {
	var audit bytes.Buffer
	sink := metrics.NewChannelSink(1 << 16)
	config := pbftInstance(4, file.FailureConfig{})
	config.AuditOut = &audit
	config.Sink = sink
	run(t, config)

	assert.Contains(t, audit.String(), metrics.BLOCK_COMMITTED.String())
	assert.NotZero(t, len(sink.C)+int(sink.Dropped()))
}

func TestInvalidInstance(t *testing.T) {
	config := pbftInstance(1, file.FailureConfig{})
	config.Network.DropProbability = 1.5
	_, err := NewInstance(config)
	require.Error(t, err)
	assert.True(t, eris.Is(err, interfaces.ErrConfig))
	assert.True(t, strings.Contains(err.Error(), "dropProbability"))
}

func TestTerminate(t *testing.T) {
	config := nakamotoInstance(1)
	config.Timeout.Runtime = 1e9
	w, err := NewInstance(config)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = w.Run(ctx)
	assert.True(t, eris.Is(err, interfaces.ErrInterrupted))
}

func TestPauseBlocksUntilResume(t *testing.T) {
	w, err := NewInstance(pbftInstance(1, file.FailureConfig{}))
	require.NoError(t, err)
	w.Pause()

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	select {
	case <-done:
		t.Fatal("paused run finished")
	case <-time.After(50 * time.Millisecond):
	}
	w.Resume()
	require.NoError(t, <-done)
	assert.Greater(t, w.EventsExecuted(), uint64(0))
}

func TestSetSpeedPacesTheRun(t *testing.T) {
	config := pbftInstance(1, file.FailureConfig{})
	config.Timeout = file.TimeoutConfig{Kind: file.TIMEOUT_SECONDS, Warmup: 1, Runtime: 4}
	w, err := NewInstance(config)
	require.NoError(t, err)
	const speed = 25.0 // simulated ms per wall clock ms
	w.SetSpeed(speed)

	start := time.Now()
	require.NoError(t, w.Run(context.Background()))
	took := time.Since(start)

	paced := time.Duration(float64(w.Time())/speed) * time.Millisecond
	require.Greater(t, paced, 150*time.Millisecond)
	assert.GreaterOrEqual(t, took, paced-30*time.Millisecond)
	assert.Less(t, took, 10*paced)
}

func TestScheduleInPast(t *testing.T) {
	w := run(t, pbftInstance(1, file.FailureConfig{}))
	_, err := w.Schedule(event.NewEvent(w.Time()-1, 0, interfaces.TIMER_EVENT))
	assert.True(t, eris.Is(err, interfaces.ErrEventInPast))
}
