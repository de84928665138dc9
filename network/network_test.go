package network_test

import (
	"testing"

	"consensussim/consensus"
	"consensussim/interfaces"
	"consensussim/network"
	"consensussim/util/file"
	"consensussim/util/metrics"
	"consensussim/world"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorld(t *testing.T, net *file.NetworkConfig, failures file.FailureConfig) *world.World {
	t.Helper()
	w, err := world.NewInstance(world.InstanceConfig{
		Name:     "net",
		Protocol: &file.ProtocolConfig{Type: "gossip", Gossip: &file.GossipConfig{RetryDelay: 100, BlockSize: 1000, GenerationInterval: 1000}},
		Network:  net,
		Failures: failures,
		Timeout:  file.TimeoutConfig{Kind: file.TIMEOUT_SECONDS, Warmup: 1, Runtime: 1},
		Seed:     42,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return w
}

// drain pops the queue and returns the message events in arrival order.
func drain(w *world.World) []interfaces.IEvent {
	var out []interfaces.IEvent
	for ev := w.Queue().NextEvent(); ev != nil; ev = w.Queue().NextEvent() {
		if ev.Type() == interfaces.MESSAGE_EVENT {
			out = append(out, ev)
		}
	}
	return out
}

func TestAllToAll(t *testing.T) {
	w := newWorld(t, &file.NetworkConfig{Topology: "all-to-all", NumMiningNodes: 5, LinkLatency: file.Fixed(10)}, file.FailureConfig{})

	assert.Equal(t, 10, w.Network().NumLinks())
	assert.False(t, w.Network().Relay())
	for _, n := range w.Nodes() {
		assert.Len(t, n.Peers(), 4)
	}
}

func TestGossipTopologyIsConnected(t *testing.T) {
	w := newWorld(t, &file.NetworkConfig{Topology: "gossip", NumMiningNodes: 30, Fanout: 4, LinkLatency: file.Fixed(10)}, file.FailureConfig{})

	assert.True(t, w.Network().Relay())
	for _, n := range w.Nodes() {
		assert.GreaterOrEqual(t, len(n.Peers()), 4)
	}
	seen := map[int]bool{0: true}
	frontier := []int{0}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, p := range w.Node(next).Peers() {
			if !seen[p] {
				seen[p] = true
				frontier = append(frontier, p)
			}
		}
	}
	assert.Len(t, seen, 30)
}

func TestSendArrivalTime(t *testing.T) {
	// 8000 bit/s uplink pushes one byte per ms
	w := newWorld(t, &file.NetworkConfig{Topology: "all-to-all", NumMiningNodes: 3, LinkLatency: file.Fixed(25), NodeBandwidth: 0.008}, file.FailureConfig{})
	drain(w)
	sizes := file.SizesConfig{}.WithDefaults()
	msg := consensus.NewGetBlock(1, sizes)

	require.NoError(t, w.Network().Send(0, 1, msg, w))
	require.NoError(t, w.Network().Send(0, 2, msg, w))
	arrivals := drain(w)
	require.Len(t, arrivals, 2)

	size := int64(msg.Size())
	assert.Equal(t, size+25, arrivals[0].Time())
	// the second message waits for the first to leave the uplink
	assert.Equal(t, 2*size+25, arrivals[1].Time())
	assert.Equal(t, 2, len(w.Metrics().Series(metrics.MESSAGE_SENT)))
}

func TestSendWithoutLink(t *testing.T) {
	w := newWorld(t, &file.NetworkConfig{
		Topology:    "predefined",
		LinkLatency: file.Fixed(5),
		Nodes:       []file.NodeConfig{{Role: "mining"}, {Role: "mining"}, {Role: "non-mining"}},
		Links:       []file.LinkConfig{{From: 0, To: 1}, {From: 1, To: 2}},
	}, file.FailureConfig{})

	assert.Equal(t, []int{1}, w.Node(0).Peers())
	assert.Equal(t, []int{0, 2}, w.Node(1).Peers())
	err := w.Network().Send(0, 2, consensus.NewGetBlock(1, file.SizesConfig{}.WithDefaults()), w)
	assert.True(t, eris.Is(err, interfaces.ErrUnknownPeer))
}

func TestSilentSenderDropsEverything(t *testing.T) {
	w := newWorld(t, &file.NetworkConfig{Topology: "all-to-all", NumMiningNodes: 2, LinkLatency: file.Fixed(5)},
		file.FailureConfig{FaultyFraction: 0.5, Policy: "silent-drop"})
	drain(w)
	require.True(t, w.Node(1).IsFaulty())

	msg := consensus.NewGetBlock(1, file.SizesConfig{}.WithDefaults())
	require.NoError(t, w.Network().Broadcast(1, msg, w))
	assert.Empty(t, drain(w))
	assert.Equal(t, 1, len(w.Metrics().Series(metrics.MESSAGE_DROPPED)))

	require.NoError(t, w.Network().Broadcast(0, msg, w))
	assert.Len(t, drain(w), 1)
}

func TestDropProbability(t *testing.T) {
	w := newWorld(t, &file.NetworkConfig{Topology: "all-to-all", NumMiningNodes: 2, LinkLatency: file.Fixed(5), DropProbability: 0.3}, file.FailureConfig{})
	drain(w)
	msg := consensus.NewGetBlock(1, file.SizesConfig{}.WithDefaults())
	for i := 0; i < 2000; i++ {
		require.NoError(t, w.Network().Send(0, 1, msg, w))
	}
	delivered := len(drain(w))
	assert.InDelta(t, 1400, delivered, 120)
}

func TestDelayPolicyAddsLatency(t *testing.T) {
	w := newWorld(t, &file.NetworkConfig{Topology: "all-to-all", NumMiningNodes: 2, LinkLatency: file.Fixed(5)},
		file.FailureConfig{FaultyFraction: 0.5, Policy: "delay", ExtraDelay: 300})
	drain(w)
	require.NoError(t, w.Network().Send(1, 0, consensus.NewGetBlock(1, file.SizesConfig{}.WithDefaults()), w))
	arrivals := drain(w)
	require.Len(t, arrivals, 1)
	assert.Equal(t, int64(305), arrivals[0].Time())
}

func TestLinkLookup(t *testing.T) {
	w := newWorld(t, &file.NetworkConfig{Topology: "all-to-all", NumMiningNodes: 2, LinkLatency: file.Fixed(7)}, file.FailureConfig{})
	link, ok := w.Network().(*network.Network).Link(1, 0)
	require.True(t, ok)
	assert.Equal(t, int64(7), link.Latency())
}
