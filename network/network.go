package network

import (
	"fmt"

	"consensussim/event/events"
	"consensussim/interfaces"
	"consensussim/util/file"
	"consensussim/util/metrics"
	"consensussim/util/random"

	"github.com/rotisserie/eris"
	"golang.org/x/exp/rand"
)

type Network struct {
	topology   interfaces.ITopology
	links      map[linkKey]*Link
	numLinks   int
	drops      *rand.Rand
	uplinkFree map[int]int64
	extraDelay int64
}

// NewNetwork builds the topology over nodes, which must be indexed by id, and registers every peer.
// extraDelay is added to every message of nodes running the delay fault policy.
func NewNetwork(config *file.NetworkConfig, nodes []interfaces.INode, rng *random.RNG, extraDelay int64) (*Network, error) {
	topology, ok := interfaces.TOPOLOGY_MAP[config.Topology]
	if !ok {
		return nil, eris.Wrapf(interfaces.ErrConfig, "unknown topology %q", config.Topology)
	}
	nodeIds := make([]int, len(nodes))
	for i, node := range nodes {
		nodeIds[i] = node.Id()
	}

	var specs []linkSpec
	var err error
	switch topology {
	case interfaces.ALL_TO_ALL:
		specs = allToAll(nodeIds, config)
	case interfaces.GOSSIP:
		specs = gossipLinks(nodeIds, config, rng)
	case interfaces.PREDEFINED:
		specs, err = predefinedLinks(config)
		if err != nil {
			return nil, err
		}
	}

	n := &Network{
		topology:   topology,
		links:      make(map[linkKey]*Link, 2*len(specs)),
		drops:      rand.New(rng.Source("drops")),
		uplinkFree: make(map[int]int64, len(nodes)),
		extraDelay: extraDelay,
	}
	latencies := SamplerFactory(rng.Source("latency"))
	for _, spec := range specs {
		if spec.from < 0 || spec.from >= len(nodes) || spec.to < 0 || spec.to >= len(nodes) {
			return nil, eris.Wrapf(interfaces.ErrConfig, "link %v->%v references an unknown node", spec.from, spec.to)
		}
		latency, err := latencies(spec.latency)
		if err != nil {
			return nil, eris.Wrapf(interfaces.ErrConfig, "link %v->%v: %v", spec.from, spec.to, err)
		}
		link := NewLink(spec.from, spec.to, latency, spec.drop, spec.directed)
		n.links[linkKey{spec.from, spec.to}] = link
		nodes[spec.from].AddPeers(spec.to)
		n.numLinks++

		switch {
		case !spec.directed:
			n.links[linkKey{spec.to, spec.from}] = link
			nodes[spec.to].AddPeers(spec.from)
		case topology != interfaces.PREDEFINED:
			// generated directed topologies get an independent reverse link
			reverse, err := latencies(spec.latency)
			if err != nil {
				return nil, eris.Wrapf(interfaces.ErrConfig, "link %v->%v: %v", spec.to, spec.from, err)
			}
			n.links[linkKey{spec.to, spec.from}] = NewLink(spec.to, spec.from, reverse, spec.drop, true)
			nodes[spec.to].AddPeers(spec.from)
			n.numLinks++
		}
	}
	return n, nil
}

func (n *Network) Topology() interfaces.ITopology {
	return n.topology
}

func (n *Network) NumLinks() int {
	return n.numLinks
}

// Relay is off on a full mesh where a broadcast already reaches every node.
func (n *Network) Relay() bool {
	return n.topology != interfaces.ALL_TO_ALL
}

func (n *Network) Link(from int, to int) (*Link, bool) {
	link, ok := n.links[linkKey{from, to}]
	return link, ok
}

func (n *Network) Send(from int, to int, msg interfaces.IMessage, world interfaces.IWorld) error {
	sender := world.Node(from)
	if sender == nil {
		return eris.Wrapf(interfaces.ErrUnknownNode, "sender %v", from)
	}
	link, ok := n.links[linkKey{from, to}]
	if !ok {
		return eris.Wrapf(interfaces.ErrUnknownPeer, "%v has no link to %v", from, to)
	}
	now := world.Time()
	size := msg.Size()

	policy := sender.FaultPolicy()
	if !sender.IsOnline() || policy == interfaces.FAULT_CRASH || policy == interfaces.FAULT_SILENT_DROP {
		world.Metrics().Record(metrics.MESSAGE_DROPPED, now, from, float64(size))
		return nil
	}
	world.Metrics().Record(metrics.MESSAGE_SENT, now, from, float64(size))

	// the uplink sends one message after the other
	departure := now
	if free := n.uplinkFree[from]; free > departure {
		departure = free
	}
	departure += transmissionDelay(size, sender.Bandwidth())
	n.uplinkFree[from] = departure

	if link.DropProbability > 0 && n.drops.Float64() < link.DropProbability {
		world.Metrics().Record(metrics.MESSAGE_DROPPED, now, from, float64(size))
		world.Audit().AuditEventSent(from, to, msg.Type(), msg.Id(), "dropped", now)
		return nil
	}
	arrival := departure + link.Latency()
	if policy == interfaces.FAULT_DELAY {
		arrival += n.extraDelay
	}
	if _, err := world.Schedule(events.NewMessageEvent(arrival, from, to, msg)); err != nil {
		return err
	}
	world.Audit().AuditEventSent(from, to, msg.Type(), msg.Id(), fmt.Sprintf("arrives %v", arrival), now)
	return nil
}

// Broadcast sends msg to the neighbors of from in ascending id order. An equivocating sender
// gives every second neighbor a conflicting variant.
func (n *Network) Broadcast(from int, msg interfaces.IMessage, world interfaces.IWorld, excludeIds ...int) error {
	sender := world.Node(from)
	if sender == nil {
		return eris.Wrapf(interfaces.ErrUnknownNode, "sender %v", from)
	}
	equivocable, canEquivocate := msg.(interfaces.IEquivocable)
	canEquivocate = canEquivocate && sender.FaultPolicy() == interfaces.FAULT_EQUIVOCATE

	var conflicting interfaces.IMessage
	for i, peerId := range sender.Peers() {
		if excluded(peerId, excludeIds) {
			continue
		}
		out := msg
		if canEquivocate && i%2 == 1 {
			if conflicting == nil {
				conflicting = equivocable.Equivocate(from, world)
			}
			out = conflicting
		}
		if err := n.Send(from, peerId, out, world); err != nil {
			return err
		}
	}
	return nil
}

func excluded(id int, excludeIds []int) bool {
	for _, e := range excludeIds {
		if e == id {
			return true
		}
	}
	return false
}
