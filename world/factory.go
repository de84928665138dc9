package world

import (
	"io"
	"math"
	"sync"

	"consensussim/consensus"
	"consensussim/event"
	"consensussim/event/events"
	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/network"
	"consensussim/node"
	"consensussim/util/file"
	"consensussim/util/logger"
	"consensussim/util/metrics"
	"consensussim/util/random"
	"consensussim/util/validation"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

const defaultMaxQueueLength = 1 << 22

// InstanceConfig is one fully resolved sweep point.
type InstanceConfig struct {
	Name           string
	Protocol       *file.ProtocolConfig
	Network        *file.NetworkConfig
	Failures       file.FailureConfig
	Timeout        file.TimeoutConfig
	Seed           uint64
	MaxQueueLength int
	UseMetrics     bool
	Logger         zerolog.Logger
	AuditOut       io.Writer // nil disables the audit log
	Sink           metrics.Sink
}

type nodeSpec struct {
	role      interfaces.INodeRole
	hashPower float64
	stake     float64
	bandwidth float64 // bit/s
}

// NewInstance builds the nodes, faults, topology and protocols of one run
// and schedules the genesis and workload events.
func NewInstance(config InstanceConfig) (*World, error) {
	if err := validation.ValidateInstance(config.Protocol, config.Network, &config.Failures, &config.Timeout); err != nil {
		return nil, err
	}
	pType := interfaces.PROTOCOL_TYPE_MAP[config.Protocol.Type]
	maxQueue := config.MaxQueueLength
	if maxQueue <= 0 {
		maxQueue = defaultMaxQueueLength
	}

	rng := random.New(config.Seed)
	arena := ledger.NewArena(consensus.GenesisDifficulty(config.Protocol))
	rule := ledger.NewForkChoice(useGhost(config.Protocol))

	specs, err := nodeSpecs(config.Network, rng)
	if err != nil {
		return nil, err
	}
	nodes := make([]interfaces.INode, len(specs))
	nodeIds := make([]int, len(specs))
	for i, spec := range specs {
		nodes[i] = node.NewNode(i, spec.role, spec.hashPower, spec.stake, spec.bandwidth, ledger.NewChainView(arena, rule))
		nodeIds[i] = i
	}
	assignFaults(nodes, config.Failures, rng)

	net, err := network.NewNetwork(config.Network, nodes, rng, config.Failures.ExtraDelay)
	if err != nil {
		return nil, err
	}
	factory, err := consensus.NewFactory(config.Protocol, config.Network.Sizes, nodes, arena, config.Seed)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		protocol, err := factory(n)
		if err != nil {
			return nil, err
		}
		n.SetProtocol(protocol)
	}

	collector := metrics.NewCollector(config.Name, config.UseMetrics)
	if config.Sink != nil {
		collector.SetSink(config.Sink)
	}
	var audit *logger.AuditLogger
	if config.AuditOut != nil {
		audit = logger.NewAuditLogger(config.AuditOut, false)
	}

	world := &World{
		name:          config.Name,
		queue:         event.NewQueue(maxQueue),
		nodes:         nodes,
		nodeIds:       nodeIds,
		network:       net,
		arena:         arena,
		metrics:       collector,
		rng:           rng,
		logger:        config.Logger.With().Str("run", config.Name).Uint64("seed", config.Seed).Logger(),
		audit:         audit,
		seed:          config.Seed,
		protocolType:  pType,
		timeout:       config.Timeout,
		sizes:         config.Network.Sizes.WithDefaults(),
		committedAt:   make(map[ledger.BlockId]int64),
		heightCommits: make(map[int]ledger.BlockId),
		trace:         newTrace(),
	}
	world.control.cond = sync.NewCond(&world.control.mu)

	for _, id := range nodeIds {
		if _, err := world.Schedule(events.NewGenesisEvent(0, id)); err != nil {
			return nil, err
		}
	}
	if err := world.startClients(config.Network.Workload); err != nil {
		return nil, err
	}
	return world, nil
}

func useGhost(protocol *file.ProtocolConfig) bool {
	switch {
	case protocol.Nakamoto != nil:
		return protocol.Nakamoto.UseGhost
	case protocol.Stake != nil:
		return protocol.Stake.UseGhost
	}
	return false
}

// startClients spreads the first submissions evenly over the startup interval.
func (world *World) startClients(workload file.WorkloadConfig) error {
	if workload.NumClients <= 0 {
		return nil
	}
	clientNodeIds := make([]int, 0)
	for _, n := range world.nodes {
		if n.Role() == interfaces.CLIENT_NODE {
			clientNodeIds = append(clientNodeIds, n.Id())
		}
	}
	world.clients = node.AttachClients(workload.NumClients, clientNodeIds, world.nodeIds, workload.TransactionInterval)
	spacing := file.SecondsToTicks(workload.ClientStartupInterval) / int64(workload.NumClients)
	for i, client := range world.clients {
		if _, err := world.Schedule(events.NewTxCreationEvent(int64(i)*spacing, client.NodeId, client.Id)); err != nil {
			return err
		}
	}
	return nil
}

// assignFaults picks floor(fraction*n) nodes among 1..n-1, node 0 stays correct.
func assignFaults(nodes []interfaces.INode, failures file.FailureConfig, rng *random.RNG) {
	policy := interfaces.FAULT_POLICY_MAP[failures.Policy]
	count := int(math.Floor(failures.FaultyFraction * float64(len(nodes))))
	if policy == interfaces.FAULT_NONE || count <= 0 || len(nodes) < 2 {
		return
	}
	if count > len(nodes)-1 {
		count = len(nodes) - 1
	}
	for _, i := range rng.Perm(len(nodes) - 1)[:count] {
		n := nodes[i+1]
		n.SetFaultPolicy(policy)
		if policy == interfaces.FAULT_CRASH {
			n.SetOnline(false)
		}
	}
}

func nodeSpecs(config *file.NetworkConfig, rng *random.RNG) ([]nodeSpec, error) {
	bandwidth := config.NodeBandwidth * 1e6
	if len(config.Nodes) > 0 {
		specs := make([]nodeSpec, len(config.Nodes))
		for i, n := range config.Nodes {
			role, ok := interfaces.NODE_ROLE_MAP[n.Role]
			if !ok {
				return nil, eris.Wrapf(interfaces.ErrConfig, "node %d: unknown role %q", i, n.Role)
			}
			specs[i] = nodeSpec{role: role, hashPower: n.HashPower, stake: n.Stake, bandwidth: bandwidth}
			if n.Bandwidth > 0 {
				specs[i].bandwidth = n.Bandwidth * 1e6
			}
			if role == interfaces.MINING_NODE && n.HashPower == 0 {
				specs[i].hashPower = 1
			}
			if role == interfaces.MINING_NODE && n.Stake == 0 {
				specs[i].stake = 1
			}
		}
		return specs, nil
	}

	hashPowers, err := draw(config.HashPower, config.NumMiningNodes, rng, "hashPower")
	if err != nil {
		return nil, err
	}
	stakes, err := draw(config.Stake, config.NumMiningNodes, rng, "stake")
	if err != nil {
		return nil, err
	}
	specs := make([]nodeSpec, 0, config.NumNodes())
	for i := 0; i < config.NumMiningNodes; i++ {
		specs = append(specs, nodeSpec{role: interfaces.MINING_NODE, hashPower: hashPowers[i], stake: stakes[i], bandwidth: bandwidth})
	}
	for i := 0; i < config.NumNonMiningNodes; i++ {
		specs = append(specs, nodeSpec{role: interfaces.NON_MINING_NODE, bandwidth: bandwidth})
	}
	for i := 0; i < config.NumClientNodes; i++ {
		specs = append(specs, nodeSpec{role: interfaces.CLIENT_NODE, bandwidth: bandwidth})
	}
	return specs, nil
}

// draw samples count positive weights. Without a distribution the weights
// scatter around one the way hashPowerOracle does.
func draw(dist file.DistributionConfig, count int, rng *random.RNG, stream string) ([]float64, error) {
	weights := make([]float64, count)
	switch {
	case dist.IsZero():
		remaining := float64(count)
		for i := range weights {
			weights[i] = hashPowerOracle(1, remaining, count-i, rng)
			remaining -= weights[i]
		}
	case dist.Distribution == "fixed":
		value := 1.0
		if len(dist.Params) > 0 {
			value = dist.Params[0]
		}
		for i := range weights {
			weights[i] = value
		}
	default:
		sampler, err := random.GetDist(dist.Distribution, dist.Params, rng.Source(stream))
		if err != nil {
			return nil, eris.Wrapf(interfaces.ErrConfig, "%v: %v", stream, err)
		}
		for i := range weights {
			weights[i] = math.Max(sampler.Rand(), 0)
		}
	}
	return weights, nil
}

func hashPowerOracle(avg float64, remaining float64, remainingCount int, rng *random.RNG) float64 {
	if remainingCount == 1 {
		return math.Max(remaining, avg/100)
	}
	minPower := avg / 100
	maxTimesAvg := 2.5
	r := rng.Normal()
	if r < -1 {
		r /= 2 // to minimize the values below -1
	}
	plusMinus := math.Min(math.Max(r, -1), maxTimesAvg-1) * avg
	power := math.Max(plusMinus+avg, minPower)
	corrected := math.Min(power, remaining-float64(remainingCount-1)*minPower) // to have enough power left for the remaining nodes
	return math.Max(corrected, minPower)
}
