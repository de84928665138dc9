package file

import (
	"math"

	"github.com/rotisserie/eris"
)

var ErrUnsupportedParameter = eris.New("parameter not supported")

// sweepable parameter names
const (
	PARAM_MAX_BLOCK_SIZE        = "maxBlockSize"
	PARAM_BLOCK_SIZE            = "blockSize"
	PARAM_NUM_MINING_NODES      = "numMiningNodes"
	PARAM_NUM_NON_MINING_NODES  = "numNonMiningNodes"
	PARAM_NUM_CLIENTS           = "numClients"
	PARAM_GOSSIP_RETRY_DELAY    = "gossipRetryDelay"
	PARAM_COMMIT_DELAY          = "commitDelay"
	PARAM_TARGET_BLOCK_INTERVAL = "targetBlockInterval"
	PARAM_INITIAL_DIFFICULTY    = "initialDifficulty"
	PARAM_FAULTY_FRACTION       = "faultyFraction"
	PARAM_LINK_LATENCY          = "linkLatency"
	PARAM_FANOUT                = "fanout"
	PARAM_DROP_PROBABILITY      = "dropProbability"
	PARAM_SLOT_LENGTH           = "slotLength"
	PARAM_ROUND_TIMEOUT         = "roundTimeout"
)

func ParameterNames() []string {
	return []string{
		PARAM_MAX_BLOCK_SIZE, PARAM_BLOCK_SIZE, PARAM_NUM_MINING_NODES, PARAM_NUM_NON_MINING_NODES,
		PARAM_NUM_CLIENTS, PARAM_GOSSIP_RETRY_DELAY, PARAM_COMMIT_DELAY, PARAM_TARGET_BLOCK_INTERVAL,
		PARAM_INITIAL_DIFFICULTY, PARAM_FAULTY_FRACTION, PARAM_LINK_LATENCY, PARAM_FANOUT,
		PARAM_DROP_PROBABILITY, PARAM_SLOT_LENGTH, PARAM_ROUND_TIMEOUT,
	}
}

// ApplyParameter writes one sweep value into the configuration it belongs to.
func ApplyParameter(name string, value float64, protocol *ProtocolConfig, network *NetworkConfig, failures *FailureConfig) error {
	whole := int(math.Round(value))
	ms := int64(math.Round(value))
	switch name {
	case PARAM_MAX_BLOCK_SIZE:
		switch {
		case protocol.Nakamoto != nil:
			protocol.Nakamoto.MaxBlockSize = whole
		case protocol.Stake != nil:
			protocol.Stake.MaxBlockSize = whole
		case protocol.Pbft != nil:
			protocol.Pbft.MaxBlockSize = whole
		default:
			return unsupported(name, protocol)
		}
	case PARAM_BLOCK_SIZE:
		if protocol.Gossip == nil {
			return unsupported(name, protocol)
		}
		protocol.Gossip.BlockSize = whole
	case PARAM_GOSSIP_RETRY_DELAY:
		switch {
		case protocol.Gossip != nil:
			protocol.Gossip.RetryDelay = ms
		case protocol.Nakamoto != nil:
			protocol.Nakamoto.RetryDelay = ms
		case protocol.Stake != nil:
			protocol.Stake.RetryDelay = ms
		default:
			return unsupported(name, protocol)
		}
	case PARAM_COMMIT_DELAY:
		switch {
		case protocol.Nakamoto != nil:
			protocol.Nakamoto.CommitDelay = whole
		case protocol.Stake != nil:
			protocol.Stake.CommitDelay = whole
		default:
			return unsupported(name, protocol)
		}
	case PARAM_TARGET_BLOCK_INTERVAL:
		if protocol.Nakamoto == nil {
			return unsupported(name, protocol)
		}
		protocol.Nakamoto.BlockGeneration.TargetBlockInterval = value
	case PARAM_INITIAL_DIFFICULTY:
		if protocol.Nakamoto == nil {
			return unsupported(name, protocol)
		}
		protocol.Nakamoto.BlockGeneration.InitialDifficulty = uint64(math.Round(value))
	case PARAM_SLOT_LENGTH:
		if protocol.Stake == nil {
			return unsupported(name, protocol)
		}
		protocol.Stake.SlotLength = ms
	case PARAM_ROUND_TIMEOUT:
		if protocol.Pbft == nil {
			return unsupported(name, protocol)
		}
		protocol.Pbft.RoundTimeout = ms
	case PARAM_NUM_MINING_NODES:
		network.NumMiningNodes = whole
	case PARAM_NUM_NON_MINING_NODES:
		network.NumNonMiningNodes = whole
	case PARAM_NUM_CLIENTS:
		network.Workload.NumClients = whole
	case PARAM_FANOUT:
		network.Fanout = whole
	case PARAM_DROP_PROBABILITY:
		network.DropProbability = value
	case PARAM_LINK_LATENCY:
		network.LinkLatency = Fixed(value)
	case PARAM_FAULTY_FRACTION:
		failures.FaultyFraction = value
	default:
		return eris.Wrapf(ErrUnsupportedParameter, "unknown parameter %q", name)
	}
	return nil
}

func unsupported(name string, protocol *ProtocolConfig) error {
	return eris.Wrapf(ErrUnsupportedParameter, "%q for protocol type %q", name, protocol.Type)
}
