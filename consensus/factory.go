package consensus

import (
	"consensussim/consensus/attack"
	"consensussim/consensus/difficulty"
	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/util/file"

	"github.com/rotisserie/eris"
)

// Factory returns a fresh protocol engine for one node.
type Factory func(node interfaces.INode) (interfaces.IProtocol, error)

// GenesisDifficulty is the difficulty the genesis block carries.
func GenesisDifficulty(config *file.ProtocolConfig) uint64 {
	if config.Nakamoto != nil {
		return config.Nakamoto.BlockGeneration.InitialDifficulty
	}
	return 0
}

// NewFactory prepares what the engines of one instance share. Nodes must be
// indexed by id and carry their fault policies already.
func NewFactory(config *file.ProtocolConfig, sizes file.SizesConfig, nodes []interfaces.INode, arena *ledger.Arena, seed uint64) (Factory, error) {
	pType, ok := interfaces.PROTOCOL_TYPE_MAP[config.Type]
	if !ok {
		return nil, eris.Wrapf(interfaces.ErrConfig, "unknown protocol type %q", config.Type)
	}
	sizes = sizes.WithDefaults()

	switch pType {
	case interfaces.NAKAMOTO:
		if config.Nakamoto == nil {
			return nil, eris.Wrap(interfaces.ErrConfig, "nakamoto protocol without nakamoto section")
		}
		cfg := config.Nakamoto
		strategy, err := difficulty.New(cfg.BlockGeneration)
		if err != nil {
			return nil, err
		}
		oracle := NewDifficultyOracle(strategy, arena)
		hashRate := cfg.BlockGeneration.HashRate
		if hashRate <= 0 && cfg.BlockGeneration.TargetBlockInterval > 0 {
			hashRate = float64(cfg.BlockGeneration.InitialDifficulty) / cfg.BlockGeneration.TargetBlockInterval
		}
		totalHashPower := 0.0
		for _, node := range nodes {
			if node.Role() == interfaces.MINING_NODE {
				totalHashPower += node.HashPower()
			}
		}
		params := NakamotoParams{MaxBlockSize: cfg.MaxBlockSize, CommitDelay: cfg.CommitDelay, RetryDelay: cfg.RetryDelay, Sizes: sizes}
		return func(node interfaces.INode) (interfaces.IProtocol, error) {
			share := 0.0
			if node.Role() == interfaces.MINING_NODE && totalHashPower > 0 {
				share = node.HashPower() / totalHashPower
			}
			return newNakamoto(params, newPowGenerator(oracle, hashRate, share), releasePolicy(node)), nil
		}, nil

	case interfaces.STAKE:
		if config.Stake == nil {
			return nil, eris.Wrap(interfaces.ErrConfig, "stake protocol without stake section")
		}
		cfg := config.Stake
		generator := newSlotGenerator(cfg.SlotLength, NewStakeTable(nodes, seed))
		params := NakamotoParams{MaxBlockSize: cfg.MaxBlockSize, CommitDelay: cfg.CommitDelay, RetryDelay: cfg.RetryDelay, Sizes: sizes}
		return func(node interfaces.INode) (interfaces.IProtocol, error) {
			return newNakamoto(params, generator, releasePolicy(node)), nil
		}, nil

	case interfaces.PBFT:
		if config.Pbft == nil {
			return nil, eris.Wrap(interfaces.ErrConfig, "pbft protocol without pbft section")
		}
		replicas := make([]int, 0, len(nodes))
		for _, node := range nodes {
			if node.Role() == interfaces.MINING_NODE {
				replicas = append(replicas, node.Id())
			}
		}
		if len(replicas) == 0 {
			return nil, eris.Wrap(interfaces.ErrConfig, "pbft needs at least one mining node as replica")
		}
		params := PbftParams{
			MaxBlockSize:     config.Pbft.MaxBlockSize,
			MaxBlockInterval: config.Pbft.MaxBlockInterval,
			RoundTimeout:     config.Pbft.RoundTimeout,
			Replicas:         replicas,
			Sizes:            sizes,
		}
		return func(node interfaces.INode) (interfaces.IProtocol, error) {
			return newPbft(params), nil
		}, nil

	case interfaces.GOSSIP_ONLY:
		if config.Gossip == nil {
			return nil, eris.Wrap(interfaces.ErrConfig, "gossip protocol without gossip section")
		}
		params := GossipParams{
			RetryDelay:         config.Gossip.RetryDelay,
			BlockSize:          config.Gossip.BlockSize,
			GenerationInterval: config.Gossip.GenerationInterval,
			Sizes:              sizes,
			SourceId:           0,
		}
		return func(node interfaces.INode) (interfaces.IProtocol, error) {
			return newGossip(params), nil
		}, nil
	}
	return nil, eris.Wrapf(interfaces.ErrConfig, "protocol type %v has no engine", pType)
}

func releasePolicy(node interfaces.INode) ReleasePolicy {
	if node.FaultPolicy() == interfaces.FAULT_SELFISH {
		return attack.NewSelfishMining()
	}
	return publishAll{}
}
