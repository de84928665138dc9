package interfaces

import (
	"consensussim/ledger"
)

// IProtocol is the per-node consensus state machine. A fresh instance is bound
// to every node, it reacts only to events dispatched to that node.
type IProtocol interface {
	Init(node INode, world IWorld) error
	HandleMessage(node INode, senderId int, msg IMessage, world IWorld) error
	HandleTimer(node INode, timer *Timer, world IWorld) error
	SubmitTransaction(node INode, tx *ledger.Transaction, world IWorld) error

	// ProduceBlock creates a new block on top of the local head and publishes it.
	ProduceBlock(node INode, world IWorld) (*ledger.Block, error)
	ValidateBlock(node INode, block *ledger.Block, world IWorld) error
	// SelectHead applies the fork-choice rule and returns the new head.
	SelectHead(node INode, world IWorld) (ledger.BlockId, error)
	// Finalize commits every block that became irreversible.
	Finalize(node INode, world IWorld) error
}

type Timer struct {
	Kind   ITimerKind
	View   int64
	Round  int64
	Block  ledger.BlockId
	Height int
}

type timerKind string

type ITimerKind interface {
	getTimerKind() timerKind
	String() string
}

func (kind timerKind) getTimerKind() timerKind {
	return kind
}

func (kind timerKind) String() string {
	return string(kind)
}

// add timer kinds here
const (
	MINING_TIMER   = timerKind("Mining")
	SLOT_TIMER     = timerKind("Slot")
	ROUND_TIMER    = timerKind("Round")
	PROPOSE_TIMER  = timerKind("Propose")
	RETRY_TIMER    = timerKind("Retry")
	GENERATE_TIMER = timerKind("Generate")
)

type protocolType string

type IProtocolType interface {
	getProtocolType() protocolType
	String() string
}

func (pType protocolType) getProtocolType() protocolType {
	return pType
}

func (pType protocolType) String() string {
	return string(pType)
}

const (
	NAKAMOTO    = protocolType("nakamoto")
	PBFT        = protocolType("pbft")
	STAKE       = protocolType("stake")
	GOSSIP_ONLY = protocolType("gossip")
)

var PROTOCOL_TYPE_MAP = map[string]IProtocolType{
	"nakamoto": NAKAMOTO,
	"pbft":     PBFT,
	"stake":    STAKE,
	"gossip":   GOSSIP_ONLY,
}
