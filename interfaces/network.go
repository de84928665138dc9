package interfaces

type INetwork interface {
	// Send schedules delivery of msg to a direct neighbor.
	Send(from int, to int, msg IMessage, world IWorld) error
	// Broadcast sends msg to every neighbor of from except excludeIds.
	Broadcast(from int, msg IMessage, world IWorld, excludeIds ...int) error
	// Relay reports whether receivers forward relayable messages to their own neighbors.
	Relay() bool
	Topology() ITopology
	NumLinks() int
}

type IMessage interface {
	Type() IMessageType
	// Size is the wire size in bytes.
	Size() int
	// Id is a short identifier for audit logging.
	Id() string
}

// IRelayable messages are deduplicated by key and forwarded on gossip topologies.
type IRelayable interface {
	IMessage
	Key() string
}

// IEquivocable messages can produce a conflicting variant of themselves.
type IEquivocable interface {
	IMessage
	Equivocate(senderId int, world IWorld) IMessage
}

type messageType string

type IMessageType interface {
	getMessageType() messageType
	String() string
}

func (mType messageType) getMessageType() messageType {
	return mType
}

func (mType messageType) String() string {
	return string(mType)
}

// add message types here
const (
	NOTIFY_NEW_BLOCK_MESSAGE = messageType("NotifyNewBlock")
	GET_BLOCK_MESSAGE        = messageType("GetBlock")
	SEND_BLOCK_MESSAGE       = messageType("SendBlock")
	SEND_TX_MESSAGE          = messageType("SendTransaction")
	PRE_PREPARE_MESSAGE      = messageType("PrePrepare")
	PREPARE_MESSAGE          = messageType("Prepare")
	COMMIT_MESSAGE           = messageType("Commit")
	VIEW_CHANGE_MESSAGE      = messageType("ViewChange")
	NEW_VIEW_MESSAGE         = messageType("NewView")
)

type topology string

type ITopology interface {
	getTopology() topology
	String() string
}

func (t topology) getTopology() topology {
	return t
}

func (t topology) String() string {
	return string(t)
}

const (
	ALL_TO_ALL = topology("all-to-all")
	GOSSIP     = topology("gossip")
	PREDEFINED = topology("predefined")
)

var TOPOLOGY_MAP = map[string]ITopology{
	"all-to-all": ALL_TO_ALL,
	"gossip":     GOSSIP,
	"predefined": PREDEFINED,
}
