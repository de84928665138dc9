package interfaces

// Token identifies a scheduled event so it can be cancelled later.
type Token uint64

type IEvent interface {
	Time() int64
	Type() IEventType
	// TargetId is the node the event is dispatched to, WORLD_TARGET for instance-level events.
	TargetId() int
	// Execute executes the specific event.
	Execute(world IWorld) error
}

const WORLD_TARGET = -1

type eventType string

type IEventType interface {
	getType() eventType
	String() string
}

// this is just for preventing simple string from being used as IEventType
func (evType eventType) getType() eventType {
	return evType
}

func (evType eventType) String() string {
	return string(evType)
}

// add event types here
const (
	GENESIS_EVENT     = eventType("GenesisEvent")
	MESSAGE_EVENT     = eventType("MessageEvent")
	TIMER_EVENT       = eventType("TimerEvent")
	TX_CREATION_EVENT = eventType("TxCreationEvent")
)
