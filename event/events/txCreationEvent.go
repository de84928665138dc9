package events

import (
	"consensussim/event"
	"consensussim/interfaces"
)

// TxCreationEvent makes a workload client issue its next transaction at the node it is attached to.
type TxCreationEvent struct {
	*event.Event
	clientId int
}

func NewTxCreationEvent(time int64, nodeId int, clientId int) *TxCreationEvent {
	return &TxCreationEvent{event.NewEvent(time, nodeId, interfaces.TX_CREATION_EVENT), clientId}
}

func (ev *TxCreationEvent) ClientId() int {
	return ev.clientId
}

func (ev *TxCreationEvent) Execute(world interfaces.IWorld) error {
	return world.SubmitClientTransaction(ev.clientId)
}
