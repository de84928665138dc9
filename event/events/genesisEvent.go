package events

import (
	"consensussim/event"
	"consensussim/interfaces"

	"github.com/rotisserie/eris"
)

type GenesisEvent struct {
	*event.Event
}

func NewGenesisEvent(time int64, nodeId int) *GenesisEvent {
	return &GenesisEvent{event.NewEvent(time, nodeId, interfaces.GENESIS_EVENT)}
}

func (ev *GenesisEvent) Execute(world interfaces.IWorld) error {
	// this event starts the node for simulation
	node := world.Node(ev.TargetId())
	if node == nil {
		return eris.Wrapf(interfaces.ErrUnknownNode, "genesis for node %v", ev.TargetId())
	}
	world.Audit().Audit(node.Id(), ev.Type(), "", node.Role().String(), ev.Time())
	if !node.IsOnline() {
		return nil
	}
	return node.Protocol().Init(node, world)
}
