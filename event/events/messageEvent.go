package events

import (
	"consensussim/event"
	"consensussim/interfaces"
	"consensussim/util/metrics"

	"github.com/rotisserie/eris"
)

// MessageEvent delivers a network message to its receiver.
type MessageEvent struct {
	*event.Event
	senderId int
	msg      interfaces.IMessage
}

func NewMessageEvent(time int64, senderId int, receiverId int, msg interfaces.IMessage) *MessageEvent {
	return &MessageEvent{event.NewEvent(time, receiverId, interfaces.MESSAGE_EVENT), senderId, msg}
}

func (ev *MessageEvent) SenderId() int {
	return ev.senderId
}

func (ev *MessageEvent) Message() interfaces.IMessage {
	return ev.msg
}

func (ev *MessageEvent) Execute(world interfaces.IWorld) error {
	node := world.Node(ev.TargetId())
	if node == nil {
		return eris.Wrapf(interfaces.ErrUnknownNode, "message %v to node %v", ev.msg.Type(), ev.TargetId())
	}
	if !node.IsOnline() {
		return nil
	}
	world.Metrics().Record(metrics.MESSAGE_RECEIVED, ev.Time(), node.Id(), float64(ev.msg.Size()))
	world.Audit().AuditEventReceived(node.Id(), ev.senderId, ev.msg.Type(), ev.msg.Id(), "", ev.Time())

	if relayable, ok := ev.msg.(interfaces.IRelayable); ok {
		if !node.MarkSeen(relayable.Key()) {
			return nil
		}
		if world.Network().Relay() {
			if err := world.Network().Broadcast(node.Id(), ev.msg, world, ev.senderId); err != nil {
				return err
			}
		}
	}
	return node.Protocol().HandleMessage(node, ev.senderId, ev.msg, world)
}
