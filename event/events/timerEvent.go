package events

import (
	"consensussim/event"
	"consensussim/interfaces"

	"github.com/rotisserie/eris"
)

type TimerEvent struct {
	*event.Event
	timer *interfaces.Timer
}

func NewTimerEvent(time int64, nodeId int, timer *interfaces.Timer) *TimerEvent {
	return &TimerEvent{event.NewEvent(time, nodeId, interfaces.TIMER_EVENT), timer}
}

func (ev *TimerEvent) Timer() *interfaces.Timer {
	return ev.timer
}

func (ev *TimerEvent) Execute(world interfaces.IWorld) error {
	node := world.Node(ev.TargetId())
	if node == nil {
		return eris.Wrapf(interfaces.ErrUnknownNode, "timer %v for node %v", ev.timer.Kind, ev.TargetId())
	}
	if !node.IsOnline() {
		return nil
	}
	return node.Protocol().HandleTimer(node, ev.timer, world)
}
