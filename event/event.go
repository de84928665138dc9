package event

import (
	"consensussim/interfaces"
)

// Event is the base embedded in every typed event.
type Event struct {
	time      int64
	targetId  int
	eventType interfaces.IEventType
}

func NewEvent(time int64, targetId int, eventType interfaces.IEventType) *Event {
	return &Event{time: time, targetId: targetId, eventType: eventType}
}

func (ev *Event) Type() interfaces.IEventType {
	return ev.eventType
}

func (ev *Event) TargetId() int {
	return ev.targetId
}

func (ev *Event) Time() int64 {
	return ev.time
}

func (ev *Event) Execute(world interfaces.IWorld) error {
	world.Logger().Debug().Int64("time", ev.Time()).Int("target", ev.TargetId()).Msg("event without payload")
	return nil
}
