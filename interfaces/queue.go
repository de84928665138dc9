package interfaces

type IQueue interface {
	// Add inserts the event and returns a token usable with Cancel.
	Add(event IEvent) (Token, error)
	// NextEvent removes and returns the earliest event, nil if the queue is empty.
	NextEvent() IEvent
	Peek() IEvent
	Cancel(token Token) bool
	Length() int
	CountEventTypes() string
}
