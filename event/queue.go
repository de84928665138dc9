package event

import (
	"container/heap"
	"fmt"
	"sort"

	"consensussim/interfaces"

	"github.com/rotisserie/eris"
)

type queued struct {
	event interfaces.IEvent
	seq   uint64
	index int
}

// eventHeap orders by time, then insertion sequence, so equal-time events replay in scheduling order.
type eventHeap []*queued

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].event.Time() != h[j].event.Time() {
		return h[i].event.Time() < h[j].event.Time()
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x interface{}) {
	item := x.(*queued)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

type Queue struct {
	events  eventHeap
	byToken map[interfaces.Token]*queued
	nextSeq uint64
	maxLen  int
}

// NewQueue creates an empty queue. maxLen bounds the pending events, 0 disables the bound.
func NewQueue(maxLen int) *Queue {
	return &Queue{events: make(eventHeap, 0, 1024), byToken: make(map[interfaces.Token]*queued), maxLen: maxLen}
}

func (q *Queue) Add(event interfaces.IEvent) (interfaces.Token, error) {
	if q.maxLen > 0 && len(q.events) >= q.maxLen {
		return 0, eris.Wrapf(interfaces.ErrResourceExhausted, "event queue holds %v events", len(q.events))
	}
	q.nextSeq++
	item := &queued{event: event, seq: q.nextSeq}
	heap.Push(&q.events, item)
	token := interfaces.Token(item.seq)
	q.byToken[token] = item
	return token, nil
}

// NextEvent removes the earliest event, ties broken by insertion order.
func (q *Queue) NextEvent() interfaces.IEvent {
	if len(q.events) == 0 {
		return nil
	}
	item := heap.Pop(&q.events).(*queued)
	delete(q.byToken, interfaces.Token(item.seq))
	return item.event
}

func (q *Queue) Peek() interfaces.IEvent {
	if len(q.events) == 0 {
		return nil
	}
	return q.events[0].event
}

// Cancel removes a pending event and reports whether it was still queued.
func (q *Queue) Cancel(token interfaces.Token) bool {
	item, ok := q.byToken[token]
	if !ok {
		return false
	}
	heap.Remove(&q.events, item.index)
	delete(q.byToken, token)
	return true
}

func (q *Queue) Length() int {
	return len(q.events)
}

func (q *Queue) CountEventTypes() string {
	// for debugging purposes
	counts := make(map[string]int)
	for _, item := range q.events {
		counts[item.event.Type().String()]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	ret := ""
	for _, name := range names {
		ret += fmt.Sprintf("%v: %v\n", name, counts[name])
	}
	return ret
}
