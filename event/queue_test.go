package event

import (
	"testing"

	"consensussim/interfaces"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrdersByTimeThenSequence(t *testing.T) {
	q := NewQueue(0)
	times := []int64{50, 10, 50, 30, 10, 0}
	for i, tm := range times {
		_, err := q.Add(NewEvent(tm, i, interfaces.TIMER_EVENT))
		require.NoError(t, err)
	}
	var got []int
	for q.Length() > 0 {
		got = append(got, q.NextEvent().TargetId())
	}
	assert.Equal(t, []int{5, 1, 4, 3, 0, 2}, got)
	assert.Nil(t, q.NextEvent())
	assert.Nil(t, q.Peek())
}

func TestQueueCancel(t *testing.T) {
	q := NewQueue(0)
	_, _ = q.Add(NewEvent(10, 0, interfaces.TIMER_EVENT))
	token, _ := q.Add(NewEvent(20, 1, interfaces.TIMER_EVENT))
	_, _ = q.Add(NewEvent(30, 2, interfaces.MESSAGE_EVENT))

	assert.True(t, q.Cancel(token))
	assert.False(t, q.Cancel(token))
	assert.Equal(t, 2, q.Length())
	assert.Equal(t, "MessageEvent: 1\nTimerEvent: 1\n", q.CountEventTypes())

	assert.Equal(t, 0, q.NextEvent().TargetId())
	assert.Equal(t, 2, q.NextEvent().TargetId())
}

func TestCancelAfterPopIsNoop(t *testing.T) {
	q := NewQueue(0)
	token, _ := q.Add(NewEvent(10, 0, interfaces.TIMER_EVENT))
	q.NextEvent()
	assert.False(t, q.Cancel(token))
}

func TestQueueBound(t *testing.T) {
	q := NewQueue(2)
	_, err := q.Add(NewEvent(1, 0, interfaces.TIMER_EVENT))
	require.NoError(t, err)
	_, err = q.Add(NewEvent(2, 0, interfaces.TIMER_EVENT))
	require.NoError(t, err)
	_, err = q.Add(NewEvent(3, 0, interfaces.TIMER_EVENT))
	assert.True(t, eris.Is(err, interfaces.ErrResourceExhausted))
}

func TestQueueManyEvents(t *testing.T) {
	q := NewQueue(0)
	for i := 0; i < 5000; i++ {
		_, _ = q.Add(NewEvent(int64((i*7919)%1000), i, interfaces.MESSAGE_EVENT))
	}
	last := int64(-1)
	for q.Length() > 0 {
		ev := q.NextEvent()
		assert.GreaterOrEqual(t, ev.Time(), last)
		last = ev.Time()
	}
}
