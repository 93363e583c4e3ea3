package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/notify"
)

// capture records dispatched events on a channel.
type capture struct {
	events chan notify.Event
	err    error
}

func (c *capture) Dispatch(_ context.Context, e notify.Event) error {
	c.events <- e
	return c.err
}

func TestAsync_DeliversWithoutBlocking(t *testing.T) {
	// GIVEN: an async dispatcher around a capturing one
	// WHEN: dispatching an event
	// THEN: the call returns immediately and the event arrives

	next := &capture{events: make(chan notify.Event, 1)}
	d := &notify.Async{Next: next}

	err := d.Dispatch(context.Background(), notify.Event{
		Type: notify.EventApproved, RequestID: "req-1",
	})
	require.NoError(t, err)

	select {
	case e := <-next.events:
		assert.Equal(t, notify.EventApproved, e.Type)
		assert.Equal(t, "req-1", e.RequestID)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestAsync_SwallowsDownstreamFailure(t *testing.T) {
	next := &capture{events: make(chan notify.Event, 1), err: errors.New("smtp down")}
	d := &notify.Async{Next: next}

	err := d.Dispatch(context.Background(), notify.Event{Type: notify.EventRejected})
	assert.NoError(t, err, "a lost notification never surfaces")
	<-next.events
}

type panicky struct{}

func (panicky) Dispatch(context.Context, notify.Event) error { panic("boom") }

func TestAsync_RecoversPanics(t *testing.T) {
	d := &notify.Async{Next: panicky{}}
	assert.NotPanics(t, func() {
		require.NoError(t, d.Dispatch(context.Background(), notify.Event{Type: notify.EventCreated}))
		time.Sleep(50 * time.Millisecond)
	})
}

func TestLogDispatcher_NeverFails(t *testing.T) {
	d := &notify.LogDispatcher{}
	assert.NoError(t, d.Dispatch(context.Background(), notify.Event{
		Type: notify.EventSubmitted, RequestID: "req-1", EmployeeID: "emp-1",
	}))
}
