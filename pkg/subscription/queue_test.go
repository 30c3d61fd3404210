package subscription

import (
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishReq(hintMs uint32) *ua.PublishRequest {
	return &ua.PublishRequest{RequestHeader: &ua.RequestHeader{TimeoutHint: hintMs}}
}

func TestPublishRequestQueueFIFO(t *testing.T) {
	q := NewPublishRequestQueue(3)
	now := time.Now()

	for i := uint32(1); i <= 3; i++ {
		require.NoError(t, q.Push(&PublishRequest{RequestID: i, ReceivedAt: now}))
	}
	assert.ErrorIs(t, q.Push(&PublishRequest{RequestID: 4, ReceivedAt: now}), ErrTooManyPublishRequests)
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, uint32(1), q.Peek().RequestID)
	for i := uint32(1); i <= 3; i++ {
		assert.Equal(t, i, q.Pop().RequestID)
	}
	assert.Nil(t, q.Pop())
	assert.Nil(t, q.Peek())
}

func TestPublishRequestQueueSequenceBreaksTimestampTies(t *testing.T) {
	q := NewPublishRequestQueue(10)
	now := time.Now()

	a := &PublishRequest{RequestID: 1, ReceivedAt: now}
	b := &PublishRequest{RequestID: 2, ReceivedAt: now}
	require.NoError(t, q.Push(a))
	require.NoError(t, q.Push(b))

	assert.Less(t, a.seq, b.seq)
}

func TestPublishRequestTimeout(t *testing.T) {
	def := 30 * time.Second

	assert.Equal(t, def, (&PublishRequest{Request: publishReq(0)}).Timeout(def))
	assert.Equal(t, 5*time.Second, (&PublishRequest{Request: publishReq(5000)}).Timeout(def))
	assert.Equal(t, def, (&PublishRequest{}).Timeout(def))
}

func TestPublishRequestQueueRemoveExpired(t *testing.T) {
	q := NewPublishRequestQueue(10)
	t0 := time.Unix(1000, 0)

	require.NoError(t, q.Push(&PublishRequest{RequestID: 1, Request: publishReq(1000), ReceivedAt: t0}))
	require.NoError(t, q.Push(&PublishRequest{RequestID: 2, Request: publishReq(0), ReceivedAt: t0}))
	require.NoError(t, q.Push(&PublishRequest{RequestID: 3, Request: publishReq(500), ReceivedAt: t0}))
	require.NoError(t, q.Push(&PublishRequest{RequestID: 4, Request: publishReq(0), ReceivedAt: t0}))

	expired := q.RemoveExpired(t0.Add(1001*time.Millisecond), 30*time.Second)
	require.Len(t, expired, 2)
	assert.Equal(t, uint32(1), expired[0].RequestID)
	assert.Equal(t, uint32(3), expired[1].RequestID)

	require.Equal(t, 2, q.Len())
	assert.Equal(t, uint32(2), q.Pop().RequestID)
	assert.Equal(t, uint32(4), q.Pop().RequestID)
}

func TestPublishRequestQueueBoundaryIsNotExpired(t *testing.T) {
	q := NewPublishRequestQueue(10)
	t0 := time.Unix(1000, 0)
	require.NoError(t, q.Push(&PublishRequest{RequestID: 1, Request: publishReq(0), ReceivedAt: t0}))

	assert.Empty(t, q.RemoveExpired(t0.Add(30*time.Second), 30*time.Second))
	assert.Len(t, q.RemoveExpired(t0.Add(30001*time.Millisecond), 30*time.Second), 1)
}

func TestPublishRequestQueueDrain(t *testing.T) {
	q := NewPublishRequestQueue(0)
	assert.Equal(t, DefaultMaxPublishRequests, q.Cap())

	for i := uint32(1); i <= 3; i++ {
		require.NoError(t, q.Push(&PublishRequest{RequestID: i}))
	}
	drained := q.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, uint32(1), drained[0].RequestID)
	assert.Zero(t, q.Len())
}
