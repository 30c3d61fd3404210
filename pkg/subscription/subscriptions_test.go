package subscription

import (
	"sync"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/opcuad/pkg/addressspace"
)

var (
	t0       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	interval = 100 * time.Millisecond
	varID    = ua.NewNumericNodeID(1, 1)
)

type recordingMetrics struct {
	mu        sync.Mutex
	queued    int
	rejected  int
	expired   int
	keepAlive int
	data      int
	created   int
	closed    []string
}

func (m *recordingMetrics) PublishRequestQueued(int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued++
}

func (m *recordingMetrics) PublishRequestRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func (m *recordingMetrics) PublishRequestsExpired(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired += n
}

func (m *recordingMetrics) PublishResponseSent(keepAlive bool, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keepAlive {
		m.keepAlive++
	} else {
		m.data++
	}
}

func (m *recordingMetrics) SubscriptionCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *recordingMetrics) SubscriptionClosed(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, reason)
}

func newSpace(t *testing.T) *addressspace.AddressSpace {
	t.Helper()
	as := addressspace.New()
	v := addressspace.NewVariable(varID, "v", ua.MustVariant(int32(0)))
	v.SetAccessLevel(addressspace.AccessLevelCurrentRead | addressspace.AccessLevelCurrentWrite)
	require.NoError(t, as.AddNode(v))
	return as
}

func defaultParams() Parameters {
	return Parameters{
		PublishingInterval: interval,
		MaxKeepAliveCount:  3,
		LifetimeCount:      30,
		PublishingEnabled:  true,
	}
}

func newEngine(t *testing.T, cfg Config) (*Subscriptions, *recordingMetrics) {
	t.Helper()
	m := &recordingMetrics{}
	return New(cfg, m), m
}

func createWithItem(t *testing.T, s *Subscriptions, as *addressspace.AddressSpace, p Parameters) uint32 {
	t.Helper()
	id, _, err := s.Create(t0, p)
	require.NoError(t, err)
	results, err := s.CreateMonitoredItems(as, t0, id, []ItemRequest{{
		NodeID:      varID,
		AttributeID: ua.AttributeIDValue,
		QueueSize:   10,
		Mode:        MonitoringModeReporting,
	}})
	require.NoError(t, err)
	require.Equal(t, ua.StatusOK, results[0].Status)
	return id
}

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

// ============================================================================
// Publish request queueing
// ============================================================================

func TestEnqueueWithoutSubscriptions(t *testing.T) {
	s, _ := newEngine(t, DefaultConfig())
	err := s.EnqueuePublishRequest(t0, 1, publishReq(0))
	assert.ErrorIs(t, err, ua.StatusBadNoSubscription)
	assert.Zero(t, s.QueueLen())
}

func TestEnqueueQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPublishRequests = 2
	s, m := newEngine(t, cfg)
	_, _, err := s.Create(t0, defaultParams())
	require.NoError(t, err)

	require.NoError(t, s.EnqueuePublishRequest(t0, 1, publishReq(0)))
	require.NoError(t, s.EnqueuePublishRequest(t0, 2, publishReq(0)))

	err = s.EnqueuePublishRequest(t0, 3, publishReq(0))
	assert.ErrorIs(t, err, ErrTooManyPublishRequests)
	assert.Equal(t, ua.StatusBadTooManyPublishRequests, err)
	assert.Equal(t, 2, s.QueueLen())
	assert.Equal(t, 1, m.rejected)
	assert.Equal(t, 2, m.queued)
}

func TestPublishServedInEnqueueOrder(t *testing.T) {
	as := newSpace(t)
	s, m := newEngine(t, DefaultConfig())
	subID := createWithItem(t, s, as, defaultParams())

	for id := uint32(1); id <= 3; id++ {
		require.NoError(t, s.EnqueuePublishRequest(t0, id, publishReq(0)))
	}
	assert.Empty(t, s.TakeResponses())

	s.Tick(as, at(100))

	responses := s.TakeResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, uint32(1), responses[0].RequestID)

	resp := responses[0].Response
	assert.Equal(t, ua.StatusOK, resp.ResponseHeader.ServiceResult)
	assert.Equal(t, subID, resp.SubscriptionID)
	require.Len(t, resp.NotificationMessage.NotificationData, 1)
	dc, ok := resp.NotificationMessage.NotificationData[0].Value.(*ua.DataChangeNotification)
	require.True(t, ok)
	require.Len(t, dc.MonitoredItems, 1)
	assert.Equal(t, int32(0), dc.MonitoredItems[0].Value.Value.Value())
	assert.Equal(t, uint32(1), resp.NotificationMessage.SequenceNumber)
	assert.Equal(t, []uint32{1}, resp.AvailableSequenceNumbers)

	assert.Equal(t, 2, s.QueueLen())
	assert.Equal(t, 1, m.data)
}

// ============================================================================
// Expiry
// ============================================================================

func TestExpireStalePublishRequests(t *testing.T) {
	s, m := newEngine(t, DefaultConfig())
	_, _, err := s.Create(t0, defaultParams())
	require.NoError(t, err)

	require.NoError(t, s.EnqueuePublishRequest(t0, 7, &ua.PublishRequest{
		RequestHeader: &ua.RequestHeader{RequestHandle: 99, TimeoutHint: 30000},
	}))

	assert.Zero(t, s.ExpireStalePublishRequests(at(30000)))
	assert.Equal(t, 1, s.ExpireStalePublishRequests(at(30001)))
	assert.Zero(t, s.QueueLen())

	responses := s.TakeResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, uint32(7), responses[0].RequestID)
	assert.Equal(t, ua.StatusBadTimeout, responses[0].Response.ResponseHeader.ServiceResult)
	assert.Equal(t, uint32(99), responses[0].Response.ResponseHeader.RequestHandle)
	assert.Equal(t, 1, m.expired)
}

func TestExpiredRequestsNeverServeNotifications(t *testing.T) {
	as := newSpace(t)
	s, _ := newEngine(t, DefaultConfig())
	createWithItem(t, s, as, defaultParams())

	require.NoError(t, s.EnqueuePublishRequest(t0, 1, publishReq(50)))

	s.Tick(as, at(100))

	responses := s.TakeResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, ua.StatusBadTimeout, responses[0].Response.ResponseHeader.ServiceResult)
	assert.Nil(t, responses[0].Response.NotificationMessage)
}

func TestDrainPublishRequests(t *testing.T) {
	s, _ := newEngine(t, DefaultConfig())
	_, _, err := s.Create(t0, defaultParams())
	require.NoError(t, err)
	require.NoError(t, s.EnqueuePublishRequest(t0, 1, publishReq(0)))
	require.NoError(t, s.EnqueuePublishRequest(t0, 2, publishReq(0)))

	assert.Equal(t, 2, s.DrainPublishRequests(at(1), ua.StatusBadSessionClosed))

	responses := s.TakeResponses()
	require.Len(t, responses, 2)
	for i, r := range responses {
		assert.Equal(t, uint32(i+1), r.RequestID)
		assert.Equal(t, ua.StatusBadSessionClosed, r.Response.ResponseHeader.ServiceResult)
	}
	assert.Empty(t, s.TakeResponses())

	err = s.EnqueuePublishRequest(at(2), 3, publishReq(0))
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Zero(t, s.QueueLen())
}

// ============================================================================
// State machine
// ============================================================================

func TestKeepAliveCycle(t *testing.T) {
	s, m := newEngine(t, DefaultConfig())
	id, _, err := s.Create(t0, defaultParams())
	require.NoError(t, err)

	require.NoError(t, s.EnqueuePublishRequest(t0, 1, publishReq(0)))
	s.Tick(nil, at(100))

	responses := s.TakeResponses()
	require.Len(t, responses, 1, "first cycle always sends a message")
	assert.Empty(t, responses[0].Response.NotificationMessage.NotificationData)
	assert.Equal(t, uint32(1), responses[0].Response.NotificationMessage.SequenceNumber)
	state, _ := s.Lookup(id)
	assert.Equal(t, StateKeepAlive, state)

	require.NoError(t, s.EnqueuePublishRequest(at(100), 2, publishReq(0)))
	s.Tick(nil, at(200))
	s.Tick(nil, at(300))
	assert.Empty(t, s.TakeResponses())

	s.Tick(nil, at(400))
	responses = s.TakeResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, uint32(2), responses[0].RequestID)
	assert.Equal(t, uint32(1), responses[0].Response.NotificationMessage.SequenceNumber, "keep-alive does not consume a sequence number")
	assert.Equal(t, 2, m.keepAlive)
}

func TestLateSubscriptionServedOnArrival(t *testing.T) {
	as := newSpace(t)
	s, _ := newEngine(t, DefaultConfig())
	id := createWithItem(t, s, as, defaultParams())

	s.Tick(as, at(100))
	state, _ := s.Lookup(id)
	assert.Equal(t, StateLate, state)
	assert.Empty(t, s.TakeResponses())

	require.NoError(t, s.EnqueuePublishRequest(at(150), 1, publishReq(0)))

	responses := s.TakeResponses()
	require.Len(t, responses, 1)
	assert.Len(t, responses[0].Response.NotificationMessage.NotificationData, 1)
	state, _ = s.Lookup(id)
	assert.Equal(t, StateNormal, state)
}

func TestLifetimeExpiryClosesSubscription(t *testing.T) {
	s, m := newEngine(t, DefaultConfig())
	p := defaultParams()
	p.MaxKeepAliveCount = 1
	p.LifetimeCount = 3
	id, revised, err := s.Create(t0, p)
	require.NoError(t, err)
	require.Equal(t, uint32(3), revised.LifetimeCount)

	s.Tick(nil, at(100))
	s.Tick(nil, at(200))
	_, ok := s.Lookup(id)
	assert.True(t, ok)

	s.Tick(nil, at(300))
	_, ok = s.Lookup(id)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
	assert.Equal(t, []string{"lifetime expired"}, m.closed)
}

func TestPublishRequestResetsLifetime(t *testing.T) {
	s, _ := newEngine(t, DefaultConfig())
	p := defaultParams()
	p.MaxKeepAliveCount = 1
	p.LifetimeCount = 3
	id, _, err := s.Create(t0, p)
	require.NoError(t, err)

	s.Tick(nil, at(100))
	s.Tick(nil, at(200))
	require.NoError(t, s.EnqueuePublishRequest(at(250), 1, publishReq(0)))
	s.Tick(nil, at(300))

	_, ok := s.Lookup(id)
	assert.True(t, ok)
}

func TestLateFirstPriority(t *testing.T) {
	for _, tt := range []struct {
		policy Priority
		want   int
	}{
		{PriorityLateFirst, 1},
		{PriorityInOrder, 0},
	} {
		t.Run(tt.policy.String(), func(t *testing.T) {
			as := newSpace(t)
			cfg := DefaultConfig()
			cfg.Priority = tt.policy
			s, _ := newEngine(t, cfg)

			ids := []uint32{
				createWithItem(t, s, as, defaultParams()),
				createWithItem(t, s, as, defaultParams()),
			}
			normal, late := s.subs[ids[0]], s.subs[ids[1]]
			normal.state, normal.pending = StateNormal, actionNotify
			late.state, late.pending = StateLate, actionNotify

			require.NoError(t, s.requests.Push(&PublishRequest{RequestID: 1, Request: publishReq(0), ReceivedAt: t0}))
			s.match(t0)

			responses := s.TakeResponses()
			require.Len(t, responses, 1)
			assert.Equal(t, ids[tt.want], responses[0].Response.SubscriptionID)
			assert.Equal(t, StateLate, s.subs[ids[1-tt.want]].state)
		})
	}
}

func TestDataChangeNotification(t *testing.T) {
	as := newSpace(t)
	s, _ := newEngine(t, DefaultConfig())
	createWithItem(t, s, as, defaultParams())

	require.NoError(t, s.EnqueuePublishRequest(t0, 1, publishReq(0)))
	s.Tick(as, at(100))
	require.Len(t, s.TakeResponses(), 1)

	as.Lock()
	n, _ := as.FindNode(varID)
	require.NoError(t, n.SetAttribute(ua.AttributeIDValue, ua.MustVariant(int32(42)), at(150)))
	as.Unlock()

	require.NoError(t, s.EnqueuePublishRequest(at(150), 2, publishReq(0)))
	s.Tick(as, at(200))

	responses := s.TakeResponses()
	require.Len(t, responses, 1)
	dc := responses[0].Response.NotificationMessage.NotificationData[0].Value.(*ua.DataChangeNotification)
	require.Len(t, dc.MonitoredItems, 1)
	assert.Equal(t, int32(42), dc.MonitoredItems[0].Value.Value.Value())
	assert.Equal(t, at(150), dc.MonitoredItems[0].Value.SourceTimestamp)
	assert.Equal(t, uint32(2), responses[0].Response.NotificationMessage.SequenceNumber)
}

func TestMoreNotifications(t *testing.T) {
	as := newSpace(t)
	s, _ := newEngine(t, DefaultConfig())
	p := defaultParams()
	p.MaxNotificationsPerPublish = 1
	id := createWithItem(t, s, as, p)

	sub := s.subs[id]
	for _, item := range sub.items {
		item.enqueue(&ua.MonitoredItemNotification{ClientHandle: 5})
	}

	require.NoError(t, s.EnqueuePublishRequest(t0, 1, publishReq(0)))
	require.NoError(t, s.EnqueuePublishRequest(t0, 2, publishReq(0)))
	s.Tick(as, at(100))

	responses := s.TakeResponses()
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Response.MoreNotifications)

	s.Tick(as, at(110))
	responses = s.TakeResponses()
	require.Len(t, responses, 1)
	assert.False(t, responses[0].Response.MoreNotifications)
	assert.Equal(t, uint32(2), responses[0].RequestID)
}

// ============================================================================
// Acknowledgements and service operations
// ============================================================================

func TestAcknowledgements(t *testing.T) {
	as := newSpace(t)
	s, _ := newEngine(t, DefaultConfig())
	id := createWithItem(t, s, as, defaultParams())

	require.NoError(t, s.EnqueuePublishRequest(t0, 1, publishReq(0)))
	s.Tick(as, at(100))
	require.Len(t, s.TakeResponses(), 1)

	require.NoError(t, s.EnqueuePublishRequest(at(100), 2, &ua.PublishRequest{
		RequestHeader: &ua.RequestHeader{},
		SubscriptionAcknowledgements: []*ua.SubscriptionAcknowledgement{
			{SubscriptionID: id, SequenceNumber: 1},
			{SubscriptionID: id, SequenceNumber: 99},
			{SubscriptionID: 0xFFFFFF, SequenceNumber: 1},
		},
	}))
	s.DrainPublishRequests(at(110), ua.StatusBadSessionClosed)

	responses := s.TakeResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, []ua.StatusCode{
		ua.StatusOK,
		ua.StatusBadSequenceNumberUnknown,
		ua.StatusBadSubscriptionIDInvalid,
	}, responses[0].Response.Results)
}

func TestRejectedPublishKeepsAcknowledgements(t *testing.T) {
	as := newSpace(t)
	cfg := DefaultConfig()
	cfg.MaxPublishRequests = 1
	s, _ := newEngine(t, cfg)
	id := createWithItem(t, s, as, defaultParams())

	require.NoError(t, s.EnqueuePublishRequest(t0, 1, publishReq(0)))
	s.Tick(as, at(100))
	require.Len(t, s.TakeResponses(), 1)

	// Occupies the only slot until it times out at 150ms.
	require.NoError(t, s.EnqueuePublishRequest(at(100), 2, publishReq(50)))

	ack := func() *ua.PublishRequest {
		return &ua.PublishRequest{
			RequestHeader: &ua.RequestHeader{},
			SubscriptionAcknowledgements: []*ua.SubscriptionAcknowledgement{
				{SubscriptionID: id, SequenceNumber: 1},
			},
		}
	}
	err := s.EnqueuePublishRequest(at(110), 3, ack())
	assert.ErrorIs(t, err, ErrTooManyPublishRequests)

	require.NoError(t, s.EnqueuePublishRequest(at(200), 4, ack()))
	s.DrainPublishRequests(at(210), ua.StatusBadSessionClosed)

	var retried *ua.PublishResponse
	for _, r := range s.TakeResponses() {
		if r.RequestID == 4 {
			retried = r.Response
		}
	}
	require.NotNil(t, retried)
	assert.Equal(t, []ua.StatusCode{ua.StatusOK}, retried.Results)
}

func TestCreateRevisesParameters(t *testing.T) {
	s, _ := newEngine(t, DefaultConfig())
	_, revised, err := s.Create(t0, Parameters{PublishingInterval: time.Millisecond, MaxKeepAliveCount: 10, LifetimeCount: 5})
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, revised.PublishingInterval)
	assert.Equal(t, uint32(30), revised.LifetimeCount)
	assert.Equal(t, uint32(1000), revised.MaxNotificationsPerPublish)
}

func TestCreateTooManySubscriptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSubscriptions = 1
	s, _ := newEngine(t, cfg)

	_, _, err := s.Create(t0, defaultParams())
	require.NoError(t, err)
	_, _, err = s.Create(t0, defaultParams())
	assert.ErrorIs(t, err, ErrTooManySubscriptions)
}

func TestDeleteSubscriptions(t *testing.T) {
	s, m := newEngine(t, DefaultConfig())
	id, _, err := s.Create(t0, defaultParams())
	require.NoError(t, err)

	results := s.Delete([]uint32{id, id})
	assert.Equal(t, []ua.StatusCode{ua.StatusOK, ua.StatusBadSubscriptionIDInvalid}, results)
	assert.Equal(t, []string{"deleted"}, m.closed)
}

func TestCreateMonitoredItemsPerItemStatus(t *testing.T) {
	as := newSpace(t)
	s, _ := newEngine(t, DefaultConfig())
	id, _, err := s.Create(t0, defaultParams())
	require.NoError(t, err)

	results, err := s.CreateMonitoredItems(as, t0, id, []ItemRequest{
		{NodeID: varID, AttributeID: ua.AttributeIDValue, Mode: MonitoringModeReporting},
		{NodeID: ua.NewNumericNodeID(1, 404), AttributeID: ua.AttributeIDValue},
		{NodeID: varID, AttributeID: ua.AttributeIDIsAbstract},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, ua.StatusOK, results[0].Status)
	assert.Equal(t, 50*time.Millisecond, results[0].RevisedSamplingInterval)
	assert.Equal(t, uint32(1), results[0].RevisedQueueSize)
	assert.Equal(t, ua.StatusBadNodeIDUnknown, results[1].Status)
	assert.Equal(t, ua.StatusBadAttributeIDInvalid, results[2].Status)

	_, err = s.CreateMonitoredItems(as, t0, 12345678, nil)
	assert.ErrorIs(t, err, ErrSubscriptionIDInvalid)

	del, err := s.DeleteMonitoredItems(id, []uint32{results[0].MonitoredItemID, 1 << 30})
	require.NoError(t, err)
	assert.Equal(t, []ua.StatusCode{ua.StatusOK, ua.StatusBadMonitoredItemIDInvalid}, del)
}

func TestStatsAndList(t *testing.T) {
	as := newSpace(t)
	s, _ := newEngine(t, DefaultConfig())
	id := createWithItem(t, s, as, defaultParams())
	require.NoError(t, s.EnqueuePublishRequest(t0, 1, publishReq(0)))

	st := s.Stats()
	assert.Equal(t, Stats{Subscriptions: 1, MonitoredItems: 1, QueuedPublishRequests: 1}, st)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "Creating", list[0].State)
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("in-order")
	require.NoError(t, err)
	assert.Equal(t, PriorityInOrder, p)

	p, err = ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityLateFirst, p)

	_, err = ParsePriority("random")
	assert.Error(t, err)
}
