package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/opcuad/pkg/addressspace"
	"github.com/marmos91/opcuad/pkg/identity"
	"github.com/marmos91/opcuad/pkg/securechannel"
	"github.com/marmos91/opcuad/pkg/session"
	"github.com/marmos91/opcuad/pkg/subscription"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type recordingMetrics struct {
	mu        sync.Mutex
	requests  map[string][]string
	inFlight  map[string]int
	delivered int
	ticks     int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{requests: map[string][]string{}, inFlight: map[string]int{}}
}

func (m *recordingMetrics) RecordRequest(service string, _ time.Duration, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[service] = append(m.requests[service], status)
}

func (m *recordingMetrics) RecordRequestStart(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[service]++
}

func (m *recordingMetrics) RecordRequestEnd(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[service]--
}

func (m *recordingMetrics) RecordPublishDelivered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered += n
}

func (m *recordingMetrics) RecordTick(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
}

func (m *recordingMetrics) ticksSeen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}

type delivered struct {
	mu      sync.Mutex
	results []subscription.PublishResult
}

func (d *delivered) deliver(_ *session.Session, results []subscription.PublishResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, results...)
}

func (d *delivered) all() []subscription.PublishResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]subscription.PublishResult(nil), d.results...)
}

type fixture struct {
	srv     *Server
	metrics *recordingMetrics
	out     *delivered
	now     time.Time
	token   *ua.NodeID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	auth, err := identity.NewAuthenticator(identity.Config{AllowAnonymous: true})
	require.NoError(t, err)

	f := &fixture{metrics: newRecordingMetrics(), out: &delivered{}, now: t0}
	mgr := session.NewManager(session.Config{}, auth, securechannel.NewEmptyCertificateStore())
	space := addressspace.NewStandard(t0)

	f.srv = New(Config{TickInterval: time.Millisecond}, mgr, space, nil, f.metrics)
	f.srv.SetClock(func() time.Time { return f.now })
	f.srv.SetDeliver(f.out.deliver)
	return f
}

func (f *fixture) dispatch(body any) any {
	return f.srv.Dispatch(context.Background(), Request{ClientAddr: "10.0.0.5:40000", RequestID: 9, Body: body})
}

func (f *fixture) header(handle uint32) *ua.RequestHeader {
	return &ua.RequestHeader{RequestHandle: handle, AuthenticationToken: f.token}
}

// open creates and activates an anonymous session through Dispatch.
func (f *fixture) open(t *testing.T) {
	t.Helper()

	created, ok := f.dispatch(&ua.CreateSessionRequest{
		RequestHeader:           &ua.RequestHeader{RequestHandle: 1},
		SessionName:             "server-test",
		RequestedSessionTimeout: 60000,
	}).(*ua.CreateSessionResponse)
	require.True(t, ok)
	f.token = created.AuthenticationToken

	_, ok = f.dispatch(&ua.ActivateSessionRequest{RequestHeader: f.header(2)}).(*ua.ActivateSessionResponse)
	require.True(t, ok)
}

func faultStatus(t *testing.T, resp any) ua.StatusCode {
	t.Helper()
	fault, ok := resp.(*ua.ServiceFault)
	require.True(t, ok, "expected ServiceFault, got %T", resp)
	return fault.ResponseHeader.ServiceResult
}

func TestDispatch_Read(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	resp, ok := f.dispatch(&ua.ReadRequest{
		RequestHeader: f.header(3),
		NodesToRead: []*ua.ReadValueID{
			{NodeID: addressspace.ObjectsFolderID, AttributeID: ua.AttributeIDBrowseName},
		},
	}).(*ua.ReadResponse)
	require.True(t, ok)
	assert.Equal(t, uint32(3), resp.ResponseHeader.RequestHandle)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, ua.StatusOK, resp.Results[0].Status)

	diags := f.srv.Sessions().Sessions()
	require.Len(t, diags, 1)
	assert.Equal(t, uint64(3), diags[0].Requests)
	assert.Equal(t, session.ServiceCounter{Total: 1}, diags[0].Services["CreateSession"])
	assert.Equal(t, session.ServiceCounter{Total: 1}, diags[0].Services["Read"])

	assert.Equal(t, []string{""}, f.metrics.requests["Read"])
	assert.Equal(t, 0, f.metrics.inFlight["Read"])
}

func TestDispatch_Faults(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	tests := []struct {
		name string
		body any
		want ua.StatusCode
	}{
		{
			name: "unknown token",
			body: &ua.ReadRequest{RequestHeader: &ua.RequestHeader{
				RequestHandle:       4,
				AuthenticationToken: ua.NewGUIDNodeID(0, "72962B91-FA75-4AE6-8D28-B404DC7DAF63"),
			}},
			want: ua.StatusBadSessionIDInvalid,
		},
		{
			name: "nothing to do",
			body: &ua.ReadRequest{RequestHeader: f.header(5)},
			want: ua.StatusBadNothingToDo,
		},
		{
			name: "publish without subscriptions",
			body: &ua.PublishRequest{RequestHeader: f.header(6)},
			want: ua.StatusBadNoSubscription,
		},
		{
			name: "unsupported service",
			body: &ua.CallRequest{RequestHeader: f.header(7)},
			want: ua.StatusBadServiceUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, faultStatus(t, f.dispatch(tt.body)))
		})
	}

	diags := f.srv.Sessions().Sessions()
	require.Len(t, diags, 1)
	assert.Equal(t, session.ServiceCounter{Total: 1, Errors: 1}, diags[0].Services["Read"])
	assert.Equal(t, session.ServiceCounter{Total: 1, Errors: 1}, diags[0].Services["Publish"])
	assert.Equal(t, []string{"BadSessionIDInvalid", "BadNothingToDo"}, f.metrics.requests["Read"])
}

func TestDispatch_NotActivated(t *testing.T) {
	f := newFixture(t)

	created, ok := f.dispatch(&ua.CreateSessionRequest{
		RequestHeader:           &ua.RequestHeader{RequestHandle: 1},
		RequestedSessionTimeout: 60000,
	}).(*ua.CreateSessionResponse)
	require.True(t, ok)
	f.token = created.AuthenticationToken

	resp := f.dispatch(&ua.BrowseRequest{RequestHeader: f.header(2)})
	assert.Equal(t, ua.StatusBadSessionNotActivated, faultStatus(t, resp))
}

func TestDispatch_CloseSession(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	_, ok := f.dispatch(&ua.CloseSessionRequest{RequestHeader: f.header(3), DeleteSubscriptions: true}).(*ua.CloseSessionResponse)
	require.True(t, ok)

	resp := f.dispatch(&ua.ReadRequest{
		RequestHeader: f.header(4),
		NodesToRead:   []*ua.ReadValueID{{NodeID: addressspace.ObjectsFolderID, AttributeID: ua.AttributeIDNodeID}},
	})
	assert.Equal(t, ua.StatusBadSessionClosed, faultStatus(t, resp))
}

// subscribe creates a subscription monitoring the Objects folder
// BrowseName and returns its id.
func (f *fixture) subscribe(t *testing.T) uint32 {
	t.Helper()

	sub, ok := f.dispatch(&ua.CreateSubscriptionRequest{
		RequestHeader:               f.header(10),
		RequestedPublishingInterval: 100,
		RequestedLifetimeCount:      30,
		RequestedMaxKeepAliveCount:  3,
		PublishingEnabled:           true,
	}).(*ua.CreateSubscriptionResponse)
	require.True(t, ok)
	return sub.SubscriptionID
}

func TestDrive_DeliversKeepAlive(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	subID := f.subscribe(t)

	assert.Nil(t, f.dispatch(&ua.PublishRequest{RequestHeader: f.header(11)}))

	// Keep-alive count 3 at 100ms: the first publishing cycle with nothing
	// to report answers the queued request once the keep-alive is due.
	for i := 0; i < 5 && len(f.out.all()) == 0; i++ {
		f.now = f.now.Add(100 * time.Millisecond)
		f.srv.Drive(context.Background(), f.now)
	}

	results := f.out.all()
	require.Len(t, results, 1)
	assert.Equal(t, uint32(9), results[0].RequestID)
	assert.Equal(t, subID, results[0].Response.SubscriptionID)
	assert.Empty(t, results[0].Response.NotificationMessage.NotificationData)
	assert.Equal(t, 1, f.metrics.delivered)
}

func TestDrive_SweepsIdleSessions(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	f.srv.Drive(context.Background(), f.now)
	require.Equal(t, 1, f.srv.Sessions().Len())

	f.now = f.now.Add(61 * time.Second)
	f.srv.Drive(context.Background(), f.now)

	diags := f.srv.Sessions().Sessions()
	require.Len(t, diags, 1)
	assert.Equal(t, "terminated", diags[0].State)

	f.now = f.now.Add(session.DefaultTerminatedRetention + time.Second)
	f.srv.Drive(context.Background(), f.now)
	assert.Empty(t, f.srv.Sessions().Sessions())
}

func TestStop_DrainsPublishRequests(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.subscribe(t)
	assert.Nil(t, f.dispatch(&ua.PublishRequest{RequestHeader: f.header(11)}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- f.srv.Serve(ctx) }()

	require.Eventually(t, func() bool { return f.metrics.ticksSeen() > 0 }, time.Second, time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, f.srv.Stop(stopCtx))
	require.NoError(t, <-errc)

	results := f.out.all()
	require.Len(t, results, 1)
	assert.Equal(t, ua.StatusBadSessionClosed, results[0].Response.ResponseHeader.ServiceResult)

	assert.ErrorIs(t, f.srv.Serve(context.Background()), ErrServerStopped)
	assert.NoError(t, f.srv.Stop(stopCtx))
}

func TestServe_ContextCancelled(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.srv.Serve(ctx), context.Canceled)
	assert.Equal(t, "terminated", f.srv.Sessions().Sessions()[0].State)
}

func TestStop_BeforeServe(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	require.NoError(t, f.srv.Stop(context.Background()))
	assert.Equal(t, "terminated", f.srv.Sessions().Sessions()[0].State)
	assert.ErrorIs(t, f.srv.Serve(context.Background()), ErrServerStopped)
}
