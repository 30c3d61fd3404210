package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/opcuad/pkg/audit"
	"github.com/marmos91/opcuad/pkg/session"
)

func TestCreateSession(t *testing.T) {
	f := newFixture(t, session.Config{MaxTimeout: 10 * time.Minute})

	resp, err := f.h.CreateSession(&Context{Context: context.Background(), ClientAddr: "10.0.0.2:4000"}, &ua.CreateSessionRequest{
		RequestHeader:           &ua.RequestHeader{RequestHandle: 5},
		SessionName:             "second",
		ClientNonce:             make([]byte, 32),
		RequestedSessionTimeout: float64(time.Hour / time.Millisecond),
	})
	require.NoError(t, err)

	assert.Equal(t, uint32(5), resp.ResponseHeader.RequestHandle)
	assert.Equal(t, float64(10*60*1000), resp.RevisedSessionTimeout)
	assert.Len(t, resp.ServerNonce, 32)
	assert.NotEqual(t, f.ctx.Session.ID().String(), resp.SessionID.String())
	assert.Equal(t, ua.NodeIDTypeGUID, resp.AuthenticationToken.Type())

	s, ok := f.h.Sessions.LookupByToken(resp.AuthenticationToken)
	require.True(t, ok)
	assert.Equal(t, session.StateCreated, s.State())
	assert.Equal(t, "second", s.Name())
}

func TestCreateSession_ShortNonce(t *testing.T) {
	f := newFixture(t, session.Config{})

	_, err := f.h.CreateSession(&Context{Context: context.Background()}, &ua.CreateSessionRequest{
		ClientNonce: make([]byte, 16),
	})
	assert.Equal(t, ua.StatusBadNonceInvalid, err)
}

func TestCreateSession_TooMany(t *testing.T) {
	f := newFixture(t, session.Config{MaxSessions: 1})

	_, err := f.h.CreateSession(&Context{Context: context.Background()}, &ua.CreateSessionRequest{SessionName: "overflow"})
	assert.Equal(t, ua.StatusBadTooManySessions, err)

	fault := f.h.Fault(&ua.RequestHeader{RequestHandle: 9}, err)
	assert.Equal(t, ua.StatusBadTooManySessions, fault.ResponseHeader.ServiceResult)
	assert.Equal(t, uint32(9), fault.ResponseHeader.RequestHandle)

	events := f.auditEvents(t)
	last := events[len(events)-1]
	assert.Equal(t, audit.KindCreateSession, last.Kind)
	assert.Equal(t, uint32(ua.StatusBadTooManySessions), last.Status)
	assert.Empty(t, last.SessionID)
}

func TestActivateSession(t *testing.T) {
	f := newFixture(t, session.Config{})

	created, err := f.h.CreateSession(&Context{Context: context.Background()}, &ua.CreateSessionRequest{SessionName: "activate"})
	require.NoError(t, err)

	resp, err := f.h.ActivateSession(&Context{Context: context.Background()}, &ua.ActivateSessionRequest{
		RequestHeader:     &ua.RequestHeader{AuthenticationToken: created.AuthenticationToken},
		UserIdentityToken: ua.NewExtensionObject(&ua.AnonymousIdentityToken{PolicyID: "anonymous"}),
	})
	require.NoError(t, err)
	assert.Len(t, resp.ServerNonce, 32)
	assert.NotEqual(t, created.ServerNonce, resp.ServerNonce)

	s, err := f.h.Sessions.Validate(created.AuthenticationToken)
	require.NoError(t, err)
	assert.True(t, s.IsActivated())
	assert.Equal(t, "anonymous", s.User().Name)

	events := f.auditEvents(t)
	last := events[len(events)-1]
	assert.Equal(t, audit.KindActivateSession, last.Kind)
	assert.Equal(t, uint32(ua.StatusOK), last.Status)
	assert.Equal(t, "anonymous", last.Detail)
}

func TestActivateSession_Errors(t *testing.T) {
	f := newFixture(t, session.Config{})

	_, err := f.h.ActivateSession(&Context{Context: context.Background()}, &ua.ActivateSessionRequest{
		RequestHeader: &ua.RequestHeader{AuthenticationToken: ua.NewGUIDNodeID(0, "72962B91-FA75-4AE6-8D28-B404DC7DAF63")},
	})
	assert.Equal(t, ua.StatusBadSessionIDInvalid, err)

	_, err = f.h.ActivateSession(&Context{Context: context.Background()}, &ua.ActivateSessionRequest{
		RequestHeader:     &ua.RequestHeader{AuthenticationToken: f.ctx.Session.AuthenticationToken()},
		UserIdentityToken: ua.NewExtensionObject(&ua.UserNameIdentityToken{UserName: "nobody", Password: []byte("secret-password")}),
	})
	assert.Equal(t, ua.StatusBadUserAccessDenied, err)
}

func TestCloseSession(t *testing.T) {
	f := newFixture(t, session.Config{})
	token := f.ctx.Session.AuthenticationToken()

	_, err := f.h.CloseSession(f.ctx, &ua.CloseSessionRequest{
		RequestHeader:       &ua.RequestHeader{AuthenticationToken: token},
		DeleteSubscriptions: true,
	})
	require.NoError(t, err)
	assert.True(t, f.ctx.Session.IsTerminated())

	_, err = f.h.Sessions.Validate(token)
	assert.Equal(t, ua.StatusBadSessionClosed, err)

	_, err = f.h.CloseSession(f.ctx, &ua.CloseSessionRequest{
		RequestHeader: &ua.RequestHeader{AuthenticationToken: token},
	})
	assert.Equal(t, ua.StatusBadSessionClosed, err)

	events := f.auditEvents(t)
	last := events[len(events)-1]
	assert.Equal(t, audit.KindCloseSession, last.Kind)
	assert.Equal(t, f.ctx.Session.ID().String(), last.SessionID)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want ua.StatusCode
	}{
		{nil, ua.StatusOK},
		{ua.StatusBadNothingToDo, ua.StatusBadNothingToDo},
		{session.ErrSessionNotFound, ua.StatusBadSessionIDInvalid},
		{context.Canceled, ua.StatusBadShutdown},
		{context.DeadlineExceeded, ua.StatusBadTimeout},
		{errors.New("boom"), ua.StatusBadInternalError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), "%v", tt.err)
	}
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, session.Config{})
	ids := f.addVariables(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.ctx.Context = ctx

	_, err := f.h.Read(f.ctx, &ua.ReadRequest{NodesToRead: []*ua.ReadValueID{readValue(ids[0], ua.AttributeIDValue)}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ua.StatusBadShutdown, StatusOf(err))
}
