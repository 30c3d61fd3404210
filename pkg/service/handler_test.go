package service

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/opcuad/pkg/addressspace"
	"github.com/marmos91/opcuad/pkg/audit"
	"github.com/marmos91/opcuad/pkg/identity"
	"github.com/marmos91/opcuad/pkg/securechannel"
	"github.com/marmos91/opcuad/pkg/session"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	h       *Handler
	ctx     *Context
	audited *bytes.Buffer
	now     time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T, cfg session.Config) *fixture {
	t.Helper()

	auth, err := identity.NewAuthenticator(identity.Config{AllowAnonymous: true})
	require.NoError(t, err)

	f := &fixture{audited: &bytes.Buffer{}, now: t0}
	clock := func() time.Time { return f.now }

	mgr := session.NewManager(cfg, auth, securechannel.NewEmptyCertificateStore())
	mgr.SetClock(clock)

	f.h = &Handler{
		Sessions: mgr,
		Space:    addressspace.NewStandard(t0),
		Audit:    audit.New(f.audited),
		Clock:    clock,
	}

	created, err := f.h.CreateSession(&Context{Context: context.Background(), ClientAddr: "127.0.0.1:50000"}, &ua.CreateSessionRequest{
		RequestHeader:           &ua.RequestHeader{RequestHandle: 1},
		SessionName:             "fixture",
		EndpointURL:             "opc.tcp://localhost:4840",
		RequestedSessionTimeout: 60000,
	})
	require.NoError(t, err)

	_, err = f.h.ActivateSession(&Context{Context: context.Background()}, &ua.ActivateSessionRequest{
		RequestHeader: &ua.RequestHeader{RequestHandle: 2, AuthenticationToken: created.AuthenticationToken},
	})
	require.NoError(t, err)

	s, err := mgr.Validate(created.AuthenticationToken)
	require.NoError(t, err)
	f.ctx = &Context{Context: context.Background(), Session: s, ClientAddr: "127.0.0.1:50000"}
	return f
}

// addVariables adds n Int32 variables v0..v(n-1) in namespace 1 under the
// Objects folder, each with value 0 and the default CurrentRead access.
func (f *fixture) addVariables(t *testing.T, n int) []*ua.NodeID {
	t.Helper()
	f.h.Space.Lock()
	defer f.h.Space.Unlock()

	ids := make([]*ua.NodeID, n)
	for i := range ids {
		ids[i] = ua.NewStringNodeID(1, fmt.Sprintf("v%d", i))
		v := addressspace.NewVariable(ids[i], fmt.Sprintf("v%d", i), ua.MustVariant(int32(0)))
		require.NoError(t, f.h.Space.AddNode(v))
		require.NoError(t, f.h.Space.AddReference(addressspace.ObjectsFolderID, addressspace.HasComponentID, ids[i]))
	}
	return ids
}

func (f *fixture) node(t *testing.T, id *ua.NodeID) *addressspace.Node {
	t.Helper()
	n, ok := f.h.Space.FindNode(id)
	require.True(t, ok, "node %s", id)
	return n
}

func (f *fixture) auditEvents(t *testing.T) []audit.Event {
	t.Helper()
	events, err := audit.NewReader(bytes.NewReader(f.audited.Bytes()), audit.Filter{}).ReadAll()
	require.NoError(t, err)
	return events
}
