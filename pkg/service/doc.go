// Package service implements the OPC UA service sets the server core
// answers: the Session service set (CreateSession, ActivateSession,
// CloseSession), the Attribute service set (Read, Write), the View service
// set (Browse, BrowseNext) and the Subscription and MonitoredItem service
// sets (CreateSubscription, DeleteSubscriptions, SetPublishingMode,
// CreateMonitoredItems, DeleteMonitoredItems, Publish).
//
// Handlers receive decoded requests and return decoded responses. Wire
// encoding, chunking and secure channel cryptography happen in the
// transport before a request reaches this package.
//
// Failures follow one taxonomy:
//   - per-item problems are StatusCodes inside the result slice and never
//     stop the batch
//   - request-level problems (nothing to do, invalid session, queue full)
//     are returned as an error that is a ua.StatusCode; the caller turns it
//     into a ServiceFault
package service

import (
	"context"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/pkg/addressspace"
	"github.com/marmos91/opcuad/pkg/audit"
	"github.com/marmos91/opcuad/pkg/session"
)

// Handler holds the collaborators every service needs.
type Handler struct {
	// Sessions is the server-wide session table.
	Sessions *session.Manager

	// Space is the shared address space. Handlers take its read lock for
	// Read and Browse and its write lock for Write.
	Space *addressspace.AddressSpace

	// Audit records session lifecycle and Write events. May be nil.
	Audit *audit.Log

	// Endpoints are returned from CreateSession.
	Endpoints []*ua.EndpointDescription

	// Clock is the time source; defaults to time.Now.
	Clock func() time.Time
}

// Context carries per-request state into a handler.
type Context struct {
	context.Context

	// Session is the validated session the request runs on. It is nil for
	// CreateSession and ActivateSession, which resolve the session
	// themselves.
	Session *session.Session

	// ClientAddr is the remote address of the transport connection.
	ClientAddr string

	// RequestID is the secure channel request id, used to route
	// asynchronous Publish responses.
	RequestID uint32
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// responseHeader builds a response header echoing the request handle.
func (h *Handler) responseHeader(req *ua.RequestHeader, status ua.StatusCode) *ua.ResponseHeader {
	rh := &ua.ResponseHeader{
		Timestamp:     h.now(),
		ServiceResult: status,
	}
	if req != nil {
		rh.RequestHandle = req.RequestHandle
	}
	return rh
}

func (h *Handler) cancelled(ctx *Context) error {
	if ctx == nil || ctx.Context == nil {
		return nil
	}
	return ctx.Err()
}

// ctxOf returns a context usable for logging even when the request
// carried none.
func ctxOf(ctx *Context) context.Context {
	if ctx == nil || ctx.Context == nil {
		return context.Background()
	}
	return ctx
}
