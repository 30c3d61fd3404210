package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gopcua/opcua/ua"
	"go.opentelemetry.io/otel/codes"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/internal/telemetry"
	"github.com/marmos91/opcuad/pkg/metrics"
	"github.com/marmos91/opcuad/pkg/service"
	"github.com/marmos91/opcuad/pkg/session"
)

// Request is one decoded service request received on a transport
// connection.
type Request struct {
	// ClientAddr is the remote address of the connection.
	ClientAddr string

	// RequestID is the secure channel request id. Publish responses are
	// delivered under the id of the request they answer.
	RequestID uint32

	// Body is the decoded request, e.g. *ua.ReadRequest.
	Body any
}

// call describes a request before it is run.
type call struct {
	service string
	header  *ua.RequestHeader
	items   int

	// selfResolving services look the session up themselves.
	selfResolving bool
}

func describe(body any) (call, bool) {
	switch r := body.(type) {
	case *ua.CreateSessionRequest:
		return call{service: "CreateSession", header: r.RequestHeader, selfResolving: true}, true
	case *ua.ActivateSessionRequest:
		return call{service: "ActivateSession", header: r.RequestHeader, selfResolving: true}, true
	case *ua.CloseSessionRequest:
		return call{service: "CloseSession", header: r.RequestHeader, selfResolving: true}, true
	case *ua.ReadRequest:
		return call{service: "Read", header: r.RequestHeader, items: len(r.NodesToRead)}, true
	case *ua.WriteRequest:
		return call{service: "Write", header: r.RequestHeader, items: len(r.NodesToWrite)}, true
	case *ua.BrowseRequest:
		return call{service: "Browse", header: r.RequestHeader, items: len(r.NodesToBrowse)}, true
	case *ua.BrowseNextRequest:
		return call{service: "BrowseNext", header: r.RequestHeader, items: len(r.ContinuationPoints)}, true
	case *ua.CreateSubscriptionRequest:
		return call{service: "CreateSubscription", header: r.RequestHeader}, true
	case *ua.DeleteSubscriptionsRequest:
		return call{service: "DeleteSubscriptions", header: r.RequestHeader, items: len(r.SubscriptionIDs)}, true
	case *ua.SetPublishingModeRequest:
		return call{service: "SetPublishingMode", header: r.RequestHeader, items: len(r.SubscriptionIDs)}, true
	case *ua.CreateMonitoredItemsRequest:
		return call{service: "CreateMonitoredItems", header: r.RequestHeader, items: len(r.ItemsToCreate)}, true
	case *ua.DeleteMonitoredItemsRequest:
		return call{service: "DeleteMonitoredItems", header: r.RequestHeader, items: len(r.MonitoredItemIDs)}, true
	case *ua.PublishRequest:
		return call{service: "Publish", header: r.RequestHeader, items: len(r.SubscriptionAcknowledgements)}, true
	}
	return call{}, false
}

// Dispatch runs one request and returns what the transport must encode:
// the service response, a *ua.ServiceFault, or nil for a Publish request
// that was queued and will be answered through the Deliver callback.
func (s *Server) Dispatch(ctx context.Context, req Request) any {
	c, ok := describe(req.Body)
	if !ok {
		logger.WarnCtx(ctx, "Unsupported service request",
			logger.KeyClientAddr, req.ClientAddr,
			logger.KeyRequestID, req.RequestID)
		return s.handler.Fault(nil, ua.StatusBadServiceUnsupported)
	}

	var handle uint32
	var token *ua.NodeID
	if c.header != nil {
		handle = c.header.RequestHandle
		token = c.header.AuthenticationToken
	}

	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext(req.ClientAddr)
	}
	lc = lc.WithService(c.service, handle)

	ctx, span := telemetry.StartServiceSpan(ctx, c.service, handle,
		telemetry.ClientAddr(req.ClientAddr),
		telemetry.RequestID(req.RequestID),
		telemetry.Items(c.items))
	defer span.End()
	lc = lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))

	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordRequestStart(c.service)
		defer s.metrics.RecordRequestEnd(c.service)
	}

	sctx := &service.Context{ClientAddr: req.ClientAddr, RequestID: req.RequestID}

	var sess *session.Session
	if !c.selfResolving {
		var err error
		sess, err = s.sessions.Validate(token)
		if err != nil {
			ctx = logger.WithContext(ctx, lc)
			return s.fail(ctx, c, start, nil, err)
		}
		sctx.Session = sess
		lc = lc.WithSession(sess.ID().String())
		span.SetAttributes(telemetry.SessionID(sess.ID().String()))
	}
	ctx = logger.WithContext(ctx, lc)
	sctx.Context = ctx

	resp, err := s.run(sctx, req.Body)

	if sess == nil {
		// Create, Activate and Close resolve their session inside the handler.
		if t, ok := s.sessions.LookupByToken(token); ok {
			sess = t
		} else if r, ok := resp.(*ua.CreateSessionResponse); ok && r != nil {
			sess, _ = s.sessions.LookupByToken(r.AuthenticationToken)
		}
	}

	if err != nil {
		return s.fail(ctx, c, start, sess, err)
	}

	if sess != nil {
		sess.RecordRequest(c.service, ua.StatusOK)
	}
	metrics.ObserveRequest(s.metrics, c.service, start, "")
	span.SetStatus(codes.Ok, "")
	logger.DebugCtx(ctx, "Service call completed",
		logger.KeyDurationMs, logger.Duration(start))
	return resp
}

// fail records a request-level failure and builds its ServiceFault.
func (s *Server) fail(ctx context.Context, c call, start time.Time, sess *session.Session, err error) *ua.ServiceFault {
	status := service.StatusOf(err)
	if sess != nil {
		sess.RecordRequest(c.service, status)
	}
	metrics.ObserveRequest(s.metrics, c.service, start, statusName(status))

	telemetry.SetAttributes(ctx, telemetry.Status(statusName(status), uint32(status))...)
	telemetry.RecordError(ctx, err)

	logger.DebugCtx(ctx, "Service fault",
		logger.KeyStatus, statusName(status),
		logger.KeyDurationMs, logger.Duration(start))
	return s.handler.Fault(c.header, err)
}

// run calls the handler for body. Publish returns a nil response on
// success.
func (s *Server) run(ctx *service.Context, body any) (any, error) {
	h := s.handler
	switch r := body.(type) {
	case *ua.CreateSessionRequest:
		return h.CreateSession(ctx, r)
	case *ua.ActivateSessionRequest:
		return h.ActivateSession(ctx, r)
	case *ua.CloseSessionRequest:
		return h.CloseSession(ctx, r)
	case *ua.ReadRequest:
		return h.Read(ctx, r)
	case *ua.WriteRequest:
		return h.Write(ctx, r)
	case *ua.BrowseRequest:
		return h.Browse(ctx, r)
	case *ua.BrowseNextRequest:
		return h.BrowseNext(ctx, r)
	case *ua.CreateSubscriptionRequest:
		return h.CreateSubscription(ctx, r)
	case *ua.DeleteSubscriptionsRequest:
		return h.DeleteSubscriptions(ctx, r)
	case *ua.SetPublishingModeRequest:
		return h.SetPublishingMode(ctx, r)
	case *ua.CreateMonitoredItemsRequest:
		return h.CreateMonitoredItems(ctx, r)
	case *ua.DeleteMonitoredItemsRequest:
		return h.DeleteMonitoredItems(ctx, r)
	case *ua.PublishRequest:
		return nil, h.Publish(ctx, r)
	}
	return nil, ua.StatusBadServiceUnsupported
}

// statusName returns the OPC UA symbolic name of status, without the
// "Status" prefix gopcua puts on its descriptions.
func statusName(status ua.StatusCode) string {
	if status == ua.StatusOK {
		return ""
	}
	if d, ok := ua.StatusCodes[status]; ok && d.Name != "" {
		return strings.TrimPrefix(d.Name, "Status")
	}
	return fmt.Sprintf("0x%08X", uint32(status))
}
