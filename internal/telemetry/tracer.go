package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys attached to OPC UA spans.
const (
	AttrClientAddr = "client.address"

	AttrService        = "opcua.service"        // Read, Browse, Publish, ...
	AttrRequestHandle  = "opcua.request_handle" // client-chosen request handle
	AttrRequestID      = "opcua.request_id"     // secure channel request id
	AttrSessionID      = "opcua.session_id"
	AttrStatus         = "opcua.status"      // service result name
	AttrStatusCode     = "opcua.status_code" // numeric service result
	AttrItems          = "opcua.items"       // batch size of the request
	AttrSubscriptionID = "opcua.subscription_id"

	AttrSessions   = "opcuad.sessions"   // live sessions at driver tick
	AttrDeliveries = "opcuad.deliveries" // publish responses produced by a tick
	AttrExpired    = "opcuad.expired"    // sessions terminated by the idle sweep
	AttrPurged     = "opcuad.purged"     // terminated sessions removed from the table

	AttrUsername = "user.name"
	AttrAuth     = "auth.method"
)

// Span names. Service calls use "opcua.<Service>"; internal work uses
// "<component>.<operation>".
const (
	SpanServicePrefix = "opcua."

	SpanDriverTick  = "driver.tick"
	SpanDriverSweep = "driver.sweep"
)

// ClientAddr returns an attribute for the client transport address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Service returns an attribute for the OPC UA service name.
func Service(name string) attribute.KeyValue {
	return attribute.String(AttrService, name)
}

// RequestHandle returns an attribute for the request header handle.
func RequestHandle(handle uint32) attribute.KeyValue {
	return attribute.Int64(AttrRequestHandle, int64(handle))
}

// RequestID returns an attribute for the secure channel request id.
func RequestID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrRequestID, int64(id))
}

// SessionID returns an attribute for the session id.
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// Status returns attributes for a service result.
func Status(name string, code uint32) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStatus, name),
		attribute.Int64(AttrStatusCode, int64(code)),
	}
}

// Items returns an attribute for the number of items in a batch request.
func Items(n int) attribute.KeyValue {
	return attribute.Int(AttrItems, n)
}

// SubscriptionID returns an attribute for a subscription id.
func SubscriptionID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrSubscriptionID, int64(id))
}

// Username returns an attribute for the authenticated user.
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// AuthMethod returns an attribute for the identity token kind.
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// StartServiceSpan starts a span for one OPC UA service call.
func StartServiceSpan(ctx context.Context, service string, requestHandle uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Service(service),
		RequestHandle(requestHandle),
	}
	allAttrs = append(allAttrs, attrs...)

	return Tracer().Start(ctx, SpanServicePrefix+service,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(allAttrs...))
}

// StartDriverSpan starts a span for a periodic driver pass.
func StartDriverSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// Sessions returns an attribute for the session table size.
func Sessions(n int) attribute.KeyValue {
	return attribute.Int(AttrSessions, n)
}

// Deliveries returns an attribute for publish responses produced by a pass.
func Deliveries(n int) attribute.KeyValue {
	return attribute.Int(AttrDeliveries, n)
}

// Expired returns an attribute for sessions terminated by the idle sweep.
func Expired(n int) attribute.KeyValue {
	return attribute.Int(AttrExpired, n)
}

// Purged returns an attribute for terminated sessions removed from the table.
func Purged(n int) attribute.KeyValue {
	return attribute.Int(AttrPurged, n)
}
