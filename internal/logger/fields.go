package logger

import (
	"log/slog"
)

// Field keys shared by every log statement in the server.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyService       = "service"
	KeyRequestHandle = "request_handle"
	KeyStatus        = "status"
	KeyClientAddr    = "client_addr"
	KeyEndpoint      = "endpoint"

	KeySessionID      = "session_id"
	KeySessionName    = "session_name"
	KeySubscriptionID = "subscription_id"
	KeyRequestID      = "request_id"
	KeySequenceNumber = "sequence_number"
	KeyNodeID         = "node_id"
	KeyAttributeID    = "attribute_id"
	KeyUser           = "user"

	KeyCount      = "count"
	KeyEvicted    = "evicted"
	KeyExpired    = "expired"
	KeyPurged     = "purged"
	KeyReason     = "reason"
	KeyQueueDepth = "queue_depth"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// Err returns an error attribute, or an empty attribute for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// SessionID returns a session id attribute.
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// Service returns a service name attribute.
func Service(name string) slog.Attr {
	return slog.String(KeyService, name)
}

// Status returns a status code attribute rendered by its String method.
func Status(s interface{ String() string }) slog.Attr {
	return slog.String(KeyStatus, s.String())
}

// SubscriptionID returns a subscription id attribute.
func SubscriptionID(id uint32) slog.Attr {
	return slog.Uint64(KeySubscriptionID, uint64(id))
}

// DurationMs returns a duration attribute in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
