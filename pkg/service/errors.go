package service

import (
	"context"
	"errors"

	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/pkg/session"
)

// StatusOf maps an error returned by a handler to the service result code
// reported to the client.
func StatusOf(err error) ua.StatusCode {
	if err == nil {
		return ua.StatusOK
	}

	var status ua.StatusCode
	switch {
	case errors.As(err, &status):
		return status
	case errors.Is(err, session.ErrSessionNotFound):
		return ua.StatusBadSessionIDInvalid
	case errors.Is(err, context.Canceled):
		return ua.StatusBadShutdown
	case errors.Is(err, context.DeadlineExceeded):
		return ua.StatusBadTimeout
	default:
		return ua.StatusBadInternalError
	}
}

// Fault builds the ServiceFault sent in place of a response when a handler
// fails at request level.
func (h *Handler) Fault(req *ua.RequestHeader, err error) *ua.ServiceFault {
	return &ua.ServiceFault{ResponseHeader: h.responseHeader(req, StatusOf(err))}
}
