package service

import (
	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/pkg/audit"
)

// Read returns one DataValue per requested node attribute.
//
// **Process:**
//
//  1. Reject an empty list (BadNothingToDo), a negative max age
//     (BadMaxAgeInvalid) and an unknown timestamps mode
//     (BadTimestampsToReturnInvalid) at request level
//  2. Take the address space read lock once for the whole batch
//  3. Resolve every item independently; the first failing check sets the
//     item status:
//     node absent → BadNodeIdUnknown,
//     attribute not defined for the node class → BadAttributeIdInvalid,
//     Value of a Variable without CurrentRead → BadNotReadable
//  4. Attach source and server timestamps as requested
//
// Index ranges are not supported; items carrying one get
// BadIndexRangeInvalid.
func (h *Handler) Read(ctx *Context, req *ua.ReadRequest) (*ua.ReadResponse, error) {
	if err := h.cancelled(ctx); err != nil {
		return nil, err
	}
	if len(req.NodesToRead) == 0 {
		return nil, ua.StatusBadNothingToDo
	}
	if req.MaxAge < 0 {
		return nil, ua.StatusBadMaxAgeInvalid
	}
	if req.TimestampsToReturn > ua.TimestampsToReturnNeither {
		return nil, ua.StatusBadTimestampsToReturnInvalid
	}

	now := h.now()
	results := make([]*ua.DataValue, len(req.NodesToRead))

	h.Space.RLock()
	for i, item := range req.NodesToRead {
		switch {
		case item == nil || item.NodeID == nil:
			results[i] = &ua.DataValue{EncodingMask: ua.DataValueStatusCode, Status: ua.StatusBadNodeIDInvalid}
		case item.IndexRange != "":
			results[i] = &ua.DataValue{EncodingMask: ua.DataValueStatusCode, Status: ua.StatusBadIndexRangeInvalid}
		default:
			results[i] = h.Space.Read(item.NodeID, item.AttributeID, req.TimestampsToReturn, now)
		}
	}
	h.Space.RUnlock()

	logger.DebugCtx(ctxOf(ctx), "Read", logger.KeyCount, len(results))

	return &ua.ReadResponse{
		ResponseHeader: h.responseHeader(req.RequestHeader, ua.StatusOK),
		Results:        results,
	}, nil
}

// Write applies each item to its node and returns one status per item.
//
// **Process:**
//
//  1. Reject an empty list with BadNothingToDo
//  2. Take the address space write lock once for the whole batch
//  3. For every item, independently:
//     node absent → BadNodeIdUnknown,
//     Value of a Variable without CurrentWrite → BadNotWritable,
//     any other attribute not enabled in the node's write mask → BadNotWritable,
//     attribute not defined for the node class → BadAttributeIdInvalid,
//     value type differs from the attribute's declared type → BadTypeMismatch,
//     otherwise the node is updated in place and the item is Good
//
// Each item is atomic for its node; the batch is not atomic as a whole.
// Every item is written to the audit log with its outcome.
func (h *Handler) Write(ctx *Context, req *ua.WriteRequest) (*ua.WriteResponse, error) {
	if err := h.cancelled(ctx); err != nil {
		return nil, err
	}
	if len(req.NodesToWrite) == 0 {
		return nil, ua.StatusBadNothingToDo
	}

	now := h.now()
	results := make([]ua.StatusCode, len(req.NodesToWrite))

	h.Space.Lock()
	for i, item := range req.NodesToWrite {
		switch {
		case item == nil || item.NodeID == nil:
			results[i] = ua.StatusBadNodeIDInvalid
		case item.IndexRange != "":
			results[i] = ua.StatusBadIndexRangeInvalid
		default:
			results[i] = h.Space.Write(item.NodeID, item.AttributeID, item.Value, now)
		}
	}
	h.Space.Unlock()

	failed := 0
	for i, item := range req.NodesToWrite {
		if results[i] != ua.StatusOK {
			failed++
		}
		if item == nil || item.NodeID == nil {
			continue
		}
		ev := audit.NewEvent(audit.KindWrite, now)
		ev.NodeID = item.NodeID.String()
		ev.AttributeID = uint32(item.AttributeID)
		ev.Status = uint32(results[i])
		h.stampAudit(ctx, &ev)
		h.Audit.Record(ev)
	}

	logger.InfoCtx(ctxOf(ctx), "Write",
		logger.KeyCount, len(results),
		"failed", failed)

	return &ua.WriteResponse{
		ResponseHeader: h.responseHeader(req.RequestHeader, ua.StatusOK),
		Results:        results,
	}, nil
}

// stampAudit fills the session and client fields of ev from ctx.
func (h *Handler) stampAudit(ctx *Context, ev *audit.Event) {
	if ctx == nil {
		return
	}
	ev.ClientAddr = ctx.ClientAddr
	if ctx.Session == nil {
		return
	}
	ev.SessionID = ctx.Session.ID().String()
	if u := ctx.Session.User(); u != nil {
		ev.User = u.Name
	}
}
