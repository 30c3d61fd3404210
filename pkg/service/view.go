package service

import (
	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/pkg/addressspace"
	"github.com/marmos91/opcuad/pkg/session"
)

// Browse result mask bits.
const (
	resultMaskReferenceType  uint32 = 1 << 0
	resultMaskIsForward      uint32 = 1 << 1
	resultMaskNodeClass      uint32 = 1 << 2
	resultMaskBrowseName     uint32 = 1 << 3
	resultMaskDisplayName    uint32 = 1 << 4
	resultMaskTypeDefinition uint32 = 1 << 5
)

// Browse lists the references of each requested node. When a node has more
// matching references than RequestedMaxReferencesPerNode, the first batch
// is returned with a continuation point stored on the session; BrowseNext
// resumes from it.
func (h *Handler) Browse(ctx *Context, req *ua.BrowseRequest) (*ua.BrowseResponse, error) {
	if err := h.cancelled(ctx); err != nil {
		return nil, err
	}
	if len(req.NodesToBrowse) == 0 {
		return nil, ua.StatusBadNothingToDo
	}

	now := h.now()
	results := make([]*ua.BrowseResult, len(req.NodesToBrowse))

	h.Space.RLock()
	defer h.Space.RUnlock()

	if !h.validView(req.View) {
		return nil, ua.StatusBadViewIDUnknown
	}

	for i, desc := range req.NodesToBrowse {
		if status := h.checkBrowse(desc); status != ua.StatusOK {
			results[i] = &ua.BrowseResult{StatusCode: status}
			continue
		}
		version, _ := h.Space.NodeVersion(desc.NodeID)
		cp := session.BrowseContinuationPoint{
			View:          req.View,
			Description:   desc,
			NodeVersion:   version,
			MaxReferences: req.RequestedMaxReferencesPerNode,
			CreatedAt:     now,
		}
		results[i] = h.browseFrom(ctx, cp)
	}

	logger.DebugCtx(ctxOf(ctx), "Browse", logger.KeyCount, len(results))

	return &ua.BrowseResponse{
		ResponseHeader: h.responseHeader(req.RequestHeader, ua.StatusOK),
		Results:        results,
	}, nil
}

// BrowseNext resumes or releases continuation points. Unknown ids, and ids
// whose node changed since the point was created, yield
// BadContinuationPointInvalid; an invalidated point is removed.
func (h *Handler) BrowseNext(ctx *Context, req *ua.BrowseNextRequest) (*ua.BrowseNextResponse, error) {
	if err := h.cancelled(ctx); err != nil {
		return nil, err
	}
	if len(req.ContinuationPoints) == 0 {
		return nil, ua.StatusBadNothingToDo
	}
	if ctx == nil || ctx.Session == nil {
		return nil, ua.StatusBadSessionIDInvalid
	}
	s := ctx.Session

	results := make([]*ua.BrowseResult, len(req.ContinuationPoints))

	if req.ReleaseContinuationPoints {
		for i, id := range req.ContinuationPoints {
			status := ua.StatusOK
			if _, ok := s.FindContinuationPoint(id); !ok {
				status = ua.StatusBadContinuationPointInvalid
			}
			results[i] = &ua.BrowseResult{StatusCode: status}
		}
		released := s.RemoveContinuationPoints(req.ContinuationPoints)
		logger.DebugCtx(ctxOf(ctx), "BrowseNext released continuation points", logger.KeyCount, released)
		return &ua.BrowseNextResponse{
			ResponseHeader: h.responseHeader(req.RequestHeader, ua.StatusOK),
			Results:        results,
		}, nil
	}

	h.Space.RLock()
	defer h.Space.RUnlock()

	for i, id := range req.ContinuationPoints {
		cp, ok := s.FindContinuationPoint(id)
		if !ok {
			results[i] = &ua.BrowseResult{StatusCode: ua.StatusBadContinuationPointInvalid}
			continue
		}
		s.RemoveContinuationPoint(id)
		if !cp.IsValid(h.Space) {
			results[i] = &ua.BrowseResult{StatusCode: ua.StatusBadContinuationPointInvalid}
			continue
		}
		results[i] = h.browseFrom(ctx, cp)
	}

	return &ua.BrowseNextResponse{
		ResponseHeader: h.responseHeader(req.RequestHeader, ua.StatusOK),
		Results:        results,
	}, nil
}

func (h *Handler) validView(view *ua.ViewDescription) bool {
	if view == nil || view.ViewID == nil || isNull(view.ViewID) {
		return true
	}
	n, ok := h.Space.FindNode(view.ViewID)
	return ok && n.Class() == ua.NodeClassView
}

func isNull(id *ua.NodeID) bool {
	return id.Namespace() == 0 && id.Type() == ua.NodeIDTypeTwoByte && id.IntID() == 0
}

// checkBrowse validates one browse description. Requires the read lock.
func (h *Handler) checkBrowse(desc *ua.BrowseDescription) ua.StatusCode {
	if desc == nil || desc.NodeID == nil {
		return ua.StatusBadNodeIDInvalid
	}
	if desc.BrowseDirection > ua.BrowseDirectionBoth {
		return ua.StatusBadBrowseDirectionInvalid
	}
	if desc.ReferenceTypeID != nil && !isNull(desc.ReferenceTypeID) {
		n, ok := h.Space.FindNode(desc.ReferenceTypeID)
		if !ok || n.Class() != ua.NodeClassReferenceType {
			return ua.StatusBadReferenceTypeIDInvalid
		}
	}
	if _, ok := h.Space.FindNode(desc.NodeID); !ok {
		return ua.StatusBadNodeIDUnknown
	}
	return ua.StatusOK
}

// browseFrom returns the references of cp's node starting at cp.Position,
// storing a new continuation point on the session if more remain.
// Requires the read lock.
func (h *Handler) browseFrom(ctx *Context, cp session.BrowseContinuationPoint) *ua.BrowseResult {
	desc := cp.Description
	refs := h.matchingReferences(desc)

	start := min(cp.Position, len(refs))
	end := len(refs)
	if cp.MaxReferences > 0 && end-start > int(cp.MaxReferences) {
		end = start + int(cp.MaxReferences)
	}

	result := &ua.BrowseResult{
		StatusCode: ua.StatusOK,
		References: make([]*ua.ReferenceDescription, 0, end-start),
	}
	for _, ref := range refs[start:end] {
		result.References = append(result.References, h.describe(ref, desc.ResultMask))
	}

	if end < len(refs) {
		if ctx == nil || ctx.Session == nil {
			result.StatusCode = ua.StatusBadNoContinuationPoints
			return result
		}
		cp.ID = session.NewContinuationPointID()
		cp.Position = end
		h.Sessions.AddContinuationPoint(ctx.Session, cp)
		result.ContinuationPoint = cp.ID
	}
	return result
}

// matchingReferences filters the node's references by direction,
// reference type and target node class, in stored order.
func (h *Handler) matchingReferences(desc *ua.BrowseDescription) []addressspace.Reference {
	n, ok := h.Space.FindNode(desc.NodeID)
	if !ok {
		return nil
	}

	var out []addressspace.Reference
	for _, ref := range n.References() {
		switch desc.BrowseDirection {
		case ua.BrowseDirectionForward:
			if !ref.IsForward {
				continue
			}
		case ua.BrowseDirectionInverse:
			if ref.IsForward {
				continue
			}
		}
		if desc.ReferenceTypeID != nil && !isNull(desc.ReferenceTypeID) {
			if desc.IncludeSubtypes {
				if !h.Space.IsSubtype(ref.ReferenceTypeID, desc.ReferenceTypeID) {
					continue
				}
			} else if ref.ReferenceTypeID.String() != desc.ReferenceTypeID.String() {
				continue
			}
		}
		if desc.NodeClassMask != 0 {
			target, ok := h.Space.FindNode(ref.TargetID)
			if !ok || desc.NodeClassMask&uint32(target.Class()) == 0 {
				continue
			}
		}
		out = append(out, ref)
	}
	return out
}

// describe builds a ReferenceDescription with the fields selected by mask.
func (h *Handler) describe(ref addressspace.Reference, mask uint32) *ua.ReferenceDescription {
	rd := &ua.ReferenceDescription{
		NodeID: &ua.ExpandedNodeID{NodeID: ref.TargetID},
	}
	if mask&resultMaskReferenceType != 0 {
		rd.ReferenceTypeID = ref.ReferenceTypeID
	}
	if mask&resultMaskIsForward != 0 {
		rd.IsForward = ref.IsForward
	}

	target, ok := h.Space.FindNode(ref.TargetID)
	if !ok {
		return rd
	}
	if mask&resultMaskNodeClass != 0 {
		rd.NodeClass = target.Class()
	}
	if mask&resultMaskBrowseName != 0 {
		rd.BrowseName = target.BrowseName()
	}
	if mask&resultMaskDisplayName != 0 {
		rd.DisplayName = target.DisplayName()
	}
	if mask&resultMaskTypeDefinition != 0 {
		for _, tr := range target.References() {
			if tr.IsForward && tr.ReferenceTypeID.String() == addressspace.HasTypeDefinitionID.String() {
				rd.TypeDefinition = &ua.ExpandedNodeID{NodeID: tr.TargetID}
				break
			}
		}
	}
	return rd
}
