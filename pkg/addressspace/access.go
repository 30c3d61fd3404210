package addressspace

import (
	"errors"
	"time"

	"github.com/gopcua/opcua/ua"
)

// Read resolves one node attribute into a DataValue. Failures are reported
// in the DataValue status: BadNodeIdUnknown, BadAttributeIdInvalid or
// BadNotReadable. ts selects the timestamps to attach; a source timestamp
// only exists for the Value attribute. Requires at least the read lock.
func (as *AddressSpace) Read(id *ua.NodeID, attr ua.AttributeID, ts ua.TimestampsToReturn, now time.Time) *ua.DataValue {
	n, ok := as.nodes[key(id)]
	if !ok {
		return statusValue(ua.StatusBadNodeIDUnknown, ts, now)
	}
	v, ok := n.Attribute(attr)
	if !ok {
		return statusValue(ua.StatusBadAttributeIDInvalid, ts, now)
	}
	if !n.IsReadable(attr) {
		return statusValue(ua.StatusBadNotReadable, ts, now)
	}

	dv := &ua.DataValue{EncodingMask: ua.DataValueValue, Value: v}
	if wantServer(ts) {
		dv.EncodingMask |= ua.DataValueServerTimestamp
		dv.ServerTimestamp = now
	}
	if wantSource(ts) && attr == ua.AttributeIDValue && !n.sourceTimestamp.IsZero() {
		dv.EncodingMask |= ua.DataValueSourceTimestamp
		dv.SourceTimestamp = n.sourceTimestamp
	}
	return dv
}

func wantServer(ts ua.TimestampsToReturn) bool {
	return ts == ua.TimestampsToReturnServer || ts == ua.TimestampsToReturnBoth
}

func wantSource(ts ua.TimestampsToReturn) bool {
	return ts == ua.TimestampsToReturnSource || ts == ua.TimestampsToReturnBoth
}

func statusValue(status ua.StatusCode, ts ua.TimestampsToReturn, now time.Time) *ua.DataValue {
	dv := &ua.DataValue{EncodingMask: ua.DataValueStatusCode, Status: status}
	if wantServer(ts) {
		dv.EncodingMask |= ua.DataValueServerTimestamp
		dv.ServerTimestamp = now
	}
	return dv
}

// Write applies one attribute write and returns its status. The checks run
// in order: the node exists, the attribute is writable (access level for a
// Variable's Value, write mask otherwise), the value has the declared type.
// A write the mask allows to an attribute the class does not carry succeeds
// without storing anything. A Value write keeps the client-supplied source
// timestamp when there is one. Requires the write lock.
func (as *AddressSpace) Write(id *ua.NodeID, attr ua.AttributeID, value *ua.DataValue, now time.Time) ua.StatusCode {
	n, ok := as.nodes[key(id)]
	if !ok {
		return ua.StatusBadNodeIDUnknown
	}
	if !n.IsWritable(attr) {
		return ua.StatusBadNotWritable
	}
	if value == nil || value.Value == nil {
		return ua.StatusBadTypeMismatch
	}

	var err error
	if attr == ua.AttributeIDValue {
		source := now
		if !value.SourceTimestamp.IsZero() {
			source = value.SourceTimestamp
		}
		err = n.SetValue(value.Value, source, now)
	} else {
		err = n.SetAttribute(attr, value.Value, now)
	}

	switch {
	case err == nil, errors.Is(err, ErrAttributeInvalid):
		return ua.StatusOK
	case errors.Is(err, ErrTypeMismatch):
		return ua.StatusBadTypeMismatch
	default:
		return ua.StatusBadInternalError
	}
}
