package addressspace

import "github.com/gopcua/opcua/ua"

// AccessLevel is the bit set stored in a Variable's AccessLevel and
// UserAccessLevel attributes.
type AccessLevel byte

const (
	AccessLevelCurrentRead AccessLevel = 1 << iota
	AccessLevelCurrentWrite
	AccessLevelHistoryRead
	AccessLevelHistoryWrite
	AccessLevelSemanticChange
	AccessLevelStatusWrite
	AccessLevelTimestampWrite

	AccessLevelNone AccessLevel = 0
)

// Has reports whether all bits of flag are set.
func (a AccessLevel) Has(flag AccessLevel) bool {
	return a&flag == flag
}

// WriteMask is the bit set stored in a node's WriteMask and UserWriteMask
// attributes. Each bit grants write access to one non-Value attribute.
type WriteMask uint32

const (
	WriteMaskAccessLevel WriteMask = 1 << iota
	WriteMaskArrayDimensions
	WriteMaskBrowseName
	WriteMaskContainsNoLoops
	WriteMaskDataType
	WriteMaskDescription
	WriteMaskDisplayName
	WriteMaskEventNotifier
	WriteMaskExecutable
	WriteMaskHistorizing
	WriteMaskInverseName
	WriteMaskIsAbstract
	WriteMaskMinimumSamplingInterval
	WriteMaskNodeClass
	WriteMaskNodeID
	WriteMaskSymmetric
	WriteMaskUserAccessLevel
	WriteMaskUserExecutable
	WriteMaskUserWriteMask
	WriteMaskValueRank
	WriteMaskWriteMask
	WriteMaskValueForVariableType

	WriteMaskNone WriteMask = 0
)

// Has reports whether all bits of flag are set.
func (m WriteMask) Has(flag WriteMask) bool {
	return m&flag == flag
}

var writeMaskBits = map[ua.AttributeID]WriteMask{
	ua.AttributeIDAccessLevel:             WriteMaskAccessLevel,
	ua.AttributeIDArrayDimensions:         WriteMaskArrayDimensions,
	ua.AttributeIDBrowseName:              WriteMaskBrowseName,
	ua.AttributeIDContainsNoLoops:         WriteMaskContainsNoLoops,
	ua.AttributeIDDataType:                WriteMaskDataType,
	ua.AttributeIDDescription:             WriteMaskDescription,
	ua.AttributeIDDisplayName:             WriteMaskDisplayName,
	ua.AttributeIDEventNotifier:           WriteMaskEventNotifier,
	ua.AttributeIDExecutable:              WriteMaskExecutable,
	ua.AttributeIDHistorizing:             WriteMaskHistorizing,
	ua.AttributeIDInverseName:             WriteMaskInverseName,
	ua.AttributeIDIsAbstract:              WriteMaskIsAbstract,
	ua.AttributeIDMinimumSamplingInterval: WriteMaskMinimumSamplingInterval,
	ua.AttributeIDNodeClass:               WriteMaskNodeClass,
	ua.AttributeIDNodeID:                  WriteMaskNodeID,
	ua.AttributeIDSymmetric:               WriteMaskSymmetric,
	ua.AttributeIDUserAccessLevel:         WriteMaskUserAccessLevel,
	ua.AttributeIDUserExecutable:          WriteMaskUserExecutable,
	ua.AttributeIDUserWriteMask:           WriteMaskUserWriteMask,
	ua.AttributeIDValueRank:               WriteMaskValueRank,
	ua.AttributeIDWriteMask:               WriteMaskWriteMask,
}

// WriteMaskFor returns the write-mask bit guarding attr. The Value attribute
// of a Variable is guarded by the access level instead and maps to
// WriteMaskNone; for a VariableType it maps to WriteMaskValueForVariableType.
func WriteMaskFor(class ua.NodeClass, attr ua.AttributeID) WriteMask {
	if attr == ua.AttributeIDValue {
		if class == ua.NodeClassVariableType {
			return WriteMaskValueForVariableType
		}
		return WriteMaskNone
	}
	return writeMaskBits[attr]
}
