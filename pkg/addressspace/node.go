package addressspace

import (
	"time"

	"github.com/gopcua/opcua/ua"
)

// Reference is a directed, typed link from the owning node to Target.
type Reference struct {
	ReferenceTypeID *ua.NodeID
	IsForward       bool
	TargetID        *ua.NodeID
}

// Node is one entry of the address space. The set of attributes a node
// carries is fixed by its class at construction; each attribute has a
// declared builtin type that writes must match.
//
// Node methods are not synchronized. Callers hold the AddressSpace lock.
type Node struct {
	id    *ua.NodeID
	class ua.NodeClass

	attrs map[ua.AttributeID]*ua.Variant
	types map[ua.AttributeID]ua.TypeID

	sourceTimestamp time.Time
	serverTimestamp time.Time

	refs    []Reference
	version uint64
}

var commonAttributes = map[ua.AttributeID]ua.TypeID{
	ua.AttributeIDNodeID:        ua.TypeIDNodeID,
	ua.AttributeIDNodeClass:     ua.TypeIDInt32,
	ua.AttributeIDBrowseName:    ua.TypeIDQualifiedName,
	ua.AttributeIDDisplayName:   ua.TypeIDLocalizedText,
	ua.AttributeIDDescription:   ua.TypeIDLocalizedText,
	ua.AttributeIDWriteMask:     ua.TypeIDUint32,
	ua.AttributeIDUserWriteMask: ua.TypeIDUint32,
}

var classAttributes = map[ua.NodeClass]map[ua.AttributeID]ua.TypeID{
	ua.NodeClassObject: {
		ua.AttributeIDEventNotifier: ua.TypeIDByte,
	},
	ua.NodeClassVariable: {
		ua.AttributeIDDataType:                ua.TypeIDNodeID,
		ua.AttributeIDValueRank:               ua.TypeIDInt32,
		ua.AttributeIDAccessLevel:             ua.TypeIDByte,
		ua.AttributeIDUserAccessLevel:         ua.TypeIDByte,
		ua.AttributeIDMinimumSamplingInterval: ua.TypeIDDouble,
		ua.AttributeIDHistorizing:             ua.TypeIDBoolean,
	},
	ua.NodeClassMethod: {
		ua.AttributeIDExecutable:     ua.TypeIDBoolean,
		ua.AttributeIDUserExecutable: ua.TypeIDBoolean,
	},
	ua.NodeClassObjectType: {
		ua.AttributeIDIsAbstract: ua.TypeIDBoolean,
	},
	ua.NodeClassVariableType: {
		ua.AttributeIDDataType:   ua.TypeIDNodeID,
		ua.AttributeIDValueRank:  ua.TypeIDInt32,
		ua.AttributeIDIsAbstract: ua.TypeIDBoolean,
	},
	ua.NodeClassReferenceType: {
		ua.AttributeIDIsAbstract:  ua.TypeIDBoolean,
		ua.AttributeIDSymmetric:   ua.TypeIDBoolean,
		ua.AttributeIDInverseName: ua.TypeIDLocalizedText,
	},
	ua.NodeClassDataType: {
		ua.AttributeIDIsAbstract: ua.TypeIDBoolean,
	},
	ua.NodeClassView: {
		ua.AttributeIDContainsNoLoops: ua.TypeIDBoolean,
		ua.AttributeIDEventNotifier:   ua.TypeIDByte,
	},
}

func newNode(id *ua.NodeID, class ua.NodeClass, browseName string) *Node {
	n := &Node{
		id:    id,
		class: class,
		attrs: make(map[ua.AttributeID]*ua.Variant),
		types: make(map[ua.AttributeID]ua.TypeID),
	}
	for attr, typ := range commonAttributes {
		n.types[attr] = typ
	}
	for attr, typ := range classAttributes[class] {
		n.types[attr] = typ
	}

	n.attrs[ua.AttributeIDNodeID] = ua.MustVariant(id)
	n.attrs[ua.AttributeIDNodeClass] = ua.MustVariant(int32(class))
	n.attrs[ua.AttributeIDBrowseName] = ua.MustVariant(&ua.QualifiedName{NamespaceIndex: id.Namespace(), Name: browseName})
	n.attrs[ua.AttributeIDDisplayName] = ua.MustVariant(ua.NewLocalizedText(browseName))
	n.attrs[ua.AttributeIDDescription] = ua.MustVariant(ua.NewLocalizedText(""))
	n.attrs[ua.AttributeIDWriteMask] = ua.MustVariant(uint32(0))
	n.attrs[ua.AttributeIDUserWriteMask] = ua.MustVariant(uint32(0))
	return n
}

// NewObject creates an Object node.
func NewObject(id *ua.NodeID, browseName string) *Node {
	n := newNode(id, ua.NodeClassObject, browseName)
	n.attrs[ua.AttributeIDEventNotifier] = ua.MustVariant(byte(0))
	return n
}

// NewVariable creates a Variable node holding value. The variable's DataType
// and the declared type of its Value attribute are taken from value. The
// initial access level is CurrentRead.
func NewVariable(id *ua.NodeID, browseName string, value *ua.Variant) *Node {
	n := newNode(id, ua.NodeClassVariable, browseName)
	n.setValueType(value.Type())
	n.attrs[ua.AttributeIDValue] = value
	n.attrs[ua.AttributeIDValueRank] = ua.MustVariant(int32(-1))
	n.attrs[ua.AttributeIDAccessLevel] = ua.MustVariant(byte(AccessLevelCurrentRead))
	n.attrs[ua.AttributeIDUserAccessLevel] = ua.MustVariant(byte(AccessLevelCurrentRead))
	n.attrs[ua.AttributeIDMinimumSamplingInterval] = ua.MustVariant(float64(0))
	n.attrs[ua.AttributeIDHistorizing] = ua.MustVariant(false)
	return n
}

// NewVariableType creates a VariableType node with a default value.
func NewVariableType(id *ua.NodeID, browseName string, value *ua.Variant, isAbstract bool) *Node {
	n := newNode(id, ua.NodeClassVariableType, browseName)
	n.setValueType(value.Type())
	n.attrs[ua.AttributeIDValue] = value
	n.attrs[ua.AttributeIDValueRank] = ua.MustVariant(int32(-1))
	n.attrs[ua.AttributeIDIsAbstract] = ua.MustVariant(isAbstract)
	return n
}

// NewMethod creates a Method node.
func NewMethod(id *ua.NodeID, browseName string, executable bool) *Node {
	n := newNode(id, ua.NodeClassMethod, browseName)
	n.attrs[ua.AttributeIDExecutable] = ua.MustVariant(executable)
	n.attrs[ua.AttributeIDUserExecutable] = ua.MustVariant(executable)
	return n
}

// NewObjectType creates an ObjectType node.
func NewObjectType(id *ua.NodeID, browseName string, isAbstract bool) *Node {
	n := newNode(id, ua.NodeClassObjectType, browseName)
	n.attrs[ua.AttributeIDIsAbstract] = ua.MustVariant(isAbstract)
	return n
}

// NewReferenceType creates a ReferenceType node. An empty inverseName is
// stored as an empty LocalizedText.
func NewReferenceType(id *ua.NodeID, browseName, inverseName string, isAbstract, symmetric bool) *Node {
	n := newNode(id, ua.NodeClassReferenceType, browseName)
	n.attrs[ua.AttributeIDIsAbstract] = ua.MustVariant(isAbstract)
	n.attrs[ua.AttributeIDSymmetric] = ua.MustVariant(symmetric)
	n.attrs[ua.AttributeIDInverseName] = ua.MustVariant(ua.NewLocalizedText(inverseName))
	return n
}

// NewDataType creates a DataType node.
func NewDataType(id *ua.NodeID, browseName string, isAbstract bool) *Node {
	n := newNode(id, ua.NodeClassDataType, browseName)
	n.attrs[ua.AttributeIDIsAbstract] = ua.MustVariant(isAbstract)
	return n
}

// NewView creates a View node.
func NewView(id *ua.NodeID, browseName string) *Node {
	n := newNode(id, ua.NodeClassView, browseName)
	n.attrs[ua.AttributeIDContainsNoLoops] = ua.MustVariant(true)
	n.attrs[ua.AttributeIDEventNotifier] = ua.MustVariant(byte(0))
	return n
}

// Builtin data types have DataType node ids in namespace 0 equal to their
// builtin type id.
func (n *Node) setValueType(t ua.TypeID) {
	n.types[ua.AttributeIDValue] = t
	n.attrs[ua.AttributeIDDataType] = ua.MustVariant(ua.NewNumericNodeID(0, uint32(t)))
}

func (n *Node) ID() *ua.NodeID        { return n.id }
func (n *Node) Class() ua.NodeClass   { return n.class }
func (n *Node) Version() uint64       { return n.version }
func (n *Node) SourceTime() time.Time { return n.sourceTimestamp }
func (n *Node) ServerTime() time.Time { return n.serverTimestamp }

// BrowseName returns the node's browse name.
func (n *Node) BrowseName() *ua.QualifiedName {
	qn, _ := n.attrs[ua.AttributeIDBrowseName].Value().(*ua.QualifiedName)
	return qn
}

// DisplayName returns the node's display name.
func (n *Node) DisplayName() *ua.LocalizedText {
	lt, _ := n.attrs[ua.AttributeIDDisplayName].Value().(*ua.LocalizedText)
	return lt
}

// HasAttribute reports whether attr is defined for the node's class.
func (n *Node) HasAttribute(attr ua.AttributeID) bool {
	_, ok := n.types[attr]
	return ok
}

// AttributeType returns the declared type of attr.
func (n *Node) AttributeType(attr ua.AttributeID) (ua.TypeID, bool) {
	t, ok := n.types[attr]
	return t, ok
}

// Attribute returns the current value of attr.
func (n *Node) Attribute(attr ua.AttributeID) (*ua.Variant, bool) {
	if !n.HasAttribute(attr) {
		return nil, false
	}
	v, ok := n.attrs[attr]
	return v, ok
}

// SetAttribute replaces attr with v after checking that attr is defined for
// the class and v has the declared type. Setting the Value attribute also
// stamps the source and server timestamps with now.
func (n *Node) SetAttribute(attr ua.AttributeID, v *ua.Variant, now time.Time) error {
	want, ok := n.types[attr]
	if !ok {
		return ErrAttributeInvalid
	}
	if v == nil || v.Type() != want {
		return ErrTypeMismatch
	}
	n.attrs[attr] = v
	if attr == ua.AttributeIDValue {
		n.sourceTimestamp = now
		n.serverTimestamp = now
	}
	return nil
}

// SetValue sets the Value attribute with an explicit source timestamp, as a
// device driver or simulation would.
func (n *Node) SetValue(v *ua.Variant, source, server time.Time) error {
	if err := n.SetAttribute(ua.AttributeIDValue, v, server); err != nil {
		return err
	}
	n.sourceTimestamp = source
	return nil
}

// AccessLevel returns the AccessLevel attribute, or AccessLevelNone if the
// class has no access level.
func (n *Node) AccessLevel() AccessLevel {
	return AccessLevel(n.byteAttr(ua.AttributeIDAccessLevel))
}

// UserAccessLevel returns the UserAccessLevel attribute.
func (n *Node) UserAccessLevel() AccessLevel {
	return AccessLevel(n.byteAttr(ua.AttributeIDUserAccessLevel))
}

// SetAccessLevel sets both AccessLevel and UserAccessLevel.
func (n *Node) SetAccessLevel(level AccessLevel) {
	if n.class != ua.NodeClassVariable {
		return
	}
	n.attrs[ua.AttributeIDAccessLevel] = ua.MustVariant(byte(level))
	n.attrs[ua.AttributeIDUserAccessLevel] = ua.MustVariant(byte(level))
}

// WriteMask returns the WriteMask attribute.
func (n *Node) WriteMask() WriteMask {
	v, _ := n.attrs[ua.AttributeIDWriteMask].Value().(uint32)
	return WriteMask(v)
}

// SetWriteMask sets both WriteMask and UserWriteMask.
func (n *Node) SetWriteMask(mask WriteMask) {
	n.attrs[ua.AttributeIDWriteMask] = ua.MustVariant(uint32(mask))
	n.attrs[ua.AttributeIDUserWriteMask] = ua.MustVariant(uint32(mask))
}

func (n *Node) byteAttr(attr ua.AttributeID) byte {
	v, ok := n.attrs[attr]
	if !ok {
		return 0
	}
	b, _ := v.Value().(byte)
	return b
}

// IsReadable reports whether attr may be read. Only the Value attribute of a
// Variable is subject to the access level.
func (n *Node) IsReadable(attr ua.AttributeID) bool {
	if attr == ua.AttributeIDValue && n.class == ua.NodeClassVariable {
		return n.AccessLevel().Has(AccessLevelCurrentRead)
	}
	return true
}

// IsWritable reports whether attr may be written: the Value attribute of a
// Variable through its access level, everything else through the write mask.
func (n *Node) IsWritable(attr ua.AttributeID) bool {
	if attr == ua.AttributeIDValue && n.class == ua.NodeClassVariable {
		return n.AccessLevel().Has(AccessLevelCurrentWrite)
	}
	bit := WriteMaskFor(n.class, attr)
	return bit != WriteMaskNone && n.WriteMask().Has(bit)
}

// References returns a copy of the node's references.
func (n *Node) References() []Reference {
	out := make([]Reference, len(n.refs))
	copy(out, n.refs)
	return out
}
