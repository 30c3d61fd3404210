package addressspace

import (
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestSpace(t *testing.T) *AddressSpace {
	t.Helper()
	as := NewStandard(t0)
	for i := uint32(1); i <= 3; i++ {
		v := NewVariable(ua.NewNumericNodeID(1, i), "v", ua.MustVariant(int32(0)))
		require.NoError(t, as.AddNode(v))
		require.NoError(t, as.AddReference(ObjectsFolderID, OrganizesID, v.ID()))
	}
	return as
}

// ============================================================================
// Node attributes
// ============================================================================

func TestVariableAttributes(t *testing.T) {
	v := NewVariable(ua.NewNumericNodeID(1, 100), "Temperature", ua.MustVariant(float64(21.5)))

	assert.Equal(t, ua.NodeClassVariable, v.Class())
	assert.Equal(t, "Temperature", v.BrowseName().Name)
	assert.Equal(t, uint16(1), v.BrowseName().NamespaceIndex)

	typ, ok := v.AttributeType(ua.AttributeIDValue)
	require.True(t, ok)
	assert.Equal(t, ua.TypeIDDouble, typ)

	dt, ok := v.Attribute(ua.AttributeIDDataType)
	require.True(t, ok)
	assert.Equal(t, ua.NewNumericNodeID(0, uint32(ua.TypeIDDouble)).String(), dt.Value().(*ua.NodeID).String())

	assert.Equal(t, AccessLevelCurrentRead, v.AccessLevel())
	assert.True(t, v.IsReadable(ua.AttributeIDValue))
	assert.False(t, v.IsWritable(ua.AttributeIDValue))
}

func TestClassAttributeSets(t *testing.T) {
	v := NewVariable(ua.NewNumericNodeID(1, 1), "v", ua.MustVariant(int32(0)))
	o := NewObject(ua.NewNumericNodeID(1, 2), "o")
	r := NewReferenceType(ua.NewNumericNodeID(1, 3), "r", "inv", false, false)

	assert.False(t, v.HasAttribute(ua.AttributeIDIsAbstract))
	assert.True(t, v.HasAttribute(ua.AttributeIDAccessLevel))
	assert.False(t, o.HasAttribute(ua.AttributeIDValue))
	assert.True(t, o.HasAttribute(ua.AttributeIDEventNotifier))
	assert.True(t, r.HasAttribute(ua.AttributeIDIsAbstract))
	assert.True(t, r.HasAttribute(ua.AttributeIDInverseName))

	_, ok := v.Attribute(ua.AttributeIDIsAbstract)
	assert.False(t, ok)
}

func TestSetAttribute(t *testing.T) {
	v := NewVariable(ua.NewNumericNodeID(1, 1), "v", ua.MustVariant(int32(0)))

	t.Run("MatchingType", func(t *testing.T) {
		require.NoError(t, v.SetAttribute(ua.AttributeIDValue, ua.MustVariant(int32(9)), t0))
		got, _ := v.Attribute(ua.AttributeIDValue)
		assert.Equal(t, int32(9), got.Value())
		assert.Equal(t, t0, v.SourceTime())
		assert.Equal(t, t0, v.ServerTime())
	})

	t.Run("MismatchedType", func(t *testing.T) {
		err := v.SetAttribute(ua.AttributeIDAccessLevel, ua.MustVariant(int8(1)), t0)
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("NilValue", func(t *testing.T) {
		assert.ErrorIs(t, v.SetAttribute(ua.AttributeIDValue, nil, t0), ErrTypeMismatch)
	})

	t.Run("UndefinedAttribute", func(t *testing.T) {
		err := v.SetAttribute(ua.AttributeIDIsAbstract, ua.MustVariant(true), t0)
		assert.ErrorIs(t, err, ErrAttributeInvalid)
	})
}

func TestWritability(t *testing.T) {
	v := NewVariable(ua.NewNumericNodeID(1, 1), "v", ua.MustVariant(int32(0)))

	v.SetAccessLevel(AccessLevelCurrentRead | AccessLevelCurrentWrite)
	assert.True(t, v.IsWritable(ua.AttributeIDValue))
	assert.False(t, v.IsWritable(ua.AttributeIDDisplayName))

	v.SetWriteMask(WriteMaskDisplayName)
	assert.True(t, v.IsWritable(ua.AttributeIDDisplayName))
	assert.False(t, v.IsWritable(ua.AttributeIDAccessLevel))

	v.SetAccessLevel(AccessLevelNone)
	assert.False(t, v.IsReadable(ua.AttributeIDValue))
	assert.True(t, v.IsReadable(ua.AttributeIDAccessLevel))
}

func TestWriteMaskedAttributeOutsideClass(t *testing.T) {
	as := newTestSpace(t)
	id := ua.NewNumericNodeID(1, 1)
	n, ok := as.FindNode(id)
	require.True(t, ok)
	n.SetWriteMask(WriteMaskIsAbstract)

	dv := &ua.DataValue{EncodingMask: ua.DataValueValue, Value: ua.MustVariant(true)}
	assert.Equal(t, ua.StatusOK, as.Write(id, ua.AttributeIDIsAbstract, dv, t0))

	_, stored := n.Attribute(ua.AttributeIDIsAbstract)
	assert.False(t, stored)

	n.SetWriteMask(WriteMaskNone)
	assert.Equal(t, ua.StatusBadNotWritable, as.Write(id, ua.AttributeIDIsAbstract, dv, t0))
}

func TestWriteMaskFor(t *testing.T) {
	tests := []struct {
		class ua.NodeClass
		attr  ua.AttributeID
		want  WriteMask
	}{
		{ua.NodeClassVariable, ua.AttributeIDValue, WriteMaskNone},
		{ua.NodeClassVariableType, ua.AttributeIDValue, WriteMaskValueForVariableType},
		{ua.NodeClassObject, ua.AttributeIDAccessLevel, 1 << 0},
		{ua.NodeClassReferenceType, ua.AttributeIDIsAbstract, 1 << 11},
		{ua.NodeClassObject, ua.AttributeIDWriteMask, 1 << 20},
	}
	for _, tt := range tests {
		if got := WriteMaskFor(tt.class, tt.attr); got != tt.want {
			t.Errorf("WriteMaskFor(%v, %v) = %#x, want %#x", tt.class, tt.attr, got, tt.want)
		}
	}
}

// ============================================================================
// Address space structure
// ============================================================================

func TestAddNodeDuplicate(t *testing.T) {
	as := New()
	id := ua.NewNumericNodeID(1, 1)
	require.NoError(t, as.AddNode(NewObject(id, "a")))
	assert.ErrorIs(t, as.AddNode(NewObject(id, "b")), ErrNodeExists)
	assert.Equal(t, 1, as.Len())
}

func TestReferencesAndVersions(t *testing.T) {
	as := newTestSpace(t)

	before, ok := as.NodeVersion(ObjectsFolderID)
	require.True(t, ok)

	child := NewObject(ua.NewStringNodeID(1, "child"), "child")
	require.NoError(t, as.AddNode(child))
	require.NoError(t, as.AddReference(ObjectsFolderID, OrganizesID, child.ID()))

	after, _ := as.NodeVersion(ObjectsFolderID)
	assert.Greater(t, after, before)

	refs := child.References()
	require.Len(t, refs, 1)
	assert.False(t, refs[0].IsForward)
	assert.Equal(t, ObjectsFolderID.String(), refs[0].TargetID.String())

	assert.True(t, as.RemoveReference(ObjectsFolderID, OrganizesID, child.ID()))
	assert.Empty(t, child.References())
	assert.False(t, as.RemoveReference(ObjectsFolderID, OrganizesID, child.ID()))
}

func TestAddReferenceUnknownNodes(t *testing.T) {
	as := newTestSpace(t)
	missing := ua.NewNumericNodeID(9, 9)

	assert.ErrorIs(t, as.AddReference(missing, OrganizesID, ObjectsFolderID), ErrNodeNotFound)
	assert.ErrorIs(t, as.AddReference(ObjectsFolderID, OrganizesID, missing), ErrNodeNotFound)
	assert.ErrorIs(t, as.AddReference(ObjectsFolderID, missing, ServerID), ErrNodeNotFound)
}

func TestRemoveNodeDropsInverseReferences(t *testing.T) {
	as := newTestSpace(t)
	id := ua.NewNumericNodeID(1, 2)
	before, _ := as.NodeVersion(ObjectsFolderID)

	require.True(t, as.RemoveNode(id))
	_, ok := as.FindNode(id)
	assert.False(t, ok)
	_, ok = as.NodeVersion(id)
	assert.False(t, ok)

	objects, _ := as.FindNode(ObjectsFolderID)
	for _, ref := range objects.References() {
		assert.NotEqual(t, id.String(), ref.TargetID.String())
	}
	after, _ := as.NodeVersion(ObjectsFolderID)
	assert.Greater(t, after, before)

	assert.False(t, as.RemoveNode(id))
}

func TestReAddedNodeGetsNewVersion(t *testing.T) {
	as := New()
	id := ua.NewNumericNodeID(1, 1)
	require.NoError(t, as.AddNode(NewObject(id, "a")))
	v1, _ := as.NodeVersion(id)

	as.RemoveNode(id)
	require.NoError(t, as.AddNode(NewObject(id, "a")))
	v2, _ := as.NodeVersion(id)
	assert.NotEqual(t, v1, v2)
}

func TestIsSubtype(t *testing.T) {
	as := NewStandard(t0)

	assert.True(t, as.IsSubtype(HasComponentID, HierarchicalReferencesID))
	assert.True(t, as.IsSubtype(HasComponentID, ReferencesID))
	assert.True(t, as.IsSubtype(OrganizesID, OrganizesID))
	assert.False(t, as.IsSubtype(HasTypeDefinitionID, HierarchicalReferencesID))
	assert.False(t, as.IsSubtype(OrganizesID, HasChildID))
}

func TestStandardServerObject(t *testing.T) {
	as := NewStandard(t0)

	n, ok := as.FindNode(ServerStatusCurrentTimeID)
	require.True(t, ok)
	v, _ := n.Attribute(ua.AttributeIDValue)
	assert.Equal(t, t0, v.Value())
	assert.Equal(t, t0, n.SourceTime())
}
