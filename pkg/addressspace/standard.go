package addressspace

import (
	"time"

	"github.com/gopcua/opcua/ua"
)

// Well-known namespace 0 node ids.
var (
	ReferencesID                = ua.NewNumericNodeID(0, 31)
	NonHierarchicalReferencesID = ua.NewNumericNodeID(0, 32)
	HierarchicalReferencesID    = ua.NewNumericNodeID(0, 33)
	HasChildID                  = ua.NewNumericNodeID(0, 34)
	OrganizesID                 = ua.NewNumericNodeID(0, 35)
	HasTypeDefinitionID         = ua.NewNumericNodeID(0, 40)
	AggregatesID                = ua.NewNumericNodeID(0, 44)
	HasSubtypeID                = ua.NewNumericNodeID(0, 45)
	HasPropertyID               = ua.NewNumericNodeID(0, 46)
	HasComponentID              = ua.NewNumericNodeID(0, 47)

	BaseObjectTypeID       = ua.NewNumericNodeID(0, 58)
	FolderTypeID           = ua.NewNumericNodeID(0, 61)
	BaseDataVariableTypeID = ua.NewNumericNodeID(0, 63)
	ServerTypeID           = ua.NewNumericNodeID(0, 2004)

	RootFolderID    = ua.NewNumericNodeID(0, 84)
	ObjectsFolderID = ua.NewNumericNodeID(0, 85)
	TypesFolderID   = ua.NewNumericNodeID(0, 86)
	ViewsFolderID   = ua.NewNumericNodeID(0, 87)

	ServerID                          = ua.NewNumericNodeID(0, 2253)
	ServerStatusStartTimeID           = ua.NewNumericNodeID(0, 2257)
	ServerStatusCurrentTimeID         = ua.NewNumericNodeID(0, 2258)
	ServerStatusStateID               = ua.NewNumericNodeID(0, 2259)
	ServerServiceLevelID              = ua.NewNumericNodeID(0, 2267)
	ServerStatusSecondsTillShutdownID = ua.NewNumericNodeID(0, 2992)
)

type refTypeDef struct {
	id       *ua.NodeID
	name     string
	inverse  string
	abstract bool
	parent   *ua.NodeID
}

var standardReferenceTypes = []refTypeDef{
	{ReferencesID, "References", "", true, nil},
	{NonHierarchicalReferencesID, "NonHierarchicalReferences", "", true, ReferencesID},
	{HierarchicalReferencesID, "HierarchicalReferences", "", true, ReferencesID},
	{HasChildID, "HasChild", "", true, HierarchicalReferencesID},
	{OrganizesID, "Organizes", "OrganizedBy", false, HierarchicalReferencesID},
	{HasTypeDefinitionID, "HasTypeDefinition", "TypeDefinitionOf", false, NonHierarchicalReferencesID},
	{AggregatesID, "Aggregates", "AggregatedBy", true, HasChildID},
	{HasSubtypeID, "HasSubtype", "SubtypeOf", false, HasChildID},
	{HasPropertyID, "HasProperty", "PropertyOf", false, AggregatesID},
	{HasComponentID, "HasComponent", "ComponentOf", false, AggregatesID},
}

// NewStandard returns an address space populated with the namespace 0
// skeleton every server exposes: the standard reference type hierarchy, the
// Root/Objects/Types/Views folders and a Server object with its status
// variables.
func NewStandard(startTime time.Time) *AddressSpace {
	as := New()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	for _, def := range standardReferenceTypes {
		must(as.AddNode(NewReferenceType(def.id, def.name, def.inverse, def.abstract, false)))
	}
	for _, def := range standardReferenceTypes {
		if def.parent != nil {
			must(as.AddReference(def.parent, HasSubtypeID, def.id))
		}
	}

	must(as.AddNode(NewObjectType(BaseObjectTypeID, "BaseObjectType", false)))
	must(as.AddNode(NewObjectType(FolderTypeID, "FolderType", false)))
	must(as.AddNode(NewObjectType(ServerTypeID, "ServerType", false)))
	must(as.AddNode(NewVariableType(BaseDataVariableTypeID, "BaseDataVariableType", ua.MustVariant(int32(0)), false)))
	must(as.AddReference(BaseObjectTypeID, HasSubtypeID, FolderTypeID))
	must(as.AddReference(BaseObjectTypeID, HasSubtypeID, ServerTypeID))

	for _, f := range []struct {
		id   *ua.NodeID
		name string
	}{
		{RootFolderID, "Root"},
		{ObjectsFolderID, "Objects"},
		{TypesFolderID, "Types"},
		{ViewsFolderID, "Views"},
	} {
		must(as.AddNode(NewObject(f.id, f.name)))
		must(as.AddReference(f.id, HasTypeDefinitionID, FolderTypeID))
	}
	must(as.AddReference(RootFolderID, OrganizesID, ObjectsFolderID))
	must(as.AddReference(RootFolderID, OrganizesID, TypesFolderID))
	must(as.AddReference(RootFolderID, OrganizesID, ViewsFolderID))

	must(as.AddNode(NewObject(ServerID, "Server")))
	must(as.AddReference(ObjectsFolderID, OrganizesID, ServerID))
	must(as.AddReference(ServerID, HasTypeDefinitionID, ServerTypeID))

	status := []struct {
		id    *ua.NodeID
		name  string
		value *ua.Variant
	}{
		{ServerStatusStartTimeID, "StartTime", ua.MustVariant(startTime)},
		{ServerStatusCurrentTimeID, "CurrentTime", ua.MustVariant(startTime)},
		{ServerStatusStateID, "State", ua.MustVariant(int32(0))},
		{ServerServiceLevelID, "ServiceLevel", ua.MustVariant(byte(255))},
		{ServerStatusSecondsTillShutdownID, "SecondsTillShutdown", ua.MustVariant(uint32(0))},
	}
	for _, s := range status {
		v := NewVariable(s.id, s.name, s.value)
		must(v.SetValue(s.value, startTime, startTime))
		must(as.AddNode(v))
		must(as.AddReference(ServerID, HasComponentID, s.id))
		must(as.AddReference(s.id, HasTypeDefinitionID, BaseDataVariableTypeID))
	}
	return as
}
