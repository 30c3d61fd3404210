package addressspace

import "errors"

var (
	// ErrNodeExists is returned when adding a node whose id is already taken.
	ErrNodeExists = errors.New("node already exists")

	// ErrNodeNotFound is returned when an operation names an unknown node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrAttributeInvalid is returned for an attribute not defined on the
	// node's class.
	ErrAttributeInvalid = errors.New("attribute not defined for node class")

	// ErrTypeMismatch is returned when a value's type differs from the
	// attribute's declared type.
	ErrTypeMismatch = errors.New("value type does not match attribute type")
)
