// Package addressspace holds the server's node tree. A single AddressSpace
// is shared by every session and guarded by one reader/writer lock: Read and
// Browse take the read lock, Write and structural edits the write lock.
// Accessors assume the caller already holds the appropriate lock.
package addressspace

import (
	"fmt"
	"sync"

	"github.com/gopcua/opcua/ua"
)

// AddressSpace is a lockable map of nodes keyed by node id.
type AddressSpace struct {
	sync.RWMutex

	nodes map[string]*Node

	// generation is a monotonic counter handed out as node versions so a
	// node removed and re-added never regains an old version.
	generation uint64
}

// New returns an empty address space.
func New() *AddressSpace {
	return &AddressSpace{nodes: make(map[string]*Node)}
}

func key(id *ua.NodeID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func (as *AddressSpace) bump(n *Node) {
	as.generation++
	n.version = as.generation
}

// Len returns the number of nodes.
func (as *AddressSpace) Len() int {
	return len(as.nodes)
}

// AddNode inserts n. Requires the write lock.
func (as *AddressSpace) AddNode(n *Node) error {
	k := key(n.ID())
	if _, exists := as.nodes[k]; exists {
		return fmt.Errorf("%w: %s", ErrNodeExists, k)
	}
	as.bump(n)
	as.nodes[k] = n
	return nil
}

// RemoveNode deletes the node and every reference pointing at it. Requires
// the write lock.
func (as *AddressSpace) RemoveNode(id *ua.NodeID) bool {
	k := key(id)
	n, ok := as.nodes[k]
	if !ok {
		return false
	}
	delete(as.nodes, k)

	for _, ref := range n.refs {
		target, ok := as.nodes[key(ref.TargetID)]
		if !ok {
			continue
		}
		if target.dropReferencesTo(k) {
			as.bump(target)
		}
	}
	return true
}

// FindNode returns the node with the given id. Requires at least the read
// lock; mutating the returned node requires the write lock.
func (as *AddressSpace) FindNode(id *ua.NodeID) (*Node, bool) {
	n, ok := as.nodes[key(id)]
	return n, ok
}

// NodeVersion returns the structure version of a node. The version changes
// whenever the node's reference set changes.
func (as *AddressSpace) NodeVersion(id *ua.NodeID) (uint64, bool) {
	n, ok := as.nodes[key(id)]
	if !ok {
		return 0, false
	}
	return n.version, true
}

// AddReference links source to target with a forward reference and adds
// the matching inverse reference on target. Requires the write lock.
func (as *AddressSpace) AddReference(source, refType, target *ua.NodeID) error {
	src, ok := as.nodes[key(source)]
	if !ok {
		return fmt.Errorf("%w: source %s", ErrNodeNotFound, key(source))
	}
	dst, ok := as.nodes[key(target)]
	if !ok {
		return fmt.Errorf("%w: target %s", ErrNodeNotFound, key(target))
	}
	if _, ok := as.nodes[key(refType)]; !ok {
		return fmt.Errorf("%w: reference type %s", ErrNodeNotFound, key(refType))
	}

	src.refs = append(src.refs, Reference{ReferenceTypeID: refType, IsForward: true, TargetID: target})
	dst.refs = append(dst.refs, Reference{ReferenceTypeID: refType, IsForward: false, TargetID: source})
	as.bump(src)
	as.bump(dst)
	return nil
}

// RemoveReference removes a forward reference and its inverse. Requires
// the write lock.
func (as *AddressSpace) RemoveReference(source, refType, target *ua.NodeID) bool {
	src, ok := as.nodes[key(source)]
	if !ok {
		return false
	}
	if !src.dropReference(refType, true, target) {
		return false
	}
	as.bump(src)
	if dst, ok := as.nodes[key(target)]; ok && dst.dropReference(refType, false, source) {
		as.bump(dst)
	}
	return true
}

// IsSubtype reports whether refType equals base or derives from it through
// HasSubtype references.
func (as *AddressSpace) IsSubtype(refType, base *ua.NodeID) bool {
	want := key(base)
	hasSubtype := key(HasSubtypeID)
	seen := make(map[string]bool)

	current := key(refType)
	for current != "" && !seen[current] {
		if current == want {
			return true
		}
		seen[current] = true

		n, ok := as.nodes[current]
		if !ok {
			return false
		}
		next := ""
		for _, ref := range n.refs {
			if !ref.IsForward && key(ref.ReferenceTypeID) == hasSubtype {
				next = key(ref.TargetID)
				break
			}
		}
		current = next
	}
	return false
}

func (n *Node) dropReference(refType *ua.NodeID, forward bool, target *ua.NodeID) bool {
	rk, tk := key(refType), key(target)
	for i, ref := range n.refs {
		if ref.IsForward == forward && key(ref.ReferenceTypeID) == rk && key(ref.TargetID) == tk {
			n.refs = append(n.refs[:i], n.refs[i+1:]...)
			return true
		}
	}
	return false
}

func (n *Node) dropReferencesTo(target string) bool {
	kept := n.refs[:0]
	for _, ref := range n.refs {
		if key(ref.TargetID) != target {
			kept = append(kept, ref)
		}
	}
	dropped := len(kept) != len(n.refs)
	n.refs = kept
	return dropped
}
