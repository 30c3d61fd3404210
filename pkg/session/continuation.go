package session

import (
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/pkg/addressspace"
)

// DefaultMaxContinuationPoints bounds each session's continuation point
// store unless configured otherwise.
const DefaultMaxContinuationPoints = 5000

// BrowseContinuationPoint is a paused Browse cursor. It records which
// node was being browsed, at which structure version, and where in the
// filtered reference list the next batch starts.
type BrowseContinuationPoint struct {
	ID            []byte
	View          *ua.ViewDescription
	Description   *ua.BrowseDescription
	NodeVersion   uint64
	Position      int
	MaxReferences uint32
	CreatedAt     time.Time
}

// NewContinuationPointID returns a fresh opaque identifier.
func NewContinuationPointID() []byte {
	id := uuid.New()
	return id[:]
}

// IsValid reports whether the browsed node still exists with the same
// reference set the cursor was positioned against. Requires the address
// space read lock.
func (cp *BrowseContinuationPoint) IsValid(as *addressspace.AddressSpace) bool {
	if cp.Description == nil {
		return false
	}
	version, ok := as.NodeVersion(cp.Description.NodeID)
	return ok && version == cp.NodeVersion
}

// ContinuationPointStore is a bounded FIFO of continuation points. When
// full, the oldest entry is evicted regardless of how recently it was used.
// It is not synchronized; the owning Session guards it.
type ContinuationPointStore struct {
	max   int
	order *queue.Queue
	byID  map[string]*BrowseContinuationPoint
}

// NewContinuationPointStore creates a store holding at most max entries.
func NewContinuationPointStore(max int) *ContinuationPointStore {
	if max <= 0 {
		max = DefaultMaxContinuationPoints
	}
	return &ContinuationPointStore{
		max:   max,
		order: queue.New(),
		byID:  make(map[string]*BrowseContinuationPoint),
	}
}

// Len returns the number of live continuation points.
func (s *ContinuationPointStore) Len() int { return s.order.Length() }

// Max returns the store bound.
func (s *ContinuationPointStore) Max() int { return s.max }

// Add appends cp and evicts from the front until the store is within its
// bound. It returns the number of evicted entries.
func (s *ContinuationPointStore) Add(cp BrowseContinuationPoint) int {
	entry := &cp
	if old, ok := s.byID[string(cp.ID)]; ok {
		s.filter(func(e *BrowseContinuationPoint) bool { return e != old })
	}
	s.order.Add(entry)
	s.byID[string(cp.ID)] = entry

	evicted := 0
	for s.order.Length() > s.max {
		oldest := s.order.Remove().(*BrowseContinuationPoint)
		delete(s.byID, string(oldest.ID))
		evicted++
	}
	return evicted
}

// Find returns a copy of the continuation point with the given id.
func (s *ContinuationPointStore) Find(id []byte) (BrowseContinuationPoint, bool) {
	entry, ok := s.byID[string(id)]
	if !ok {
		return BrowseContinuationPoint{}, false
	}
	return *entry, true
}

// RemoveExpired keeps only the entries that still validate against as and
// returns how many were dropped. Requires the address space read lock.
func (s *ContinuationPointStore) RemoveExpired(as *addressspace.AddressSpace) int {
	return s.filter(func(e *BrowseContinuationPoint) bool { return e.IsValid(as) })
}

// Remove releases one continuation point.
func (s *ContinuationPointStore) Remove(id []byte) bool {
	if _, ok := s.byID[string(id)]; !ok {
		return false
	}
	return s.RemoveMany([][]byte{id}) == 1
}

// RemoveMany releases every listed continuation point in one pass over the
// store and returns how many were present.
func (s *ContinuationPointStore) RemoveMany(ids [][]byte) int {
	if len(ids) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[string(id)] = struct{}{}
	}
	return s.filter(func(e *BrowseContinuationPoint) bool {
		_, release := set[string(e.ID)]
		return !release
	})
}

// Clear releases everything.
func (s *ContinuationPointStore) Clear() int {
	return s.filter(func(*BrowseContinuationPoint) bool { return false })
}

// IDs returns the live identifiers, oldest first.
func (s *ContinuationPointStore) IDs() [][]byte {
	out := make([][]byte, 0, s.order.Length())
	for i := 0; i < s.order.Length(); i++ {
		out = append(out, s.order.Get(i).(*BrowseContinuationPoint).ID)
	}
	return out
}

// filter rebuilds the ring keeping entries for which keep returns true,
// preserving order, and returns the number removed.
func (s *ContinuationPointStore) filter(keep func(*BrowseContinuationPoint) bool) int {
	kept := queue.New()
	removed := 0
	for s.order.Length() > 0 {
		e := s.order.Remove().(*BrowseContinuationPoint)
		if keep(e) {
			kept.Add(e)
			continue
		}
		if s.byID[string(e.ID)] == e {
			delete(s.byID, string(e.ID))
		}
		removed++
	}
	s.order = kept
	return removed
}
