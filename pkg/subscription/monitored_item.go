package subscription

import (
	"reflect"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/pkg/addressspace"
)

// MonitoringMode controls whether an item samples and whether it reports.
type MonitoringMode int

const (
	MonitoringModeDisabled MonitoringMode = iota
	MonitoringModeSampling
	MonitoringModeReporting
)

// ItemRequest describes a monitored item to create.
type ItemRequest struct {
	NodeID           *ua.NodeID
	AttributeID      ua.AttributeID
	ClientHandle     uint32
	SamplingInterval time.Duration
	QueueSize        uint32
	DiscardOldest    bool
	Mode             MonitoringMode
}

// ItemResult is the per-item outcome of CreateMonitoredItems.
type ItemResult struct {
	Status                  ua.StatusCode
	MonitoredItemID         uint32
	RevisedSamplingInterval time.Duration
	RevisedQueueSize        uint32
}

// MonitoredItem samples one node attribute and queues a notification each
// time the sampled value or status changes.
type MonitoredItem struct {
	id               uint32
	nodeID           *ua.NodeID
	attributeID      ua.AttributeID
	clientHandle     uint32
	samplingInterval time.Duration
	queueSize        uint32
	discardOldest    bool
	mode             MonitoringMode

	lastSample time.Time
	last       *ua.DataValue
	queue      []*ua.MonitoredItemNotification
	overflows  uint64
}

func (m *MonitoredItem) ID() uint32           { return m.id }
func (m *MonitoredItem) NodeID() *ua.NodeID   { return m.nodeID }
func (m *MonitoredItem) ClientHandle() uint32 { return m.clientHandle }
func (m *MonitoredItem) QueueLen() int        { return len(m.queue) }

// sample reads the monitored attribute if the sampling interval has
// elapsed. Requires the address space read lock.
func (m *MonitoredItem) sample(as *addressspace.AddressSpace, now time.Time) {
	if m.mode == MonitoringModeDisabled {
		return
	}
	if !m.lastSample.IsZero() && now.Sub(m.lastSample) < m.samplingInterval {
		return
	}
	m.lastSample = now

	dv := as.Read(m.nodeID, m.attributeID, ua.TimestampsToReturnBoth, now)
	if m.last != nil && sameValue(m.last, dv) {
		return
	}
	m.last = dv
	if m.mode != MonitoringModeReporting {
		return
	}
	m.enqueue(&ua.MonitoredItemNotification{ClientHandle: m.clientHandle, Value: dv})
}

func (m *MonitoredItem) enqueue(n *ua.MonitoredItemNotification) {
	if uint32(len(m.queue)) < m.queueSize {
		m.queue = append(m.queue, n)
		return
	}
	m.overflows++
	if m.discardOldest {
		m.queue = append(m.queue[1:], n)
		return
	}
	m.queue[len(m.queue)-1] = n
}

// take removes up to max queued notifications; max 0 takes all.
func (m *MonitoredItem) take(max int) []*ua.MonitoredItemNotification {
	if max <= 0 || max > len(m.queue) {
		max = len(m.queue)
	}
	out := m.queue[:max:max]
	m.queue = m.queue[max:]
	return out
}

// sameValue implements the default StatusValue data change trigger.
func sameValue(a, b *ua.DataValue) bool {
	if a.Status != b.Status {
		return false
	}
	if a.Value == nil || b.Value == nil {
		return a.Value == b.Value
	}
	return a.Value.Type() == b.Value.Type() && reflect.DeepEqual(a.Value.Value(), b.Value.Value())
}
