// Package subscription implements the per-session publish/subscribe
// engine: subscriptions with their monitored items, the bounded queue of
// parked publish requests, and the matching of one against the other.
//
// Publish requests and notifications arrive independently. Requests wait
// in a FIFO queue; a periodic driver calls Tick, which expires stale
// requests, samples monitored items, advances every subscription's
// keep-alive and lifetime counters and hands the oldest waiting request to
// each subscription that has something to send. Finished responses are
// collected with TakeResponses.
package subscription

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/pkg/addressspace"
)

// Subscription ids are unique server-wide.
var lastSubscriptionID atomic.Uint32

// lastItemID numbers monitored items server-wide.
var lastItemID atomic.Uint32

// Metrics receives engine events. Implementations must be safe for
// concurrent use. A nil Metrics disables collection.
type Metrics interface {
	PublishRequestQueued(depth int)
	PublishRequestRejected()
	PublishRequestsExpired(n int)
	PublishResponseSent(keepAlive bool, notifications int)
	SubscriptionCreated()
	SubscriptionClosed(reason string)
}

// PublishResult is a finished publish response waiting to be written to
// the client.
type PublishResult struct {
	RequestID uint32
	Response  *ua.PublishResponse
}

// Stats is a point-in-time summary of the engine.
type Stats struct {
	Subscriptions         int `json:"subscriptions" yaml:"subscriptions"`
	MonitoredItems        int `json:"monitored_items" yaml:"monitored_items"`
	QueuedPublishRequests int `json:"queued_publish_requests" yaml:"queued_publish_requests"`
	PendingResponses      int `json:"pending_responses" yaml:"pending_responses"`
}

// Info describes one subscription for diagnostics.
type Info struct {
	ID                 uint32        `json:"id" yaml:"id"`
	State              string        `json:"state" yaml:"state"`
	PublishingInterval time.Duration `json:"publishing_interval" yaml:"publishing_interval"`
	PublishingEnabled  bool          `json:"publishing_enabled" yaml:"publishing_enabled"`
	MonitoredItems     int           `json:"monitored_items" yaml:"monitored_items"`
	NextSequenceNumber uint32        `json:"next_sequence_number" yaml:"next_sequence_number"`
}

// Subscriptions is one session's publish/subscribe engine. All methods
// are safe for concurrent use by the session's request path and the
// periodic driver.
type Subscriptions struct {
	mu        sync.Mutex
	cfg       Config
	subs      map[uint32]*Subscription
	requests  *PublishRequestQueue
	responses []PublishResult
	metrics   Metrics
	closed    bool
}

// New creates an empty engine.
func New(cfg Config, metrics Metrics) *Subscriptions {
	cfg = cfg.withDefaults()
	return &Subscriptions{
		cfg:      cfg,
		subs:     make(map[uint32]*Subscription),
		requests: NewPublishRequestQueue(cfg.MaxPublishRequests),
		metrics:  metrics,
	}
}

// Create adds a subscription and returns its id with the revised
// parameters.
func (s *Subscriptions) Create(now time.Time, params Parameters) (uint32, Parameters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subs) >= s.cfg.MaxSubscriptions {
		return 0, Parameters{}, ErrTooManySubscriptions
	}
	revised := params.revise(s.cfg)
	id := lastSubscriptionID.Add(1)
	s.subs[id] = newSubscription(id, revised, now)

	if s.metrics != nil {
		s.metrics.SubscriptionCreated()
	}
	logger.Debug("Subscription created",
		logger.KeySubscriptionID, id,
		"publishing_interval", revised.PublishingInterval,
		"keep_alive_count", revised.MaxKeepAliveCount,
		"lifetime_count", revised.LifetimeCount)
	return id, revised, nil
}

// Delete removes subscriptions and returns a status per id.
func (s *Subscriptions) Delete(ids []uint32) []ua.StatusCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]ua.StatusCode, len(ids))
	for i, id := range ids {
		if _, ok := s.subs[id]; !ok {
			results[i] = ua.StatusBadSubscriptionIDInvalid
			continue
		}
		s.remove(id, "deleted")
		results[i] = ua.StatusOK
	}
	return results
}

// DeleteAll removes every subscription.
func (s *Subscriptions) DeleteAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.subs)
	for id := range s.subs {
		s.remove(id, "session closed")
	}
	return n
}

// SetPublishingMode enables or disables publishing and returns a status
// per id.
func (s *Subscriptions) SetPublishingMode(enabled bool, ids []uint32) []ua.StatusCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]ua.StatusCode, len(ids))
	for i, id := range ids {
		sub, ok := s.subs[id]
		if !ok {
			results[i] = ua.StatusBadSubscriptionIDInvalid
			continue
		}
		sub.params.PublishingEnabled = enabled
		results[i] = ua.StatusOK
	}
	return results
}

// CreateMonitoredItems adds items to a subscription. Each item is sampled
// once immediately so its initial value is reported on the next publish.
// It takes the address space read lock for the sampling.
func (s *Subscriptions) CreateMonitoredItems(as *addressspace.AddressSpace, now time.Time, subID uint32, reqs []ItemRequest) ([]ItemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[subID]
	if !ok {
		return nil, ErrSubscriptionIDInvalid
	}
	if sub.ItemCount()+len(reqs) > s.cfg.MaxMonitoredItems {
		return nil, ErrTooManyMonitoredItems
	}

	as.RLock()
	defer as.RUnlock()

	results := make([]ItemResult, len(reqs))
	for i, req := range reqs {
		n, ok := as.FindNode(req.NodeID)
		if !ok {
			results[i].Status = ua.StatusBadNodeIDUnknown
			continue
		}
		if !n.HasAttribute(req.AttributeID) {
			results[i].Status = ua.StatusBadAttributeIDInvalid
			continue
		}

		item := &MonitoredItem{
			id:               lastItemID.Add(1),
			nodeID:           req.NodeID,
			attributeID:      req.AttributeID,
			clientHandle:     req.ClientHandle,
			samplingInterval: req.SamplingInterval,
			queueSize:        req.QueueSize,
			discardOldest:    req.DiscardOldest,
			mode:             req.Mode,
		}
		if item.samplingInterval <= 0 || item.samplingInterval < s.cfg.MinSamplingInterval {
			item.samplingInterval = s.cfg.MinSamplingInterval
		}
		if item.queueSize == 0 {
			item.queueSize = 1
		}
		if item.queueSize > s.cfg.MaxItemQueueSize {
			item.queueSize = s.cfg.MaxItemQueueSize
		}
		item.sample(as, now)
		sub.items[item.id] = item

		results[i] = ItemResult{
			Status:                  ua.StatusOK,
			MonitoredItemID:         item.id,
			RevisedSamplingInterval: item.samplingInterval,
			RevisedQueueSize:        item.queueSize,
		}
	}
	return results, nil
}

// DeleteMonitoredItems removes items from a subscription.
func (s *Subscriptions) DeleteMonitoredItems(subID uint32, ids []uint32) ([]ua.StatusCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[subID]
	if !ok {
		return nil, ErrSubscriptionIDInvalid
	}
	results := make([]ua.StatusCode, len(ids))
	for i, id := range ids {
		if _, ok := sub.items[id]; !ok {
			results[i] = ua.StatusBadMonitoredItemIDInvalid
			continue
		}
		delete(sub.items, id)
		results[i] = ua.StatusOK
	}
	return results, nil
}

// EnqueuePublishRequest parks a publish request at the tail of the queue.
// Acknowledgements carried by the request are applied first; their results
// travel with the request into whichever response eventually answers it.
// A Late subscription is served immediately from the new request.
//
// A full queue rejects the request with ErrTooManyPublishRequests, a
// session without subscriptions with ErrNoSubscription and a drained engine
// with ErrSessionClosed. These are status codes the caller returns to the
// client right away.
func (s *Subscriptions) EnqueuePublishRequest(now time.Time, requestID uint32, req *ua.PublishRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if len(s.subs) == 0 {
		return ErrNoSubscription
	}

	s.expireStale(now)

	pr := &PublishRequest{RequestID: requestID, Request: req, ReceivedAt: now}
	if err := s.requests.Push(pr); err != nil {
		if s.metrics != nil {
			s.metrics.PublishRequestRejected()
		}
		logger.Debug("Publish request rejected",
			logger.KeyRequestID, requestID,
			logger.KeyQueueDepth, s.requests.Len())
		return err
	}
	// A rejected request leaves the retransmission queues untouched.
	pr.ackResults = s.acknowledge(req)
	if s.metrics != nil {
		s.metrics.PublishRequestQueued(s.requests.Len())
	}

	for _, sub := range s.subs {
		sub.resetLifetime()
	}
	s.match(now)
	return nil
}

func (s *Subscriptions) acknowledge(req *ua.PublishRequest) []ua.StatusCode {
	if req == nil || len(req.SubscriptionAcknowledgements) == 0 {
		return nil
	}
	results := make([]ua.StatusCode, len(req.SubscriptionAcknowledgements))
	for i, ack := range req.SubscriptionAcknowledgements {
		sub, ok := s.subs[ack.SubscriptionID]
		switch {
		case !ok:
			results[i] = ua.StatusBadSubscriptionIDInvalid
		case !sub.acknowledge(ack.SequenceNumber):
			results[i] = ua.StatusBadSequenceNumberUnknown
		default:
			results[i] = ua.StatusOK
		}
	}
	return results
}

// Tick runs one pass of the periodic driver: expire stale publish
// requests, sample monitored items under the address space read lock,
// advance every subscription's publishing cycle, then match ready
// subscriptions against queued requests.
func (s *Subscriptions) Tick(as *addressspace.AddressSpace, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireStale(now)

	if as != nil {
		as.RLock()
		for _, sub := range s.subs {
			for _, item := range sub.items {
				item.sample(as, now)
			}
		}
		as.RUnlock()
	}

	for _, sub := range s.subs {
		sub.cycle(now)
	}
	s.match(now)

	for id, sub := range s.subs {
		if sub.expireIfIdle() || sub.state == StateClosed {
			s.remove(id, "lifetime expired")
		}
	}
}

// match hands the oldest queued request to each ready subscription in
// priority order. Subscriptions left without a request go Late.
func (s *Subscriptions) match(now time.Time) {
	ready := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.ready() {
			ready = append(ready, sub)
		}
	}
	if len(ready) == 0 {
		return
	}

	lateFirst := s.cfg.Priority == PriorityLateFirst
	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if lateFirst && (a.state == StateLate) != (b.state == StateLate) {
			return a.state == StateLate
		}
		if a.params.Priority != b.params.Priority {
			return a.params.Priority > b.params.Priority
		}
		return a.id < b.id
	})

	for _, sub := range ready {
		req := s.requests.Pop()
		if req == nil {
			if sub.starve() {
				logger.Info("Subscription lifetime expired",
					logger.KeySubscriptionID, sub.id)
			}
			continue
		}

		resp := sub.publish(req, now, s.cfg.MaxRetransmissionQueue)
		s.responses = append(s.responses, PublishResult{RequestID: req.RequestID, Response: resp})

		if s.metrics != nil {
			s.metrics.PublishResponseSent(len(resp.NotificationMessage.NotificationData) == 0, countNotifications(resp))
		}
	}
}

func countNotifications(resp *ua.PublishResponse) int {
	n := 0
	for _, eo := range resp.NotificationMessage.NotificationData {
		if dc, ok := eo.Value.(*ua.DataChangeNotification); ok {
			n += len(dc.MonitoredItems)
		}
	}
	return n
}

// ExpireStalePublishRequests resolves every queued request older than its
// timeout budget with a BadTimeout response and returns how many expired.
func (s *Subscriptions) ExpireStalePublishRequests(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expireStale(now)
}

func (s *Subscriptions) expireStale(now time.Time) int {
	expired := s.requests.RemoveExpired(now, s.cfg.PublishRequestTimeout)
	for _, req := range expired {
		s.respondWith(req, now, ua.StatusBadTimeout)
	}
	if len(expired) > 0 {
		if s.metrics != nil {
			s.metrics.PublishRequestsExpired(len(expired))
		}
		logger.Debug("Publish requests expired", logger.KeyExpired, len(expired))
	}
	return len(expired)
}

// DrainPublishRequests answers every queued request with status and closes
// the engine to new publish requests. It is used when the owning session
// terminates.
func (s *Subscriptions) DrainPublishRequests(now time.Time, status ua.StatusCode) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	drained := s.requests.Drain()
	for _, req := range drained {
		s.respondWith(req, now, status)
	}
	return len(drained)
}

func (s *Subscriptions) respondWith(req *PublishRequest, now time.Time, status ua.StatusCode) {
	s.responses = append(s.responses, PublishResult{
		RequestID: req.RequestID,
		Response: &ua.PublishResponse{
			ResponseHeader: responseHeader(req, now, status),
			Results:        req.ackResults,
		},
	})
}

// PendingResponses returns the number of finished responses not yet taken.
func (s *Subscriptions) PendingResponses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}

// TakeResponses removes and returns the finished responses in the order
// they were produced.
func (s *Subscriptions) TakeResponses() []PublishResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.responses
	s.responses = nil
	return out
}

func (s *Subscriptions) remove(id uint32, reason string) {
	delete(s.subs, id)
	if s.metrics != nil {
		s.metrics.SubscriptionClosed(reason)
	}
	logger.Debug("Subscription removed", logger.KeySubscriptionID, id, logger.KeyReason, reason)
}

// Len returns the number of subscriptions.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// QueueLen returns the number of parked publish requests.
func (s *Subscriptions) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests.Len()
}

// Stats returns a summary for diagnostics.
func (s *Subscriptions) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Subscriptions:         len(s.subs),
		QueuedPublishRequests: s.requests.Len(),
		PendingResponses:      len(s.responses),
	}
	for _, sub := range s.subs {
		st.MonitoredItems += sub.ItemCount()
	}
	return st
}

// List describes every subscription, ordered by id.
func (s *Subscriptions) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Info, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, Info{
			ID:                 sub.id,
			State:              sub.state.String(),
			PublishingInterval: sub.params.PublishingInterval,
			PublishingEnabled:  sub.params.PublishingEnabled,
			MonitoredItems:     sub.ItemCount(),
			NextSequenceNumber: sub.nextSeq,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup returns the state of one subscription.
func (s *Subscriptions) Lookup(id uint32) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return StateClosed, false
	}
	return sub.state, true
}
