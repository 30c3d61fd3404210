package subscription

import (
	"sort"
	"time"

	"github.com/gopcua/opcua/ua"
)

// State is a subscription's position in the publishing state machine.
type State int

const (
	StateCreating State = iota
	StateNormal
	StateLate
	StateKeepAlive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "Creating"
	case StateNormal:
		return "Normal"
	case StateLate:
		return "Late"
	case StateKeepAlive:
		return "KeepAlive"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Parameters are the client-negotiable timing parameters of a subscription.
type Parameters struct {
	PublishingInterval         time.Duration
	LifetimeCount              uint32
	MaxKeepAliveCount          uint32
	MaxNotificationsPerPublish uint32
	PublishingEnabled          bool
	Priority                   byte
}

// revise clamps p to the engine limits. The lifetime count is at least
// three times the keep-alive count.
func (p Parameters) revise(cfg Config) Parameters {
	if p.PublishingInterval < cfg.MinPublishingInterval {
		p.PublishingInterval = cfg.MinPublishingInterval
	}
	if p.PublishingInterval > cfg.MaxPublishingInterval {
		p.PublishingInterval = cfg.MaxPublishingInterval
	}
	if p.MaxKeepAliveCount == 0 {
		p.MaxKeepAliveCount = 10
	}
	if p.MaxKeepAliveCount > cfg.MaxKeepAliveCount {
		p.MaxKeepAliveCount = cfg.MaxKeepAliveCount
	}
	if p.LifetimeCount < 3*p.MaxKeepAliveCount {
		p.LifetimeCount = 3 * p.MaxKeepAliveCount
	}
	if p.LifetimeCount > cfg.MaxLifetimeCount {
		p.LifetimeCount = cfg.MaxLifetimeCount
	}
	if cfg.MaxNotificationsPerMsg > 0 && (p.MaxNotificationsPerPublish == 0 || p.MaxNotificationsPerPublish > cfg.MaxNotificationsPerMsg) {
		p.MaxNotificationsPerPublish = cfg.MaxNotificationsPerMsg
	}
	return p
}

// action is what a subscription wants to do with the next publish request.
type action int

const (
	actionNone action = iota
	actionNotify
	actionKeepAlive
)

// Subscription is one client subscription. Its counters advance once per
// publishing cycle; matching against publish requests happens in
// Subscriptions.
type Subscription struct {
	id     uint32
	params Parameters
	state  State

	items map[uint32]*MonitoredItem

	nextCycle        time.Time
	keepAliveCounter uint32
	lifetimeCounter  uint32
	messageSent      bool
	more             bool
	pending          action

	// nextSeq is the sequence number the next data message will carry.
	// Keep-alives announce it without consuming it.
	nextSeq        uint32
	retransmission map[uint32]*ua.NotificationMessage
	retransOrder   []uint32
}

func newSubscription(id uint32, params Parameters, now time.Time) *Subscription {
	return &Subscription{
		id:             id,
		params:         params,
		state:          StateCreating,
		items:          make(map[uint32]*MonitoredItem),
		nextCycle:      now.Add(params.PublishingInterval),
		nextSeq:        1,
		retransmission: make(map[uint32]*ua.NotificationMessage),
	}
}

func (s *Subscription) ID() uint32             { return s.id }
func (s *Subscription) State() State           { return s.state }
func (s *Subscription) Parameters() Parameters { return s.params }

// ItemCount returns the number of monitored items.
func (s *Subscription) ItemCount() int { return len(s.items) }

func (s *Subscription) hasNotifications() bool {
	if !s.params.PublishingEnabled {
		return false
	}
	for _, item := range s.items {
		if item.QueueLen() > 0 {
			return true
		}
	}
	return false
}

// resetLifetime is called whenever the session receives a publish request.
func (s *Subscription) resetLifetime() {
	s.lifetimeCounter = 0
}

// cycle runs one publishing-timer expiry and records the resulting wish in
// s.pending. It returns false if the subscription is not due.
func (s *Subscription) cycle(now time.Time) bool {
	if s.state == StateClosed || now.Before(s.nextCycle) {
		return false
	}
	s.nextCycle = s.nextCycle.Add(s.params.PublishingInterval)
	if s.nextCycle.Before(now) {
		s.nextCycle = now.Add(s.params.PublishingInterval)
	}
	s.lifetimeCounter++

	if s.state == StateCreating {
		s.state = StateNormal
	}

	notify := s.hasNotifications()
	switch s.state {
	case StateNormal:
		switch {
		case notify:
			s.pending = actionNotify
		case !s.messageSent:
			s.pending = actionKeepAlive
		default:
			s.toKeepAlive()
		}
	case StateKeepAlive:
		if notify {
			s.pending = actionNotify
			break
		}
		s.keepAliveCounter++
		if s.keepAliveCounter >= s.params.MaxKeepAliveCount {
			s.pending = actionKeepAlive
		}
	case StateLate:
		if notify {
			s.pending = actionNotify
		} else if s.pending == actionNone {
			s.pending = actionKeepAlive
		}
	}
	return true
}

func (s *Subscription) toKeepAlive() {
	s.state = StateKeepAlive
	s.keepAliveCounter = 0
	s.pending = actionNone
}

// ready reports whether the subscription wants a publish request now.
func (s *Subscription) ready() bool {
	return s.state != StateClosed && (s.pending != actionNone || s.more)
}

// starve records that the subscription was ready but no publish request
// was available. It returns true if the lifetime expired and the
// subscription closed.
func (s *Subscription) starve() bool {
	if s.lifetimeCounter >= s.params.LifetimeCount {
		s.state = StateClosed
		return true
	}
	s.state = StateLate
	return false
}

// expireIfIdle closes a subscription whose lifetime ran out while it had
// nothing to send.
func (s *Subscription) expireIfIdle() bool {
	if s.state != StateClosed && s.lifetimeCounter >= s.params.LifetimeCount {
		s.state = StateClosed
		return true
	}
	return false
}

// publish consumes req and builds the response for the pending action.
func (s *Subscription) publish(req *PublishRequest, now time.Time, maxRetrans int) *ua.PublishResponse {
	msg := &ua.NotificationMessage{
		SequenceNumber: s.nextSeq,
		PublishTime:    now,
	}

	if s.pending == actionNotify || s.more {
		notifications, more := s.collect()
		if len(notifications) > 0 {
			msg.NotificationData = []*ua.ExtensionObject{
				ua.NewExtensionObject(&ua.DataChangeNotification{MonitoredItems: notifications}),
			}
			s.remember(msg, maxRetrans)
			s.nextSeq++
		}
		s.more = more
	}

	s.keepAliveCounter = 0
	s.lifetimeCounter = 0
	s.messageSent = true
	s.pending = actionNone
	if len(msg.NotificationData) > 0 {
		s.state = StateNormal
	} else {
		s.state = StateKeepAlive
	}

	return &ua.PublishResponse{
		ResponseHeader:           responseHeader(req, now, ua.StatusOK),
		SubscriptionID:           s.id,
		AvailableSequenceNumbers: s.available(),
		MoreNotifications:        s.more,
		NotificationMessage:      msg,
		Results:                  req.ackResults,
	}
}

// collect takes queued notifications in item-id order up to the
// per-message limit.
func (s *Subscription) collect() ([]*ua.MonitoredItemNotification, bool) {
	ids := make([]uint32, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	limit := int(s.params.MaxNotificationsPerPublish)
	var out []*ua.MonitoredItemNotification
	for _, id := range ids {
		remaining := 0
		if limit > 0 {
			remaining = limit - len(out)
			if remaining == 0 {
				break
			}
		}
		out = append(out, s.items[id].take(remaining)...)
	}

	more := false
	for _, item := range s.items {
		if item.QueueLen() > 0 {
			more = true
			break
		}
	}
	return out, more
}

func (s *Subscription) remember(msg *ua.NotificationMessage, max int) {
	s.retransmission[msg.SequenceNumber] = msg
	s.retransOrder = append(s.retransOrder, msg.SequenceNumber)
	for len(s.retransOrder) > max {
		delete(s.retransmission, s.retransOrder[0])
		s.retransOrder = s.retransOrder[1:]
	}
}

func (s *Subscription) acknowledge(seq uint32) bool {
	if _, ok := s.retransmission[seq]; !ok {
		return false
	}
	delete(s.retransmission, seq)
	for i, n := range s.retransOrder {
		if n == seq {
			s.retransOrder = append(s.retransOrder[:i], s.retransOrder[i+1:]...)
			break
		}
	}
	return true
}

func (s *Subscription) available() []uint32 {
	out := make([]uint32, len(s.retransOrder))
	copy(out, s.retransOrder)
	return out
}

func responseHeader(req *PublishRequest, now time.Time, status ua.StatusCode) *ua.ResponseHeader {
	return &ua.ResponseHeader{
		Timestamp:     now,
		RequestHandle: req.requestHandle(),
		ServiceResult: status,
	}
}
