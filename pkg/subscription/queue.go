package subscription

import (
	"time"

	"github.com/eapache/queue"
	"github.com/gopcua/opcua/ua"
)

// PublishRequest is a client publish request parked until a subscription
// has something to send or the request times out.
type PublishRequest struct {
	RequestID  uint32
	Request    *ua.PublishRequest
	ReceivedAt time.Time

	// seq is the enqueue order. Two requests may share a ReceivedAt.
	seq uint64

	// ackResults are the acknowledgement outcomes echoed in the response.
	ackResults []ua.StatusCode
}

// Timeout returns the request's timeout budget: the header's timeout hint
// when set, def otherwise.
func (r *PublishRequest) Timeout(def time.Duration) time.Duration {
	if r.Request != nil && r.Request.RequestHeader != nil && r.Request.RequestHeader.TimeoutHint > 0 {
		return time.Duration(r.Request.RequestHeader.TimeoutHint) * time.Millisecond
	}
	return def
}

// Expired reports whether the request's age exceeds its timeout budget.
func (r *PublishRequest) Expired(now time.Time, def time.Duration) bool {
	return now.Sub(r.ReceivedAt) > r.Timeout(def)
}

func (r *PublishRequest) requestHandle() uint32 {
	if r.Request == nil || r.Request.RequestHeader == nil {
		return 0
	}
	return r.Request.RequestHeader.RequestHandle
}

// PublishRequestQueue is a bounded FIFO of publish requests backed by a
// ring buffer. It is not synchronized; Subscriptions guards it.
type PublishRequestQueue struct {
	max     int
	nextSeq uint64
	q       *queue.Queue
}

// NewPublishRequestQueue creates a queue holding at most max requests.
func NewPublishRequestQueue(max int) *PublishRequestQueue {
	if max <= 0 {
		max = DefaultMaxPublishRequests
	}
	return &PublishRequestQueue{max: max, q: queue.New()}
}

// Len returns the number of queued requests.
func (p *PublishRequestQueue) Len() int { return p.q.Length() }

// Cap returns the queue bound.
func (p *PublishRequestQueue) Cap() int { return p.max }

// Push appends r at the tail. A full queue rejects r with
// ErrTooManyPublishRequests.
func (p *PublishRequestQueue) Push(r *PublishRequest) error {
	if p.q.Length() >= p.max {
		return ErrTooManyPublishRequests
	}
	p.nextSeq++
	r.seq = p.nextSeq
	p.q.Add(r)
	return nil
}

// Pop removes and returns the oldest request, or nil when empty.
func (p *PublishRequestQueue) Pop() *PublishRequest {
	if p.q.Length() == 0 {
		return nil
	}
	return p.q.Remove().(*PublishRequest)
}

// Peek returns the oldest request without removing it.
func (p *PublishRequestQueue) Peek() *PublishRequest {
	if p.q.Length() == 0 {
		return nil
	}
	return p.q.Peek().(*PublishRequest)
}

// RemoveExpired removes every request whose age exceeds its timeout
// budget and returns them in enqueue order. Survivors keep their order.
func (p *PublishRequestQueue) RemoveExpired(now time.Time, def time.Duration) []*PublishRequest {
	var expired []*PublishRequest
	kept := queue.New()
	for p.q.Length() > 0 {
		r := p.q.Remove().(*PublishRequest)
		if r.Expired(now, def) {
			expired = append(expired, r)
			continue
		}
		kept.Add(r)
	}
	p.q = kept
	return expired
}

// Drain removes and returns every queued request in enqueue order.
func (p *PublishRequestQueue) Drain() []*PublishRequest {
	out := make([]*PublishRequest, 0, p.q.Length())
	for p.q.Length() > 0 {
		out = append(out, p.q.Remove().(*PublishRequest))
	}
	return out
}
