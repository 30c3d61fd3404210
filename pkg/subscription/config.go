package subscription

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultMaxPublishRequests bounds the per-session publish request queue.
	DefaultMaxPublishRequests = 100

	// DefaultPublishRequestTimeout applies to publish requests whose header
	// carries no timeout hint.
	DefaultPublishRequestTimeout = 30 * time.Second
)

// Priority decides which of several ready subscriptions is matched first
// against the oldest queued publish request.
type Priority int

const (
	// PriorityLateFirst serves Late subscriptions before Normal and
	// KeepAlive ones, then by descending subscription priority.
	PriorityLateFirst Priority = iota

	// PriorityInOrder ignores state and serves by subscription priority,
	// then id.
	PriorityInOrder
)

func (p Priority) String() string {
	switch p {
	case PriorityLateFirst:
		return "late-first"
	case PriorityInOrder:
		return "in-order"
	default:
		return "unknown"
	}
}

// ParsePriority parses a priority policy name.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "late-first":
		return PriorityLateFirst, nil
	case "in-order":
		return PriorityInOrder, nil
	}
	return PriorityLateFirst, fmt.Errorf("unknown subscription priority policy %q", s)
}

// Config bounds one session's subscription engine.
type Config struct {
	MaxPublishRequests    int
	PublishRequestTimeout time.Duration
	Priority              Priority

	MaxSubscriptions       int
	MaxMonitoredItems      int
	MinPublishingInterval  time.Duration
	MaxPublishingInterval  time.Duration
	MinSamplingInterval    time.Duration
	MaxKeepAliveCount      uint32
	MaxLifetimeCount       uint32
	MaxNotificationsPerMsg uint32
	MaxRetransmissionQueue int
	MaxItemQueueSize       uint32
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxPublishRequests:     DefaultMaxPublishRequests,
		PublishRequestTimeout:  DefaultPublishRequestTimeout,
		Priority:               PriorityLateFirst,
		MaxSubscriptions:       100,
		MaxMonitoredItems:      1000,
		MinPublishingInterval:  50 * time.Millisecond,
		MaxPublishingInterval:  time.Hour,
		MinSamplingInterval:    50 * time.Millisecond,
		MaxKeepAliveCount:      30000,
		MaxLifetimeCount:       90000,
		MaxNotificationsPerMsg: 1000,
		MaxRetransmissionQueue: 10,
		MaxItemQueueSize:       100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPublishRequests <= 0 {
		c.MaxPublishRequests = d.MaxPublishRequests
	}
	if c.PublishRequestTimeout <= 0 {
		c.PublishRequestTimeout = d.PublishRequestTimeout
	}
	if c.MaxSubscriptions <= 0 {
		c.MaxSubscriptions = d.MaxSubscriptions
	}
	if c.MaxMonitoredItems <= 0 {
		c.MaxMonitoredItems = d.MaxMonitoredItems
	}
	if c.MinPublishingInterval <= 0 {
		c.MinPublishingInterval = d.MinPublishingInterval
	}
	if c.MaxPublishingInterval < c.MinPublishingInterval {
		c.MaxPublishingInterval = d.MaxPublishingInterval
	}
	if c.MinSamplingInterval <= 0 {
		c.MinSamplingInterval = d.MinSamplingInterval
	}
	if c.MaxKeepAliveCount == 0 {
		c.MaxKeepAliveCount = d.MaxKeepAliveCount
	}
	if c.MaxLifetimeCount == 0 {
		c.MaxLifetimeCount = d.MaxLifetimeCount
	}
	if c.MaxRetransmissionQueue <= 0 {
		c.MaxRetransmissionQueue = d.MaxRetransmissionQueue
	}
	if c.MaxItemQueueSize == 0 {
		c.MaxItemQueueSize = d.MaxItemQueueSize
	}
	return c
}
