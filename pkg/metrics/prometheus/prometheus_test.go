package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/marmos91/opcuad/pkg/subscription"
)

var _ subscription.Metrics = (*subscriptionMetrics)(nil)

func TestSubscriptionMetrics(t *testing.T) {
	m := newSubscriptionMetrics(prometheus.NewRegistry())

	m.SubscriptionCreated()
	m.SubscriptionCreated()
	m.SubscriptionClosed("deleted")
	m.PublishRequestQueued(3)
	m.PublishRequestRejected()
	m.PublishRequestsExpired(2)
	m.PublishRequestsExpired(0)
	m.PublishResponseSent(true, 0)
	m.PublishResponseSent(false, 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.created))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closed.WithLabelValues("deleted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.expired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.responses.WithLabelValues("keep_alive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.responses.WithLabelValues("data")))
}

func TestServiceMetrics(t *testing.T) {
	m := newServiceMetrics(prometheus.NewRegistry())

	m.RecordRequestStart("Read")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight.WithLabelValues("Read")))
	m.RecordRequestEnd("Read")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight.WithLabelValues("Read")))

	m.RecordRequest("Read", 2*time.Millisecond, "")
	m.RecordRequest("Read", time.Millisecond, "BadNothingToDo")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("Read", "Good")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("Read", "BadNothingToDo")))

	m.RecordPublishDelivered(3)
	m.RecordPublishDelivered(0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.publishDelivered))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var s *subscriptionMetrics
	s.SubscriptionCreated()
	s.PublishResponseSent(false, 1)

	var m *serviceMetrics
	m.RecordRequest("Read", time.Millisecond, "")
	m.RecordTick(time.Millisecond)
}
