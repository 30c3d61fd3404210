package subscription

import (
	"github.com/gopcua/opcua/ua"
)

// Engine errors are status codes so service handlers can return them as
// the service result without translation.
var (
	ErrTooManyPublishRequests error = ua.StatusBadTooManyPublishRequests
	ErrNoSubscription         error = ua.StatusBadNoSubscription
	ErrTooManySubscriptions   error = ua.StatusBadTooManySubscriptions
	ErrSubscriptionIDInvalid  error = ua.StatusBadSubscriptionIDInvalid
	ErrTooManyMonitoredItems  error = ua.StatusBadTooManyMonitoredItems
	ErrSessionClosed          error = ua.StatusBadSessionClosed
)
