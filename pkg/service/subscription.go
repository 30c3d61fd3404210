package service

import (
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/pkg/subscription"
)

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// CreateSubscription creates a subscription on the session and returns the
// revised parameters.
func (h *Handler) CreateSubscription(ctx *Context, req *ua.CreateSubscriptionRequest) (*ua.CreateSubscriptionResponse, error) {
	if err := h.cancelled(ctx); err != nil {
		return nil, err
	}

	id, revised, err := ctx.Session.Subscriptions().Create(h.now(), subscription.Parameters{
		PublishingInterval:         millis(req.RequestedPublishingInterval),
		LifetimeCount:              req.RequestedLifetimeCount,
		MaxKeepAliveCount:          req.RequestedMaxKeepAliveCount,
		MaxNotificationsPerPublish: req.MaxNotificationsPerPublish,
		PublishingEnabled:          req.PublishingEnabled,
		Priority:                   req.Priority,
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctxOf(ctx), "Subscription created",
		logger.KeySubscriptionID, id,
		"publishing_interval", revised.PublishingInterval)

	return &ua.CreateSubscriptionResponse{
		ResponseHeader:            h.responseHeader(req.RequestHeader, ua.StatusOK),
		SubscriptionID:            id,
		RevisedPublishingInterval: toMillis(revised.PublishingInterval),
		RevisedLifetimeCount:      revised.LifetimeCount,
		RevisedMaxKeepAliveCount:  revised.MaxKeepAliveCount,
	}, nil
}

// DeleteSubscriptions removes subscriptions; unknown ids yield
// BadSubscriptionIdInvalid for their item.
func (h *Handler) DeleteSubscriptions(ctx *Context, req *ua.DeleteSubscriptionsRequest) (*ua.DeleteSubscriptionsResponse, error) {
	if len(req.SubscriptionIDs) == 0 {
		return nil, ua.StatusBadNothingToDo
	}
	return &ua.DeleteSubscriptionsResponse{
		ResponseHeader: h.responseHeader(req.RequestHeader, ua.StatusOK),
		Results:        ctx.Session.Subscriptions().Delete(req.SubscriptionIDs),
	}, nil
}

// SetPublishingMode enables or disables publishing per subscription.
func (h *Handler) SetPublishingMode(ctx *Context, req *ua.SetPublishingModeRequest) (*ua.SetPublishingModeResponse, error) {
	if len(req.SubscriptionIDs) == 0 {
		return nil, ua.StatusBadNothingToDo
	}
	return &ua.SetPublishingModeResponse{
		ResponseHeader: h.responseHeader(req.RequestHeader, ua.StatusOK),
		Results:        ctx.Session.Subscriptions().SetPublishingMode(req.PublishingEnabled, req.SubscriptionIDs),
	}, nil
}

// CreateMonitoredItems adds items to a subscription. Each item gets its own
// status; an unknown subscription fails the whole request.
func (h *Handler) CreateMonitoredItems(ctx *Context, req *ua.CreateMonitoredItemsRequest) (*ua.CreateMonitoredItemsResponse, error) {
	if len(req.ItemsToCreate) == 0 {
		return nil, ua.StatusBadNothingToDo
	}
	if req.TimestampsToReturn > ua.TimestampsToReturnNeither {
		return nil, ua.StatusBadTimestampsToReturnInvalid
	}

	reqs := make([]subscription.ItemRequest, len(req.ItemsToCreate))
	invalid := make([]bool, len(req.ItemsToCreate))
	for i, item := range req.ItemsToCreate {
		if item == nil || item.ItemToMonitor == nil || item.ItemToMonitor.NodeID == nil {
			invalid[i] = true
			reqs[i] = subscription.ItemRequest{NodeID: ua.NewNumericNodeID(0, 0)}
			continue
		}
		r := subscription.ItemRequest{
			NodeID:      item.ItemToMonitor.NodeID,
			AttributeID: item.ItemToMonitor.AttributeID,
			Mode:        subscription.MonitoringMode(item.MonitoringMode),
		}
		if p := item.RequestedParameters; p != nil {
			r.ClientHandle = p.ClientHandle
			r.SamplingInterval = millis(p.SamplingInterval)
			r.QueueSize = p.QueueSize
			r.DiscardOldest = p.DiscardOldest
		}
		reqs[i] = r
	}

	created, err := ctx.Session.Subscriptions().CreateMonitoredItems(h.Space, h.now(), req.SubscriptionID, reqs)
	if err != nil {
		return nil, err
	}

	results := make([]*ua.MonitoredItemCreateResult, len(created))
	for i, r := range created {
		if invalid[i] {
			results[i] = &ua.MonitoredItemCreateResult{StatusCode: ua.StatusBadNodeIDInvalid}
			continue
		}
		results[i] = &ua.MonitoredItemCreateResult{
			StatusCode:              r.Status,
			MonitoredItemID:         r.MonitoredItemID,
			RevisedSamplingInterval: toMillis(r.RevisedSamplingInterval),
			RevisedQueueSize:        r.RevisedQueueSize,
		}
	}

	return &ua.CreateMonitoredItemsResponse{
		ResponseHeader: h.responseHeader(req.RequestHeader, ua.StatusOK),
		Results:        results,
	}, nil
}

// DeleteMonitoredItems removes items from a subscription.
func (h *Handler) DeleteMonitoredItems(ctx *Context, req *ua.DeleteMonitoredItemsRequest) (*ua.DeleteMonitoredItemsResponse, error) {
	if len(req.MonitoredItemIDs) == 0 {
		return nil, ua.StatusBadNothingToDo
	}
	results, err := ctx.Session.Subscriptions().DeleteMonitoredItems(req.SubscriptionID, req.MonitoredItemIDs)
	if err != nil {
		return nil, err
	}
	return &ua.DeleteMonitoredItemsResponse{
		ResponseHeader: h.responseHeader(req.RequestHeader, ua.StatusOK),
		Results:        results,
	}, nil
}

// Publish queues a publish request on the session. The response is not
// returned here: it is produced later, either right away when a
// subscription already has something to send, by the periodic driver when
// notifications or a keep-alive become due, or as a BadTimeout once the
// request outlives its timeout hint. Finished responses are collected with
// Subscriptions.TakeResponses.
//
// A full queue (BadTooManyPublishRequests), a session without
// subscriptions (BadNoSubscription) and a session closed after validation
// (BadSessionClosed) are returned immediately.
func (h *Handler) Publish(ctx *Context, req *ua.PublishRequest) error {
	if err := h.cancelled(ctx); err != nil {
		return err
	}
	if err := ctx.Session.Subscriptions().EnqueuePublishRequest(h.now(), ctx.RequestID, req); err != nil {
		logger.DebugCtx(ctxOf(ctx), "Publish refused",
			logger.KeyRequestID, ctx.RequestID,
			logger.KeyError, err)
		return err
	}
	return nil
}
