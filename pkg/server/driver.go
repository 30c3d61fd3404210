package server

import (
	"context"
	"time"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/internal/telemetry"
)

// Drive runs one driver pass at now: an idle sweep when one is due, then a
// tick of every session's subscription engine. Finished publish responses
// go to the Deliver callback. It returns the number of responses delivered.
//
// Serve calls Drive on every tick; tests call it directly with a fake
// clock.
func (s *Server) Drive(ctx context.Context, now time.Time) int {
	start := time.Now()

	if s.lastSweep.IsZero() || now.Sub(s.lastSweep) >= s.cfg.SweepInterval {
		s.sweep(ctx, now)
	}

	ctx, span := telemetry.StartDriverSpan(ctx, telemetry.SpanDriverTick)
	defer span.End()

	deliveries := s.sessions.Tick(s.space, now)

	n := 0
	for _, d := range deliveries {
		n += len(d.Results)
		if s.deliver == nil {
			logger.DebugCtx(ctx, "Publish responses dropped, no transport attached",
				logger.KeySessionID, d.Session.ID().String(),
				logger.KeyCount, len(d.Results))
			continue
		}
		s.deliver(d.Session, d.Results)
	}

	span.SetAttributes(
		telemetry.Sessions(s.sessions.Len()),
		telemetry.Deliveries(n),
	)
	if s.metrics != nil {
		s.metrics.RecordPublishDelivered(n)
		s.metrics.RecordTick(time.Since(start))
	}
	return n
}

func (s *Server) sweep(ctx context.Context, now time.Time) {
	s.lastSweep = now

	ctx, span := telemetry.StartDriverSpan(ctx, telemetry.SpanDriverSweep)
	defer span.End()

	expired, purged := s.sessions.Sweep(now)
	span.SetAttributes(telemetry.Expired(expired), telemetry.Purged(purged))

	if expired > 0 || purged > 0 {
		logger.InfoCtx(ctx, "Session sweep",
			logger.KeyExpired, expired,
			logger.KeyPurged, purged)
	}
}
