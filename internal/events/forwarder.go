package events

import (
	"context"
	"time"

	domrepo "FinExec/internal/domain/repository"
	"FinExec/pkg/logger"
)

// Forward drains a subscription into an EventPublisher until ctx is done or
// the subscription closes. Publish failures are logged and skipped.
func Forward(ctx context.Context, sub *Subscription, pub domrepo.EventPublisher, lgr *logger.Logger) {
	log := lgr.With("event-forwarder")
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := pub.PublishEvent(pctx, e); err != nil {
				log.Warn("publish event", logger.String("type", string(e.Type)), logger.Error(err))
			}
			cancel()
		}
	}
}
