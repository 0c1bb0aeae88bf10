package syncer

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/ims_backend/models"
	"github.com/mmdatafocus/ims_backend/utils"
	"github.com/sirupsen/logrus"
)

// Trigger runs one cycle on behalf of source. A cycle already in flight is
// not an error for a trigger: the running one picks up the same pending set.
func (c *Coordinator) Trigger(ctx context.Context, source models.SyncTrigger) {
	ctx = utils.SetSyncTriggerInContext(ctx, string(source))
	result, err := c.Sync(ctx)
	log := c.logger.WithFields(logrus.Fields{"module": "syncer", "trigger": source})
	switch {
	case errors.Is(err, ErrSyncInProgress):
		log.Debug("sync skipped; another cycle is running")
	case err != nil:
		log.WithError(err).Error("sync could not start")
	case result.Err() != nil:
		log.WithError(result.Err()).Warn("sync finished with problems")
	}
}

// RunPeriodic triggers a cycle every interval until ctx is done.
func (c *Coordinator) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Trigger(ctx, models.SyncTriggerTimer)
		}
	}
}

// ListenPubSub runs one cycle per "changes available" message. Messages are
// acked even when a cycle is already running.
func (c *Coordinator) ListenPubSub(ctx context.Context, sub *pubsub.Subscription) error {
	if sub == nil {
		return errors.New("pubsub subscription is nil")
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.NumGoroutines = 1
	return sub.Receive(ctx, func(mctx context.Context, m *pubsub.Message) {
		c.logger.WithFields(logrus.Fields{"module": "syncer", "message_id": m.ID}).Debug("sync requested over pubsub")
		c.Trigger(mctx, models.SyncTriggerPubSub)
		m.Ack()
	})
}
