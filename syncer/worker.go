package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/ims_backend/config"
	"github.com/mmdatafocus/ims_backend/models"
	"github.com/mmdatafocus/ims_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	defaultLockKey = "lock:ims:sync"
	lockTTL        = 5 * time.Minute
)

// Coordinator runs sync cycles against one store. At most one cycle runs at
// a time; a second caller gets ErrSyncInProgress.
type Coordinator struct {
	store     *models.Store
	transport Transport
	policy    ConflictPolicy
	logger    *logrus.Logger
	tracer    trace.Tracer

	locker  *redislock.Client
	lockKey string

	mu      sync.Mutex
	running atomic.Bool
}

// NewCoordinator builds a coordinator. transport may be nil when no sync
// server is configured; Sync then fails without touching the store.
func NewCoordinator(store *models.Store, transport Transport, policy ConflictPolicy, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = store.Logger()
	}
	if policy == "" {
		policy = PolicyLastWriteWins
	}
	return &Coordinator{
		store:     store,
		transport: transport,
		policy:    policy,
		logger:    logger,
		tracer:    otel.Tracer("github.com/mmdatafocus/ims_backend/syncer"),
	}
}

// UseRedisLock extends single-flight across processes sharing the store.
func (c *Coordinator) UseRedisLock(locker *redislock.Client, key string) {
	if key == "" {
		key = defaultLockKey
	}
	c.locker = locker
	c.lockKey = key
}

func (c *Coordinator) Policy() ConflictPolicy {
	return c.policy
}

func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Sync runs pull then push. A failing phase is recorded in the result and
// does not undo the other phase. The returned error is reserved for cycles
// that could not start.
func (c *Coordinator) Sync(ctx context.Context) (*SyncResult, error) {
	if c.transport == nil {
		return nil, errors.New("sync server is not configured")
	}
	if !c.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.mu.Unlock()

	if c.locker != nil {
		lock, err := c.locker.Obtain(ctx, c.lockKey, lockTTL, nil)
		if err == redislock.ErrNotObtained {
			return nil, ErrSyncInProgress
		}
		if err != nil {
			return nil, fmt.Errorf("obtain sync lock: %w", err)
		}
		defer func() {
			_ = lock.Release(context.Background())
		}()
	}

	c.running.Store(true)
	defer c.running.Store(false)

	trigger := models.SyncTriggerManual
	if v, ok := utils.GetSyncTriggerFromContext(ctx); ok && v != "" {
		trigger = models.SyncTrigger(v)
	}
	run := &models.SyncRun{RunId: uuid.NewString(), TriggeredBy: trigger}
	if err := c.store.StartSyncRun(ctx, run); err != nil {
		return nil, err
	}
	log := c.logger.WithFields(logrus.Fields{
		"module":  "syncer",
		"run_id":  run.RunId,
		"trigger": trigger,
	})

	ctx, span := c.tracer.Start(ctx, "sync", trace.WithAttributes(
		attribute.String("sync.run_id", run.RunId),
		attribute.String("sync.policy", string(c.policy)),
	))
	defer span.End()

	result := &SyncResult{RunId: run.RunId, Errors: []string{}}

	pulled, conflicts, err := c.pull(ctx)
	result.Pulled = pulled
	result.Conflicts = conflicts
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("pull: %v", err))
		log.WithField("phase", "pull").WithError(err).Warn("sync phase failed")
	}

	pushed, unresolved, err := c.push(ctx)
	result.Pushed = pushed
	result.Unresolved = unresolved
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("push: %v", err))
		log.WithField("phase", "push").WithError(err).Warn("sync phase failed")
	}

	run.Status = result.status()
	run.Pulled = result.Pulled
	run.Pushed = result.Pushed
	run.Conflicts = result.Conflicts
	run.Unresolved = result.Unresolved
	run.Errors = result.Errors
	if err := c.store.FinishSyncRun(ctx, run); err != nil {
		config.LogError(c.logger, "syncer", "Sync", run.RunId, result, err)
	}
	if err := c.store.RecordSyncAttempt(ctx, c.store.Now(), len(result.Errors) == 0); err != nil {
		config.LogError(c.logger, "syncer", "Sync", run.RunId, nil, err)
	}

	span.SetAttributes(
		attribute.Int("sync.pulled", result.Pulled),
		attribute.Int("sync.pushed", result.Pushed),
		attribute.Int("sync.conflicts", result.Conflicts),
	)
	if len(result.Errors) > 0 {
		span.SetStatus(codes.Error, "sync finished with errors")
	}
	log.WithFields(logrus.Fields{
		"status":     run.Status,
		"pulled":     result.Pulled,
		"pushed":     result.Pushed,
		"conflicts":  result.Conflicts,
		"unresolved": result.Unresolved,
		"duration":   run.DurationMs,
	}).Info("sync finished")
	return result, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// pull fetches server changes since the last marker and merges them in one
// unit. The marker only moves when the whole round applied.
func (c *Coordinator) pull(ctx context.Context) (pulled int, conflicts int, err error) {
	ctx, span := c.tracer.Start(ctx, "sync.pull")
	defer func() { endSpan(span, err) }()

	state, err := c.store.GetSyncState(ctx)
	if err != nil {
		return 0, 0, err
	}
	var since int64
	if state.LastPulledAt != nil {
		since = *state.LastPulledAt
	}
	// taken before the request so changes made on the server meanwhile are pulled next time
	startedAt := c.store.Now()

	changes, err := c.transport.Pull(ctx, since)
	if err != nil {
		return 0, 0, err
	}

	err = c.store.Atomic(ctx, func(tx *models.Tx) error {
		pulled, conflicts = 0, 0
		for i := range changes.Products {
			if changes.Products[i].ID <= 0 {
				c.logger.WithField("module", "syncer").Warn("skipping pulled product without id")
				continue
			}
			conflict, err := c.mergeProduct(tx, &changes.Products[i])
			if err != nil {
				return fmt.Errorf("merge product %d: %w", changes.Products[i].ID, err)
			}
			if conflict {
				conflicts++
			}
			pulled++
		}
		for i := range changes.Transactions {
			if changes.Transactions[i].ID <= 0 {
				c.logger.WithField("module", "syncer").Warn("skipping pulled transaction without id")
				continue
			}
			if _, err := mergeTransaction(tx, &changes.Transactions[i]); err != nil {
				return fmt.Errorf("merge transaction %d: %w", changes.Transactions[i].ID, err)
			}
			pulled++
		}
		for i := range changes.Adjustments {
			if changes.Adjustments[i].ID <= 0 {
				c.logger.WithField("module", "syncer").Warn("skipping pulled adjustment without id")
				continue
			}
			if _, err := mergeAdjustment(tx, &changes.Adjustments[i]); err != nil {
				return fmt.Errorf("merge adjustment %d: %w", changes.Adjustments[i].ID, err)
			}
			pulled++
		}
		return models.SetLastPulledAt(tx, startedAt)
	})
	if err != nil {
		return 0, 0, err
	}
	span.SetAttributes(attribute.Int("sync.pulled", pulled), attribute.Int("sync.conflicts", conflicts))
	return pulled, conflicts, nil
}

// push sends every pending record in one payload. Rows waiting on a manual
// decision are held back and reported as unresolved. A failed request leaves
// every row untouched.
func (c *Coordinator) push(ctx context.Context) (pushed int, unresolved int, err error) {
	ctx, span := c.tracer.Start(ctx, "sync.push")
	defer func() { endSpan(span, err) }()

	pending, err := c.store.ListPending(ctx)
	if err != nil {
		return 0, 0, err
	}

	batch := pushBatch{byType: map[models.EntityType][]models.SyncMetadata{}}
	for _, meta := range pending {
		if meta.HasConflict() {
			unresolved++
			continue
		}
		batch.byType[meta.EntityType] = append(batch.byType[meta.EntityType], meta)
	}

	payload, sent, orphans, err := c.collect(ctx, batch)
	if err != nil {
		return 0, unresolved, err
	}
	if len(orphans) > 0 {
		if err := c.store.Atomic(ctx, func(tx *models.Tx) error {
			for _, meta := range orphans {
				if err := models.RemoveSyncMetadata(tx, meta.EntityType, meta.EntityId); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return 0, unresolved, err
		}
	}
	if payload.Len() == 0 {
		return 0, unresolved, nil
	}

	resp, err := c.transport.Push(ctx, payload)
	if err != nil {
		return 0, unresolved, err
	}

	redirtied := 0
	err = c.store.Atomic(ctx, func(tx *models.Tx) error {
		redirtied = 0
		for _, meta := range sent {
			var version *int64
			if v, ok := resp.Versions[VersionKey(meta.EntityType, meta.EntityId)]; ok {
				version = &v
			}
			cleared, err := models.AcknowledgePush(tx, meta, version)
			if err != nil {
				return err
			}
			if !cleared {
				redirtied++
			}
		}
		return nil
	})
	if err != nil {
		return 0, unresolved, err
	}
	if redirtied > 0 {
		c.logger.WithFields(logrus.Fields{"module": "syncer", "count": redirtied}).
			Info("records changed during push stay pending")
	}
	span.SetAttributes(attribute.Int("sync.pushed", len(sent)))
	return len(sent), unresolved, nil
}

type pushBatch struct {
	byType map[models.EntityType][]models.SyncMetadata
}

func entityIds(rows []models.SyncMetadata) []int {
	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.EntityId)
	}
	return ids
}

// collect loads the bodies for the pending rows. Rows whose record no longer
// exists are returned as orphans.
func (c *Coordinator) collect(ctx context.Context, batch pushBatch) (*ChangeSet, []models.SyncMetadata, []models.SyncMetadata, error) {
	db := c.store.DB().WithContext(ctx)
	payload := &ChangeSet{
		Products:     []models.Product{},
		Transactions: []models.Transaction{},
		Adjustments:  []models.StockAdjustment{},
	}
	var sent, orphans []models.SyncMetadata

	split := func(rows []models.SyncMetadata, found map[int]bool) {
		for _, r := range rows {
			if found[r.EntityId] {
				sent = append(sent, r)
			} else {
				orphans = append(orphans, r)
			}
		}
	}

	if rows := batch.byType[models.EntityTypeProduct]; len(rows) > 0 {
		if err := db.Where("id IN ?", entityIds(rows)).Order("id ASC").Find(&payload.Products).Error; err != nil {
			return nil, nil, nil, err
		}
		found := map[int]bool{}
		for _, p := range payload.Products {
			found[p.ID] = true
		}
		split(rows, found)
	}
	if rows := batch.byType[models.EntityTypeTransaction]; len(rows) > 0 {
		if err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
			Where("id IN ?", entityIds(rows)).Order("id ASC").Find(&payload.Transactions).Error; err != nil {
			return nil, nil, nil, err
		}
		found := map[int]bool{}
		for _, t := range payload.Transactions {
			found[t.ID] = true
		}
		split(rows, found)
	}
	if rows := batch.byType[models.EntityTypeAdjustment]; len(rows) > 0 {
		if err := db.Where("id IN ?", entityIds(rows)).Order("id ASC").Find(&payload.Adjustments).Error; err != nil {
			return nil, nil, nil, err
		}
		found := map[int]bool{}
		for _, a := range payload.Adjustments {
			found[a.ID] = true
		}
		split(rows, found)
	}
	return payload, sent, orphans, nil
}

// Status reports the sync progress record and the pending backlog.
func (c *Coordinator) Status(ctx context.Context) (*StatusResponse, error) {
	state, err := c.store.GetSyncState(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := c.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	conflicts := 0
	for _, meta := range pending {
		if meta.HasConflict() {
			conflicts++
		}
	}
	resp := &StatusResponse{
		ServerConfigured:  c.transport != nil,
		Policy:            c.policy,
		Running:           c.Running(),
		Pending:           len(pending),
		Conflicts:         conflicts,
		LastPulledAt:      state.LastPulledAt,
		LastSyncAt:        state.LastSyncAt,
		LastSuccessSyncAt: state.LastSuccessSyncAt,
	}
	runs, err := c.store.SyncRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		resp.LastRun = &runs[0]
	}
	return resp, nil
}

func (c *Coordinator) History(ctx context.Context, limit int) ([]models.SyncRun, error) {
	return c.store.SyncRuns(ctx, limit)
}
