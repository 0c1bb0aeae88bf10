package syncer

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/ims_backend/models"
)

const (
	KeepServer = "server"
	KeepLocal  = "local"
)

func (c *Coordinator) ListConflicts(ctx context.Context) ([]models.SyncMetadata, error) {
	return c.store.ListConflicts(ctx)
}

// ResolveConflict settles a manual-policy conflict. keep=server applies the
// stored server copy and marks the record synced; keep=local drops the
// snapshot and leaves the record pending for the next push.
func (c *Coordinator) ResolveConflict(ctx context.Context, entityType models.EntityType, entityId int, keep string) error {
	if keep != KeepServer && keep != KeepLocal {
		return fmt.Errorf("%w: keep must be %q or %q", models.ErrInvalidInput, KeepServer, KeepLocal)
	}
	if entityType != models.EntityTypeProduct {
		return fmt.Errorf("%w: only product conflicts can be resolved", models.ErrInvalidInput)
	}

	return c.store.Atomic(ctx, func(tx *models.Tx) error {
		meta, err := models.FindSyncMetadata(tx.DB, entityType, entityId)
		if err != nil {
			return err
		}
		if meta == nil || !meta.HasConflict() {
			return &models.NotFoundError{EntityType: entityType, Id: entityId}
		}
		if keep == KeepLocal {
			return models.ClearConflict(tx, entityType, entityId)
		}
		server := meta.ConflictData.Server
		return applyServerProduct(tx, &server)
	})
}
