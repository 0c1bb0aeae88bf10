package models

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// SyncMetadata tracks divergence of one record from the last known server state.
// Exactly one row exists per (entity_type, entity_id).
type SyncMetadata struct {
	ID            int               `gorm:"primary_key" json:"id"`
	EntityType    EntityType        `gorm:"size:20;not null;uniqueIndex:idx_sync_entity,priority:1" json:"entityType"`
	EntityId      int               `gorm:"not null;uniqueIndex:idx_sync_entity,priority:2" json:"entityId"`
	LocalVersion  int               `gorm:"not null" json:"localVersion"`
	ServerVersion *int64            `json:"serverVersion,omitempty"`
	LastSyncedAt  *int64            `json:"lastSyncedAt,omitempty"`
	PendingSync   bool              `gorm:"not null;index" json:"pendingSync"`
	ConflictData  *ConflictSnapshot `gorm:"type:text;serializer:json" json:"conflictData,omitempty"`
}

func (SyncMetadata) TableName() string {
	return "sync_metadata"
}

// HasConflict reports the Conflict state: divergence awaiting an operator decision.
func (m *SyncMetadata) HasConflict() bool {
	return m.ConflictData != nil
}

// MarkDirty upserts the metadata row for a local mutation: a new row starts at
// local version 1, an existing row is bumped. Either way it becomes pending.
func MarkDirty(tx *Tx, entityType EntityType, entityId int) (*SyncMetadata, error) {
	meta, err := FindSyncMetadata(tx.DB, entityType, entityId)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = &SyncMetadata{
			EntityType:   entityType,
			EntityId:     entityId,
			LocalVersion: 1,
			PendingSync:  true,
		}
		if err := tx.Create(meta).Error; err != nil {
			return nil, err
		}
		tx.Notify(CollectionSyncMetadata, meta.ID, AuditActionCreate)
		return meta, nil
	}
	meta.LocalVersion++
	meta.PendingSync = true
	if err := tx.Model(&SyncMetadata{}).Where("id = ?", meta.ID).Updates(map[string]interface{}{
		"local_version": meta.LocalVersion,
		"pending_sync":  true,
	}).Error; err != nil {
		return nil, err
	}
	tx.Notify(CollectionSyncMetadata, meta.ID, AuditActionUpdate)
	return meta, nil
}

// FindSyncMetadata returns nil without error when no row exists.
func FindSyncMetadata(db *gorm.DB, entityType EntityType, entityId int) (*SyncMetadata, error) {
	var meta SyncMetadata
	err := db.Where("entity_type = ? AND entity_id = ?", entityType, entityId).Take(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// MarkServerState records that the local copy now equals the server copy:
// pending is cleared, any conflict is dropped, and the server version is kept.
// Used by the sync merge path only; it never bumps the local version.
func MarkServerState(tx *Tx, entityType EntityType, entityId int, serverVersion *int64) error {
	now := tx.Now()
	meta, err := FindSyncMetadata(tx.DB, entityType, entityId)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = &SyncMetadata{
			EntityType:    entityType,
			EntityId:      entityId,
			LocalVersion:  0,
			ServerVersion: serverVersion,
			LastSyncedAt:  &now,
			PendingSync:   false,
		}
		if err := tx.Create(meta).Error; err != nil {
			return err
		}
		tx.Notify(CollectionSyncMetadata, meta.ID, AuditActionCreate)
		return nil
	}
	updates := map[string]interface{}{
		"pending_sync":   false,
		"last_synced_at": now,
		"conflict_data":  gorm.Expr("NULL"),
	}
	if serverVersion != nil {
		updates["server_version"] = *serverVersion
	}
	if err := tx.Model(&SyncMetadata{}).Where("id = ?", meta.ID).Updates(updates).Error; err != nil {
		return err
	}
	tx.Notify(CollectionSyncMetadata, meta.ID, AuditActionUpdate)
	return nil
}

// RemoveSyncMetadata is the terminal state for a purged record.
func RemoveSyncMetadata(tx *Tx, entityType EntityType, entityId int) error {
	res := tx.Where("entity_type = ? AND entity_id = ?", entityType, entityId).Delete(&SyncMetadata{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		tx.Notify(CollectionSyncMetadata, entityId, AuditActionDelete)
	}
	return nil
}

// ListPending returns every row with pending_sync set, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]SyncMetadata, error) {
	var rows []SyncMetadata
	if err := s.db.WithContext(ctx).Where("pending_sync = ?", true).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListConflicts returns rows awaiting manual resolution.
func (s *Store) ListConflicts(ctx context.Context) ([]SyncMetadata, error) {
	var rows []SyncMetadata
	if err := s.db.WithContext(ctx).Where("conflict_data IS NOT NULL").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) GetSyncMetadata(ctx context.Context, entityType EntityType, entityId int) (*SyncMetadata, error) {
	meta, err := FindSyncMetadata(s.db.WithContext(ctx), entityType, entityId)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, notFound(entityType, entityId)
	}
	return meta, nil
}

// RecordConflict stores both sides of a divergence for an operator decision.
// The row stays pending; push skips it until it is resolved.
func RecordConflict(tx *Tx, entityType EntityType, entityId int, snapshot *ConflictSnapshot) error {
	meta, err := FindSyncMetadata(tx.DB, entityType, entityId)
	if err != nil {
		return err
	}
	if meta == nil {
		return notFound(entityType, entityId)
	}
	meta.ConflictData = snapshot
	meta.PendingSync = true
	if err := tx.Save(meta).Error; err != nil {
		return err
	}
	tx.Notify(CollectionSyncMetadata, meta.ID, AuditActionUpdate)
	return nil
}

// ClearConflict drops the stored snapshot and leaves the local copy pending,
// so the next push sends it.
func ClearConflict(tx *Tx, entityType EntityType, entityId int) error {
	meta, err := FindSyncMetadata(tx.DB, entityType, entityId)
	if err != nil {
		return err
	}
	if meta == nil {
		return notFound(entityType, entityId)
	}
	meta.ConflictData = nil
	meta.PendingSync = true
	if err := tx.Save(meta).Error; err != nil {
		return err
	}
	tx.Notify(CollectionSyncMetadata, meta.ID, AuditActionUpdate)
	return nil
}

// AcknowledgePush clears pending for a pushed row, but only if it was not
// touched since the push read it. A mutation made during the push bumps the
// local version, so the row stays pending for the next cycle.
func AcknowledgePush(tx *Tx, sent SyncMetadata, serverVersion *int64) (bool, error) {
	updates := map[string]interface{}{
		"pending_sync":   false,
		"last_synced_at": tx.Now(),
	}
	if serverVersion != nil {
		updates["server_version"] = *serverVersion
	}
	res := tx.Model(&SyncMetadata{}).
		Where("id = ? AND local_version = ? AND conflict_data IS NULL", sent.ID, sent.LocalVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	tx.Notify(CollectionSyncMetadata, sent.ID, AuditActionUpdate)
	return true, nil
}
