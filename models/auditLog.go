package models

import (
	"context"

	"gorm.io/gorm"
)

// AuditLog is append-only; the update/delete hooks refuse any mutation.
type AuditLog struct {
	ID         int          `gorm:"primary_key" json:"id"`
	EntityType EntityType   `gorm:"size:20;not null;index:idx_audit_entity,priority:1" json:"entityType"`
	EntityId   int          `gorm:"not null;index:idx_audit_entity,priority:2" json:"entityId"`
	Action     AuditAction  `gorm:"size:10;not null" json:"action"`
	UserId     *int         `json:"userId,omitempty"`
	Changes    FieldChanges `gorm:"type:text;serializer:json" json:"changes,omitempty"`
	Timestamp  int64        `gorm:"not null;index" json:"timestamp"`
}

func (AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditImmutable
}

func (AuditLog) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditImmutable
}

// RecordAudit appends one entry inside the enclosing unit. It has no failure
// path of its own: an error here rolls the whole unit back.
func RecordAudit(tx *Tx, entityType EntityType, entityId int, action AuditAction, changes FieldChanges) error {
	entry := AuditLog{
		EntityType: entityType,
		EntityId:   entityId,
		Action:     action,
		UserId:     actingUserId(tx.Statement.Context),
		Timestamp:  tx.Now(),
	}
	if len(changes) > 0 {
		entry.Changes = changes
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}
	tx.Notify(CollectionAuditLogs, entry.ID, AuditActionCreate)
	return nil
}

type AuditQuery struct {
	EntityType EntityType
	EntityId   *int
	Limit      int
}

// AuditLogs returns entries newest-first. With both EntityType and EntityId
// set the feed is narrowed to that entity (default limit 50), otherwise the
// global feed is returned (default limit 100).
func (s *Store) AuditLogs(ctx context.Context, q AuditQuery) ([]AuditLog, error) {
	db := s.db.WithContext(ctx).Model(&AuditLog{})
	limit := q.Limit
	if q.EntityType != "" && q.EntityId != nil {
		db = db.Where("entity_type = ? AND entity_id = ?", q.EntityType, *q.EntityId)
		if limit <= 0 {
			limit = 50
		}
	} else if limit <= 0 {
		limit = 100
	}
	var logs []AuditLog
	if err := db.Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
