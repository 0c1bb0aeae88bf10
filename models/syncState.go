package models

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const syncStateId = 1

// SyncState is the single-row record of sync progress.
type SyncState struct {
	ID                int    `gorm:"primary_key" json:"-"`
	LastPulledAt      *int64 `json:"lastPulledAt,omitempty"`
	LastSyncAt        *int64 `json:"lastSyncAt,omitempty"`
	LastSuccessSyncAt *int64 `json:"lastSuccessSyncAt,omitempty"`
}

func (SyncState) TableName() string {
	return "sync_state"
}

type SyncRunStatus string

const (
	SyncRunStatusRunning SyncRunStatus = "running"
	SyncRunStatusSuccess SyncRunStatus = "success"
	SyncRunStatusPartial SyncRunStatus = "partial"
	SyncRunStatusFailed  SyncRunStatus = "failed"
)

type SyncTrigger string

const (
	SyncTriggerManual SyncTrigger = "manual"
	SyncTriggerTimer  SyncTrigger = "timer"
	SyncTriggerPubSub SyncTrigger = "pubsub"
	SyncTriggerCli    SyncTrigger = "cli"
)

// SyncRun records one sync cycle.
type SyncRun struct {
	ID          int           `gorm:"primary_key" json:"id"`
	RunId       string        `gorm:"size:36;not null;uniqueIndex" json:"runId"`
	Status      SyncRunStatus `gorm:"size:20;not null;index" json:"status"`
	TriggeredBy SyncTrigger   `gorm:"size:20;not null" json:"triggeredBy"`
	Pulled      int           `gorm:"not null" json:"pulled"`
	Pushed      int           `gorm:"not null" json:"pushed"`
	Conflicts   int           `gorm:"not null" json:"conflicts"`
	Unresolved  int           `gorm:"not null" json:"unresolved"`
	Errors      []string      `gorm:"type:text;serializer:json" json:"errors"`
	StartedAt   int64         `gorm:"not null;index" json:"startedAt"`
	FinishedAt  *int64        `json:"finishedAt,omitempty"`
	DurationMs  int64         `json:"durationMs"`
}

func ensureSyncState(db *gorm.DB) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&SyncState{ID: syncStateId}).Error
}

// GetSyncState returns the sync progress record.
func (s *Store) GetSyncState(ctx context.Context) (*SyncState, error) {
	return loadSyncState(s.db.WithContext(ctx))
}

func loadSyncState(db *gorm.DB) (*SyncState, error) {
	var state SyncState
	err := db.Where("id = ?", syncStateId).Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &SyncState{ID: syncStateId}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SetLastPulledAt advances the pull marker inside the pull unit.
func SetLastPulledAt(tx *Tx, at int64) error {
	if err := ensureSyncState(tx.DB); err != nil {
		return err
	}
	return tx.Model(&SyncState{}).Where("id = ?", syncStateId).Update("last_pulled_at", at).Error
}

// RecordSyncAttempt stamps the end of a cycle; success also moves lastSuccessSyncAt.
func (s *Store) RecordSyncAttempt(ctx context.Context, at int64, success bool) error {
	return s.Atomic(ctx, func(tx *Tx) error {
		if err := ensureSyncState(tx.DB); err != nil {
			return err
		}
		updates := map[string]interface{}{"last_sync_at": at}
		if success {
			updates["last_success_sync_at"] = at
		}
		return tx.Model(&SyncState{}).Where("id = ?", syncStateId).Updates(updates).Error
	})
}

func (s *Store) StartSyncRun(ctx context.Context, run *SyncRun) error {
	run.Status = SyncRunStatusRunning
	if run.StartedAt == 0 {
		run.StartedAt = s.Now()
	}
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *Store) FinishSyncRun(ctx context.Context, run *SyncRun) error {
	finished := s.Now()
	run.FinishedAt = &finished
	run.DurationMs = finished - run.StartedAt
	return s.db.WithContext(ctx).Save(run).Error
}

// SyncRuns returns the latest runs, newest first.
func (s *Store) SyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []SyncRun
	if err := s.db.WithContext(ctx).Order("started_at DESC").Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
