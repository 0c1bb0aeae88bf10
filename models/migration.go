package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&Product{},
		&StockAdjustment{},
		&Transaction{},
		&TransactionItem{},
		&SyncMetadata{},
		&SyncState{},
		&SyncRun{},
		&AuditLog{},
	)
	if err != nil {
		return err
	}
	return ensureSyncState(db)
}
