package syncer

import (
	"errors"

	"github.com/mmdatafocus/ims_backend/models"
	"gorm.io/gorm"
)

// mergeProduct applies one server product inside the pull unit and reports
// whether it collided with a pending local change. Server-confirmed state is
// written directly: no audit entry, no dirty mark.
func (c *Coordinator) mergeProduct(tx *models.Tx, incoming *models.Product) (bool, error) {
	var local models.Product
	err := tx.Where("id = ?", incoming.ID).Take(&local).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := tx.Create(incoming).Error; err != nil {
			return false, err
		}
		if err := models.MarkServerState(tx, models.EntityTypeProduct, incoming.ID, serverVersionOf(incoming)); err != nil {
			return false, err
		}
		tx.Notify(models.CollectionProducts, incoming.ID, models.AuditActionCreate)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	meta, err := models.FindSyncMetadata(tx.DB, models.EntityTypeProduct, incoming.ID)
	if err != nil {
		return false, err
	}
	if meta == nil || !meta.PendingSync {
		return false, applyServerProduct(tx, incoming)
	}

	switch c.policy {
	case PolicyServerWins:
		// the server copy is authoritative; the local edit is dropped, not contested
		return false, applyServerProduct(tx, incoming)
	case PolicyClientWins:
		return true, nil
	case PolicyManual:
		return true, models.RecordConflict(tx, models.EntityTypeProduct, incoming.ID, &models.ConflictSnapshot{
			Local:      local,
			Server:     *incoming,
			DetectedAt: tx.Now(),
		})
	default:
		if incoming.UpdatedAt > local.UpdatedAt {
			return true, applyServerProduct(tx, incoming)
		}
		return true, nil
	}
}

// applyServerProduct overwrites the local copy and marks it synced.
func applyServerProduct(tx *models.Tx, incoming *models.Product) error {
	if err := tx.Save(incoming).Error; err != nil {
		return err
	}
	if err := models.MarkServerState(tx, models.EntityTypeProduct, incoming.ID, serverVersionOf(incoming)); err != nil {
		return err
	}
	tx.Notify(models.CollectionProducts, incoming.ID, models.AuditActionUpdate)
	return nil
}

func serverVersionOf(p *models.Product) *int64 {
	v := int64(p.SyncVersion)
	return &v
}

// mergeTransaction inserts a server transaction unless one with that id exists.
func mergeTransaction(tx *models.Tx, incoming *models.Transaction) (bool, error) {
	var count int64
	if err := tx.Model(&models.Transaction{}).Where("id = ?", incoming.ID).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	for i := range incoming.Items {
		incoming.Items[i].ID = 0
		incoming.Items[i].TransactionId = incoming.ID
	}
	if err := tx.Create(incoming).Error; err != nil {
		return false, err
	}
	version := int64(incoming.SyncVersion)
	if err := models.MarkServerState(tx, models.EntityTypeTransaction, incoming.ID, &version); err != nil {
		return false, err
	}
	tx.Notify(models.CollectionTransactions, incoming.ID, models.AuditActionCreate)
	return true, nil
}

// mergeAdjustment inserts a server adjustment unless one with that id exists.
// Stock levels arrive with the product copies; the movement is not re-applied.
func mergeAdjustment(tx *models.Tx, incoming *models.StockAdjustment) (bool, error) {
	var count int64
	if err := tx.Model(&models.StockAdjustment{}).Where("id = ?", incoming.ID).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := tx.Create(incoming).Error; err != nil {
		return false, err
	}
	version := int64(incoming.SyncVersion)
	if err := models.MarkServerState(tx, models.EntityTypeAdjustment, incoming.ID, &version); err != nil {
		return false, err
	}
	tx.Notify(models.CollectionAdjustments, incoming.ID, models.AuditActionCreate)
	return true, nil
}
