package models

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

// StockAdjustment is an immutable snapshot of one stock movement.
type StockAdjustment struct {
	ID            int            `gorm:"primary_key" json:"id"`
	ProductId     int            `gorm:"not null;index" json:"productId"`
	Type          AdjustmentType `gorm:"size:20;not null" json:"type"`
	Quantity      int            `gorm:"not null" json:"quantity"`
	PreviousStock int            `gorm:"not null" json:"previousStock"`
	NewStock      int            `gorm:"not null" json:"newStock"`
	Reason        string         `gorm:"size:255" json:"reason,omitempty"`
	Reference     string         `gorm:"size:100;index" json:"reference,omitempty"`
	UserId        *int           `json:"userId,omitempty"`
	CreatedAt     int64          `gorm:"not null;index;autoCreateTime:false" json:"createdAt"`
	SyncVersion   int            `gorm:"not null" json:"syncVersion"`
}

// AdjustmentResult is returned by stock movements.
type AdjustmentResult struct {
	AdjustmentId int `json:"adjustmentId"`
	NewStock     int `json:"newStock"`
}

type NewStockAdjustment struct {
	Quantity  int            `json:"quantity" binding:"required,gt=0"`
	Type      AdjustmentType `json:"type" binding:"required"`
	Reason    string         `json:"reason" binding:"max=255"`
	Reference string         `json:"reference" binding:"max=100"`
}

// AdjustStock applies one stock movement. quantity is a positive magnitude;
// the direction comes from adjustmentType. Stock is clamped at zero instead
// of failing on over-subtraction.
func (s *Store) AdjustStock(ctx context.Context, productId int, quantity int, adjustmentType AdjustmentType, reason, reference string) (*AdjustmentResult, error) {
	if quantity <= 0 {
		return nil, invalidInput("quantity must be greater than zero")
	}
	if !adjustmentType.IsValid() {
		return nil, invalidInput("unknown adjustment type %q", adjustmentType)
	}
	var result *AdjustmentResult
	err := s.Atomic(ctx, func(tx *Tx) error {
		product, err := fetchActiveProduct(tx.DB, productId)
		if err != nil {
			return err
		}
		result, err = adjustStockTx(tx, product, quantity, adjustmentType, reason, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CountStock records a physical count. The movement direction is derived
// from the difference with the current level: an increase is recorded as
// "in", a decrease as "adjustment". Equal counts change nothing.
func (s *Store) CountStock(ctx context.Context, productId int, counted int, reason string) (*AdjustmentResult, error) {
	if counted < 0 {
		return nil, invalidInput("counted quantity must not be negative")
	}
	if strings.TrimSpace(reason) == "" {
		reason = "Stock count"
	}
	var result *AdjustmentResult
	err := s.Atomic(ctx, func(tx *Tx) error {
		product, err := fetchActiveProduct(tx.DB, productId)
		if err != nil {
			return err
		}
		diff := counted - product.CurrentStock
		switch {
		case diff == 0:
			result = &AdjustmentResult{NewStock: product.CurrentStock}
			return nil
		case diff > 0:
			result, err = adjustStockTx(tx, product, diff, AdjustmentTypeIn, reason, "")
		default:
			result, err = adjustStockTx(tx, product, -diff, AdjustmentTypeAdjustment, reason, "")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// fetchActiveProduct is fetchProduct for stock movements: a soft-deleted
// product takes no movements and reads as not found.
func fetchActiveProduct(db *gorm.DB, id int) (*Product, error) {
	product, err := fetchProduct(db, id)
	if err != nil {
		return nil, err
	}
	if product.IsDeleted() {
		return nil, notFound(EntityTypeProduct, id)
	}
	return product, nil
}

// adjustStockTx persists the new level on product, appends the adjustment row,
// audits the adjustment and marks both records dirty.
func adjustStockTx(tx *Tx, product *Product, quantity int, adjustmentType AdjustmentType, reason, reference string) (*AdjustmentResult, error) {
	now := tx.Now()
	previous := product.CurrentStock
	newStock := previous + adjustmentType.SignedDelta(quantity)
	if newStock < 0 {
		newStock = 0
	}

	product.CurrentStock = newStock
	product.UpdatedAt = now
	product.SyncVersion++
	if err := tx.Model(&Product{}).Where("id = ?", product.ID).Updates(map[string]interface{}{
		"current_stock": product.CurrentStock,
		"updated_at":    product.UpdatedAt,
		"sync_version":  product.SyncVersion,
	}).Error; err != nil {
		return nil, err
	}

	adjustment := StockAdjustment{
		ProductId:     product.ID,
		Type:          adjustmentType,
		Quantity:      quantity,
		PreviousStock: previous,
		NewStock:      newStock,
		Reason:        strings.TrimSpace(reason),
		Reference:     strings.TrimSpace(reference),
		UserId:        actingUserId(tx.Statement.Context),
		CreatedAt:     now,
		SyncVersion:   1,
	}
	if err := tx.Create(&adjustment).Error; err != nil {
		return nil, err
	}

	if err := RecordAudit(tx, EntityTypeAdjustment, adjustment.ID, AuditActionCreate, nil); err != nil {
		return nil, err
	}
	if _, err := MarkDirty(tx, EntityTypeProduct, product.ID); err != nil {
		return nil, err
	}
	if _, err := MarkDirty(tx, EntityTypeAdjustment, adjustment.ID); err != nil {
		return nil, err
	}
	tx.Notify(CollectionProducts, product.ID, AuditActionUpdate)
	tx.Notify(CollectionAdjustments, adjustment.ID, AuditActionCreate)

	return &AdjustmentResult{AdjustmentId: adjustment.ID, NewStock: newStock}, nil
}

type AdjustmentQuery struct {
	ProductId *int
	Limit     int
}

// ListAdjustments returns adjustments newest-first, optionally for one product.
func (s *Store) ListAdjustments(ctx context.Context, q AdjustmentQuery) ([]StockAdjustment, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	db := s.db.WithContext(ctx)
	if q.ProductId != nil {
		db = db.Where("product_id = ?", *q.ProductId)
	}
	var rows []StockAdjustment
	if err := db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
