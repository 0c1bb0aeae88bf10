package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/ims_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Transaction struct {
	ID          int               `gorm:"primary_key" json:"id"`
	Type        TransactionType   `gorm:"size:20;not null;index" json:"type"`
	Items       []TransactionItem `gorm:"foreignKey:TransactionId;constraint:OnDelete:CASCADE" json:"items"`
	Total       decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"total"`
	Notes       string            `gorm:"type:text" json:"notes,omitempty"`
	UserId      *int              `json:"userId,omitempty"`
	CreatedAt   int64             `gorm:"not null;index;autoCreateTime:false" json:"createdAt"`
	CompletedAt *int64            `json:"completedAt,omitempty"`
	SyncVersion int               `gorm:"not null" json:"syncVersion"`
}

// TransactionItem is one line of a transaction. Line order is the row order.
type TransactionItem struct {
	ID            int             `gorm:"primary_key" json:"-"`
	TransactionId int             `gorm:"not null;index" json:"-"`
	ProductId     int             `gorm:"not null;index" json:"productId"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unitPrice"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"subtotal"`
}

type SaleItem struct {
	ProductId int             `json:"productId" binding:"required,gt=0"`
	Quantity  int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type NewSale struct {
	Items []SaleItem `json:"items" binding:"required,min=1,dive"`
	Notes string     `json:"notes"`
}

func (input *NewSale) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return invalidInput("%s", err.Error())
	}
	for i, item := range input.Items {
		if item.UnitPrice.IsNegative() {
			return invalidInput("items[%d].unitPrice must not be negative", i)
		}
	}
	return nil
}

func saleReference(transactionId int) string {
	return fmt.Sprintf("TXN-%d", transactionId)
}

// CreateSaleTransaction is all-or-nothing. Every item is checked against the
// current stock before anything is written; quantities of repeated products
// are summed for that check. The first offending item fails the whole sale
// with an *InsufficientStockError and no state changes.
func (s *Store) CreateSaleTransaction(ctx context.Context, input *NewSale) (*Transaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var transaction Transaction
	err := s.Atomic(ctx, func(tx *Tx) error {
		products := make(map[int]*Product, len(input.Items))
		requested := make(map[int]int, len(input.Items))
		for _, item := range input.Items {
			product, ok := products[item.ProductId]
			if !ok {
				p, err := fetchProduct(tx.DB, item.ProductId)
				if err != nil {
					return err
				}
				if p.IsDeleted() {
					return notFound(EntityTypeProduct, item.ProductId)
				}
				products[item.ProductId] = p
				product = p
			}
			requested[item.ProductId] += item.Quantity
			if product.CurrentStock < requested[item.ProductId] {
				return &InsufficientStockError{
					ProductId:   product.ID,
					ProductName: product.Name,
					Available:   product.CurrentStock,
					Requested:   requested[item.ProductId],
				}
			}
		}

		now := tx.Now()
		total := decimal.Zero
		items := make([]TransactionItem, 0, len(input.Items))
		for _, item := range input.Items {
			subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
			total = total.Add(subtotal)
			items = append(items, TransactionItem{
				ProductId: item.ProductId,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
				Subtotal:  subtotal,
			})
		}
		transaction = Transaction{
			Type:        TransactionTypeSale,
			Items:       items,
			Total:       total,
			Notes:       strings.TrimSpace(input.Notes),
			UserId:      actingUserId(tx.Statement.Context),
			CreatedAt:   now,
			CompletedAt: utils.NewInt64(now),
			SyncVersion: 1,
		}
		if err := tx.Create(&transaction).Error; err != nil {
			return err
		}

		reference := saleReference(transaction.ID)
		for _, item := range input.Items {
			if _, err := adjustStockTx(tx, products[item.ProductId], item.Quantity, AdjustmentTypeSale, "Sale transaction", reference); err != nil {
				return err
			}
		}

		if err := RecordAudit(tx, EntityTypeTransaction, transaction.ID, AuditActionCreate, nil); err != nil {
			return err
		}
		if _, err := MarkDirty(tx, EntityTypeTransaction, transaction.ID); err != nil {
			return err
		}
		tx.Notify(CollectionTransactions, transaction.ID, AuditActionCreate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func fetchTransaction(db *gorm.DB, id int) (*Transaction, error) {
	var transaction Transaction
	err := db.Preload("Items", preloadItems).Where("id = ?", id).Take(&transaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(EntityTypeTransaction, id)
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int) (*Transaction, error) {
	return fetchTransaction(s.db.WithContext(ctx), id)
}

// ListTransactions returns transactions newest-first with their items.
func (s *Store) ListTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []Transaction
	if err := s.db.WithContext(ctx).
		Preload("Items", preloadItems).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
