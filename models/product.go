package models

import (
	"context"
	"errors"
	"strings"

	"github.com/mmdatafocus/ims_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	Sku             string              `gorm:"size:100;not null;index" json:"sku"`
	Name            string              `gorm:"size:255;not null;index" json:"name"`
	Description     string              `gorm:"type:text" json:"description,omitempty"`
	Category        string              `gorm:"size:100;index" json:"category,omitempty"`
	Barcode         string              `gorm:"size:100;index" json:"barcode,omitempty"`
	CurrentStock    int                 `gorm:"not null" json:"currentStock"`
	MinStockLevel   *int                `json:"minStockLevel,omitempty"`
	ReorderQuantity *int                `json:"reorderQuantity,omitempty"`
	UnitCost        decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"unitCost"`
	UnitPrice       decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"unitPrice"`
	CreatedAt       int64               `gorm:"not null;autoCreateTime:false" json:"createdAt"`
	UpdatedAt       int64               `gorm:"not null;index;autoUpdateTime:false" json:"updatedAt"`
	DeletedAt       *int64              `gorm:"index" json:"deletedAt,omitempty"`
	SyncVersion     int                 `gorm:"not null" json:"syncVersion"`
}

func (p *Product) IsDeleted() bool {
	return p.DeletedAt != nil
}

type NewProduct struct {
	Sku             string           `json:"sku" binding:"required,max=100"`
	Name            string           `json:"name" binding:"required,max=255"`
	Description     string           `json:"description"`
	Category        string           `json:"category" binding:"max=100"`
	Barcode         string           `json:"barcode" binding:"max=100"`
	CurrentStock    int              `json:"currentStock" binding:"gte=0"`
	MinStockLevel   *int             `json:"minStockLevel" binding:"omitempty,gte=0"`
	ReorderQuantity *int             `json:"reorderQuantity" binding:"omitempty,gte=0"`
	UnitCost        *decimal.Decimal `json:"unitCost"`
	UnitPrice       *decimal.Decimal `json:"unitPrice"`
}

// ProductPatch carries the fields to change; nil means unchanged.
// Stock levels are not patchable: they move only through stock adjustments.
type ProductPatch struct {
	Sku             *string          `json:"sku" binding:"omitempty,min=1,max=100"`
	Name            *string          `json:"name" binding:"omitempty,min=1,max=255"`
	Description     *string          `json:"description"`
	Category        *string          `json:"category" binding:"omitempty,max=100"`
	Barcode         *string          `json:"barcode" binding:"omitempty,max=100"`
	MinStockLevel   *int             `json:"minStockLevel" binding:"omitempty,gte=0"`
	ReorderQuantity *int             `json:"reorderQuantity" binding:"omitempty,gte=0"`
	UnitCost        *decimal.Decimal `json:"unitCost"`
	UnitPrice       *decimal.Decimal `json:"unitPrice"`
}

func validateMoney(field string, v *decimal.Decimal) error {
	if v != nil && v.IsNegative() {
		return invalidInput("%s must not be negative", field)
	}
	return nil
}

func (input *NewProduct) validate() error {
	input.Sku = strings.TrimSpace(input.Sku)
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return invalidInput("%s", err.Error())
	}
	if err := validateMoney("unitCost", input.UnitCost); err != nil {
		return err
	}
	return validateMoney("unitPrice", input.UnitPrice)
}

func (patch *ProductPatch) validate() error {
	if patch.Sku != nil {
		v := strings.TrimSpace(*patch.Sku)
		patch.Sku = &v
	}
	if patch.Name != nil {
		v := strings.TrimSpace(*patch.Name)
		patch.Name = &v
	}
	if err := utils.ValidateStruct(patch); err != nil {
		return invalidInput("%s", err.Error())
	}
	if err := validateMoney("unitCost", patch.UnitCost); err != nil {
		return err
	}
	return validateMoney("unitPrice", patch.UnitPrice)
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*v)
}

// skuTaken checks uniqueness among non-deleted products.
func skuTaken(db *gorm.DB, sku string, exceptId int) (bool, error) {
	var count int64
	q := db.Model(&Product{}).Where("sku = ? AND deleted_at IS NULL", sku)
	if exceptId > 0 {
		q = q.Where("id <> ?", exceptId)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func fetchProduct(db *gorm.DB, id int) (*Product, error) {
	var product Product
	err := db.Where("id = ?", id).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(EntityTypeProduct, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// AddProduct persists a new product, audits the creation and marks it dirty.
func (s *Store) AddProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var product Product
	err := s.Atomic(ctx, func(tx *Tx) error {
		taken, err := skuTaken(tx.DB, input.Sku, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateSku
		}

		now := tx.Now()
		product = Product{
			Sku:             input.Sku,
			Name:            input.Name,
			Description:     input.Description,
			Category:        strings.TrimSpace(input.Category),
			Barcode:         strings.TrimSpace(input.Barcode),
			CurrentStock:    input.CurrentStock,
			MinStockLevel:   input.MinStockLevel,
			ReorderQuantity: input.ReorderQuantity,
			UnitCost:        nullDecimal(input.UnitCost),
			UnitPrice:       nullDecimal(input.UnitPrice),
			CreatedAt:       now,
			UpdatedAt:       now,
			SyncVersion:     1,
		}
		if err := tx.Create(&product).Error; err != nil {
			if utils.IsDuplicateKeyErr(err) {
				return ErrDuplicateSku
			}
			return err
		}
		if err := RecordAudit(tx, EntityTypeProduct, product.ID, AuditActionCreate, nil); err != nil {
			return err
		}
		if _, err := MarkDirty(tx, EntityTypeProduct, product.ID); err != nil {
			return err
		}
		tx.Notify(CollectionProducts, product.ID, AuditActionCreate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct merges patch into the product. A patch that changes nothing
// is not a mutation: no version bump, audit entry or dirty mark.
func (s *Store) UpdateProduct(ctx context.Context, id int, patch *ProductPatch) (*Product, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}
	var product *Product
	err := s.Atomic(ctx, func(tx *Tx) error {
		var err error
		product, err = updateProductTx(tx, id, func(p *Product, changes FieldChanges) error {
			if patch.Sku != nil && *patch.Sku != p.Sku {
				taken, err := skuTaken(tx.DB, *patch.Sku, p.ID)
				if err != nil {
					return err
				}
				if taken {
					return ErrDuplicateSku
				}
			}
			p.Sku = diffString(changes, "sku", p.Sku, patch.Sku)
			p.Name = diffString(changes, "name", p.Name, patch.Name)
			p.Description = diffString(changes, "description", p.Description, patch.Description)
			p.Category = diffString(changes, "category", p.Category, patch.Category)
			p.Barcode = diffString(changes, "barcode", p.Barcode, patch.Barcode)
			p.MinStockLevel = diffIntPtr(changes, "minStockLevel", p.MinStockLevel, patch.MinStockLevel)
			p.ReorderQuantity = diffIntPtr(changes, "reorderQuantity", p.ReorderQuantity, patch.ReorderQuantity)
			p.UnitCost = diffDecimal(changes, "unitCost", p.UnitCost, patch.UnitCost)
			p.UnitPrice = diffDecimal(changes, "unitPrice", p.UnitPrice, patch.UnitPrice)
			return nil
		}, AuditActionUpdate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// updateProductTx loads the product, applies mutate, and when anything changed
// bumps updatedAt/syncVersion, audits the diff under action and marks it dirty.
func updateProductTx(tx *Tx, id int, mutate func(p *Product, changes FieldChanges) error, action AuditAction) (*Product, error) {
	product, err := fetchProduct(tx.DB, id)
	if err != nil {
		return nil, err
	}
	changes := FieldChanges{}
	if err := mutate(product, changes); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return product, nil
	}
	product.UpdatedAt = tx.Now()
	product.SyncVersion++
	if err := tx.Save(product).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, ErrDuplicateSku
		}
		return nil, err
	}
	if err := RecordAudit(tx, EntityTypeProduct, product.ID, action, changes); err != nil {
		return nil, err
	}
	if _, err := MarkDirty(tx, EntityTypeProduct, product.ID); err != nil {
		return nil, err
	}
	tx.Notify(CollectionProducts, product.ID, action)
	return product, nil
}

// DeleteProduct soft-deletes by default (audited and dirtied). A hard delete
// purges the row and its sync metadata without an audit entry; it is meant
// for irrecoverable purges only.
func (s *Store) DeleteProduct(ctx context.Context, id int, soft bool) error {
	if soft {
		return s.Atomic(ctx, func(tx *Tx) error {
			_, err := updateProductTx(tx, id, func(p *Product, changes FieldChanges) error {
				if p.DeletedAt != nil {
					return nil
				}
				now := tx.Now()
				changes.set("deletedAt", nil, now)
				p.DeletedAt = &now
				return nil
			}, AuditActionDelete)
			return err
		})
	}
	return s.Atomic(ctx, func(tx *Tx) error {
		res := tx.Where("id = ?", id).Delete(&Product{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(EntityTypeProduct, id)
		}
		if err := RemoveSyncMetadata(tx, EntityTypeProduct, id); err != nil {
			return err
		}
		tx.Notify(CollectionProducts, id, AuditActionDelete)
		return nil
	})
}

// GetProduct returns the product even when soft-deleted, so its deletedAt
// tombstone stays readable. Lists, search and stock movements skip it.
func (s *Store) GetProduct(ctx context.Context, id int) (*Product, error) {
	return fetchProduct(s.db.WithContext(ctx), id)
}

// ListProducts returns every non-deleted product ordered by name.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := s.db.WithContext(ctx).Where("deleted_at IS NULL").Order("name ASC").Order("id ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// escapeLike escapes LIKE wildcards using '!' which every supported driver accepts.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

// SearchProducts matches query case-insensitively as a substring of name, sku,
// barcode or category among non-deleted products.
func (s *Store) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListProducts(ctx)
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	var products []Product
	err := s.db.WithContext(ctx).
		Where("deleted_at IS NULL").
		Where(`LOWER(name) LIKE ? ESCAPE '!' OR LOWER(sku) LIKE ? ESCAPE '!' OR LOWER(COALESCE(barcode, '')) LIKE ? ESCAPE '!' OR LOWER(COALESCE(category, '')) LIKE ? ESCAPE '!'`,
			pattern, pattern, pattern, pattern).
		Order("name ASC").Order("id ASC").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

// LookupByBarcodeOrCode resolves a scanned or typed code. An exact barcode or
// sku match wins; otherwise it falls back to the product search.
func (s *Store) LookupByBarcodeOrCode(ctx context.Context, text string) ([]Product, error) {
	code := strings.ToLower(strings.TrimSpace(text))
	if code == "" {
		return []Product{}, nil
	}
	var exact []Product
	if err := s.db.WithContext(ctx).
		Where("deleted_at IS NULL").
		Where("LOWER(barcode) = ? OR LOWER(sku) = ?", code, code).
		Order("id ASC").
		Find(&exact).Error; err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return s.SearchProducts(ctx, text)
}

// LowStockProducts returns non-deleted products at or below their minimum level.
func (s *Store) LowStockProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := s.db.WithContext(ctx).
		Where("deleted_at IS NULL AND min_stock_level IS NOT NULL AND current_stock <= min_stock_level").
		Order("current_stock ASC").Order("name ASC").
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
