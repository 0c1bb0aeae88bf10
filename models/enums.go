package models

// EntityType names a synchronizable record kind.
type EntityType string

const (
	EntityTypeProduct     EntityType = "product"
	EntityTypeTransaction EntityType = "transaction"
	EntityTypeAdjustment  EntityType = "adjustment"
	EntityTypeUser        EntityType = "user"
)

func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeProduct, EntityTypeTransaction, EntityTypeAdjustment, EntityTypeUser:
		return true
	}
	return false
}

type AdjustmentType string

const (
	AdjustmentTypeIn         AdjustmentType = "in"
	AdjustmentTypeOut        AdjustmentType = "out"
	AdjustmentTypeSale       AdjustmentType = "sale"
	AdjustmentTypePurchase   AdjustmentType = "purchase"
	AdjustmentTypeAdjustment AdjustmentType = "adjustment"
	AdjustmentTypeReturn     AdjustmentType = "return"
)

func (t AdjustmentType) IsValid() bool {
	switch t {
	case AdjustmentTypeIn, AdjustmentTypeOut, AdjustmentTypeSale,
		AdjustmentTypePurchase, AdjustmentTypeAdjustment, AdjustmentTypeReturn:
		return true
	}
	return false
}

// IsIncrease reports whether the type adds stock. "adjustment" decreases;
// use CountStock when the direction depends on a counted level.
func (t AdjustmentType) IsIncrease() bool {
	return t == AdjustmentTypeIn || t == AdjustmentTypePurchase || t == AdjustmentTypeReturn
}

// SignedDelta converts a positive quantity into the signed stock movement for t.
func (t AdjustmentType) SignedDelta(quantity int) int {
	if t.IsIncrease() {
		return quantity
	}
	return -quantity
}

type TransactionType string

const (
	TransactionTypeSale       TransactionType = "sale"
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleStaff UserRole = "staff"
)

func (r UserRole) IsValid() bool {
	return r == UserRoleAdmin || r == UserRoleStaff
}
