package models

import (
	"github.com/shopspring/decimal"
)

// FieldChange is one changed field in an audit entry.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// FieldChanges is the structured diff kept on audit entries.
// It is serialized to JSON only when written to the store.
type FieldChanges map[string]FieldChange

func (c FieldChanges) set(field string, old, new any) {
	c[field] = FieldChange{Old: old, New: new}
}

func diffString(c FieldChanges, field string, old string, new *string) string {
	if new == nil || *new == old {
		return old
	}
	c.set(field, old, *new)
	return *new
}

func diffIntPtr(c FieldChanges, field string, old *int, new *int) *int {
	if new == nil {
		return old
	}
	if old != nil && *old == *new {
		return old
	}
	var oldVal any
	if old != nil {
		oldVal = *old
	}
	c.set(field, oldVal, *new)
	v := *new
	return &v
}

func diffDecimal(c FieldChanges, field string, old decimal.NullDecimal, new *decimal.Decimal) decimal.NullDecimal {
	if new == nil {
		return old
	}
	if old.Valid && old.Decimal.Equal(*new) {
		return old
	}
	var oldVal any
	if old.Valid {
		oldVal = old.Decimal.String()
	}
	c.set(field, oldVal, new.String())
	return decimal.NewNullDecimal(*new)
}

// ConflictSnapshot holds both sides of a product conflict for manual resolution.
type ConflictSnapshot struct {
	Local      Product `json:"local"`
	Server     Product `json:"server"`
	DetectedAt int64   `json:"detectedAt"`
}
