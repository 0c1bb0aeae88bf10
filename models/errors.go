package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateSku       = errors.New("sku already exists")
	ErrConflictUnresolved = errors.New("conflict awaiting manual resolution")
	ErrAuditImmutable     = errors.New("audit log entries are append-only")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// NotFoundError names the missing record.
type NotFoundError struct {
	EntityType EntityType
	Id         int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.EntityType, e.Id)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(entityType EntityType, id int) error {
	return &NotFoundError{EntityType: entityType, Id: id}
}

// InsufficientStockError is returned by sale validation for the first offending item.
type InsufficientStockError struct {
	ProductId   int
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (product %d): available %d, requested %d",
		e.ProductName, e.ProductId, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
