package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/ims_backend/models"
	"github.com/mmdatafocus/ims_backend/utils"
	"github.com/shopspring/decimal"
)

func TestAddProductValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	negative := decimal.NewFromInt(-1)

	cases := []models.NewProduct{
		{Sku: "", Name: "No sku"},
		{Sku: "N-1", Name: "   "},
		{Sku: "N-2", Name: "Negative stock", CurrentStock: -1},
		{Sku: "N-3", Name: "Negative price", UnitPrice: &negative},
	}
	for i := range cases {
		if _, err := store.AddProduct(ctx, &cases[i]); !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}

	mustAddProduct(t, store, "DUP", 1)
	if _, err := store.AddProduct(ctx, &models.NewProduct{Sku: "DUP", Name: "Again"}); !errors.Is(err, models.ErrDuplicateSku) {
		t.Fatalf("expected ErrDuplicateSku, got %v", err)
	}
}

func TestAddProductAuditsAndDirties(t *testing.T) {
	store := newTestStore(t)
	ctx := utils.SetUserIdInContext(context.Background(), 3)

	price := decimal.RequireFromString("12.50")
	p, err := store.AddProduct(ctx, &models.NewProduct{Sku: "AD-1", Name: "Audited", CurrentStock: 2, UnitPrice: &price})
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if p.SyncVersion != 1 || p.CreatedAt == 0 || p.CreatedAt != p.UpdatedAt {
		t.Fatalf("unexpected product %+v", p)
	}
	logs, err := store.AuditLogs(ctx, models.AuditQuery{EntityType: models.EntityTypeProduct, EntityId: &p.ID})
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected one audit entry, got %d (%v)", len(logs), err)
	}
	if logs[0].Action != models.AuditActionCreate || logs[0].UserId == nil || *logs[0].UserId != 3 {
		t.Fatalf("unexpected audit entry %+v", logs[0])
	}
	meta, err := store.GetSyncMetadata(ctx, models.EntityTypeProduct, p.ID)
	if err != nil {
		t.Fatalf("GetSyncMetadata: %v", err)
	}
	if meta.LocalVersion != 1 || !meta.PendingSync {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	got, _ := store.GetProduct(ctx, p.ID)
	if !got.UnitPrice.Valid || !got.UnitPrice.Decimal.Equal(price) {
		t.Fatalf("unit price not persisted: %+v", got.UnitPrice)
	}
}

func TestUpdateProduct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := mustAddProduct(t, store, "U-1", 4)

	name := "Renamed"
	min := 2
	updated, err := store.UpdateProduct(ctx, p.ID, &models.ProductPatch{Name: &name, MinStockLevel: &min})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if updated.Name != "Renamed" || updated.SyncVersion != 2 || updated.UpdatedAt <= p.UpdatedAt {
		t.Fatalf("unexpected update %+v", updated)
	}

	logs, err := store.AuditLogs(ctx, models.AuditQuery{EntityType: models.EntityTypeProduct, EntityId: &p.ID})
	if err != nil || len(logs) != 2 {
		t.Fatalf("expected 2 audit entries, got %d (%v)", len(logs), err)
	}
	change, ok := logs[0].Changes["name"]
	if logs[0].Action != models.AuditActionUpdate || !ok || change.Old != "Product U-1" || change.New != "Renamed" {
		t.Fatalf("unexpected diff %+v", logs[0].Changes)
	}
	if _, ok := logs[0].Changes["minStockLevel"]; !ok {
		t.Fatalf("expected minStockLevel in diff: %+v", logs[0].Changes)
	}

	// same values again: nothing changes
	again, err := store.UpdateProduct(ctx, p.ID, &models.ProductPatch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateProduct no-op: %v", err)
	}
	if again.SyncVersion != 2 {
		t.Fatalf("no-op update bumped syncVersion to %d", again.SyncVersion)
	}
	if n := countAudit(t, store, models.EntityTypeProduct, p.ID); n != 2 {
		t.Fatalf("no-op update was audited: %d entries", n)
	}

	if _, err := store.UpdateProduct(ctx, 999, &models.ProductPatch{Name: &name}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	other := mustAddProduct(t, store, "U-2", 1)
	sku := "U-1"
	if _, err := store.UpdateProduct(ctx, other.ID, &models.ProductPatch{Sku: &sku}); !errors.Is(err, models.ErrDuplicateSku) {
		t.Fatalf("expected ErrDuplicateSku, got %v", err)
	}
}

func TestDeleteProduct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	soft := mustAddProduct(t, store, "DEL-1", 1)
	hard := mustAddProduct(t, store, "DEL-2", 1)

	if err := store.DeleteProduct(ctx, soft.ID, true); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	got, err := store.GetProduct(ctx, soft.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if !got.IsDeleted() || got.SyncVersion != 2 {
		t.Fatalf("unexpected soft-deleted product %+v", got)
	}
	logs, _ := store.AuditLogs(ctx, models.AuditQuery{EntityType: models.EntityTypeProduct, EntityId: &soft.ID})
	if len(logs) != 2 || logs[0].Action != models.AuditActionDelete {
		t.Fatalf("expected delete audit entry, got %+v", logs)
	}

	// the sku is free again once the holder is soft-deleted
	mustAddProduct(t, store, "DEL-1", 1)

	if err := store.DeleteProduct(ctx, hard.ID, false); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if _, err := store.GetProduct(ctx, hard.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after hard delete, got %v", err)
	}
	if _, err := store.GetSyncMetadata(ctx, models.EntityTypeProduct, hard.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected metadata removed, got %v", err)
	}
	if err := store.DeleteProduct(ctx, hard.ID, false); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}

	products, _ := store.ListProducts(ctx)
	if len(products) != 1 {
		t.Fatalf("expected 1 listed product, got %d", len(products))
	}
}

func TestSearchAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	add := func(sku, name, barcode, category string) *models.Product {
		p, err := store.AddProduct(ctx, &models.NewProduct{Sku: sku, Name: name, Barcode: barcode, Category: category})
		if err != nil {
			t.Fatalf("AddProduct: %v", err)
		}
		return p
	}
	widget := add("W-100", "Blue Widget", "8850001", "Hardware")
	add("G-200", "Gadget 100%", "8850002", "Electronics")
	gone := add("W-300", "Old Widget", "", "Hardware")
	if err := store.DeleteProduct(ctx, gone.ID, true); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}

	cases := []struct {
		query string
		count int
	}{
		{"widget", 1},
		{"WIDGET", 1},
		{"hardware", 1},
		{"885000", 2},
		{"100%", 1},
		{"_", 0},
		{"", 2},
	}
	for _, tc := range cases {
		found, err := store.SearchProducts(ctx, tc.query)
		if err != nil {
			t.Fatalf("SearchProducts(%q): %v", tc.query, err)
		}
		if len(found) != tc.count {
			t.Fatalf("SearchProducts(%q): expected %d, got %d", tc.query, tc.count, len(found))
		}
	}

	found, err := store.LookupByBarcodeOrCode(ctx, "8850001")
	if err != nil || len(found) != 1 || found[0].ID != widget.ID {
		t.Fatalf("barcode lookup: %+v %v", found, err)
	}
	found, err = store.LookupByBarcodeOrCode(ctx, "w-100")
	if err != nil || len(found) != 1 || found[0].ID != widget.ID {
		t.Fatalf("sku lookup: %+v %v", found, err)
	}
	found, err = store.LookupByBarcodeOrCode(ctx, "gadg")
	if err != nil || len(found) != 1 {
		t.Fatalf("fallback lookup: %+v %v", found, err)
	}
}

func TestLowStockProducts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	two, five := 2, 5

	low, _ := store.AddProduct(ctx, &models.NewProduct{Sku: "L-1", Name: "Low", CurrentStock: 2, MinStockLevel: &two})
	store.AddProduct(ctx, &models.NewProduct{Sku: "L-2", Name: "Fine", CurrentStock: 9, MinStockLevel: &five})
	store.AddProduct(ctx, &models.NewProduct{Sku: "L-3", Name: "Untracked", CurrentStock: 0})

	found, err := store.LowStockProducts(ctx)
	if err != nil {
		t.Fatalf("LowStockProducts: %v", err)
	}
	if len(found) != 1 || found[0].ID != low.ID {
		t.Fatalf("unexpected low stock result %+v", found)
	}
}

func TestAuthenticate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, &models.NewUser{Username: "Admin", Password: "secret123", Role: models.UserRoleAdmin})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "admin" || user.Password == "secret123" {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := store.CreateUser(ctx, &models.NewUser{Username: "admin", Password: "secret123", Role: models.UserRoleStaff}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected duplicate username rejected, got %v", err)
	}
	if _, err := store.Authenticate(ctx, "ADMIN", "secret123"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := store.Authenticate(ctx, "admin", "wrong"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
