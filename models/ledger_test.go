package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/ims_backend/models"
	"github.com/mmdatafocus/ims_backend/utils"
	"github.com/shopspring/decimal"
)

func TestAdjustStockOut(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p, err := store.AddProduct(ctx, &models.NewProduct{Sku: "W-1", Name: "Widget", CurrentStock: 10})
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	res, err := store.AdjustStock(ctx, p.ID, 3, models.AdjustmentTypeOut, "", "")
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if res.NewStock != 7 {
		t.Fatalf("expected newStock 7, got %d", res.NewStock)
	}

	adjustments, err := store.ListAdjustments(ctx, models.AdjustmentQuery{ProductId: &p.ID})
	if err != nil {
		t.Fatalf("ListAdjustments: %v", err)
	}
	if len(adjustments) != 1 {
		t.Fatalf("expected 1 adjustment, got %d", len(adjustments))
	}
	a := adjustments[0]
	if a.ID != res.AdjustmentId || a.PreviousStock != 10 || a.NewStock != 7 || a.Quantity != 3 {
		t.Fatalf("unexpected adjustment %+v", a)
	}

	got, err := store.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.CurrentStock != 7 || got.SyncVersion != 2 {
		t.Fatalf("unexpected product stock=%d syncVersion=%d", got.CurrentStock, got.SyncVersion)
	}

	meta, err := store.GetSyncMetadata(ctx, models.EntityTypeAdjustment, a.ID)
	if err != nil || !meta.PendingSync {
		t.Fatalf("expected adjustment to be pending: %+v %v", meta, err)
	}
}

func TestAdjustStockDirections(t *testing.T) {
	cases := []struct {
		name     string
		start    int
		qty      int
		typ      models.AdjustmentType
		expected int
	}{
		{"in", 5, 3, models.AdjustmentTypeIn, 8},
		{"purchase", 5, 2, models.AdjustmentTypePurchase, 7},
		{"return", 0, 1, models.AdjustmentTypeReturn, 1},
		{"out", 5, 2, models.AdjustmentTypeOut, 3},
		{"sale", 5, 5, models.AdjustmentTypeSale, 0},
		{"adjustment decreases", 5, 1, models.AdjustmentTypeAdjustment, 4},
		{"clamped at zero", 2, 10, models.AdjustmentTypeOut, 0},
	}

	store := newTestStore(t)
	ctx := context.Background()
	for i, tc := range cases {
		p := mustAddProduct(t, store, "D-"+string(rune('A'+i)), tc.start)
		res, err := store.AdjustStock(ctx, p.ID, tc.qty, tc.typ, "", "")
		if err != nil {
			t.Fatalf("%s: AdjustStock: %v", tc.name, err)
		}
		if res.NewStock != tc.expected {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.expected, res.NewStock)
		}
	}
}

func TestAdjustStockErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := mustAddProduct(t, store, "E-1", 5)

	if _, err := store.AdjustStock(ctx, 9999, 1, models.AdjustmentTypeIn, "", ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.AdjustStock(ctx, p.ID, 0, models.AdjustmentTypeIn, "", ""); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero quantity, got %v", err)
	}
	if _, err := store.AdjustStock(ctx, p.ID, 1, models.AdjustmentType("gift"), "", ""); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown type, got %v", err)
	}
}

func TestCountStock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := mustAddProduct(t, store, "C-1", 10)

	res, err := store.CountStock(ctx, p.ID, 14, "")
	if err != nil {
		t.Fatalf("CountStock up: %v", err)
	}
	if res.NewStock != 14 {
		t.Fatalf("expected 14, got %d", res.NewStock)
	}
	res, err = store.CountStock(ctx, p.ID, 9, "shrinkage")
	if err != nil {
		t.Fatalf("CountStock down: %v", err)
	}
	if res.NewStock != 9 {
		t.Fatalf("expected 9, got %d", res.NewStock)
	}
	res, err = store.CountStock(ctx, p.ID, 9, "")
	if err != nil {
		t.Fatalf("CountStock equal: %v", err)
	}
	if res.AdjustmentId != 0 {
		t.Fatalf("expected no adjustment for an equal count")
	}

	adjustments, err := store.ListAdjustments(ctx, models.AdjustmentQuery{ProductId: &p.ID})
	if err != nil {
		t.Fatalf("ListAdjustments: %v", err)
	}
	if len(adjustments) != 2 {
		t.Fatalf("expected 2 adjustments, got %d", len(adjustments))
	}
	// newest first
	if adjustments[0].Type != models.AdjustmentTypeAdjustment || adjustments[0].Quantity != 5 {
		t.Fatalf("unexpected decrease %+v", adjustments[0])
	}
	if adjustments[1].Type != models.AdjustmentTypeIn || adjustments[1].Quantity != 4 {
		t.Fatalf("unexpected increase %+v", adjustments[1])
	}
}

func TestStockMovementsSkipSoftDeletedProduct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := mustAddProduct(t, store, "D-1", 10)
	if err := store.DeleteProduct(ctx, p.ID, true); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	auditBefore := countAudit(t, store, models.EntityTypeProduct, p.ID)

	if _, err := store.AdjustStock(ctx, p.ID, 3, models.AdjustmentTypeIn, "", ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("AdjustStock on deleted product: expected ErrNotFound, got %v", err)
	}
	if _, err := store.CountStock(ctx, p.ID, 1, ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("CountStock on deleted product: expected ErrNotFound, got %v", err)
	}

	adjustments, err := store.ListAdjustments(ctx, models.AdjustmentQuery{})
	if err != nil {
		t.Fatalf("ListAdjustments: %v", err)
	}
	if len(adjustments) != 0 {
		t.Fatalf("expected no adjustments, got %d", len(adjustments))
	}
	if got := countAudit(t, store, models.EntityTypeProduct, p.ID); got != auditBefore {
		t.Fatalf("expected %d product audit entries, got %d", auditBefore, got)
	}
	got, err := store.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.CurrentStock != 10 || got.SyncVersion != 2 {
		t.Fatalf("deleted product changed: stock=%d syncVersion=%d", got.CurrentStock, got.SyncVersion)
	}
}

func TestCreateSaleTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := utils.SetUserIdInContext(context.Background(), 7)
	p1 := mustAddProduct(t, store, "P-1", 100)
	p2 := mustAddProduct(t, store, "P-2", 50)

	txn, err := store.CreateSaleTransaction(ctx, &models.NewSale{Items: []models.SaleItem{
		{ProductId: p1.ID, Quantity: 2, UnitPrice: decimal.RequireFromString("10.0")},
		{ProductId: p2.ID, Quantity: 1, UnitPrice: decimal.RequireFromString("15.0")},
	}})
	if err != nil {
		t.Fatalf("CreateSaleTransaction: %v", err)
	}
	if !txn.Total.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("expected total 35, got %s", txn.Total)
	}

	got, err := store.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if len(got.Items) != 2 || got.Items[0].ProductId != p1.ID || !got.Items[0].Subtotal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected items %+v", got.Items)
	}
	if got.UserId == nil || *got.UserId != 7 {
		t.Fatalf("expected acting user stamped, got %v", got.UserId)
	}

	for _, want := range []struct {
		id    int
		stock int
	}{{p1.ID, 98}, {p2.ID, 49}} {
		p, err := store.GetProduct(ctx, want.id)
		if err != nil {
			t.Fatalf("GetProduct: %v", err)
		}
		if p.CurrentStock != want.stock {
			t.Fatalf("product %d: expected %d, got %d", want.id, want.stock, p.CurrentStock)
		}
	}

	adjustments, err := store.ListAdjustments(ctx, models.AdjustmentQuery{ProductId: &p1.ID})
	if err != nil || len(adjustments) != 1 {
		t.Fatalf("expected one sale adjustment, got %d (%v)", len(adjustments), err)
	}
	if adjustments[0].Type != models.AdjustmentTypeSale || adjustments[0].Reference != "TXN-1" {
		t.Fatalf("unexpected sale adjustment %+v", adjustments[0])
	}

	if n := countAudit(t, store, models.EntityTypeTransaction, txn.ID); n != 1 {
		t.Fatalf("expected 1 transaction audit entry, got %d", n)
	}
	if n := countAudit(t, store, models.EntityTypeAdjustment, adjustments[0].ID); n != 1 {
		t.Fatalf("expected 1 adjustment audit entry, got %d", n)
	}
	meta, err := store.GetSyncMetadata(ctx, models.EntityTypeTransaction, txn.ID)
	if err != nil || !meta.PendingSync {
		t.Fatalf("expected transaction pending: %+v %v", meta, err)
	}
}

func TestCreateSaleTransactionInsufficient(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := mustAddProduct(t, store, "I-1", 1)

	_, err := store.CreateSaleTransaction(ctx, &models.NewSale{Items: []models.SaleItem{
		{ProductId: p.ID, Quantity: 5, UnitPrice: decimal.NewFromInt(10)},
	}})
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var stockErr *models.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.ProductId != p.ID || stockErr.Available != 1 || stockErr.Requested != 5 {
		t.Fatalf("unexpected error detail %+v", stockErr)
	}
	got, _ := store.GetProduct(ctx, p.ID)
	if got.CurrentStock != 1 {
		t.Fatalf("stock changed to %d", got.CurrentStock)
	}
}

func TestCreateSaleTransactionIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p1 := mustAddProduct(t, store, "AT-1", 10)
	p2 := mustAddProduct(t, store, "AT-2", 1)

	_, err := store.CreateSaleTransaction(ctx, &models.NewSale{Items: []models.SaleItem{
		{ProductId: p1.ID, Quantity: 2, UnitPrice: decimal.NewFromInt(1)},
		{ProductId: p2.ID, Quantity: 3, UnitPrice: decimal.NewFromInt(1)},
	}})
	var stockErr *models.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.ProductId != p2.ID {
		t.Fatalf("expected insufficient stock on item 2, got %v", err)
	}

	got, _ := store.GetProduct(ctx, p1.ID)
	if got.CurrentStock != 10 {
		t.Fatalf("item 1 stock changed to %d", got.CurrentStock)
	}
	txns, err := store.ListTransactions(ctx, 0)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != 0 {
		t.Fatalf("expected no transactions, got %d", len(txns))
	}
	adjustments, _ := store.ListAdjustments(ctx, models.AdjustmentQuery{})
	if len(adjustments) != 0 {
		t.Fatalf("expected no adjustments, got %d", len(adjustments))
	}
}

func TestCreateSaleTransactionSumsRepeatedProducts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := mustAddProduct(t, store, "R-1", 3)

	_, err := store.CreateSaleTransaction(ctx, &models.NewSale{Items: []models.SaleItem{
		{ProductId: p.ID, Quantity: 2, UnitPrice: decimal.NewFromInt(1)},
		{ProductId: p.ID, Quantity: 2, UnitPrice: decimal.NewFromInt(1)},
	}})
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestCreateSaleTransactionValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	p := mustAddProduct(t, store, "V-1", 3)

	cases := []models.NewSale{
		{},
		{Items: []models.SaleItem{{ProductId: p.ID, Quantity: 0, UnitPrice: decimal.NewFromInt(1)}}},
		{Items: []models.SaleItem{{ProductId: p.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}}},
	}
	for i := range cases {
		if _, err := store.CreateSaleTransaction(ctx, &cases[i]); !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
	if _, err := store.CreateSaleTransaction(ctx, &models.NewSale{Items: []models.SaleItem{
		{ProductId: 4242, Quantity: 1, UnitPrice: decimal.NewFromInt(1)},
	}}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
