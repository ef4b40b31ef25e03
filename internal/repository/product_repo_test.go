package repository

import (
	"context"
	"testing"

	"github.com/andika/product-import/internal/domain"
)

func TestUpsertCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(newTestDB(t))

	if err := repo.Upsert(ctx, &domain.Product{SKU: "ABC123", Name: "Widget", Price: 19.90, Stock: 4}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Same SKU, changed price: exactly one record with the new values
	if err := repo.Upsert(ctx, &domain.Product{SKU: "ABC123", Name: "Widget", Price: 24.50, Stock: 9}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 product, got %d", count)
	}

	got, err := repo.GetBySKU(ctx, "ABC123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Price != 24.50 {
		t.Errorf("price: got %v, want 24.50", got.Price)
	}
	if got.Stock != 9 {
		t.Errorf("stock: got %d, want 9", got.Stock)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(newTestDB(t))

	product := domain.Product{SKU: "XYZ", Name: "Gadget", Price: 5.00, Stock: 1}
	for i := 0; i < 3; i++ {
		p := product
		if err := repo.Upsert(ctx, &p); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 product after re-imports, got %d", count)
	}

	got, err := repo.GetBySKU(ctx, "XYZ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Gadget" || got.Price != 5.00 || got.Stock != 1 {
		t.Errorf("unexpected record: %+v", got)
	}
}
