package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dmarkova/procureflow/internal/domain/entity"
)

func TestPOService_Generate(t *testing.T) {
	t.Run("issues a purchase order for an approved request", func(t *testing.T) {
		f := newFixture()
		po := NewPOService(f.repo, f.storage, mockLogger{})

		request := f.approvedRequest(t)
		request.ProformaData = &entity.ProformaData{
			Vendor:   "Acme Corp",
			Currency: "EUR",
			Items: []entity.LineItem{
				{Name: "Laptop", Quantity: 3, UnitPrice: decimal.NewFromInt(30)},
			},
			PaymentTerms: "net 30",
		}

		updated, err := po.Generate(context.Background(), request)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}

		if updated.PurchaseOrder == "" {
			t.Fatal("PurchaseOrder key is empty")
		}
		if !strings.HasSuffix(updated.PurchaseOrder, ".xlsx") {
			t.Errorf("PurchaseOrder key = %q, want xlsx", updated.PurchaseOrder)
		}
		if !f.storage.Exists(context.Background(), updated.PurchaseOrder) {
			t.Errorf("workbook %q not stored", updated.PurchaseOrder)
		}

		data := updated.PurchaseOrderData
		if data == nil {
			t.Fatal("PurchaseOrderData is nil")
		}
		if !strings.HasPrefix(data.PONumber, "PO-") {
			t.Errorf("PONumber = %q", data.PONumber)
		}
		if data.Vendor != "Acme Corp" {
			t.Errorf("Vendor = %q, want Acme Corp", data.Vendor)
		}
		if data.Currency != "EUR" {
			t.Errorf("Currency = %q, want EUR", data.Currency)
		}
		if !data.TotalAmount.Equal(request.Amount) {
			t.Errorf("TotalAmount = %v, want %v", data.TotalAmount, request.Amount)
		}
	})

	t.Run("currency defaults without proforma data", func(t *testing.T) {
		f := newFixture()
		po := NewPOService(f.repo, f.storage, mockLogger{})

		updated, err := po.Generate(context.Background(), f.approvedRequest(t))
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if updated.PurchaseOrderData.Currency != "USD" {
			t.Errorf("Currency = %q, want USD", updated.PurchaseOrderData.Currency)
		}
	})

	t.Run("refuses non-approved requests", func(t *testing.T) {
		f := newFixture()
		po := NewPOService(f.repo, f.storage, mockLogger{})

		_, err := po.Generate(context.Background(), f.createRequest(t, nil))
		if !errors.Is(err, entity.ErrConflict) {
			t.Errorf("Generate() error = %v, want ErrConflict", err)
		}
	})
}
