package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dmarkova/procureflow/internal/application/port"
	"github.com/dmarkova/procureflow/internal/domain/entity"
	"github.com/dmarkova/procureflow/internal/domain/workflow"
)

// POService issues a purchase order document once a request is approved.
// Generation is a post-commit enrichment: the approval stands even when the
// document could not be produced.
type POService interface {
	Generate(ctx context.Context, request *entity.PurchaseRequest) (*entity.PurchaseRequest, error)
}

type poServiceImpl struct {
	requestRepo port.RequestRepository
	storage     port.FileStorage
	logger      Logger
}

// NewPOService creates a new POService
func NewPOService(requestRepo port.RequestRepository, storage port.FileStorage, logger Logger) POService {
	return &poServiceImpl{
		requestRepo: requestRepo,
		storage:     storage,
		logger:      logger,
	}
}

// Generate renders the purchase order workbook and records it on the request
func (s *poServiceImpl) Generate(ctx context.Context, request *entity.PurchaseRequest) (*entity.PurchaseRequest, error) {
	if request.Status != workflow.StateApproved {
		return nil, fmt.Errorf("%w: purchase orders are issued only for approved requests", entity.ErrConflict)
	}

	data := buildPOData(request)

	content, err := renderPOWorkbook(request, data)
	if err != nil {
		return nil, fmt.Errorf("render purchase order: %w", err)
	}

	key := fmt.Sprintf("purchase_orders/%s/%s.xlsx", request.ID, data.PONumber)
	if err := s.storage.Save(ctx, key, content); err != nil {
		return nil, fmt.Errorf("store purchase order: %w", err)
	}

	updated, err := s.requestRepo.AtomicUpdate(ctx, request.ID, func(r *entity.PurchaseRequest) error {
		r.PurchaseOrder = key
		r.PurchaseOrderData = data
		r.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Purchase order issued", "request_id", request.ID, "po_number", data.PONumber)
	return updated, nil
}

func buildPOData(request *entity.PurchaseRequest) *entity.PurchaseOrderData {
	data := &entity.PurchaseOrderData{
		PONumber:    fmt.Sprintf("PO-%.8s-%s", request.ID, request.CreatedAt.Format("20060102")),
		TotalAmount: request.Amount,
		Currency:    "USD",
	}

	if pf := request.ProformaData; pf != nil {
		data.Vendor = pf.Vendor
		data.Items = pf.Items
		data.Terms = pf.Terms
		data.PaymentTerms = pf.PaymentTerms
		data.DeliveryTerms = pf.DeliveryTerms
		if pf.Currency != "" {
			data.Currency = pf.Currency
		}
	}
	return data
}

func renderPOWorkbook(request *entity.PurchaseRequest, data *entity.PurchaseOrderData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	rows := [][]interface{}{
		{"PURCHASE ORDER"},
		{"PO Number", data.PONumber},
		{"Date", request.CreatedAt.Format("2006-01-02")},
		{"Request", request.Title},
		{"Vendor", data.Vendor},
		{},
		{"Item", "Quantity", "Unit Price"},
	}

	for _, item := range data.Items {
		rows = append(rows, []interface{}{item.Name, item.Quantity, item.UnitPrice.String()})
	}

	rows = append(rows,
		[]interface{}{},
		[]interface{}{"Total", fmt.Sprintf("%s %s", data.Currency, data.TotalAmount.StringFixed(2))},
		[]interface{}{"Terms", data.Terms},
		[]interface{}{"Payment Terms", data.PaymentTerms},
		[]interface{}{"Delivery Terms", data.DeliveryTerms},
	)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
