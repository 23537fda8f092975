package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dmarkova/procureflow/internal/domain/entity"
)

// DocumentFile is an uploaded document handed to external collaborators.
// Content travels by value; the opaque storage key on the request is assigned
// separately by the lifecycle service.
type DocumentFile struct {
	Name        string
	ContentType string
	Content     []byte
}

// DocumentIntelligence wraps the external extraction/validation capability.
// Both calls are idempotent for the same input, bounded by the caller's
// context deadline, and may fail; failures are surfaced as entity.ErrAdapter
// and never block the owning write.
type DocumentIntelligence interface {
	// ExtractProforma returns structured fields for a proforma invoice
	ExtractProforma(ctx context.Context, file DocumentFile) (*entity.ProformaData, error)

	// ValidateReceipt extracts the receipt and checks it against the expected
	// amount and the proforma reference data. A returned discrepancy status
	// is a successful validation; only adapter trouble is an error.
	ValidateReceipt(ctx context.Context, file DocumentFile, expectedAmount decimal.Decimal, reference *entity.ProformaData) (*entity.ReceiptData, *entity.ReceiptValidation, error)
}

// Notifier pushes decision outcomes to the requester. Delivery is
// best-effort; the lifecycle service logs failures and moves on.
type Notifier interface {
	NotifyDecision(ctx context.Context, request *entity.PurchaseRequest, recipient *entity.User, approval *entity.Approval) error
}
