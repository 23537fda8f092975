package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmarkova/procureflow/internal/domain/workflow"
)

// PurchaseRequest is the aggregate root of the approval lifecycle. All
// mutations go through the lifecycle service and are committed with the
// repository's per-id atomic update; Version backs the optimistic lock.
type PurchaseRequest struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Status      workflow.State  `json:"status"`

	CreatedBy string    `json:"created_by"`
	Creator   *User     `json:"creator,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Document slots hold opaque storage keys resolved by the file storage
	// collaborator, never embedded content.
	Proforma          string             `json:"proforma,omitempty"`
	ProformaData      *ProformaData      `json:"proforma_data,omitempty"`
	PurchaseOrder     string             `json:"purchase_order,omitempty"`
	PurchaseOrderData *PurchaseOrderData `json:"purchase_order_data,omitempty"`
	Receipt           string             `json:"receipt,omitempty"`
	ReceiptData       *ReceiptData       `json:"receipt_data,omitempty"`
	ReceiptValidation *ReceiptValidation `json:"receipt_validation,omitempty"`

	RejectionReason string `json:"rejection_reason,omitempty"`

	Approvals []*Approval `json:"approvals"`

	Version int64 `json:"-"`
}

// Finalized returns true once the request reached a terminal status
func (r *PurchaseRequest) Finalized() bool {
	return r.Status.IsTerminal()
}

// ApprovalBy returns the recorded approval from the given user, or nil.
// History is append-only and at most one record exists per approver.
func (r *PurchaseRequest) ApprovalBy(userID string) *Approval {
	for _, a := range r.Approvals {
		if a.ApproverID == userID {
			return a
		}
	}
	return nil
}

// Approval is one approver's recorded decision on a request. Records are
// append-only; nothing edits or removes them after commit.
type Approval struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	ApproverID string    `json:"approver_id"`
	Approver   *User     `json:"approver,omitempty"`
	Approved   bool      `json:"approved"`
	Comments   string    `json:"comments,omitempty"`
	ApprovedAt time.Time `json:"approved_at"`
}
