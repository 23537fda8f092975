package entity

import "github.com/shopspring/decimal"

// LineItem is a single item extracted from a proforma or receipt
type LineItem struct {
	Name      string          `json:"name"`
	Quantity  float64         `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ProformaData is the structured extraction result for an uploaded proforma
// invoice. Absent on the request until extraction has completed successfully.
type ProformaData struct {
	Vendor        string          `json:"vendor"`
	VendorContact string          `json:"vendor_contact,omitempty"`
	Items         []LineItem      `json:"items,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency,omitempty"`
	Terms         string          `json:"terms,omitempty"`
	PaymentTerms  string          `json:"payment_terms,omitempty"`
	DeliveryTerms string          `json:"delivery_terms,omitempty"`
	RawText       string          `json:"raw_text,omitempty"`
}

// ReceiptData is the structured extraction result for a submitted receipt
type ReceiptData struct {
	Seller        string          `json:"seller"`
	Items         []LineItem      `json:"items,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency,omitempty"`
	PurchaseDate  string          `json:"purchase_date,omitempty"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
}

// Receipt validation outcomes. A discrepancy is a successful validation that
// found mismatches, not a failure of the validation itself.
const (
	ValidationMatch       = "match"
	ValidationDiscrepancy = "discrepancy"
)

// Discrepancy is one detected mismatch between expected and actual receipt data
type Discrepancy struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Message  string `json:"message"`
}

// ReceiptValidation is the outcome of checking a receipt against the
// request's amount and proforma data
type ReceiptValidation struct {
	Status        string        `json:"status"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Matches       []string      `json:"matches,omitempty"`
}

// PurchaseOrderData describes the purchase order issued once a request is
// approved. Document generation is best-effort and never blocks approval.
type PurchaseOrderData struct {
	PONumber      string          `json:"po_number"`
	Vendor        string          `json:"vendor"`
	Items         []LineItem      `json:"items,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency,omitempty"`
	Terms         string          `json:"terms,omitempty"`
	PaymentTerms  string          `json:"payment_terms,omitempty"`
	DeliveryTerms string          `json:"delivery_terms,omitempty"`
}
